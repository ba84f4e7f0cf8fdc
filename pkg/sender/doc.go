// Package sender holds the channel transports: realtime (hub), mobile
// push (Firebase Cloud Messaging), SMS (AWS SNS), and email (Postmark).
//
// Each transport implements a one-method interface, so the delivery
// pipeline depends on behavior, not vendors. Error contracts matter more
// than the vendors do: ErrTokenInvalid means a push token is dead and must
// be deactivated, realtime.ErrNotConnected means the recipient is offline
// and a fallback channel should be tried, and ErrDeliveryFailed is
// transient and drives the retry lane.
package sender
