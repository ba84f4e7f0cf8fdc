// Package realtime fans notification events out to connected clients.
//
// The Hub keeps one delivery channel per user; a user with several open
// tabs or devices simply has several subscriptions on it. Publish reports
// ErrNotConnected when a user has no live subscription, which is how the
// delivery pipeline decides to fall back to push. Presence is derived from
// subscriptions, so Connected never needs an external registry.
//
// Slow consumers are given a grace window and then disconnected rather
// than allowed to stall publishers.
package realtime
