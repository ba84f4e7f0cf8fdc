// Package router picks the effective delivery channel for a notification.
//
// The Policy validates the requested channel against an allowed-channel
// table per notification type, configurable through a ConfigLookup with a
// hard-coded default table behind it. A disallowed channel is substituted
// with the type's default and logged, never rejected.
//
// The Router then turns the effective channel into a Decision: dashboard
// and connected in-app recipients get a synchronous realtime attempt;
// everything else takes the delivery queue.
package router
