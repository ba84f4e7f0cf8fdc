// Package notification holds the core delivery-intent model and its
// persistence contract.
//
// A Notification moves along a fixed status state machine:
//
//	pending → queued → sending → {sent | failed}
//	sent → delivered → read → clicked   (optional forward path)
//	failed → queued/sending             (retry re-entry)
//
// The Store interface exposes only atomic single-document mutations;
// transition validation is part of the update filter, so implementations
// never race on read-modify-write cycles. Two implementations ship with the
// package: MemoryStore for tests and local development, and MongoStore for
// production.
//
// A notification with target roles but no recipient is a template awaiting
// fan-out. Templates never reach the delivery queue directly.
package notification
