// Package device tracks push-notification device tokens.
//
// The Registry enforces the lifecycle rules around tokens: one active token
// per user and platform, global uniqueness of the token string (a token that
// reappears under a different account is re-homed, since tokens identify app
// installs rather than accounts), and idempotent re-registration that only
// refreshes the last-used timestamp.
//
// Periodic sweeps retire tokens that have gone idle or were registered but
// never delivered to, so the push fan-out stops paying for dead endpoints.
// MemoryStorage backs tests and single-process use; MongoStorage backs
// production.
package device
