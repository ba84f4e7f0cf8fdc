// Package queue implements the delivery queue for notifications.
//
// Work flows through three lanes:
//
//   - send       — immediately claimable delivery attempts
//   - scheduled  — notifications with a future delivery time
//   - retry      — failed attempts waiting out their backoff window
//
// Jobs in the scheduled and retry lanes sit delayed until due; promotion
// into the claimable set happens inside Claim, so no separate mover
// process is required. Within the claimable set, ordering is strictly by
// priority tier (urgent first) with creation time breaking ties.
//
// # Idempotency and guards
//
// Jobs are keyed by notification ID: while any job for a notification is
// waiting, delayed, or active, Enqueue rejects a second one with
// ErrAlreadyQueued. Notifications without a resolved recipient are marked
// failed and rejected, and notifications already in a terminal status are
// rejected with ErrAlreadyTerminal.
//
// # Retries
//
// A failed attempt schedules the next one in the retry lane with
// exponential backoff (RetryDelay), up to MaxAttempts total attempts.
// Each attempt is a fresh job; the failed one stays behind for operator
// inspection until Clean removes it.
//
// # Storage
//
// The Queue and Worker interact with persistence only through the Storage
// interface. MemoryStorage backs tests and single-process deployments;
// RedisStorage backs multi-process deployments with an atomic Lua-scripted
// claim.
package queue
