package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows List results.
type Filter struct {
	RecipientID string     // only notifications addressed to this user
	BatchID     uuid.UUID  // only copies belonging to this batch
	Types       []Type     // only these notification types
	Statuses    []Status   // only these lifecycle states
	OnlyUnread  bool       // exclude read and clicked notifications
	Since       *time.Time // only notifications created after this time
	Limit       int        // maximum number of results (0 = no limit)
	Offset      int        // number of results to skip for pagination
}

// Store handles notification persistence. All status mutations are atomic
// single-document updates; implementations must never read-modify-write.
type Store interface {
	// Create stores a new notification or template.
	Create(ctx context.Context, n *Notification) error

	// GetByID retrieves a single notification.
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)

	// List returns notifications matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Notification, error)

	// UpdateStatus atomically moves a notification to status, validating
	// the transition as part of the update filter. It records errInfo and
	// the status-appropriate timestamp. Returns false when no document
	// changed; setting read on an already-read notification is a no-op
	// reported as true.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errInfo *ErrorInfo) (bool, error)

	// IncrementRetry atomically bumps the retry counter and records when
	// the next attempt becomes due; a nil nextRetryAt clears the field,
	// marking the budget as spent. Returns the new counter value.
	IncrementRetry(ctx context.Context, id uuid.UUID, nextRetryAt *time.Time) (int8, error)

	// MarkAllRead marks every unread notification for the recipient as
	// read in one bulk atomic update and returns the number updated.
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)

	// CountUnread returns the unread notification count for the recipient.
	CountUnread(ctx context.Context, recipientID string) (int, error)

	// RecordClick appends a click record and bumps the click counter.
	RecordClick(ctx context.Context, id uuid.UUID, click Click) error

	// IncrementOpens bumps the open counter.
	IncrementOpens(ctx context.Context, id uuid.UUID) error

	// DeleteByBatch removes all copies sharing a batch ID.
	DeleteByBatch(ctx context.Context, batchID uuid.UUID) (int64, error)

	// DeleteReadBefore removes read notifications older than the cutoff.
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// FindDueScheduled returns pending notifications whose ScheduledFor
	// has passed, up to limit.
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]Notification, error)

	// FindRetryable returns failed notifications with retry budget left
	// and a non-empty recipient, up to limit.
	FindRetryable(ctx context.Context, limit int) ([]Notification, error)

	// FindOrphans returns notifications stuck in pending/queued/sending
	// with no recipient and no target roles. These are unrecoverable
	// artifacts from malformed creation calls.
	FindOrphans(ctx context.Context) ([]Notification, error)

	// FindRecentDuplicates returns recipient copies with identical type,
	// title and message created after since. The resolver uses this to
	// absorb duplicate calls from flaky producers.
	FindRecentDuplicates(ctx context.Context, typ Type, title, message, recipientID string, since time.Time) ([]Notification, error)
}
