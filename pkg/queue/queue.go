package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
)

// StatusUpdater is the slice of the notification store the queue needs: it
// drives status transitions as jobs move through the lanes.
type StatusUpdater interface {
	GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status notification.Status, errInfo *notification.ErrorInfo) (bool, error)
	IncrementRetry(ctx context.Context, id uuid.UUID, nextRetryAt *time.Time) (int8, error)
}

// Queue coordinates delivery jobs across the send, scheduled, and retry
// lanes and keeps notification statuses in lockstep with job state.
type Queue struct {
	storage Storage
	store   StatusUpdater
	logger  *slog.Logger
	paused  atomic.Bool
}

// Option is a functional option for configuring a Queue.
type Option func(*Queue)

// WithLogger sets the logger for the Queue.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New creates a delivery queue on top of the given storage and
// notification store.
func New(storage Storage, store StatusUpdater, opts ...Option) (*Queue, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}

	q := &Queue{
		storage: storage,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue admits a notification for delivery. Notifications scheduled for
// the future land in the scheduled lane; everything else is claimable
// immediately. The guards keep the queue honest:
//
//   - a notification without a resolved recipient is marked failed and
//     rejected, so template fan-out bugs surface instead of looping
//   - a notification already sent or permanently failed is rejected
//   - a notification with a live job in any lane is rejected, which makes
//     Enqueue idempotent per notification
func (q *Queue) Enqueue(ctx context.Context, n *notification.Notification) (*Job, error) {
	if n == nil {
		return nil, ErrNilNotification
	}

	if n.RecipientID == "" {
		_, _ = q.store.UpdateStatus(ctx, n.ID, notification.StatusFailed, &notification.ErrorInfo{
			Code:    "NO_RECIPIENT",
			Message: "notification has no recipient",
		})
		q.logger.WarnContext(ctx, "rejected notification without recipient",
			logger.NotificationID(n.ID))
		return nil, ErrMissingRecipient
	}

	if n.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyTerminal, n.Status)
	}

	queued, err := q.storage.IsQueued(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue for notification %s: %w", n.ID, err)
	}
	if queued {
		return nil, ErrAlreadyQueued
	}

	now := time.Now()
	job := &Job{
		ID:             uuid.New(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
		Attempt:        1,
		Lane:           LaneSend,
		ReadyAt:        now,
		CreatedAt:      now,
	}
	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		job.Lane = LaneScheduled
		job.ReadyAt = *n.ScheduledFor
	}

	if err := q.storage.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job for notification %s: %w", n.ID, err)
	}

	if _, err := q.store.UpdateStatus(ctx, n.ID, notification.StatusQueued, nil); err != nil {
		q.logger.ErrorContext(ctx, "failed to mark notification queued",
			logger.NotificationID(n.ID),
			logger.Error(err))
	}

	q.logger.DebugContext(ctx, "notification enqueued",
		logger.NotificationID(n.ID),
		logger.JobID(job.ID),
		logger.Lane(string(job.Lane)),
		slog.Int("priority", int(job.Priority)))
	return job, nil
}

// retry schedules the attempt following prev, with exponential backoff.
// Every settled failure bumps the retry counter, the final one included,
// so an exhausted notification carries RetryCount == MaxAttempts and is
// excluded from the retry sweep. Returns nil when the budget is spent.
func (q *Queue) retry(ctx context.Context, prev *Job) (*Job, error) {
	if prev.Attempt >= MaxAttempts {
		if _, err := q.store.IncrementRetry(ctx, prev.NotificationID, nil); err != nil {
			q.logger.ErrorContext(ctx, "failed to record final retry",
				logger.NotificationID(prev.NotificationID),
				logger.Error(err))
		}
		return nil, nil
	}

	delay := RetryDelay(prev.Attempt)
	now := time.Now()
	job := &Job{
		ID:             uuid.New(),
		NotificationID: prev.NotificationID,
		RecipientID:    prev.RecipientID,
		Channel:        prev.Channel,
		Title:          prev.Title,
		Message:        prev.Message,
		Priority:       prev.Priority,
		Attempt:        prev.Attempt + 1,
		Lane:           LaneRetry,
		ReadyAt:        now.Add(delay),
		CreatedAt:      now,
	}
	if err := q.storage.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry for notification %s: %w", prev.NotificationID, err)
	}

	if _, err := q.store.IncrementRetry(ctx, prev.NotificationID, &job.ReadyAt); err != nil {
		q.logger.ErrorContext(ctx, "failed to record retry",
			logger.NotificationID(prev.NotificationID),
			logger.Error(err))
	}

	q.logger.InfoContext(ctx, "delivery retry scheduled",
		logger.NotificationID(prev.NotificationID),
		logger.JobID(job.ID),
		logger.Attempt(int(job.Attempt)),
		slog.Duration("delay", delay))
	return job, nil
}

// Requeue puts a failed notification back onto the retry lane. The
// maintenance sweep uses it for failures that never produced a follow-up
// job, such as crashes between recording the failure and scheduling the
// next attempt.
func (q *Queue) Requeue(ctx context.Context, n *notification.Notification) (*Job, error) {
	if n == nil {
		return nil, ErrNilNotification
	}
	if n.RecipientID == "" {
		return nil, ErrMissingRecipient
	}
	if n.Status != notification.StatusFailed {
		return nil, fmt.Errorf("%w: notification is %s", ErrNotRetryable, n.Status)
	}
	if n.RetryExhausted() {
		return nil, ErrRetryExhausted
	}

	queued, err := q.storage.IsQueued(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue for notification %s: %w", n.ID, err)
	}
	if queued {
		return nil, ErrAlreadyQueued
	}

	now := time.Now()
	job := &Job{
		ID:             uuid.New(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel,
		Title:          n.Title,
		Message:        n.Message,
		Priority:       n.Priority,
		Attempt:        n.RetryCount + 1,
		Lane:           LaneRetry,
		ReadyAt:        now,
		CreatedAt:      now,
	}
	if err := q.storage.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to requeue notification %s: %w", n.ID, err)
	}

	// The retry counter is untouched here: it only counts settled
	// failures, and this attempt has not run yet. The worker accounts
	// for it if it fails too.
	if _, err := q.store.UpdateStatus(ctx, n.ID, notification.StatusQueued, nil); err != nil {
		q.logger.ErrorContext(ctx, "failed to mark notification queued",
			logger.NotificationID(n.ID),
			logger.Error(err))
	}

	q.logger.InfoContext(ctx, "failed notification requeued",
		logger.NotificationID(n.ID),
		logger.JobID(job.ID),
		logger.Attempt(int(job.Attempt)))
	return job, nil
}

// Claim hands the caller the most urgent due job. Returns ErrNoJobToClaim
// when the queue is empty or paused.
func (q *Queue) Claim(ctx context.Context, workerID uuid.UUID, lockFor time.Duration) (*Job, error) {
	if q.paused.Load() {
		return nil, ErrNoJobToClaim
	}
	return q.storage.Claim(ctx, workerID, lockFor)
}

// Pause stops handing out jobs. Already claimed jobs finish normally.
func (q *Queue) Pause() {
	if q.paused.CompareAndSwap(false, true) {
		q.logger.Info("delivery queue paused")
	}
}

// Resume re-enables job claims.
func (q *Queue) Resume() {
	if q.paused.CompareAndSwap(true, false) {
		q.logger.Info("delivery queue resumed")
	}
}

// Paused reports whether claims are currently suspended.
func (q *Queue) Paused() bool {
	return q.paused.Load()
}

// Stats returns a per-lane snapshot including the paused flag.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	stats, err := q.storage.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to collect queue stats: %w", err)
	}
	stats.Paused = q.paused.Load()
	return stats, nil
}

// ListFailed returns failed jobs for operator inspection, most recent first.
func (q *Queue) ListFailed(ctx context.Context, limit int) ([]Job, error) {
	return q.storage.ListFailed(ctx, limit)
}

// Remove deletes a job by ID for manual intervention.
func (q *Queue) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return q.storage.Remove(ctx, jobID)
}

// Clean deletes finished jobs in the given statuses older than the cutoff.
func (q *Queue) Clean(ctx context.Context, lane Lane, statuses []JobStatus, olderThan time.Time) (int64, error) {
	return q.storage.Clean(ctx, lane, statuses, olderThan)
}
