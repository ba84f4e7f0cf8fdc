package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the persistence contract for delivery jobs. Implementations
// must make Claim atomic: a job handed to one worker is invisible to all
// others until its lock expires.
type Storage interface {
	// Enqueue stores a job. Jobs whose ReadyAt is in the future become
	// delayed; everything else is immediately claimable.
	Enqueue(ctx context.Context, job *Job) error

	// Claim promotes due delayed jobs, then hands the claimant the most
	// urgent waiting job, locked for lockFor. Returns ErrNoJobToClaim when
	// nothing is due.
	Claim(ctx context.Context, workerID uuid.UUID, lockFor time.Duration) (*Job, error)

	// Complete marks an active job as completed and releases its lock.
	Complete(ctx context.Context, jobID uuid.UUID) error

	// Fail marks an active job as failed, recording the error.
	Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error

	// IsQueued reports whether any job for the notification is waiting,
	// delayed, or active in any lane.
	IsQueued(ctx context.Context, notificationID uuid.UUID) (bool, error)

	// Remove deletes a job regardless of its state. Returns false when the
	// job does not exist.
	Remove(ctx context.Context, jobID uuid.UUID) (bool, error)

	// ListFailed returns failed jobs, most recent first.
	ListFailed(ctx context.Context, limit int) ([]Job, error)

	// Clean deletes jobs in the given statuses finished before the cutoff,
	// scoped to one lane. Returns the number of jobs removed.
	Clean(ctx context.Context, lane Lane, statuses []JobStatus, olderThan time.Time) (int64, error)

	// Stats returns a per-lane snapshot of job counts.
	Stats(ctx context.Context) (Stats, error)
}
