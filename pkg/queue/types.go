package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/notification"
)

// Lane identifies one of the delivery lanes. Jobs in the send lane are
// immediately claimable; scheduled and retry jobs sit delayed until due and
// are promoted into the claimable set during Claim.
type Lane string

const (
	LaneSend      Lane = "send"
	LaneScheduled Lane = "scheduled"
	LaneRetry     Lane = "retry"
)

// Lanes lists all delivery lanes in a stable order.
func Lanes() []Lane {
	return []Lane{LaneSend, LaneScheduled, LaneRetry}
}

// JobStatus represents the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a single delivery attempt for one notification. Jobs are keyed by
// notification ID for idempotency: while any job for a notification is
// waiting, delayed, or active, no second one can be enqueued.
type Job struct {
	ID             uuid.UUID             `json:"id"`
	NotificationID uuid.UUID             `json:"notification_id"`
	RecipientID    string                `json:"recipient_id"`
	Channel        notification.Channel  `json:"channel"`
	Title          string                `json:"title"`
	Message        string                `json:"message"`
	Priority       notification.Priority `json:"priority"`
	Attempt        int8                  `json:"attempt"`
	Lane           Lane                  `json:"lane"`
	Status         JobStatus             `json:"status"`
	ReadyAt        time.Time             `json:"ready_at"`
	LockedUntil    *time.Time            `json:"locked_until,omitempty"`
	LockedBy       *uuid.UUID            `json:"locked_by,omitempty"`
	Error          string                `json:"error,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// LaneStats is a per-lane breakdown of job counts.
type LaneStats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats is a snapshot of the whole queue, broken down by lane.
type Stats struct {
	Lanes  map[Lane]LaneStats `json:"lanes"`
	Paused bool               `json:"paused"`
}

// Total sums a counter across lanes.
func (s Stats) Total() LaneStats {
	var t LaneStats
	for _, ls := range s.Lanes {
		t.Waiting += ls.Waiting
		t.Delayed += ls.Delayed
		t.Active += ls.Active
		t.Completed += ls.Completed
		t.Failed += ls.Failed
	}
	return t
}
