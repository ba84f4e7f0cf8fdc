package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage implementation for testing and
// single-process deployments.
type MemoryStorage struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job

	// Indexes for efficient queries
	byStatus       map[JobStatus][]uuid.UUID
	byNotification map[uuid.UUID][]uuid.UUID

	// Lock management
	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStorage creates a new in-memory storage. The returned storage
// runs a background goroutine that releases expired job locks; call Close
// to stop it.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		jobs:           make(map[uuid.UUID]*Job),
		byStatus:       make(map[JobStatus][]uuid.UUID),
		byNotification: make(map[uuid.UUID][]uuid.UUID),
		done:           make(chan struct{}),
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background lock-expiry goroutine.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

func (ms *MemoryStorage) Enqueue(_ context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	cp := *job
	if cp.ReadyAt.After(time.Now()) {
		cp.Status = JobStatusDelayed
	} else {
		cp.Status = JobStatusWaiting
	}

	ms.jobs[cp.ID] = &cp
	ms.byStatus[cp.Status] = append(ms.byStatus[cp.Status], cp.ID)
	ms.byNotification[cp.NotificationID] = append(ms.byNotification[cp.NotificationID], cp.ID)

	job.Status = cp.Status
	return nil
}

func (ms *MemoryStorage) Claim(_ context.Context, workerID uuid.UUID, lockFor time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	ms.promoteDue(now)

	// Urgency-first selection: the lowest priority value wins, earliest
	// creation time breaks ties within a tier.
	var best *Job
	for _, jobID := range ms.byStatus[JobStatusWaiting] {
		job := ms.jobs[jobID]
		if best == nil ||
			job.Priority < best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockFor)
	ms.moveStatus(best, JobStatusActive)
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

// promoteDue re-injects delayed scheduled and retry jobs whose time has
// come. Caller must hold the mutex.
func (ms *MemoryStorage) promoteDue(now time.Time) {
	for _, jobID := range slices.Clone(ms.byStatus[JobStatusDelayed]) {
		job := ms.jobs[jobID]
		if !job.ReadyAt.After(now) {
			ms.moveStatus(job, JobStatusWaiting)
		}
	}
}

func (ms *MemoryStorage) Complete(_ context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != JobStatusActive {
		return ErrJobNotActive
	}

	now := time.Now()
	ms.moveStatus(job, JobStatusCompleted)
	job.CompletedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) Fail(_ context.Context, jobID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != JobStatusActive {
		return ErrJobNotActive
	}

	now := time.Now()
	ms.moveStatus(job, JobStatusFailed)
	job.Error = errMsg
	job.CompletedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) IsQueued(_ context.Context, notificationID uuid.UUID) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, jobID := range ms.byNotification[notificationID] {
		switch ms.jobs[jobID].Status {
		case JobStatusWaiting, JobStatusDelayed, JobStatusActive:
			return true, nil
		}
	}
	return false, nil
}

func (ms *MemoryStorage) Remove(_ context.Context, jobID uuid.UUID) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return false, nil
	}
	ms.deleteJob(job)
	return true, nil
}

func (ms *MemoryStorage) ListFailed(_ context.Context, limit int) ([]Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []Job
	for _, jobID := range ms.byStatus[JobStatusFailed] {
		out = append(out, *ms.jobs[jobID])
	}
	slices.SortFunc(out, func(a, b Job) int {
		switch {
		case a.CompletedAt == nil || b.CompletedAt == nil:
			return 0
		case a.CompletedAt.After(*b.CompletedAt):
			return -1
		case a.CompletedAt.Before(*b.CompletedAt):
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (ms *MemoryStorage) Clean(_ context.Context, lane Lane, statuses []JobStatus, olderThan time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var count int64
	for _, status := range statuses {
		for _, jobID := range slices.Clone(ms.byStatus[status]) {
			job := ms.jobs[jobID]
			if job.Lane != lane {
				continue
			}
			finished := job.CreatedAt
			if job.CompletedAt != nil {
				finished = *job.CompletedAt
			}
			if finished.Before(olderThan) {
				ms.deleteJob(job)
				count++
			}
		}
	}
	return count, nil
}

func (ms *MemoryStorage) Stats(_ context.Context) (Stats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stats := Stats{Lanes: make(map[Lane]LaneStats)}
	for _, lane := range Lanes() {
		stats.Lanes[lane] = LaneStats{}
	}
	for _, job := range ms.jobs {
		ls := stats.Lanes[job.Lane]
		switch job.Status {
		case JobStatusWaiting:
			ls.Waiting++
		case JobStatusDelayed:
			ls.Delayed++
		case JobStatusActive:
			ls.Active++
		case JobStatusCompleted:
			ls.Completed++
		case JobStatusFailed:
			ls.Failed++
		}
		stats.Lanes[job.Lane] = ls
	}
	return stats, nil
}

// Helper methods

func (ms *MemoryStorage) moveStatus(job *Job, to JobStatus) {
	ms.byStatus[job.Status] = slices.DeleteFunc(ms.byStatus[job.Status], func(id uuid.UUID) bool {
		return id == job.ID
	})
	job.Status = to
	ms.byStatus[to] = append(ms.byStatus[to], job.ID)
}

func (ms *MemoryStorage) deleteJob(job *Job) {
	ms.byStatus[job.Status] = slices.DeleteFunc(ms.byStatus[job.Status], func(id uuid.UUID) bool {
		return id == job.ID
	})
	ms.byNotification[job.NotificationID] = slices.DeleteFunc(ms.byNotification[job.NotificationID], func(id uuid.UUID) bool {
		return id == job.ID
	})
	if len(ms.byNotification[job.NotificationID]) == 0 {
		delete(ms.byNotification, job.NotificationID)
	}
	delete(ms.jobs, job.ID)
}

// lockExpirationManager runs in the background to recover jobs claimed by
// workers that crashed or lost connectivity. Without it, a job locked by a
// dead worker would be stuck in active forever.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets active jobs with expired locks back to waiting,
// preserving their attempt count.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, jobID := range slices.Clone(ms.byStatus[JobStatusActive]) {
		job := ms.jobs[jobID]
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			ms.moveStatus(job, JobStatusWaiting)
			job.LockedUntil = nil
			job.LockedBy = nil
		}
	}
}
