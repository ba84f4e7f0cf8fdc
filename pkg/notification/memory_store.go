package notification

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Suitable for development and testing; all mutations happen under a single
// mutex, which gives the same atomicity guarantees the interface demands.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: make(map[uuid.UUID]*Notification),
	}
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	if n == nil {
		return ErrNilNotification
	}
	if n.ID == uuid.Nil {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	s.notifications[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Notification
	for _, n := range s.notifications {
		if !matches(n, f) {
			continue
		}
		matched = append(matched, *n)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []Notification{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func matches(n *Notification, f Filter) bool {
	if f.RecipientID != "" && n.RecipientID != f.RecipientID {
		return false
	}
	if f.BatchID != uuid.Nil && n.BatchID != f.BatchID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, n.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, n.Status) {
		return false
	}
	if f.OnlyUnread && n.IsRead() {
		return false
	}
	if f.Since != nil && !n.CreatedAt.After(*f.Since) {
		return false
	}
	return true
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errInfo *ErrorInfo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return false, ErrNotFound
	}

	// Marking read twice is idempotent, not a violation.
	if status == StatusRead && n.Status == StatusRead {
		return true, nil
	}
	if !n.Status.CanTransitionTo(status) {
		return false, nil
	}

	n.Status = status
	applyStatusTimestamp(n, status, time.Now())
	if errInfo != nil {
		n.ErrorCode = errInfo.Code
		n.ErrorMessage = errInfo.Message
	}
	return true, nil
}

func applyStatusTimestamp(n *Notification, status Status, now time.Time) {
	switch status {
	case StatusSent:
		n.SentAt = &now
	case StatusDelivered:
		n.DeliveredAt = &now
	case StatusRead:
		n.ReadAt = &now
	case StatusClicked:
		n.ClickedAt = &now
	case StatusFailed:
		n.FailedAt = &now
	}
}

func (s *MemoryStore) IncrementRetry(ctx context.Context, id uuid.UUID, nextRetryAt *time.Time) (int8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return 0, ErrNotFound
	}
	n.RetryCount++
	if nextRetryAt != nil {
		at := *nextRetryAt
		n.NextRetryAt = &at
	} else {
		n.NextRetryAt = nil
	}
	return n.RetryCount, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var updated int64
	for _, n := range s.notifications {
		if n.RecipientID != recipientID || n.IsRead() {
			continue
		}
		n.Status = StatusRead
		n.ReadAt = &now
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) RecordClick(ctx context.Context, id uuid.UUID, click Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now()
	}
	n.Clicks = append(n.Clicks, click)
	n.ClickCount++
	return nil
}

func (s *MemoryStore) IncrementOpens(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.OpenCount++
	return nil
}

func (s *MemoryStore) DeleteByBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	if batchID == uuid.Nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.notifications {
		if n.BatchID == batchID {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.notifications {
		if n.IsRead() && n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Notification
	for _, n := range s.notifications {
		if n.Status != StatusPending || n.ScheduledFor == nil {
			continue
		}
		if n.ScheduledFor.After(now) {
			continue
		}
		due = append(due, *n)
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (s *MemoryStore) FindRetryable(ctx context.Context, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.Status != StatusFailed || n.RetryExhausted() || n.RecipientID == "" {
			continue
		}
		out = append(out, *n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) FindOrphans(ctx context.Context) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		switch n.Status {
		case StatusPending, StatusQueued, StatusSending:
		default:
			continue
		}
		if n.RecipientID == "" && len(n.TargetRoles) == 0 {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindRecentDuplicates(ctx context.Context, typ Type, title, message, recipientID string, since time.Time) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.Type != typ || n.Title != title || n.Message != message || n.RecipientID != recipientID {
			continue
		}
		if n.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}
