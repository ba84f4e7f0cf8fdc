package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub fans notification events out to connected clients. Each user has
// their own delivery channel; a user with several open tabs or devices has
// several subscriptions on it.
type Hub struct {
	bufferSize          int
	slowConsumerTimeout time.Duration
	shutdownTimeout     time.Duration

	users     map[string]*userChannel
	mu        sync.RWMutex
	wg        sync.WaitGroup
	closed    bool
	closeChan chan struct{}
}

// userChannel holds all live subscriptions for one user.
type userChannel struct {
	subscribers map[string]*Subscription
	mu          sync.RWMutex
}

// Subscription is one client's view of the event stream.
type Subscription struct {
	id        string
	userID    string
	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	hub       *Hub
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscription event buffer.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithSlowConsumerTimeout sets how long a publish waits on a full
// subscription buffer before disconnecting the consumer.
func WithSlowConsumerTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.slowConsumerTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for cleanup.
func WithShutdownTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.shutdownTimeout = d
		}
	}
}

// NewHub creates a realtime hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		bufferSize:          100,
		slowConsumerTimeout: 5 * time.Second,
		shutdownTimeout:     30 * time.Second,
		users:               make(map[string]*userChannel),
		closeChan:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe opens an event stream for the user. The subscription closes
// itself when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	uc, exists := h.users[userID]
	if !exists {
		uc = &userChannel{subscribers: make(map[string]*Subscription)}
		h.users[userID] = uc
	}
	h.mu.Unlock()

	subCtx, subCancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     uuid.New().String(),
		userID: userID,
		events: make(chan Event, h.bufferSize),
		ctx:    subCtx,
		cancel: subCancel,
		hub:    h,
	}

	uc.mu.Lock()
	uc.subscribers[sub.id] = sub
	uc.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-subCtx.Done()
		_ = sub.Close()
	}()

	return sub, nil
}

// Publish delivers an event to every live subscription of the user.
// Returns ErrNotConnected when there are none, so callers can fall back
// to an asynchronous channel.
func (h *Hub) Publish(ctx context.Context, userID string, event Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	uc, exists := h.users[userID]
	h.mu.RUnlock()

	if !exists {
		return ErrNotConnected
	}

	uc.mu.RLock()
	subscribers := make([]*Subscription, 0, len(uc.subscribers))
	for _, sub := range uc.subscribers {
		subscribers = append(subscribers, sub)
	}
	uc.mu.RUnlock()

	if len(subscribers) == 0 {
		return ErrNotConnected
	}

	for _, sub := range subscribers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.closeChan:
			return ErrHubClosed
		default:
			h.send(sub, event)
		}
	}
	return nil
}

// Broadcast delivers an event to every connected user. Users without
// subscriptions are skipped; delivery is best effort.
func (h *Hub) Broadcast(ctx context.Context, event Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	userIDs := make([]string, 0, len(h.users))
	for id := range h.users {
		userIDs = append(userIDs, id)
	}
	h.mu.RUnlock()

	for _, userID := range userIDs {
		if err := h.Publish(ctx, userID, event); err != nil {
			switch err {
			case ErrNotConnected:
				continue
			default:
				return err
			}
		}
	}
	return nil
}

// send delivers to one subscription, disconnecting consumers that cannot
// keep up within the slow-consumer window.
func (h *Hub) send(sub *Subscription, event Event) {
	select {
	case sub.events <- event:
		return
	default:
	}

	timer := time.NewTimer(h.slowConsumerTimeout)
	defer timer.Stop()

	select {
	case sub.events <- event:
	case <-timer.C:
		go func() { _ = sub.Close() }()
	case <-sub.ctx.Done():
	}
}

// Connected reports whether the user has at least one live subscription.
func (h *Hub) Connected(userID string) bool {
	return h.SubscriberCount(userID) > 0
}

// SubscriberCount returns the number of live subscriptions for the user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	uc, exists := h.users[userID]
	h.mu.RUnlock()
	if !exists {
		return 0
	}

	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return len(uc.subscribers)
}

// Close shuts the hub down, closing every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.closeChan)
	users := make([]*userChannel, 0, len(h.users))
	for _, uc := range h.users {
		users = append(users, uc)
	}
	h.mu.Unlock()

	for _, uc := range users {
		uc.mu.RLock()
		subscribers := make([]*Subscription, 0, len(uc.subscribers))
		for _, sub := range uc.subscribers {
			subscribers = append(subscribers, sub)
		}
		uc.mu.RUnlock()

		for _, sub := range subscribers {
			_ = sub.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(h.shutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Events returns the channel events arrive on. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// UserID returns the user this subscription belongs to.
func (s *Subscription) UserID() string {
	return s.userID
}

// ID returns the unique subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Close unsubscribes and releases resources. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.hub.mu.Lock()
		uc, exists := s.hub.users[s.userID]
		if exists {
			uc.mu.Lock()
			delete(uc.subscribers, s.id)
			empty := len(uc.subscribers) == 0
			uc.mu.Unlock()
			if empty {
				delete(s.hub.users, s.userID)
			}
		}
		s.hub.mu.Unlock()

		// Drain so a blocked publisher can finish before the channel closes.
		go func() {
			for range s.events {
			}
		}()
		close(s.events)
	})
	return nil
}
