package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/device"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/realtime"
	"github.com/dmitrymomot/notifier/pkg/router"
	"github.com/dmitrymomot/notifier/pkg/sender"
)

// defaultDedupWindow is how far back the resolver looks for duplicate
// copies before fanning out a template.
const defaultDedupWindow = 60 * time.Second

// Service is the notification delivery facade. Producers call it to create
// notifications; the queue worker calls back into it through Dispatcher to
// move them over the wire.
type Service struct {
	store     notification.Store
	queue     *queue.Queue
	registry  *device.Registry
	hub       *realtime.Hub
	directory UserDirectory

	policy *router.Policy
	router *router.Router

	realtime sender.RealtimeSender
	push     sender.PushSender
	sms      sender.SMSSender
	email    sender.EmailSender

	dispatch    map[notification.Channel]dispatchFunc
	dedupWindow time.Duration
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChannelPolicy overrides the default allowed-channel policy.
func WithChannelPolicy(policy *router.Policy) Option {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithPushSender wires the mobile push transport.
func WithPushSender(p sender.PushSender) Option {
	return func(s *Service) {
		s.push = p
	}
}

// WithSMSSender wires the SMS transport.
func WithSMSSender(sms sender.SMSSender) Option {
	return func(s *Service) {
		s.sms = sms
	}
}

// WithEmailSender wires the email transport.
func WithEmailSender(e sender.EmailSender) Option {
	return func(s *Service) {
		s.email = e
	}
}

// WithDedupWindow overrides the duplicate-absorption window used during
// template fan-out.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dedupWindow = d
		}
	}
}

// New wires the notification service. The hub doubles as the presence
// source for channel routing and as the default realtime transport.
func New(store notification.Store, q *queue.Queue, registry *device.Registry, hub *realtime.Hub, directory UserDirectory, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if q == nil {
		return nil, ErrQueueNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}
	if hub == nil {
		return nil, ErrHubNil
	}
	if directory == nil {
		return nil, ErrDirectoryNil
	}

	s := &Service{
		store:       store,
		queue:       q,
		registry:    registry,
		hub:         hub,
		directory:   directory,
		realtime:    sender.NewHubSender(hub),
		dedupWindow: defaultDedupWindow,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.policy == nil {
		s.policy = router.NewPolicy(router.WithPolicyLogger(s.logger))
	}
	r, err := router.New(s.policy, hub, router.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.router = r
	s.buildDispatchTable()
	return s, nil
}

// CreateNotification validates the request, persists the notification, and
// hands it to delivery. Direct notifications are routed immediately;
// role-targeted templates are fanned out into per-recipient copies first.
// Validation failures are returned to the caller; downstream delivery
// failures are recorded on the notification instead.
func (s *Service) CreateNotification(ctx context.Context, params CreateParams) (*notification.Notification, error) {
	if params.Title == "" {
		return nil, ErrEmptyTitle
	}
	if params.Message == "" {
		return nil, ErrEmptyMessage
	}
	if params.RecipientID == "" && len(params.TargetRoles) == 0 {
		return nil, ErrMissingTarget
	}

	priority := params.Priority
	if priority == 0 {
		priority = notification.PriorityDefault
	}
	if !priority.Valid() {
		return nil, notification.ErrInvalidPriority
	}

	n := &notification.Notification{
		ID:               uuid.New(),
		BatchID:          params.BatchID,
		Type:             params.Type,
		Title:            params.Title,
		Message:          params.Message,
		MessageLocalized: params.MessageLocalized,
		Data:             params.Data,
		Navigation:       params.Navigation,
		Channel:          s.policy.Resolve(ctx, params.Type, params.Channel),
		Priority:         priority,
		Category:         params.Category,
		TargetRoles:      params.TargetRoles,
		RecipientID:      params.RecipientID,
		Status:           notification.StatusPending,
		CreatedBy:        params.CreatedBy,
		SystemGenerated:  params.SystemGenerated,
		ScheduledFor:     params.ScheduledFor,
		CreatedAt:        time.Now(),
	}
	if n.IsTemplate() && n.BatchID == uuid.Nil {
		n.BatchID = uuid.New()
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if n.IsTemplate() {
		s.resolveTemplate(ctx, n)
		return n, nil
	}

	if err := s.deliver(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to hand notification to delivery",
			logger.NotificationID(n.ID),
			logger.Error(err))
	}
	return n, nil
}

// deliver routes one recipient-bound notification: synchronous realtime
// for connected in-app and dashboard recipients, the queue for everything
// else. A failed synchronous attempt falls back to the push lane, except
// for dashboard notifications which have no fallback.
func (s *Service) deliver(ctx context.Context, n *notification.Notification) error {
	if n.ScheduledFor != nil && n.ScheduledFor.After(time.Now()) {
		_, err := s.queue.Enqueue(ctx, n)
		return err
	}

	decision := s.router.Route(ctx, n)
	if decision.Sync {
		err := s.deliverSync(ctx, n)
		if err == nil {
			return nil
		}
		if n.Channel == notification.ChannelDashboard {
			// Dashboard is realtime-only: no queue hop, no push fallback.
			_, _ = s.store.UpdateStatus(ctx, n.ID, notification.StatusFailed, &notification.ErrorInfo{
				Code:    "DASHBOARD_DELIVERY_FAILED",
				Message: err.Error(),
			})
			n.Status = notification.StatusFailed
			s.logger.WarnContext(ctx, "dashboard delivery failed",
				logger.NotificationID(n.ID),
				logger.Error(err))
			return nil
		}
		// Attempted and failed, or the recipient disconnected after the
		// presence check; either way the push lane takes over.
		decision = router.Decision{Channel: notification.ChannelPush}
	}

	n.Channel = decision.Channel
	_, err := s.queue.Enqueue(ctx, n)
	return err
}

// deliverSync pushes the notification over the realtime transport and, on
// confirmed delivery, marks it sent without a queue hop.
func (s *Service) deliverSync(ctx context.Context, n *notification.Notification) error {
	if err := s.realtime.Send(ctx, n.RecipientID, realtime.EventFromNotification(n)); err != nil {
		return err
	}
	if _, err := s.store.UpdateStatus(ctx, n.ID, notification.StatusSent, nil); err != nil {
		return fmt.Errorf("failed to mark notification %s sent: %w", n.ID, err)
	}
	n.Status = notification.StatusSent
	s.logger.DebugContext(ctx, "notification delivered synchronously",
		logger.NotificationID(n.ID),
		logger.RecipientID(n.RecipientID))
	return nil
}

// GetNotification returns a single notification by ID.
func (s *Service) GetNotification(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	return s.store.GetByID(ctx, id)
}

// ListNotifications returns notifications matching the filter, newest first.
func (s *Service) ListNotifications(ctx context.Context, f notification.Filter) ([]notification.Notification, error) {
	return s.store.List(ctx, f)
}

// CountUnread returns the recipient's unread notification count.
func (s *Service) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return s.store.CountUnread(ctx, recipientID)
}

// MarkDelivered records the client's delivery acknowledgement.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	if _, err := s.store.UpdateStatus(ctx, id, notification.StatusDelivered, nil); err != nil {
		return err
	}
	return nil
}

// MarkRead moves a notification to the read state. Sent notifications pass
// through delivered first; marking an already-read notification is a no-op.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.IsRead() {
		return nil
	}
	if n.Status == notification.StatusSent {
		if _, err := s.store.UpdateStatus(ctx, id, notification.StatusDelivered, nil); err != nil {
			return err
		}
	}
	if _, err := s.store.UpdateStatus(ctx, id, notification.StatusRead, nil); err != nil {
		return err
	}
	return nil
}

// MarkAllRead marks every unread notification for the recipient as read
// and returns the number updated.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.store.MarkAllRead(ctx, recipientID)
}

// RecordClick appends a click to the notification's history and advances
// read notifications to clicked.
func (s *Service) RecordClick(ctx context.Context, id uuid.UUID, click notification.Click) error {
	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now()
	}
	if err := s.store.RecordClick(ctx, id, click); err != nil {
		return err
	}
	// Clicked is only reachable from read; a click on an unread entry
	// keeps its counters without forcing the state forward.
	if _, err := s.store.UpdateStatus(ctx, id, notification.StatusClicked, nil); err != nil && !errors.Is(err, notification.ErrInvalidTransition) {
		s.logger.WarnContext(ctx, "failed to mark notification clicked",
			logger.NotificationID(id),
			logger.Error(err))
	}
	return nil
}

// TrackOpen bumps the notification's open counter.
func (s *Service) TrackOpen(ctx context.Context, id uuid.UUID) error {
	return s.store.IncrementOpens(ctx, id)
}

// DeleteBatch removes every notification copy sharing the batch ID.
func (s *Service) DeleteBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	return s.store.DeleteByBatch(ctx, batchID)
}

// RegisterDevice records a push token for the user.
func (s *Service) RegisterDevice(ctx context.Context, userID, token string, platform device.Platform, meta device.Meta) (*device.Token, error) {
	return s.registry.Register(ctx, userID, token, platform, meta)
}

// UnregisterDevice removes the user's push token. Returns false when the
// token does not exist or belongs to another user.
func (s *Service) UnregisterDevice(ctx context.Context, userID, token string) (bool, error) {
	return s.registry.Unregister(ctx, userID, token)
}

// Subscribe opens a realtime subscription for the user. Transports hold it
// for the lifetime of the connection; its presence feeds channel routing.
func (s *Service) Subscribe(ctx context.Context, userID string) (*realtime.Subscription, error) {
	return s.hub.Subscribe(ctx, userID)
}

// QueueStats returns the per-lane queue snapshot for operators.
func (s *Service) QueueStats(ctx context.Context) (queue.Stats, error) {
	return s.queue.Stats(ctx)
}

// FailedJobs lists failed delivery jobs for operator inspection.
func (s *Service) FailedJobs(ctx context.Context, limit int) ([]queue.Job, error) {
	return s.queue.ListFailed(ctx, limit)
}

// RemoveJob deletes a queued job by ID for manual intervention.
func (s *Service) RemoveJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return s.queue.Remove(ctx, jobID)
}

// PauseQueue suspends job claims across all lanes.
func (s *Service) PauseQueue() {
	s.queue.Pause()
}

// ResumeQueue re-enables job claims.
func (s *Service) ResumeQueue() {
	s.queue.Resume()
}
