package router

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
)

// Presence answers whether a recipient currently has a live realtime
// connection. The realtime hub implements it.
type Presence interface {
	Connected(userID string) bool
}

// Decision is the routing outcome for one notification: which channel to
// use and whether to attempt it synchronously or through the queue.
type Decision struct {
	Channel notification.Channel
	// Sync means deliver on the spot over the realtime transport instead
	// of taking a queue hop.
	Sync bool
}

// Router picks the effective delivery path for a notification.
type Router struct {
	policy   *Policy
	presence Presence
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for the Router.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a channel router.
func New(policy *Policy, presence Presence, opts ...Option) (*Router, error) {
	if policy == nil {
		return nil, ErrPolicyNil
	}
	if presence == nil {
		return nil, ErrPresenceNil
	}

	r := &Router{
		policy:   policy,
		presence: presence,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Route decides the delivery path:
//
//   - dashboard is always synchronous realtime; its audience is assumed
//     to be actively watching, so there is no queue and no fallback
//   - in-app goes synchronous when the recipient is connected; offline
//     recipients route straight to the push lane, the router never waits
//     on presence
//   - push, SMS, and email always take the queue
func (r *Router) Route(ctx context.Context, n *notification.Notification) Decision {
	effective := r.policy.Resolve(ctx, n.Type, n.Channel)

	switch effective {
	case notification.ChannelDashboard:
		return Decision{Channel: notification.ChannelDashboard, Sync: true}

	case notification.ChannelInApp:
		if r.presence.Connected(n.RecipientID) {
			return Decision{Channel: notification.ChannelInApp, Sync: true}
		}
		r.logger.DebugContext(ctx, "recipient offline, routing to push lane",
			logger.NotificationID(n.ID),
			logger.RecipientID(n.RecipientID))
		return Decision{Channel: notification.ChannelPush}

	default:
		return Decision{Channel: effective}
	}
}
