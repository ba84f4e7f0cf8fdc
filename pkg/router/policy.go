package router

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
)

// ConfigLookup resolves the allowed channels for a notification type from
// configuration. Implementations may hit a config service or a database;
// lookup failures fall back to the hard-coded default table.
type ConfigLookup interface {
	AllowedChannels(ctx context.Context, typ notification.Type) ([]notification.Channel, error)
}

// ConfigLookupFunc adapts a function to the ConfigLookup interface.
type ConfigLookupFunc func(ctx context.Context, typ notification.Type) ([]notification.Channel, error)

func (f ConfigLookupFunc) AllowedChannels(ctx context.Context, typ notification.Type) ([]notification.Channel, error) {
	return f(ctx, typ)
}

// defaultChannel is the channel a type falls back to when the requested
// one is not allowed.
var defaultChannel = map[notification.Type]notification.Channel{
	notification.TypeOrderPlaced:    notification.ChannelInApp,
	notification.TypeOrderShipped:   notification.ChannelInApp,
	notification.TypeOrderDelivered: notification.ChannelInApp,
	notification.TypeOrderCancelled: notification.ChannelInApp,
	notification.TypeLowStock:       notification.ChannelDashboard,
	notification.TypeOutOfStock:     notification.ChannelDashboard,
	notification.TypePriceDrop:      notification.ChannelPush,
	notification.TypeMarketing:      notification.ChannelPush,
	notification.TypeCartReminder:   notification.ChannelPush,
	notification.TypeAccount:        notification.ChannelInApp,
	notification.TypeSystem:         notification.ChannelInApp,
}

// defaultAllowed is the built-in allowed-channel table, used when no
// configuration lookup is wired or the lookup fails.
var defaultAllowed = map[notification.Type][]notification.Channel{
	notification.TypeOrderPlaced:    {notification.ChannelInApp, notification.ChannelPush, notification.ChannelEmail},
	notification.TypeOrderShipped:   {notification.ChannelInApp, notification.ChannelPush, notification.ChannelSMS, notification.ChannelEmail},
	notification.TypeOrderDelivered: {notification.ChannelInApp, notification.ChannelPush, notification.ChannelSMS, notification.ChannelEmail},
	notification.TypeOrderCancelled: {notification.ChannelInApp, notification.ChannelPush, notification.ChannelEmail},
	notification.TypeLowStock:       {notification.ChannelDashboard, notification.ChannelEmail},
	notification.TypeOutOfStock:     {notification.ChannelDashboard, notification.ChannelEmail},
	notification.TypePriceDrop:      {notification.ChannelPush, notification.ChannelInApp},
	notification.TypeMarketing:      {notification.ChannelPush, notification.ChannelEmail},
	notification.TypeCartReminder:   {notification.ChannelPush, notification.ChannelInApp},
	notification.TypeAccount:        {notification.ChannelInApp, notification.ChannelEmail, notification.ChannelSMS},
	notification.TypeSystem:         {notification.ChannelInApp, notification.ChannelDashboard},
}

// Policy validates a requested channel against the allowed set for the
// notification type.
type Policy struct {
	lookup ConfigLookup
	logger *slog.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithConfigLookup wires a dynamic allowed-channel source.
func WithConfigLookup(lookup ConfigLookup) PolicyOption {
	return func(p *Policy) {
		p.lookup = lookup
	}
}

// WithPolicyLogger sets the logger for the Policy.
func WithPolicyLogger(logger *slog.Logger) PolicyOption {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPolicy creates a channel policy backed by the default tables.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve returns the effective channel for the type. A disallowed
// requested channel is silently substituted with the type's default; the
// substitution is a policy guard, not an error, but it is always logged so
// callers can discover their channel choice was overridden.
func (p *Policy) Resolve(ctx context.Context, typ notification.Type, requested notification.Channel) notification.Channel {
	fallback := defaultChannel[typ]
	if fallback == "" {
		fallback = notification.ChannelInApp
	}
	if requested == "" {
		return fallback
	}

	allowed := p.allowedFor(ctx, typ)
	if slices.Contains(allowed, requested) {
		return requested
	}

	p.logger.WarnContext(ctx, "substituted disallowed channel",
		slog.String("type", string(typ)),
		slog.String("requested", string(requested)),
		slog.String("effective", string(fallback)))
	return fallback
}

func (p *Policy) allowedFor(ctx context.Context, typ notification.Type) []notification.Channel {
	if p.lookup != nil {
		allowed, err := p.lookup.AllowedChannels(ctx, typ)
		if err == nil && len(allowed) > 0 {
			return allowed
		}
		if err != nil {
			p.logger.DebugContext(ctx, "channel config lookup failed, using defaults",
				slog.String("type", string(typ)),
				logger.Error(err))
		}
	}
	if allowed, ok := defaultAllowed[typ]; ok {
		return allowed
	}
	return []notification.Channel{notification.ChannelInApp}
}
