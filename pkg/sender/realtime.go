package sender

import (
	"context"

	"github.com/dmitrymomot/notifier/pkg/realtime"
)

// HubSender adapts the realtime hub to the RealtimeSender interface.
type HubSender struct {
	hub *realtime.Hub
}

// NewHubSender creates a realtime sender on top of the hub.
func NewHubSender(hub *realtime.Hub) *HubSender {
	return &HubSender{hub: hub}
}

// Send publishes the event to every live subscription of the user.
// Offline users surface as realtime.ErrNotConnected.
func (s *HubSender) Send(ctx context.Context, userID string, event realtime.Event) error {
	return s.hub.Publish(ctx, userID, event)
}
