package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/notification"
)

// Event is the wire payload pushed to connected clients. It carries enough
// of the notification for the client to render it without a follow-up
// fetch.
type Event struct {
	ID               uuid.UUID                `json:"id"`
	Type             notification.Type        `json:"type"`
	Title            string                   `json:"title"`
	Message          string                   `json:"message"`
	MessageLocalized string                   `json:"messageLocalized,omitempty"`
	Category         string                   `json:"category,omitempty"`
	Priority         notification.Priority    `json:"priority"`
	Data             map[string]any           `json:"data,omitempty"`
	Navigation       *notification.Navigation `json:"navigation,omitempty"`
	IsRead           bool                     `json:"isRead"`
	CreatedAt        time.Time                `json:"createdAt"`
}

// EventFromNotification builds the client payload for a notification.
func EventFromNotification(n *notification.Notification) Event {
	return Event{
		ID:               n.ID,
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		MessageLocalized: n.MessageLocalized,
		Category:         n.Category,
		Priority:         n.Priority,
		Data:             n.Data,
		Navigation:       n.Navigation,
		IsRead:           n.IsRead(),
		CreatedAt:        n.CreatedAt,
	}
}
