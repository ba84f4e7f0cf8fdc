package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/notification"
)

// RoleMerchant is the role excluded from stock-alert fan-out. Merchants
// trigger those alerts; notifying them about their own stock is noise.
const RoleMerchant = "merchant"

// User is a directory entry resolved during fan-out.
type User struct {
	ID    string
	Roles []string
}

// UserDirectory is the external user service the resolver and the channel
// dispatch rely on. Implementations are provided by the embedding
// application.
type UserDirectory interface {
	// ListActiveByRoles returns active users whose role set intersects roles.
	ListActiveByRoles(ctx context.Context, roles []string) ([]User, error)

	// PhoneNumber returns the user's phone number in E.164 format, or an
	// empty string when none is on file.
	PhoneNumber(ctx context.Context, userID string) (string, error)

	// Email returns the user's email address, or an empty string when none
	// is on file.
	Email(ctx context.Context, userID string) (string, error)
}

// CreateParams describes one notification-creation request. Exactly one of
// RecipientID or TargetRoles must be set: a recipient makes a direct
// notification, target roles make a template that is fanned out into one
// copy per matching user.
type CreateParams struct {
	Type             notification.Type
	Title            string
	Message          string
	MessageLocalized string
	Data             map[string]any
	Navigation       *notification.Navigation

	// Channel is optional; an empty or disallowed channel is substituted
	// with the type's default per the channel policy.
	Channel notification.Channel

	// Priority defaults to medium when zero.
	Priority notification.Priority

	Category    string
	RecipientID string
	TargetRoles []string

	// ScheduledFor defers delivery; the notification lands in the
	// scheduled lane until the timestamp passes.
	ScheduledFor *time.Time

	// BatchID groups this notification with others; zero mints a fresh one
	// for templates and leaves direct notifications unbatched.
	BatchID uuid.UUID

	CreatedBy       string
	SystemGenerated bool
}

// BulkParams describes a broadcast to an explicit recipient list.
type BulkParams struct {
	TargetUserIDs []string

	Type             notification.Type
	Title            string
	Message          string
	MessageLocalized string
	Data             map[string]any
	Navigation       *notification.Navigation
	Channel          notification.Channel
	Priority         notification.Priority
	Category         string
	CreatedBy        string
	SystemGenerated  bool
}

// BulkItem is the per-recipient outcome of a bulk send.
type BulkItem struct {
	RecipientID    string    `json:"recipient_id"`
	NotificationID uuid.UUID `json:"notification_id,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// BulkResult is the final tally of a bulk send. Sent counts notifications
// created and handed to delivery; actual per-channel delivery continues
// asynchronously through the queue.
type BulkResult struct {
	BatchID uuid.UUID  `json:"batch_id"`
	Sent    int        `json:"sent"`
	Failed  int        `json:"failed"`
	Results []BulkItem `json:"results"`
}
