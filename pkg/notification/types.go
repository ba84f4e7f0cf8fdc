package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies the business event a notification describes.
type Type string

const (
	TypeOrderPlaced    Type = "ORDER_PLACED"
	TypeOrderShipped   Type = "ORDER_SHIPPED"
	TypeOrderDelivered Type = "ORDER_DELIVERED"
	TypeOrderCancelled Type = "ORDER_CANCELLED"
	TypeLowStock       Type = "LOW_STOCK"
	TypeOutOfStock     Type = "OUT_OF_STOCK"
	TypePriceDrop      Type = "PRICE_DROP"
	TypeMarketing      Type = "MARKETING"
	TypeCartReminder   Type = "CART_REMINDER"
	TypeAccount        Type = "ACCOUNT"
	TypeSystem         Type = "SYSTEM"
)

// Channel is the transport a notification is delivered over.
type Channel string

const (
	ChannelInApp     Channel = "in_app"
	ChannelDashboard Channel = "dashboard"
	ChannelPush      Channel = "push"
	ChannelSMS       Channel = "sms"
	ChannelEmail     Channel = "email"
)

// Priority orders jobs within a delivery lane. Lower values are served first.
type Priority int8

const (
	PriorityUrgent  Priority = 1
	PriorityHigh    Priority = 2
	PriorityMedium  Priority = 3
	PriorityLow     Priority = 4
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range.
func (p Priority) Valid() bool {
	return p >= PriorityUrgent && p <= PriorityLow
}

// Navigation is an optional deep-link target attached to a notification.
type Navigation struct {
	Type   string            `json:"type" bson:"type"`
	Target string            `json:"target" bson:"target"`
	Params map[string]string `json:"params,omitempty" bson:"params,omitempty"`
}

// Click records a single click on a notification action.
type Click struct {
	URL       string    `json:"url,omitempty" bson:"url,omitempty"`
	ButtonID  string    `json:"button_id,omitempty" bson:"button_id,omitempty"`
	ClickedAt time.Time `json:"clicked_at" bson:"clicked_at"`
}

// MaxRetries is the retry budget per notification. After the fifth failed
// attempt the notification stays failed and is excluded from automatic retry.
const MaxRetries int8 = 5

// Notification is the unit of delivery intent.
//
// A notification with an empty RecipientID and a non-empty TargetRoles set is
// a template: the resolver expands it into one concrete copy per matching
// active user, all sharing the template's BatchID. Templates are never placed
// on the delivery queue, only resolved recipient-bound copies are.
type Notification struct {
	ID               uuid.UUID      `json:"id" bson:"_id"`
	BatchID          uuid.UUID      `json:"batch_id,omitempty" bson:"batch_id,omitempty"`
	Type             Type           `json:"type" bson:"type"`
	Title            string         `json:"title" bson:"title"`
	Message          string         `json:"message" bson:"message"`
	MessageLocalized string         `json:"message_localized,omitempty" bson:"message_localized,omitempty"`
	Data             map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Navigation       *Navigation    `json:"navigation,omitempty" bson:"navigation,omitempty"`

	Channel     Channel  `json:"channel" bson:"channel"`
	Priority    Priority `json:"priority" bson:"priority"`
	Category    string   `json:"category,omitempty" bson:"category,omitempty"`
	TargetRoles []string `json:"target_roles,omitempty" bson:"target_roles,omitempty"`
	RecipientID string   `json:"recipient_id,omitempty" bson:"recipient_id,omitempty"`

	Status       Status     `json:"status" bson:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty" bson:"read_at,omitempty"`
	ClickedAt    *time.Time `json:"clicked_at,omitempty" bson:"clicked_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
	RetryCount   int8       `json:"retry_count" bson:"retry_count"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty" bson:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty" bson:"error_message,omitempty"`

	OpenCount  int     `json:"open_count" bson:"open_count"`
	ClickCount int     `json:"click_count" bson:"click_count"`
	Clicks     []Click `json:"clicks,omitempty" bson:"clicks,omitempty"`

	CreatedBy       string     `json:"created_by,omitempty" bson:"created_by,omitempty"`
	SystemGenerated bool       `json:"system_generated" bson:"system_generated"`
	ScheduledFor    *time.Time `json:"scheduled_for,omitempty" bson:"scheduled_for,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
}

// IsTemplate reports whether the notification still awaits fan-out.
func (n *Notification) IsTemplate() bool {
	return n.RecipientID == "" && len(n.TargetRoles) > 0
}

// IsRead reports whether the notification reached the read state or beyond.
func (n *Notification) IsRead() bool {
	return n.Status == StatusRead || n.Status == StatusClicked
}

// RetryExhausted reports whether the notification used up its retry budget.
func (n *Notification) RetryExhausted() bool {
	return n.RetryCount >= MaxRetries
}

// ErrorInfo carries the adapter error recorded on a failed status transition.
type ErrorInfo struct {
	Code    string `json:"code" bson:"code"`
	Message string `json:"message" bson:"message"`
}
