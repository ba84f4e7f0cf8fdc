package sender

import (
	"context"

	"github.com/dmitrymomot/notifier/pkg/realtime"
)

// PushMessage is one mobile-push delivery to a single device token.
type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// RealtimeSender delivers over the realtime transport. Implementations
// return realtime.ErrNotConnected for offline recipients so callers can
// tell "offline" apart from "attempted and failed".
type RealtimeSender interface {
	Send(ctx context.Context, userID string, event realtime.Event) error
}

// PushSender delivers a mobile push to one device token. ErrTokenInvalid
// marks the token as permanently dead; callers deactivate it instead of
// retrying.
type PushSender interface {
	Send(ctx context.Context, msg PushMessage) error
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// EmailSender delivers a transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
