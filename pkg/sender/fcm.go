package sender

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// fcmClient is the slice of the Firebase messaging client the sender
// needs, extracted so tests can stub the transport.
type fcmClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers mobile push messages through Firebase Cloud
// Messaging.
type FCMSender struct {
	client fcmClient
}

// NewFCMSender creates a push sender from a Firebase service-account
// credentials file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("%w: credentials file is required", ErrInvalidConfig)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// NewFCMSenderFromClient wraps an existing messaging client. Used by tests.
func NewFCMSenderFromClient(client fcmClient) *FCMSender {
	return &FCMSender{client: client}
}

// Send delivers one push message. Unregistered or malformed tokens map to
// ErrTokenInvalid so the registry can retire them; everything else is a
// transient ErrDeliveryFailed.
func (s *FCMSender) Send(ctx context.Context, msg PushMessage) error {
	if msg.Token == "" {
		return fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	_, err := s.client.Send(ctx, &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return fmt.Errorf("%w: %s", ErrTokenInvalid, err.Error())
		}
		return errors.Join(ErrDeliveryFailed, err)
	}
	return nil
}
