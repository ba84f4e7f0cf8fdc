package sender

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fcmClientFunc func(ctx context.Context, message *messaging.Message) (string, error)

func (f fcmClientFunc) Send(ctx context.Context, message *messaging.Message) (string, error) {
	return f(ctx, message)
}

func TestFCMSenderSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var sent *messaging.Message
		s := NewFCMSenderFromClient(fcmClientFunc(func(_ context.Context, m *messaging.Message) (string, error) {
			sent = m
			return "projects/p/messages/1", nil
		}))

		err := s.Send(ctx, PushMessage{
			Token: "tok-a",
			Title: "Order placed",
			Body:  "Order #42 has been placed",
			Data:  map[string]string{"orderId": "42"},
		})
		require.NoError(t, err)
		require.NotNil(t, sent)
		assert.Equal(t, "tok-a", sent.Token)
		assert.Equal(t, "Order placed", sent.Notification.Title)
		assert.Equal(t, "42", sent.Data["orderId"])
	})

	t.Run("empty token is invalid without a network call", func(t *testing.T) {
		t.Parallel()
		s := NewFCMSenderFromClient(fcmClientFunc(func(context.Context, *messaging.Message) (string, error) {
			t.Error("transport must not be called")
			return "", nil
		}))
		err := s.Send(ctx, PushMessage{})
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("transient failure maps to delivery failed", func(t *testing.T) {
		t.Parallel()
		s := NewFCMSenderFromClient(fcmClientFunc(func(context.Context, *messaging.Message) (string, error) {
			return "", errors.New("service unavailable")
		}))
		err := s.Send(ctx, PushMessage{Token: "tok-a"})
		assert.ErrorIs(t, err, ErrDeliveryFailed)
		assert.NotErrorIs(t, err, ErrTokenInvalid)
	})
}

type snsPublisherFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)

func (f snsPublisherFunc) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return f(ctx, params, optFns...)
}

func TestSNSSenderSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("publishes to phone number", func(t *testing.T) {
		t.Parallel()
		var got *sns.PublishInput
		s := NewSNSSenderFromClient(snsPublisherFunc(func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			got = params
			return &sns.PublishOutput{}, nil
		}))

		require.NoError(t, s.Send(ctx, "+15551234567", "Order #42 has shipped"))
		require.NotNil(t, got)
		assert.Equal(t, "+15551234567", *got.PhoneNumber)
		assert.Equal(t, "Order #42 has shipped", *got.Message)
	})

	t.Run("empty phone number", func(t *testing.T) {
		t.Parallel()
		s := NewSNSSenderFromClient(snsPublisherFunc(func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return &sns.PublishOutput{}, nil
		}))
		assert.ErrorIs(t, s.Send(ctx, "", "hello"), ErrEmptyPhoneNumber)
	})

	t.Run("publish failure maps to delivery failed", func(t *testing.T) {
		t.Parallel()
		s := NewSNSSenderFromClient(snsPublisherFunc(func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		}))
		assert.ErrorIs(t, s.Send(ctx, "+15551234567", "hello"), ErrDeliveryFailed)
	})
}

type postmarkClientFunc func(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)

func (f postmarkClientFunc) SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	return f(ctx, email)
}

func TestPostmarkSenderSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var got postmark.Email
		s := NewPostmarkSenderFromClient(postmarkClientFunc(func(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
			got = email
			return postmark.EmailResponse{}, nil
		}), "noreply@example.com")

		require.NoError(t, s.Send(ctx, "user@example.com", "Order placed", "<p>Order #42</p>"))
		assert.Equal(t, "noreply@example.com", got.From)
		assert.Equal(t, "user@example.com", got.To)
		assert.True(t, got.TrackOpens)
	})

	t.Run("api-level error maps to delivery failed", func(t *testing.T) {
		t.Parallel()
		s := NewPostmarkSenderFromClient(postmarkClientFunc(func(context.Context, postmark.Email) (postmark.EmailResponse, error) {
			return postmark.EmailResponse{ErrorCode: 300, Message: "invalid recipient"}, nil
		}), "noreply@example.com")
		assert.ErrorIs(t, s.Send(ctx, "user@example.com", "s", "b"), ErrDeliveryFailed)
	})

	t.Run("config validation", func(t *testing.T) {
		t.Parallel()
		_, err := NewPostmarkSender(PostmarkConfig{})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
