package notifier_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifier "github.com/dmitrymomot/notifier"
	"github.com/dmitrymomot/notifier/pkg/device"
	"github.com/dmitrymomot/notifier/pkg/notification"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/sender"
)

func pushJob(channel notification.Channel, recipientID string) *queue.Job {
	return &queue.Job{
		ID:             uuid.New(),
		NotificationID: uuid.New(),
		RecipientID:    recipientID,
		Channel:        channel,
		Title:          "Order shipped",
		Message:        "On its way",
		Priority:       notification.PriorityMedium,
		Attempt:        1,
		Lane:           queue.LaneSend,
	}
}

func TestDispatchPush(t *testing.T) {
	t.Parallel()

	t.Run("fans out to all active tokens", func(t *testing.T) {
		t.Parallel()

		var (
			mu     sync.Mutex
			tokens []string
		)
		env := newTestEnv(t, notifier.WithPushSender(pushFunc(func(ctx context.Context, msg sender.PushMessage) error {
			mu.Lock()
			tokens = append(tokens, msg.Token)
			mu.Unlock()
			return nil
		})))
		ctx := context.Background()

		_, err := env.registry.Register(ctx, "user-1", "token-droid", device.PlatformAndroid, device.Meta{})
		require.NoError(t, err)
		_, err = env.registry.Register(ctx, "user-1", "token-ios", device.PlatformIOS, device.Meta{})
		require.NoError(t, err)

		err = env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelPush, "user-1"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"token-droid", "token-ios"}, tokens)

		// Successful sends refresh token usage so the lifecycle sweeps
		// see the install as live.
		active, err := env.registry.ListActive(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, active, 2)
		for _, tok := range active {
			assert.NotNil(t, tok.LastUsedAt, tok.Token)
		}
	})

	t.Run("one good token is enough", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, notifier.WithPushSender(pushFunc(func(ctx context.Context, msg sender.PushMessage) error {
			if msg.Token == "token-dead" {
				return sender.ErrDeliveryFailed
			}
			return nil
		})))
		ctx := context.Background()

		_, err := env.registry.Register(ctx, "user-1", "token-dead", device.PlatformAndroid, device.Meta{})
		require.NoError(t, err)
		_, err = env.registry.Register(ctx, "user-1", "token-live", device.PlatformIOS, device.Meta{})
		require.NoError(t, err)

		err = env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelPush, "user-1"))
		assert.NoError(t, err)
	})

	t.Run("invalid token is deactivated", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, notifier.WithPushSender(pushFunc(func(ctx context.Context, msg sender.PushMessage) error {
			return sender.ErrTokenInvalid
		})))
		ctx := context.Background()

		_, err := env.registry.Register(ctx, "user-1", "token-stale", device.PlatformAndroid, device.Meta{})
		require.NoError(t, err)

		err = env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelPush, "user-1"))
		assert.ErrorIs(t, err, notifier.ErrAllTokensFailed)

		active, err := env.registry.ListActive(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, active, "dead token must be deactivated, not retried")
	})
}

func TestDispatchPushFallback(t *testing.T) {
	t.Parallel()

	t.Run("no tokens, connected recipient gets realtime", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx := context.Background()

		sub, err := env.hub.Subscribe(ctx, "user-1")
		require.NoError(t, err)
		defer sub.Close()

		err = env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelPush, "user-1"))
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			assert.Equal(t, "Order shipped", event.Title)
		default:
			t.Fatal("expected realtime fallback event")
		}
	})

	t.Run("no tokens, offline, falls back to sms", func(t *testing.T) {
		t.Parallel()

		var sentTo string
		env := newTestEnv(t, notifier.WithSMSSender(smsFunc(func(ctx context.Context, phoneNumber, message string) error {
			sentTo = phoneNumber
			return nil
		})))
		env.dir.phones["user-1"] = "+14155550100"
		ctx := context.Background()

		err := env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelPush, "user-1"))
		require.NoError(t, err)
		assert.Equal(t, "+14155550100", sentTo)
	})

	t.Run("no tokens, no fallbacks left", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx := context.Background()

		err := env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelPush, "user-1"))
		assert.ErrorIs(t, err, notifier.ErrAllTokensFailed)
	})
}

func TestDispatchInApp(t *testing.T) {
	t.Parallel()

	t.Run("connected recipient", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx := context.Background()

		sub, err := env.hub.Subscribe(ctx, "user-1")
		require.NoError(t, err)
		defer sub.Close()

		err = env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelInApp, "user-1"))
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			assert.Equal(t, "Order shipped", event.Title)
		default:
			t.Fatal("expected realtime event")
		}
	})

	t.Run("offline recipient falls through to push", func(t *testing.T) {
		t.Parallel()

		var pushed bool
		env := newTestEnv(t, notifier.WithPushSender(pushFunc(func(ctx context.Context, msg sender.PushMessage) error {
			pushed = true
			return nil
		})))
		ctx := context.Background()

		_, err := env.registry.Register(ctx, "user-1", "token-a", device.PlatformAndroid, device.Meta{})
		require.NoError(t, err)

		err = env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelInApp, "user-1"))
		require.NoError(t, err)
		assert.True(t, pushed)
	})
}

func TestDispatchSMS(t *testing.T) {
	t.Parallel()

	t.Run("delivers to stored phone", func(t *testing.T) {
		t.Parallel()

		var gotPhone, gotMessage string
		env := newTestEnv(t, notifier.WithSMSSender(smsFunc(func(ctx context.Context, phoneNumber, message string) error {
			gotPhone, gotMessage = phoneNumber, message
			return nil
		})))
		env.dir.phones["user-1"] = "+14155550100"
		ctx := context.Background()

		err := env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelSMS, "user-1"))
		require.NoError(t, err)
		assert.Equal(t, "+14155550100", gotPhone)
		assert.Contains(t, gotMessage, "Order shipped")
	})

	t.Run("no phone on file", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, notifier.WithSMSSender(smsFunc(func(ctx context.Context, phoneNumber, message string) error {
			return nil
		})))
		ctx := context.Background()

		err := env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelSMS, "user-1"))
		assert.ErrorIs(t, err, sender.ErrEmptyPhoneNumber)
	})

	t.Run("no sender configured", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx := context.Background()

		err := env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelSMS, "user-1"))
		assert.ErrorIs(t, err, notifier.ErrChannelUnavailable)
	})
}

func TestDispatchEmail(t *testing.T) {
	t.Parallel()

	var gotTo, gotSubject string
	env := newTestEnv(t, notifier.WithEmailSender(emailFunc(func(ctx context.Context, to, subject, htmlBody string) error {
		gotTo, gotSubject = to, subject
		return nil
	})))
	env.dir.emails["user-1"] = "user@example.com"
	ctx := context.Background()

	err := env.svc.Dispatcher().Dispatch(ctx, pushJob(notification.ChannelEmail, "user-1"))
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", gotTo)
	assert.Equal(t, "Order shipped", gotSubject)
}

func TestDispatchUnknownChannel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	err := env.svc.Dispatcher().Dispatch(context.Background(), pushJob(notification.Channel("pigeon"), "user-1"))
	assert.ErrorIs(t, err, notifier.ErrChannelUnavailable)
}
