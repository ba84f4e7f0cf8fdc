package notifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifier "github.com/dmitrymomot/notifier"
	"github.com/dmitrymomot/notifier/pkg/device"
	"github.com/dmitrymomot/notifier/pkg/notification"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/realtime"
	"github.com/dmitrymomot/notifier/pkg/sender"
)

type stubDirectory struct {
	users      []notifier.User
	queriedFor []string
	phones     map[string]string
	emails     map[string]string
	err        error
}

func (d *stubDirectory) ListActiveByRoles(ctx context.Context, roles []string) ([]notifier.User, error) {
	d.queriedFor = roles
	if d.err != nil {
		return nil, d.err
	}
	return d.users, nil
}

func (d *stubDirectory) PhoneNumber(ctx context.Context, userID string) (string, error) {
	return d.phones[userID], nil
}

func (d *stubDirectory) Email(ctx context.Context, userID string) (string, error) {
	return d.emails[userID], nil
}

type pushFunc func(ctx context.Context, msg sender.PushMessage) error

func (f pushFunc) Send(ctx context.Context, msg sender.PushMessage) error { return f(ctx, msg) }

type smsFunc func(ctx context.Context, phoneNumber, message string) error

func (f smsFunc) Send(ctx context.Context, phoneNumber, message string) error {
	return f(ctx, phoneNumber, message)
}

type emailFunc func(ctx context.Context, to, subject, htmlBody string) error

func (f emailFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	return f(ctx, to, subject, htmlBody)
}

type testEnv struct {
	store    *notification.MemoryStore
	queue    *queue.Queue
	registry *device.Registry
	hub      *realtime.Hub
	dir      *stubDirectory
	svc      *notifier.Service
}

func newTestEnv(t *testing.T, opts ...notifier.Option) *testEnv {
	t.Helper()

	store := notification.NewMemoryStore()
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })

	q, err := queue.New(storage, store)
	require.NoError(t, err)

	registry, err := device.NewRegistry(device.NewMemoryStorage())
	require.NoError(t, err)

	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	dir := &stubDirectory{phones: map[string]string{}, emails: map[string]string{}}

	svc, err := notifier.New(store, q, registry, hub, dir, opts...)
	require.NoError(t, err)

	return &testEnv{store: store, queue: q, registry: registry, hub: hub, dir: dir, svc: svc}
}

func (e *testEnv) claim(t *testing.T) *queue.Job {
	t.Helper()
	job, err := e.queue.Claim(context.Background(), uuid.New(), time.Minute)
	require.NoError(t, err)
	return job
}

func TestNewService(t *testing.T) {
	t.Parallel()

	store := notification.NewMemoryStore()
	storage := queue.NewMemoryStorage()
	t.Cleanup(func() { _ = storage.Close() })
	q, err := queue.New(storage, store)
	require.NoError(t, err)
	registry, err := device.NewRegistry(device.NewMemoryStorage())
	require.NoError(t, err)
	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	dir := &stubDirectory{}

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()

		_, err := notifier.New(nil, q, registry, hub, dir)
		assert.ErrorIs(t, err, notifier.ErrStoreNil)
	})

	t.Run("nil queue", func(t *testing.T) {
		t.Parallel()

		_, err := notifier.New(store, nil, registry, hub, dir)
		assert.ErrorIs(t, err, notifier.ErrQueueNil)
	})

	t.Run("nil registry", func(t *testing.T) {
		t.Parallel()

		_, err := notifier.New(store, q, nil, hub, dir)
		assert.ErrorIs(t, err, notifier.ErrRegistryNil)
	})

	t.Run("nil hub", func(t *testing.T) {
		t.Parallel()

		_, err := notifier.New(store, q, registry, nil, dir)
		assert.ErrorIs(t, err, notifier.ErrHubNil)
	})

	t.Run("nil directory", func(t *testing.T) {
		t.Parallel()

		_, err := notifier.New(store, q, registry, hub, nil)
		assert.ErrorIs(t, err, notifier.ErrDirectoryNil)
	})
}

func TestCreateNotificationValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("empty title", func(t *testing.T) {
		_, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Message:     "hello",
			RecipientID: "user-1",
		})
		assert.ErrorIs(t, err, notifier.ErrEmptyTitle)
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Title:       "hello",
			RecipientID: "user-1",
		})
		assert.ErrorIs(t, err, notifier.ErrEmptyMessage)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Title:   "hello",
			Message: "world",
		})
		assert.ErrorIs(t, err, notifier.ErrMissingTarget)
	})

	t.Run("invalid priority", func(t *testing.T) {
		_, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Title:       "hello",
			Message:     "world",
			RecipientID: "user-1",
			Priority:    notification.Priority(9),
		})
		assert.ErrorIs(t, err, notification.ErrInvalidPriority)
	})

	t.Run("priority defaults to medium", func(t *testing.T) {
		n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Type:        notification.TypeOrderPlaced,
			Title:       "hello",
			Message:     "world",
			RecipientID: "user-1",
		})
		require.NoError(t, err)
		assert.Equal(t, notification.PriorityMedium, n.Priority)
	})
}

func TestCreateNotificationOfflineRecipient(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
		Type:        notification.TypeOrderPlaced,
		Title:       "Order placed",
		Message:     "Your order is confirmed",
		Channel:     notification.ChannelInApp,
		Priority:    notification.PriorityHigh,
		RecipientID: "user-1",
	})
	require.NoError(t, err)

	// Offline recipients never block on presence: the notification goes
	// straight to the push lane.
	stored, err := env.store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, stored.Status)

	job := env.claim(t)
	assert.Equal(t, n.ID, job.NotificationID)
	assert.Equal(t, queue.LaneSend, job.Lane)
	assert.Equal(t, notification.ChannelPush, job.Channel)
	assert.Equal(t, notification.PriorityHigh, job.Priority)
}

func TestCreateNotificationOnlineRecipient(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	sub, err := env.hub.Subscribe(ctx, "user-1")
	require.NoError(t, err)
	defer sub.Close()

	n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
		Type:        notification.TypeOrderShipped,
		Title:       "Order shipped",
		Message:     "On its way",
		Channel:     notification.ChannelInApp,
		RecipientID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, n.Status)

	select {
	case event := <-sub.Events():
		assert.Equal(t, n.ID, event.ID)
		assert.Equal(t, "Order shipped", event.Title)
	case <-time.After(time.Second):
		t.Fatal("expected realtime event")
	}

	// The low-latency path skips the queue entirely.
	_, err = env.queue.Claim(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
}

func TestCreateNotificationDashboard(t *testing.T) {
	t.Parallel()

	t.Run("online admin", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx := context.Background()

		sub, err := env.hub.Subscribe(ctx, "admin-1")
		require.NoError(t, err)
		defer sub.Close()

		n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Type:        notification.TypeLowStock,
			Title:       "Low stock",
			Message:     "SKU-42 is running out",
			Channel:     notification.ChannelDashboard,
			RecipientID: "admin-1",
		})
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, n.Status)
	})

	t.Run("offline admin has no fallback", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		ctx := context.Background()

		n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
			Type:        notification.TypeLowStock,
			Title:       "Low stock",
			Message:     "SKU-42 is running out",
			Channel:     notification.ChannelDashboard,
			RecipientID: "admin-1",
		})
		require.NoError(t, err)

		stored, err := env.store.GetByID(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, stored.Status)
		assert.Equal(t, "DASHBOARD_DELIVERY_FAILED", stored.ErrorCode)

		_, err = env.queue.Claim(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})
}

func TestCreateNotificationScheduled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	// Online recipient must not matter: scheduled notifications always
	// take the queue so they fire at the right time.
	sub, err := env.hub.Subscribe(ctx, "user-1")
	require.NoError(t, err)
	defer sub.Close()

	scheduledFor := time.Now().Add(time.Hour)
	n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
		Type:         notification.TypeMarketing,
		Title:        "Sale",
		Message:      "Starts tomorrow",
		Channel:      notification.ChannelPush,
		RecipientID:  "user-1",
		ScheduledFor: &scheduledFor,
	})
	require.NoError(t, err)

	stored, err := env.store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, stored.Status)

	_, err = env.queue.Claim(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoJobToClaim, "scheduled job must not be claimable before due")
}

func TestMarkRead(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	sub, err := env.hub.Subscribe(ctx, "user-1")
	require.NoError(t, err)
	defer sub.Close()

	n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
		Type:        notification.TypeOrderPlaced,
		Title:       "Order placed",
		Message:     "Confirmed",
		Channel:     notification.ChannelInApp,
		RecipientID: "user-1",
	})
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, n.Status)

	require.NoError(t, env.svc.MarkRead(ctx, n.ID))

	stored, err := env.store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusRead, stored.Status)
	assert.NotNil(t, stored.ReadAt)

	// Idempotent on repeat.
	require.NoError(t, env.svc.MarkRead(ctx, n.ID))
}

func TestRecordClick(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	sub, err := env.hub.Subscribe(ctx, "user-1")
	require.NoError(t, err)
	defer sub.Close()

	n, err := env.svc.CreateNotification(ctx, notifier.CreateParams{
		Type:        notification.TypeOrderPlaced,
		Title:       "Order placed",
		Message:     "Confirmed",
		Channel:     notification.ChannelInApp,
		RecipientID: "user-1",
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.MarkRead(ctx, n.ID))

	require.NoError(t, env.svc.RecordClick(ctx, n.ID, notification.Click{URL: "/orders/42"}))

	stored, err := env.store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusClicked, stored.Status)
	assert.Equal(t, 1, stored.ClickCount)
	require.Len(t, stored.Clicks, 1)
	assert.Equal(t, "/orders/42", stored.Clicks[0].URL)
}

func TestQueueControls(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	env.svc.PauseQueue()
	stats, err := env.svc.QueueStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Paused)

	env.svc.ResumeQueue()
	stats, err = env.svc.QueueStats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Paused)
}

func TestRegisterDevice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	tok, err := env.svc.RegisterDevice(ctx, "user-1", "token-a", device.PlatformAndroid, device.Meta{})
	require.NoError(t, err)
	assert.True(t, tok.IsActive)

	ok, err := env.svc.UnregisterDevice(ctx, "user-1", "token-a")
	require.NoError(t, err)
	assert.True(t, ok)
}
