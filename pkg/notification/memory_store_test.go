package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/pkg/notification"
)

func newTestNotification(recipient string) *notification.Notification {
	return &notification.Notification{
		ID:          uuid.New(),
		Type:        notification.TypeOrderPlaced,
		Title:       "Order placed",
		Message:     "Your order has been placed",
		Channel:     notification.ChannelInApp,
		Priority:    notification.PriorityMedium,
		RecipientID: recipient,
		Status:      notification.StatusPending,
		CreatedAt:   time.Now(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()

	n := newTestNotification("user-1")
	require.NoError(t, store.Create(ctx, n))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, notification.StatusPending, got.Status)

	t.Run("missing notification", func(t *testing.T) {
		t.Parallel()
		_, err := store.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, notification.ErrNotFound)
	})

	t.Run("nil notification", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, store.Create(ctx, nil), notification.ErrNilNotification)
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		bad := newTestNotification("user-1")
		bad.ID = uuid.Nil
		assert.ErrorIs(t, store.Create(ctx, bad), notification.ErrMissingID)
	})
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid transition chain", func(t *testing.T) {
		t.Parallel()

		store := notification.NewMemoryStore()
		n := newTestNotification("user-1")
		require.NoError(t, store.Create(ctx, n))

		for _, next := range []notification.Status{
			notification.StatusQueued,
			notification.StatusSending,
			notification.StatusSent,
			notification.StatusDelivered,
			notification.StatusRead,
			notification.StatusClicked,
		} {
			ok, err := store.UpdateStatus(ctx, n.ID, next, nil)
			require.NoError(t, err)
			require.True(t, ok, "transition to %s should be permitted", next)
		}

		got, err := store.GetByID(ctx, n.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.SentAt)
		assert.NotNil(t, got.ReadAt)
		assert.NotNil(t, got.ClickedAt)
	})

	t.Run("no direct pending to read jump", func(t *testing.T) {
		t.Parallel()

		store := notification.NewMemoryStore()
		n := newTestNotification("user-1")
		require.NoError(t, store.Create(ctx, n))

		ok, err := store.UpdateStatus(ctx, n.ID, notification.StatusRead, nil)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.GetByID(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, got.Status)
	})

	t.Run("marking read twice is a no-op", func(t *testing.T) {
		t.Parallel()

		store := notification.NewMemoryStore()
		n := newTestNotification("user-1")
		n.Status = notification.StatusRead
		require.NoError(t, store.Create(ctx, n))

		ok, err := store.UpdateStatus(ctx, n.ID, notification.StatusRead, nil)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("failed records error info", func(t *testing.T) {
		t.Parallel()

		store := notification.NewMemoryStore()
		n := newTestNotification("user-1")
		require.NoError(t, store.Create(ctx, n))

		ok, err := store.UpdateStatus(ctx, n.ID, notification.StatusFailed, &notification.ErrorInfo{
			Code:    "adapter_delivery_failed",
			Message: "push transport unavailable",
		})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := store.GetByID(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, "adapter_delivery_failed", got.ErrorCode)
		assert.NotNil(t, got.FailedAt)
	})
}

func TestMemoryStore_IncrementRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()
	n := newTestNotification("user-1")
	require.NoError(t, store.Create(ctx, n))

	next := time.Now().Add(20 * time.Second)
	count, err := store.IncrementRetry(ctx, n.ID, &next)
	require.NoError(t, err)
	assert.Equal(t, int8(1), count)

	count, err = store.IncrementRetry(ctx, n.ID, &next)
	require.NoError(t, err)
	assert.Equal(t, int8(2), count)

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRetryAt)

	// A nil schedule records the failure but leaves nothing pending.
	count, err = store.IncrementRetry(ctx, n.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int8(3), count)

	got, err = store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextRetryAt)
}

func TestMemoryStore_MarkAllRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()

	for range 3 {
		n := newTestNotification("reader")
		n.Status = notification.StatusSent
		require.NoError(t, store.Create(ctx, n))
	}
	other := newTestNotification("someone-else")
	other.Status = notification.StatusSent
	require.NoError(t, store.Create(ctx, other))

	updated, err := store.MarkAllRead(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	count, err := store.CountUnread(ctx, "reader")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = store.CountUnread(ctx, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStore_DeleteByBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()
	batchID := uuid.New()

	for range 4 {
		n := newTestNotification("user-1")
		n.BatchID = batchID
		require.NoError(t, store.Create(ctx, n))
	}
	loner := newTestNotification("user-1")
	require.NoError(t, store.Create(ctx, loner))

	deleted, err := store.DeleteByBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	_, err = store.GetByID(ctx, loner.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_FindRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()

	eligible := newTestNotification("user-1")
	eligible.Status = notification.StatusFailed
	eligible.RetryCount = 2
	require.NoError(t, store.Create(ctx, eligible))

	exhausted := newTestNotification("user-2")
	exhausted.Status = notification.StatusFailed
	exhausted.RetryCount = notification.MaxRetries
	require.NoError(t, store.Create(ctx, exhausted))

	noRecipient := newTestNotification("")
	noRecipient.Status = notification.StatusFailed
	require.NoError(t, store.Create(ctx, noRecipient))

	out, err := store.FindRetryable(ctx, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, eligible.ID, out[0].ID)
}

func TestMemoryStore_FindOrphans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()

	orphan := newTestNotification("")
	require.NoError(t, store.Create(ctx, orphan))

	templated := newTestNotification("")
	templated.TargetRoles = []string{"admin"}
	require.NoError(t, store.Create(ctx, templated))

	bound := newTestNotification("user-1")
	require.NoError(t, store.Create(ctx, bound))

	out, err := store.FindOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, orphan.ID, out[0].ID)
}

func TestMemoryStore_FindRecentDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()

	n := newTestNotification("user-1")
	require.NoError(t, store.Create(ctx, n))

	dupes, err := store.FindRecentDuplicates(ctx, n.Type, n.Title, n.Message, "user-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, dupes, 1)

	dupes, err = store.FindRecentDuplicates(ctx, n.Type, "different title", n.Message, "user-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, dupes)
}

func TestMemoryStore_Analytics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := notification.NewMemoryStore()
	n := newTestNotification("user-1")
	require.NoError(t, store.Create(ctx, n))

	require.NoError(t, store.IncrementOpens(ctx, n.ID))
	require.NoError(t, store.RecordClick(ctx, n.ID, notification.Click{URL: "https://example.com/order/42"}))

	got, err := store.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OpenCount)
	assert.Equal(t, 1, got.ClickCount)
	require.Len(t, got.Clicks, 1)
	assert.False(t, got.Clicks[0].ClickedAt.IsZero())
}
