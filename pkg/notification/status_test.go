package notification_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifier/pkg/notification"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    notification.Status
		to      notification.Status
		allowed bool
	}{
		{"pending to queued", notification.StatusPending, notification.StatusQueued, true},
		{"pending to sending", notification.StatusPending, notification.StatusSending, true},
		{"pending to sent (synchronous path)", notification.StatusPending, notification.StatusSent, true},
		{"pending to failed", notification.StatusPending, notification.StatusFailed, true},
		{"pending to read is forbidden", notification.StatusPending, notification.StatusRead, false},
		{"pending to delivered is forbidden", notification.StatusPending, notification.StatusDelivered, false},
		{"queued to sending", notification.StatusQueued, notification.StatusSending, true},
		{"queued to sent is forbidden", notification.StatusQueued, notification.StatusSent, false},
		{"sending to sent", notification.StatusSending, notification.StatusSent, true},
		{"sending to failed", notification.StatusSending, notification.StatusFailed, true},
		{"sent to delivered", notification.StatusSent, notification.StatusDelivered, true},
		{"delivered to read", notification.StatusDelivered, notification.StatusRead, true},
		{"read to clicked", notification.StatusRead, notification.StatusClicked, true},
		{"clicked is terminal", notification.StatusClicked, notification.StatusRead, false},
		{"failed re-enters via queued", notification.StatusFailed, notification.StatusQueued, true},
		{"failed re-enters via sending", notification.StatusFailed, notification.StatusSending, true},
		{"failed to sent is forbidden", notification.StatusFailed, notification.StatusSent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	terminal := []notification.Status{
		notification.StatusSent,
		notification.StatusDelivered,
		notification.StatusRead,
		notification.StatusClicked,
		notification.StatusFailed,
	}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "expected %s to be terminal", s)
	}

	open := []notification.Status{
		notification.StatusPending,
		notification.StatusQueued,
		notification.StatusSending,
	}
	for _, s := range open {
		assert.False(t, s.Terminal(), "expected %s to be non-terminal", s)
	}
}

func TestPriority_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, notification.PriorityUrgent.Valid())
	assert.True(t, notification.PriorityLow.Valid())
	assert.False(t, notification.Priority(0).Valid())
	assert.False(t, notification.Priority(5).Valid())
}
