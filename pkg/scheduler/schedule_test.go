package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifier/pkg/scheduler"
)

func TestEvery(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, from.Add(5*time.Minute), scheduler.Every(5*time.Minute).Next(from))
	assert.Equal(t, from.Add(time.Minute), scheduler.EveryMinute().Next(from))
	assert.Equal(t, from.Add(time.Hour), scheduler.Hourly().Next(from))
}

func TestHourlyAt(t *testing.T) {
	t.Parallel()

	t.Run("later this hour", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 10, 10, 0, 0, time.UTC)
		next := scheduler.HourlyAt(30).Next(from)
		assert.Equal(t, time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC), next)
	})

	t.Run("rolls to next hour", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 10, 45, 0, 0, time.UTC)
		next := scheduler.HourlyAt(30).Next(from)
		assert.Equal(t, time.Date(2025, 6, 15, 11, 30, 0, 0, time.UTC), next)
	})

	t.Run("exact minute rolls forward", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
		next := scheduler.HourlyAt(30).Next(from)
		assert.Equal(t, time.Date(2025, 6, 15, 11, 30, 0, 0, time.UTC), next)
	})
}

func TestDailyAt(t *testing.T) {
	t.Parallel()

	t.Run("later today", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)
		next := scheduler.DailyAt(3, 0).Next(from)
		assert.Equal(t, time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("rolls to tomorrow", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		next := scheduler.DailyAt(3, 0).Next(from)
		assert.Equal(t, time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC), next)
	})
}

func TestWeeklyOn(t *testing.T) {
	t.Parallel()

	// June 15, 2025 is a Sunday.
	t.Run("later this week", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
		next := scheduler.WeeklyOn(time.Wednesday, 4, 30).Next(from)
		assert.Equal(t, time.Date(2025, 6, 18, 4, 30, 0, 0, time.UTC), next)
		assert.Equal(t, time.Wednesday, next.Weekday())
	})

	t.Run("same day earlier time rolls a week", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
		next := scheduler.WeeklyOn(time.Sunday, 4, 30).Next(from)
		assert.Equal(t, time.Date(2025, 6, 22, 4, 30, 0, 0, time.UTC), next)
	})

	t.Run("same day later time fires today", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)
		next := scheduler.WeeklyOn(time.Sunday, 4, 30).Next(from)
		assert.Equal(t, time.Date(2025, 6, 15, 4, 30, 0, 0, time.UTC), next)
	})
}

func TestScheduleString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "every 5m0s", scheduler.Every(5*time.Minute).String())
	assert.Equal(t, "hourly at :05", scheduler.HourlyAt(5).String())
	assert.Equal(t, "daily at 03:00", scheduler.DailyAt(3, 0).String())
	assert.Equal(t, "weekly on Sunday at 04:30", scheduler.WeeklyOn(time.Sunday, 4, 30).String())
}
