package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/pkg/scheduler"
)

func TestSchedulerAdd(t *testing.T) {
	t.Parallel()

	noop := func(ctx context.Context) error { return nil }

	t.Run("registers job", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		require.NoError(t, s.Add("cleanup", scheduler.Hourly(), noop))
		assert.Contains(t, s.Jobs(), "cleanup")
	})

	t.Run("rejects empty name", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		assert.ErrorIs(t, s.Add("", scheduler.Hourly(), noop), scheduler.ErrInvalidJob)
	})

	t.Run("rejects nil schedule", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		assert.ErrorIs(t, s.Add("cleanup", nil, noop), scheduler.ErrInvalidJob)
	})

	t.Run("rejects nil func", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		assert.ErrorIs(t, s.Add("cleanup", scheduler.Hourly(), nil), scheduler.ErrInvalidJob)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		require.NoError(t, s.Add("cleanup", scheduler.Hourly(), noop))
		assert.ErrorIs(t, s.Add("cleanup", scheduler.Hourly(), noop), scheduler.ErrJobAlreadyRegistered)
	})

	t.Run("rejects after start", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		require.NoError(t, s.Add("cleanup", scheduler.Hourly(), noop))
		require.NoError(t, s.Start(context.Background()))
		defer s.Stop()

		assert.ErrorIs(t, s.Add("other", scheduler.Hourly(), noop), scheduler.ErrAlreadyStarted)
	})
}

func TestSchedulerStart(t *testing.T) {
	t.Parallel()

	t.Run("no jobs", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		assert.ErrorIs(t, s.Start(context.Background()), scheduler.ErrNoJobs)
	})

	t.Run("already started", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		require.NoError(t, s.Add("cleanup", scheduler.Hourly(), func(ctx context.Context) error { return nil }))
		require.NoError(t, s.Start(context.Background()))
		defer s.Stop()

		assert.ErrorIs(t, s.Start(context.Background()), scheduler.ErrAlreadyStarted)
	})
}

func TestSchedulerRunsJobs(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	s := scheduler.New()
	require.NoError(t, s.Add("fast", scheduler.Every(10*time.Millisecond), func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerRunOnceAfter(t *testing.T) {
	t.Parallel()

	t.Run("fires exactly once", func(t *testing.T) {
		t.Parallel()

		var runs atomic.Int64
		s := scheduler.New()
		require.NoError(t, s.RunOnceAfter("boot", 10*time.Millisecond, func(ctx context.Context) error {
			runs.Add(1)
			return nil
		}))

		require.NoError(t, s.Start(context.Background()))
		defer s.Stop()

		require.Eventually(t, func() bool {
			return runs.Load() == 1
		}, time.Second, 5*time.Millisecond)

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int64(1), runs.Load())
	})

	t.Run("rejects empty name", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		assert.ErrorIs(t, s.RunOnceAfter("", time.Second, func(ctx context.Context) error { return nil }), scheduler.ErrInvalidJob)
	})

	t.Run("rejects nil func", func(t *testing.T) {
		t.Parallel()

		s := scheduler.New()
		assert.ErrorIs(t, s.RunOnceAfter("boot", time.Second, nil), scheduler.ErrInvalidJob)
	})
}

func TestSchedulerPanicContainment(t *testing.T) {
	t.Parallel()

	var healthy atomic.Int64
	s := scheduler.New()
	require.NoError(t, s.Add("panicky", scheduler.Every(10*time.Millisecond), func(ctx context.Context) error {
		panic("boom")
	}))
	require.NoError(t, s.Add("healthy", scheduler.Every(10*time.Millisecond), func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return healthy.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStop(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	s := scheduler.New()
	require.NoError(t, s.Add("fast", scheduler.Every(10*time.Millisecond), func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	after := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestSchedulerRun(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int64
	s := scheduler.New()
	require.NoError(t, s.Add("fast", scheduler.Every(10*time.Millisecond), func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx)() }()

	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
