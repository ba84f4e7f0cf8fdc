package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobFunc is one maintenance job. Jobs must be idempotent: a missed tick
// is simply absorbed by the next one, and two instances running the same
// sweep concurrently must converge on the same state.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc

	// one-shot jobs run once after delay and never again
	oneShot bool
	delay   time.Duration
}

// Scheduler runs maintenance jobs on independent timers. There is no
// shared tick: each job sleeps until its own next fire time, so a slow
// sweep never delays the others.
type Scheduler struct {
	jobs    map[string]*job
	logger  *slog.Logger
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger for the Scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*job),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a periodic job. Must be called before Start.
func (s *Scheduler) Add(name string, schedule Schedule, fn JobFunc) error {
	if name == "" || schedule == nil || fn == nil {
		return ErrInvalidJob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if _, exists := s.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}

	s.jobs[name] = &job{name: name, schedule: schedule, fn: fn}
	s.logger.Info("registered maintenance job",
		slog.String("job", name),
		slog.String("schedule", schedule.String()))
	return nil
}

// RunOnceAfter registers a one-shot job that fires once after the delay.
// Used for boot sweeps that have to wait for connections to settle.
func (s *Scheduler) RunOnceAfter(name string, delay time.Duration, fn JobFunc) error {
	if name == "" || fn == nil {
		return ErrInvalidJob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if _, exists := s.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}

	s.jobs[name] = &job{name: name, fn: fn, oneShot: true, delay: delay}
	s.logger.Info("registered one-shot job",
		slog.String("job", name),
		slog.Duration("delay", delay))
	return nil
}

// Start launches one goroutine per registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(s.jobs) == 0 {
		s.mu.Unlock()
		return ErrNoJobs
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", slog.Int("jobs", count))
	return nil
}

// Stop cancels all timers and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Run returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		s.Stop()
		return nil
	}
}

// runJob owns one job's timer loop.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer s.wg.Done()

	if j.oneShot {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.delay):
			s.execute(ctx, j)
		}
		return
	}

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(ctx, j)
		}
	}
}

// execute runs one tick with panic containment: a single bad sweep must
// not take down the whole maintenance loop.
func (s *Scheduler) execute(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("maintenance job panicked",
				slog.String("job", j.name),
				slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := j.fn(ctx); err != nil {
		s.logger.Error("maintenance job failed",
			slog.String("job", j.name),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("maintenance job completed",
		slog.String("job", j.name),
		slog.Duration("duration", time.Since(start)))
}

// Jobs returns the names of all registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
