package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
)

// Dispatcher hands a claimed job to the channel transport. A nil return
// means the notification left the building; anything else drives the
// retry path.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *Job) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, job *Job) error

func (f DispatcherFunc) Dispatch(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Worker pulls jobs from the queue and runs them through the dispatcher.
type Worker struct {
	queue      *Queue
	dispatcher Dispatcher
	workerID   uuid.UUID
	sem        chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	stopMu     sync.Mutex // Protects stopping state and WaitGroup operations

	// Configuration
	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	// State management
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a delivery worker.
func NewWorker(q *Queue, dispatcher Dispatcher, opts ...WorkerOption) (*Worker, error) {
	if q == nil {
		return nil, ErrStorageNil
	}
	if dispatcher == nil {
		return nil, ErrDispatcherNil
	}

	options := &workerOptions{
		pullInterval: time.Second,
		lockTimeout:  2 * time.Minute,
		concurrency:  1,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		queue:        q,
		dispatcher:   dispatcher,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.concurrency),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger,
	}, nil
}

// Start begins processing jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("delivery worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("concurrency", cap(w.sem)))
	return nil
}

// Stop gracefully shuts down the worker, letting claimed jobs finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("delivery worker stopped",
		slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// run is the main processing loop.
func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// Don't add to the WaitGroup once Stop() has started.
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil {
						w.logger.Error("failed to process job",
							slog.String("worker_id", w.workerID.String()),
							logger.Error(err))
					}
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	job, err := w.queue.Claim(w.ctx, w.workerID, w.lockTimeout)
	if errors.Is(err, ErrNoJobToClaim) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	w.logger.Debug("claimed job",
		slog.String("worker_id", w.workerID.String()),
		logger.JobID(job.ID),
		logger.NotificationID(job.NotificationID),
		logger.Lane(string(job.Lane)),
		logger.Attempt(int(job.Attempt)))

	return w.process(job)
}

// process drives one delivery attempt end to end: mark the notification
// sending, dispatch, then settle both job and notification.
func (w *Worker) process(job *Job) (retErr error) {
	start := time.Now()

	// A panic inside a channel transport must not take the worker down,
	// and it drives the same retry path as an error return.
	defer func() {
		if r := recover(); r != nil {
			retErr = w.settleFailure(job, fmt.Errorf("panic in dispatcher: %v", r), time.Since(start))
		}
	}()

	ok, err := w.queue.store.UpdateStatus(w.ctx, job.NotificationID, notification.StatusSending, nil)
	if errors.Is(err, notification.ErrNotFound) {
		// Notification was deleted while queued; drop the job.
		return w.queue.storage.Complete(w.ctx, job.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification %s sending: %w", job.NotificationID, err)
	}
	if !ok {
		// Already pushed to a terminal status by someone else; nothing to do.
		w.logger.Warn("skipping job for notification in unexpected status",
			logger.JobID(job.ID),
			logger.NotificationID(job.NotificationID))
		return w.queue.storage.Complete(w.ctx, job.ID)
	}

	if err := w.dispatcher.Dispatch(w.ctx, job); err != nil {
		return w.settleFailure(job, err, time.Since(start))
	}
	return w.settleSuccess(job, time.Since(start))
}

func (w *Worker) settleSuccess(job *Job, duration time.Duration) error {
	if _, err := w.queue.store.UpdateStatus(w.ctx, job.NotificationID, notification.StatusSent, nil); err != nil {
		return fmt.Errorf("failed to mark notification %s sent: %w", job.NotificationID, err)
	}
	if err := w.queue.storage.Complete(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	w.logger.Info("notification delivered",
		slog.String("worker_id", w.workerID.String()),
		logger.NotificationID(job.NotificationID),
		logger.Channel(string(job.Channel)),
		logger.Attempt(int(job.Attempt)),
		logger.Duration(duration))
	return nil
}

// settleFailure records the failure on both the job and the notification,
// then schedules the next attempt while the budget lasts.
func (w *Worker) settleFailure(job *Job, execErr error, duration time.Duration) error {
	w.logger.Error("delivery attempt failed",
		slog.String("worker_id", w.workerID.String()),
		logger.NotificationID(job.NotificationID),
		logger.Channel(string(job.Channel)),
		logger.Attempt(int(job.Attempt)),
		logger.Duration(duration),
		logger.Error(execErr))

	if _, err := w.queue.store.UpdateStatus(w.ctx, job.NotificationID, notification.StatusFailed, &notification.ErrorInfo{
		Code:    "DELIVERY_FAILED",
		Message: execErr.Error(),
	}); err != nil {
		w.logger.Error("failed to mark notification failed",
			logger.NotificationID(job.NotificationID),
			logger.Error(err))
	}

	if err := w.queue.storage.Fail(w.ctx, job.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to fail job %s: %w", job.ID, err)
	}

	next, err := w.queue.retry(w.ctx, job)
	if err != nil {
		return err
	}
	if next == nil {
		w.logger.Warn("delivery attempts exhausted",
			logger.NotificationID(job.NotificationID),
			logger.Channel(string(job.Channel)),
			slog.Int("attempts", int(job.Attempt)))
	}
	return nil
}
