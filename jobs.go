package notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/notification"
	"github.com/dmitrymomot/notifier/pkg/queue"
	"github.com/dmitrymomot/notifier/pkg/scheduler"
)

const (
	// promoteBatchSize bounds one promotion tick.
	promoteBatchSize = 100

	// retryBatchSize bounds one retry sweep.
	retryBatchSize = 50

	// completedJobTTL and failedJobTTL bound queue growth.
	completedJobTTL = time.Hour
	failedJobTTL    = 24 * time.Hour

	// readRetention is how long read notifications are kept.
	readRetention = 90 * 24 * time.Hour

	// bootSweepDelay lets queue and store connections settle before the
	// orphan sweep runs.
	bootSweepDelay = 10 * time.Second
)

// RegisterMaintenanceJobs wires the service's periodic upkeep into the
// scheduler. Every job is idempotent: a missed tick is absorbed by the
// next one, and concurrent runs converge on the same state.
func (s *Service) RegisterMaintenanceJobs(sched *scheduler.Scheduler) error {
	jobs := []struct {
		name     string
		schedule scheduler.Schedule
		fn       scheduler.JobFunc
	}{
		{"promote-scheduled", scheduler.EveryMinute(), s.promoteScheduled},
		{"retry-sweep", scheduler.Every(5 * time.Minute), s.retrySweep},
		{"queue-clean", scheduler.HourlyAt(0), s.cleanQueue},
		{"queue-stats", scheduler.Every(10 * time.Minute), s.logQueueStats},
		{"token-idle-sweep", scheduler.DailyAt(3, 0), s.sweepIdleTokens},
		{"token-unused-sweep", scheduler.WeeklyOn(time.Sunday, 3, 30), s.sweepNeverUsedTokens},
		{"read-retention", scheduler.DailyAt(4, 0), s.pruneReadNotifications},
	}
	for _, j := range jobs {
		if err := sched.Add(j.name, j.schedule, j.fn); err != nil {
			return err
		}
	}
	return sched.RunOnceAfter("orphan-sweep", bootSweepDelay, s.orphanSweep)
}

// promoteScheduled moves due scheduled notifications into the send lane.
func (s *Service) promoteScheduled(ctx context.Context) error {
	due, err := s.store.FindDueScheduled(ctx, time.Now(), promoteBatchSize)
	if err != nil {
		return err
	}

	promoted := 0
	for i := range due {
		if _, err := s.queue.Enqueue(ctx, &due[i]); err != nil {
			if errors.Is(err, queue.ErrAlreadyQueued) || errors.Is(err, queue.ErrAlreadyTerminal) {
				continue
			}
			s.logger.ErrorContext(ctx, "failed to promote scheduled notification",
				logger.NotificationID(due[i].ID),
				logger.Error(err))
			continue
		}
		promoted++
	}
	if promoted > 0 {
		s.logger.InfoContext(ctx, "promoted scheduled notifications", slog.Int("count", promoted))
	}
	return nil
}

// retrySweep requeues failed notifications that still have retry budget
// but no live follow-up job.
func (s *Service) retrySweep(ctx context.Context) error {
	failed, err := s.store.FindRetryable(ctx, retryBatchSize)
	if err != nil {
		return err
	}

	requeued := 0
	for i := range failed {
		if _, err := s.queue.Requeue(ctx, &failed[i]); err != nil {
			if errors.Is(err, queue.ErrAlreadyQueued) || errors.Is(err, queue.ErrRetryExhausted) {
				continue
			}
			s.logger.ErrorContext(ctx, "failed to requeue notification",
				logger.NotificationID(failed[i].ID),
				logger.Error(err))
			continue
		}
		s.logger.DebugContext(ctx, "requeued failed notification",
			logger.NotificationID(failed[i].ID),
			logger.RetryCount(int(failed[i].RetryCount)))
		requeued++
	}
	if requeued > 0 {
		s.logger.InfoContext(ctx, "requeued failed notifications", slog.Int("count", requeued))
	}
	return nil
}

// cleanQueue prunes finished jobs from all lanes.
func (s *Service) cleanQueue(ctx context.Context) error {
	now := time.Now()
	var removed int64
	for _, lane := range queue.Lanes() {
		n, err := s.queue.Clean(ctx, lane, []queue.JobStatus{queue.JobStatusCompleted}, now.Add(-completedJobTTL))
		if err != nil {
			return err
		}
		removed += n

		n, err = s.queue.Clean(ctx, lane, []queue.JobStatus{queue.JobStatusFailed}, now.Add(-failedJobTTL))
		if err != nil {
			return err
		}
		removed += n
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "cleaned finished queue jobs", slog.Int64("removed", removed))
	}
	return nil
}

// logQueueStats emits the per-lane backlog snapshot. Observation only.
func (s *Service) logQueueStats(ctx context.Context) error {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return err
	}

	total := stats.Total()
	attrs := []any{
		slog.Bool("paused", stats.Paused),
		slog.Int64("backlog", total.Waiting+total.Delayed+total.Active),
	}
	for lane, ls := range stats.Lanes {
		attrs = append(attrs, logger.Group(string(lane),
			slog.Int64("waiting", ls.Waiting),
			slog.Int64("delayed", ls.Delayed),
			slog.Int64("active", ls.Active),
			slog.Int64("completed", ls.Completed),
			slog.Int64("failed", ls.Failed)))
	}
	s.logger.InfoContext(ctx, "delivery queue backlog", attrs...)
	return nil
}

func (s *Service) sweepIdleTokens(ctx context.Context) error {
	n, err := s.registry.SweepIdle(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "deactivated idle device tokens", slog.Int64("count", n))
	}
	return nil
}

func (s *Service) sweepNeverUsedTokens(ctx context.Context) error {
	n, err := s.registry.SweepNeverUsed(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "deactivated never-used device tokens", slog.Int64("count", n))
	}
	return nil
}

func (s *Service) pruneReadNotifications(ctx context.Context) error {
	n, err := s.store.DeleteReadBefore(ctx, time.Now().Add(-readRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pruned read notifications", slog.Int64("count", n))
	}
	return nil
}

// orphanSweep force-fails notifications stuck in pending/queued/sending
// with no recipient and no target roles. These are unrecoverable artifacts
// of malformed creation calls; failing them makes the damage visible.
func (s *Service) orphanSweep(ctx context.Context) error {
	orphans, err := s.store.FindOrphans(ctx)
	if err != nil {
		return err
	}

	for i := range orphans {
		if _, err := s.store.UpdateStatus(ctx, orphans[i].ID, notification.StatusFailed, &notification.ErrorInfo{
			Code:    "ORPHANED",
			Message: "notification has no recipient and no target roles",
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to fail orphaned notification",
				logger.NotificationID(orphans[i].ID),
				logger.Error(err))
		}
	}
	if len(orphans) > 0 {
		s.logger.WarnContext(ctx, "failed orphaned notifications", slog.Int("count", len(orphans)))
	}
	return nil
}
