// Package scheduler runs periodic maintenance jobs on independent timers.
//
// Each registered job gets its own goroutine that sleeps until the job's
// next fire time, so a slow sweep never delays the others. Jobs are
// expected to be idempotent: a missed tick is absorbed by the next one.
//
// Periodic jobs are registered with Add and a Schedule (Every, HourlyAt,
// DailyAt, WeeklyOn); one-shot boot jobs with RunOnceAfter. A panic
// inside a job tick is recovered and logged without affecting the other
// jobs.
//
// Usage:
//
//	s := scheduler.New(scheduler.WithLogger(logger))
//	s.Add("cleanup", scheduler.HourlyAt(0), cleanupFn)
//	s.RunOnceAfter("boot-sweep", 30*time.Second, sweepFn)
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(s.Run(ctx))
package scheduler
