package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage is a Redis-backed Storage implementation suitable for
// multi-process deployments.
//
// Layout per lane:
//
//	{prefix}:ready:{lane}       ZSET  jobID scored by priority and age
//	{prefix}:delayed:{lane}     ZSET  jobID scored by ready-at time
//	{prefix}:processing:{lane}  ZSET  jobID scored by lock expiry
//	{prefix}:done:{lane}:{status} ZSET jobID scored by finish time
//
// plus {prefix}:job:{id} holding the job JSON and {prefix}:notif:{id}
// holding the set of live job IDs per notification. Claiming is a Lua
// script, so two workers can never pop the same job.
type RedisStorage struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStorage creates a Redis-backed job storage.
func NewRedisStorage(rdb redis.UniversalClient, opts ...RedisOption) (*RedisStorage, error) {
	if rdb == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	s := &RedisStorage{rdb: rdb, prefix: "notifier:queue"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// claimScript pops the globally most urgent job across the three ready
// sets and parks it in the matching processing set, atomically.
var claimScript = redis.NewScript(`
local best
local bestScore = 0
local bestLane = 0
for i = 1, 3 do
	local z = redis.call('ZRANGE', KEYS[i], 0, 0, 'WITHSCORES')
	if z[1] then
		local score = tonumber(z[2])
		if (not best) or score < bestScore then
			best = z[1]
			bestScore = score
			bestLane = i
		end
	end
end
if not best then
	return false
end
redis.call('ZREM', KEYS[bestLane], best)
redis.call('ZADD', KEYS[bestLane + 3], ARGV[1], best)
return best
`)

func (s *RedisStorage) readyKey(lane Lane) string   { return s.prefix + ":ready:" + string(lane) }
func (s *RedisStorage) delayedKey(lane Lane) string { return s.prefix + ":delayed:" + string(lane) }
func (s *RedisStorage) processingKey(lane Lane) string {
	return s.prefix + ":processing:" + string(lane)
}

func (s *RedisStorage) doneKey(lane Lane, status JobStatus) string {
	return s.prefix + ":done:" + string(lane) + ":" + string(status)
}

func (s *RedisStorage) jobKey(id uuid.UUID) string   { return s.prefix + ":job:" + id.String() }
func (s *RedisStorage) notifKey(id uuid.UUID) string { return s.prefix + ":notif:" + id.String() }

// readyScore orders jobs by priority tier first, then by age within a
// tier. Millisecond timestamps stay far below the tier width, so tiers
// never bleed into each other.
func readyScore(job *Job) float64 {
	return float64(job.Priority)*1e13 + float64(job.CreatedAt.UnixMilli())
}

func (s *RedisStorage) saveJob(ctx context.Context, pipe redis.Cmdable, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	pipe.Set(ctx, s.jobKey(job.ID), raw, 0)
	return nil
}

func (s *RedisStorage) loadJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	raw, err := s.rdb.Get(ctx, s.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStorage) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	cp := *job
	delayed := cp.ReadyAt.After(time.Now())
	if delayed {
		cp.Status = JobStatusDelayed
	} else {
		cp.Status = JobStatusWaiting
	}

	pipe := s.rdb.TxPipeline()
	if err := s.saveJob(ctx, pipe, &cp); err != nil {
		return err
	}
	if delayed {
		pipe.ZAdd(ctx, s.delayedKey(cp.Lane), redis.Z{
			Score:  float64(cp.ReadyAt.UnixMilli()),
			Member: cp.ID.String(),
		})
	} else {
		pipe.ZAdd(ctx, s.readyKey(cp.Lane), redis.Z{
			Score:  readyScore(&cp),
			Member: cp.ID.String(),
		})
	}
	pipe.SAdd(ctx, s.notifKey(cp.NotificationID), cp.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", cp.ID, err)
	}

	job.Status = cp.Status
	return nil
}

func (s *RedisStorage) Claim(ctx context.Context, workerID uuid.UUID, lockFor time.Duration) (*Job, error) {
	now := time.Now()
	if err := s.promoteDue(ctx, now); err != nil {
		return nil, err
	}
	if err := s.reclaimExpired(ctx, now); err != nil {
		return nil, err
	}

	keys := make([]string, 0, 6)
	for _, lane := range Lanes() {
		keys = append(keys, s.readyKey(lane))
	}
	for _, lane := range Lanes() {
		keys = append(keys, s.processingKey(lane))
	}

	lockUntil := now.Add(lockFor)
	res, err := claimScript.Run(ctx, s.rdb, keys, lockUntil.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJobToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	jobID, err := uuid.Parse(res)
	if err != nil {
		return nil, fmt.Errorf("malformed job id %q in queue: %w", res, err)
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Status = JobStatusActive
	job.LockedUntil = &lockUntil
	job.LockedBy = &workerID

	pipe := s.rdb.TxPipeline()
	if err := s.saveJob(ctx, pipe, job); err != nil {
		return nil, err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist claim of %s: %w", jobID, err)
	}
	return job, nil
}

// promoteDue moves due delayed jobs into their lane's ready set.
func (s *RedisStorage) promoteDue(ctx context.Context, now time.Time) error {
	for _, lane := range Lanes() {
		ids, err := s.rdb.ZRangeByScore(ctx, s.delayedKey(lane), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%d", now.UnixMilli()),
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to scan delayed jobs in %s lane: %w", lane, err)
		}

		for _, id := range ids {
			jobID, err := uuid.Parse(id)
			if err != nil {
				continue
			}
			job, err := s.loadJob(ctx, jobID)
			if errors.Is(err, ErrJobNotFound) {
				s.rdb.ZRem(ctx, s.delayedKey(lane), id)
				continue
			}
			if err != nil {
				return err
			}
			job.Status = JobStatusWaiting

			pipe := s.rdb.TxPipeline()
			if err := s.saveJob(ctx, pipe, job); err != nil {
				return err
			}
			pipe.ZRem(ctx, s.delayedKey(lane), id)
			pipe.ZAdd(ctx, s.readyKey(lane), redis.Z{Score: readyScore(job), Member: id})
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to promote job %s: %w", id, err)
			}
		}
	}
	return nil
}

// reclaimExpired returns jobs with expired locks to the ready set so work
// claimed by a dead worker is not lost.
func (s *RedisStorage) reclaimExpired(ctx context.Context, now time.Time) error {
	for _, lane := range Lanes() {
		ids, err := s.rdb.ZRangeByScore(ctx, s.processingKey(lane), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%d", now.UnixMilli()),
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to scan expired locks in %s lane: %w", lane, err)
		}

		for _, id := range ids {
			jobID, err := uuid.Parse(id)
			if err != nil {
				continue
			}
			job, err := s.loadJob(ctx, jobID)
			if errors.Is(err, ErrJobNotFound) {
				s.rdb.ZRem(ctx, s.processingKey(lane), id)
				continue
			}
			if err != nil {
				return err
			}
			job.Status = JobStatusWaiting
			job.LockedUntil = nil
			job.LockedBy = nil

			pipe := s.rdb.TxPipeline()
			if err := s.saveJob(ctx, pipe, job); err != nil {
				return err
			}
			pipe.ZRem(ctx, s.processingKey(lane), id)
			pipe.ZAdd(ctx, s.readyKey(lane), redis.Z{Score: readyScore(job), Member: id})
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to reclaim job %s: %w", id, err)
			}
		}
	}
	return nil
}

func (s *RedisStorage) finishJob(ctx context.Context, jobID uuid.UUID, status JobStatus, errMsg string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != JobStatusActive {
		return ErrJobNotActive
	}

	now := time.Now()
	job.Status = status
	job.Error = errMsg
	job.CompletedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	pipe := s.rdb.TxPipeline()
	if err := s.saveJob(ctx, pipe, job); err != nil {
		return err
	}
	pipe.ZRem(ctx, s.processingKey(job.Lane), jobID.String())
	pipe.ZAdd(ctx, s.doneKey(job.Lane, status), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: jobID.String(),
	})
	pipe.SRem(ctx, s.notifKey(job.NotificationID), jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to finish job %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisStorage) Complete(ctx context.Context, jobID uuid.UUID) error {
	return s.finishJob(ctx, jobID, JobStatusCompleted, "")
}

func (s *RedisStorage) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	return s.finishJob(ctx, jobID, JobStatusFailed, errMsg)
}

func (s *RedisStorage) IsQueued(ctx context.Context, notificationID uuid.UUID) (bool, error) {
	count, err := s.rdb.SCard(ctx, s.notifKey(notificationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check live jobs for %s: %w", notificationID, err)
	}
	return count > 0, nil
}

func (s *RedisStorage) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	job, err := s.loadJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	id := jobID.String()
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, s.readyKey(job.Lane), id)
	pipe.ZRem(ctx, s.delayedKey(job.Lane), id)
	pipe.ZRem(ctx, s.processingKey(job.Lane), id)
	pipe.ZRem(ctx, s.doneKey(job.Lane, JobStatusCompleted), id)
	pipe.ZRem(ctx, s.doneKey(job.Lane, JobStatusFailed), id)
	pipe.SRem(ctx, s.notifKey(job.NotificationID), id)
	pipe.Del(ctx, s.jobKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	return true, nil
}

func (s *RedisStorage) ListFailed(ctx context.Context, limit int) ([]Job, error) {
	var out []Job
	for _, lane := range Lanes() {
		ids, err := s.rdb.ZRevRange(ctx, s.doneKey(lane, JobStatusFailed), 0, int64(limit)-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list failed jobs in %s lane: %w", lane, err)
		}
		for _, id := range ids {
			jobID, err := uuid.Parse(id)
			if err != nil {
				continue
			}
			job, err := s.loadJob(ctx, jobID)
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, *job)
		}
	}

	slices.SortFunc(out, func(a, b Job) int {
		switch {
		case a.CompletedAt == nil || b.CompletedAt == nil:
			return 0
		case a.CompletedAt.After(*b.CompletedAt):
			return -1
		case a.CompletedAt.Before(*b.CompletedAt):
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RedisStorage) Clean(ctx context.Context, lane Lane, statuses []JobStatus, olderThan time.Time) (int64, error) {
	var count int64
	for _, status := range statuses {
		if status != JobStatusCompleted && status != JobStatusFailed {
			continue
		}
		key := s.doneKey(lane, status)
		ids, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%d", olderThan.UnixMilli()),
		}).Result()
		if err != nil {
			return count, fmt.Errorf("failed to scan %s jobs in %s lane: %w", status, lane, err)
		}

		for _, id := range ids {
			pipe := s.rdb.TxPipeline()
			pipe.ZRem(ctx, key, id)
			pipe.Del(ctx, s.prefix+":job:"+id)
			if _, err := pipe.Exec(ctx); err != nil {
				return count, fmt.Errorf("failed to clean job %s: %w", id, err)
			}
			count++
		}
	}
	return count, nil
}

func (s *RedisStorage) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Lanes: make(map[Lane]LaneStats)}
	for _, lane := range Lanes() {
		pipe := s.rdb.Pipeline()
		waiting := pipe.ZCard(ctx, s.readyKey(lane))
		delayed := pipe.ZCard(ctx, s.delayedKey(lane))
		active := pipe.ZCard(ctx, s.processingKey(lane))
		completed := pipe.ZCard(ctx, s.doneKey(lane, JobStatusCompleted))
		failed := pipe.ZCard(ctx, s.doneKey(lane, JobStatusFailed))
		if _, err := pipe.Exec(ctx); err != nil {
			return Stats{}, fmt.Errorf("failed to collect stats for %s lane: %w", lane, err)
		}
		stats.Lanes[lane] = LaneStats{
			Waiting:   waiting.Val(),
			Delayed:   delayed.Val(),
			Active:    active.Val(),
			Completed: completed.Val(),
			Failed:    failed.Val(),
		}
	}
	return stats, nil
}
