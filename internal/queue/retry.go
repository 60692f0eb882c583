package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"redis-job-pipeline/internal/store"
)

const promoteBatch = 10

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix. The job is
// dead-lettered on the first such failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// nextAttempt decides what happens after the run numbered AttemptsMade+1
// failed with err. MaxAttempts bounds the total number of runs.
func nextAttempt(job Job, err error) (delay time.Duration, retry bool) {
	if IsPermanent(err) {
		return 0, false
	}
	if job.MaxAttempts > 0 && job.AttemptsMade+1 >= job.MaxAttempts {
		return 0, false
	}
	return job.Backoff.Delay(job.AttemptsMade), true
}

// RunRetryManager moves due jobs from the retry set back onto their streams
// until ctx is cancelled.
func (q *RedisQueue) RunRetryManager(ctx context.Context, interval time.Duration) {
	q.runPromoter(ctx, retryKey, interval, "retry-manager")
}

func (q *RedisQueue) runPromoter(ctx context.Context, set string, interval time.Duration, name string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Promoter stopped", "event", "promoter_stopped", "promoter", name)
			return
		case now := <-ticker.C:
			for {
				n, err := q.promoteDue(ctx, set, now)
				if err != nil {
					if ctx.Err() == nil {
						q.logger.Error("Promote failed", "event", "promote_error", "promoter", name, "error", err)
					}
					break
				}
				if n < promoteBatch {
					break
				}
			}
		}
	}
}

// promoteDue re-enqueues up to promoteBatch members of set whose due time is
// at or before now. A member is claimed by removing it, so concurrent
// promoters never enqueue the same job twice.
func (q *RedisQueue) promoteDue(ctx context.Context, set string, now time.Time) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, set, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}

	for _, raw := range members {
		removed, err := q.rdb.ZRem(ctx, set, raw).Result()
		if err != nil {
			return 0, err
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("Dropping malformed job", "event", "job_malformed", "set", set, "error", err)
			continue
		}
		if !job.Kind.Valid() {
			q.logger.Error("Dropping job for unknown queue", "event", "job_malformed", "job_id", job.ID, "queue", job.Kind)
			continue
		}

		if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: q.streamKey(job.Kind),
			Values: map[string]interface{}{"job": raw},
		}).Err(); err != nil {
			// put it back so the next tick picks it up
			_ = q.rdb.ZAdd(ctx, set, redis.Z{Score: float64(now.UnixMilli()), Member: raw}).Err()
			return 0, err
		}

		_ = q.status.SetStatus(ctx, job.ID, store.StatusQueued, map[string]interface{}{
			"released_at": now.Unix(),
		})
		q.logger.Info("Job re-enqueued", "event", "job_promoted", "set", set, "job_id", job.ID, "queue", job.Kind, "attempts_made", job.AttemptsMade)
	}
	return len(members), nil
}
