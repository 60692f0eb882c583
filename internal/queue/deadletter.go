package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"redis-job-pipeline/internal/store"
)

// DeadJob is a job that will not run again without operator action.
type DeadJob struct {
	EntryID  string    `json:"entry_id,omitempty"`
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetterSink receives terminally failed jobs.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dj DeadJob) error
}

// DeadLetter appends dj to the dead-letter stream.
func (q *RedisQueue) DeadLetter(ctx context.Context, dj DeadJob) error {
	jobJSON, err := json.Marshal(dj.Job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqKey,
		Values: map[string]interface{}{
			"job":       string(jobJSON),
			"error":     dj.Error,
			"failed_at": dj.FailedAt.UnixMilli(),
		},
	}).Err()
}

// DeadLetters lists the dead-letter stream, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]DeadJob, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := q.rdb.XRevRangeN(ctx, dlqKey, "+", "-", limit).Result()
	if err != nil {
		return nil, err
	}

	out := make([]DeadJob, 0, len(entries))
	for _, e := range entries {
		dj, err := decodeDeadLetter(e)
		if err != nil {
			q.logger.Warn("Skipping malformed dead letter", "event", "dlq_malformed", "entry_id", e.ID, "error", err)
			continue
		}
		out = append(out, dj)
	}
	return out, nil
}

// replayDeadLetter appends the job to its stream and only then removes the
// dead-letter entry. A missing entry returns nil, and a failed XADD leaves
// the entry in place.
var replayDeadLetter = redis.NewScript(`
if #redis.call('XRANGE', KEYS[1], ARGV[1], ARGV[1]) == 0 then
	return false
end
local id = redis.call('XADD', KEYS[2], '*', 'job', ARGV[2])
redis.call('XDEL', KEYS[1], ARGV[1])
return id
`)

// RetryDeadLetter moves a dead-letter entry back onto its queue with a fresh
// attempt budget and returns the job id.
func (q *RedisQueue) RetryDeadLetter(ctx context.Context, entryID string) (string, error) {
	entries, err := q.rdb.XRangeN(ctx, dlqKey, entryID, entryID, 1).Result()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", store.ErrNotFound
	}
	dj, err := decodeDeadLetter(entries[0])
	if err != nil {
		return "", err
	}

	job := dj.Job
	job.AttemptsMade = 0
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	// status first, so a worker that picks the job up at once is not
	// overwritten
	if err := q.status.SetStatus(ctx, job.ID, store.StatusQueued, map[string]interface{}{
		"attempts_made": 0,
		"requeued_at":   q.now().Unix(),
	}); err != nil {
		return "", fmt.Errorf("record status: %w", err)
	}

	err = replayDeadLetter.Run(ctx, q.rdb, []string{dlqKey, q.streamKey(job.Kind)}, entryID, string(jobJSON)).Err()
	if errors.Is(err, redis.Nil) {
		// replayed concurrently; the other call owns the status
		return "", store.ErrNotFound
	}
	if err != nil {
		_ = q.status.SetStatus(ctx, job.ID, store.StatusFailed, map[string]interface{}{
			"attempts_made": dj.Job.AttemptsMade,
		})
		return "", fmt.Errorf("requeue job: %w", err)
	}

	q.logger.Info("Dead letter requeued", "event", "dlq_requeued", "job_id", job.ID, "queue", job.Kind, "entry_id", entryID)
	return job.ID, nil
}

func decodeDeadLetter(e redis.XMessage) (DeadJob, error) {
	raw, ok := e.Values["job"].(string)
	if !ok {
		return DeadJob{}, fmt.Errorf("entry %s has no job", e.ID)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return DeadJob{}, fmt.Errorf("decode entry %s: %w", e.ID, err)
	}
	if !job.Kind.Valid() {
		return DeadJob{}, fmt.Errorf("entry %s: %w: %q", e.ID, ErrUnknownKind, job.Kind)
	}

	dj := DeadJob{EntryID: e.ID, Job: job}
	dj.Error, _ = e.Values["error"].(string)
	if v, ok := e.Values["failed_at"].(string); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			dj.FailedAt = time.UnixMilli(ms).UTC()
		}
	}
	return dj, nil
}
