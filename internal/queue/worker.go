package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"redis-job-pipeline/internal/store"
)

const defaultBlock = 5 * time.Second

// Worker is the single consumer for one queue in this process.
type Worker struct {
	q        *RedisQueue
	kind     Kind
	handler  Handler
	consumer string
	sinks    []DeadLetterSink
	block    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// claimIdle is how long an entry may stay pending before Run reclaims
	// it. Zero disables recovery.
	claimIdle   time.Duration
	lastRecover time.Time
}

func NewWorker(q *RedisQueue, kind Kind, handler Handler, name string, sinks []DeadLetterSink, logger *slog.Logger) *Worker {
	return &Worker{
		q:        q,
		kind:     kind,
		handler:  handler,
		consumer: name + ":" + string(kind),
		sinks:    sinks,
		block:    defaultBlock,
		logger:   logger.With("queue", string(kind)),
		now:      time.Now,
	}
}

func (w *Worker) Kind() Kind {
	return w.kind
}

// Run reads and processes jobs until ctx is cancelled. Between reads it
// reclaims entries left pending longer than claimIdle, including its own.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Worker started", "event", "worker_started", "consumer", w.consumer)
	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker shutting down", "event", "worker_stopped", "consumer", w.consumer)
			return
		}
		w.recoverIfDue(ctx)

		entries, err := w.q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.q.consumerGroup,
			Consumer: w.consumer,
			Streams:  []string{w.q.streamKey(w.kind), ">"},
			Block:    w.block,
			Count:    1,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.logger.Error("XREADGROUP failed", "event", "read_error", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range entries {
			for _, msg := range stream.Messages {
				w.handleMessage(ctx, msg)
			}
		}
	}
}

func (w *Worker) recoverIfDue(ctx context.Context) {
	if w.claimIdle <= 0 {
		return
	}
	now := time.Now()
	if !w.lastRecover.IsZero() && now.Sub(w.lastRecover) < recoverEvery(w.claimIdle) {
		return
	}
	w.lastRecover = now

	n, err := w.Recover(ctx, w.claimIdle)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Recovery failed", "event", "recovery_error", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.Info("Recovery completed", "event", "recovery_completed", "recovered", n)
	}
}

// recoverEvery checks twice per idle window so a stale entry waits at most
// 1.5x claimIdle.
func recoverEvery(claimIdle time.Duration) time.Duration {
	return claimIdle / 2
}

func (w *Worker) handleMessage(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["job"].(string)
	if !ok {
		w.logger.Error("Bad message format", "event", "job_malformed", "message_id", msg.ID)
		w.ack(ctx, msg.ID)
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.logger.Error("Bad job JSON", "event", "job_malformed", "message_id", msg.ID, "error", err)
		w.ack(ctx, msg.ID)
		return
	}

	if w.process(ctx, job) {
		w.ack(ctx, msg.ID)
	}
}

// process runs job once and applies the outcome. It reports whether the
// stream entry may be acknowledged; an unacknowledged entry stays pending
// and is reclaimed by Recover.
func (w *Worker) process(ctx context.Context, job Job) bool {
	// bookkeeping must survive shutdown once the handler has returned
	bctx := context.WithoutCancel(ctx)
	log := w.logger.With("job_id", job.ID, "attempt", job.AttemptsMade+1)

	_ = w.q.status.SetStatus(bctx, job.ID, store.StatusActive, map[string]interface{}{
		"started_at":    w.now().Unix(),
		"attempts_made": job.AttemptsMade,
	})
	log.Info("Job started", "event", "job_started")

	err := w.execute(ctx, &job)
	if err == nil {
		_ = w.q.status.SetStatus(bctx, job.ID, store.StatusCompleted, map[string]interface{}{
			"finished_at":   w.now().Unix(),
			"attempts_made": job.AttemptsMade + 1,
		})
		log.Info("Job completed", "event", "job_completed")
		return true
	}

	if ctx.Err() != nil {
		log.Warn("Job interrupted by shutdown", "event", "job_interrupted", "error", err)
		return false
	}

	return w.fail(bctx, job, err, log)
}

func (w *Worker) execute(ctx context.Context, job *Job) (err error) {
	if job.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler.Execute(ctx, job)
}

func (w *Worker) fail(ctx context.Context, job Job, cause error, log *slog.Logger) bool {
	delay, retry := nextAttempt(job, cause)
	job.AttemptsMade++
	now := w.now()

	if retry {
		due := now.Add(delay)
		jobJSON, err := json.Marshal(job)
		if err != nil {
			log.Error("Failed to encode retry", "event", "retry_error", "error", err)
			return false
		}
		if err := w.q.rdb.ZAdd(ctx, retryKey, redis.Z{
			Score:  float64(due.UnixMilli()),
			Member: string(jobJSON),
		}).Err(); err != nil {
			log.Error("Failed to schedule retry", "event", "retry_error", "error", err)
			return false
		}
		_ = w.q.status.SetStatus(ctx, job.ID, store.StatusRetrying, map[string]interface{}{
			"last_error":      cause.Error(),
			"attempts_made":   job.AttemptsMade,
			"next_attempt_at": due.Unix(),
		})
		log.Warn("Job failed, retry scheduled", "event", "job_retry_scheduled", "error", cause, "delay_ms", delay.Milliseconds())
		return true
	}

	dj := DeadJob{Job: job, Error: cause.Error(), FailedAt: now.UTC()}
	if err := w.q.DeadLetter(ctx, dj); err != nil {
		log.Error("Dead-letter push failed", "event", "dlq_error", "error", err)
		return false
	}
	_ = w.q.status.SetStatus(ctx, job.ID, store.StatusFailed, map[string]interface{}{
		"last_error":    cause.Error(),
		"attempts_made": job.AttemptsMade,
		"finished_at":   now.Unix(),
	})
	for _, sink := range w.sinks {
		if err := sink.DeadLetter(ctx, dj); err != nil {
			log.Error("Dead-letter fan-out failed", "event", "dlq_sink_error", "error", err)
		}
	}
	log.Error("Job failed permanently", "event", "job_dead_lettered", "error", cause, "attempts_made", job.AttemptsMade)
	return true
}

func (w *Worker) ack(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	stream := w.q.streamKey(w.kind)
	_, err := w.q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, stream, w.q.consumerGroup, id)
		p.XDel(ctx, stream, id)
		return nil
	})
	if err != nil {
		w.logger.Error("XACK failed", "event", "ack_error", "message_id", id, "error", err)
	}
}
