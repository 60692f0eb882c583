package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Recover claims stream entries that another consumer read but never
// acknowledged for longer than minIdle, and processes them. It covers
// workers that crashed mid-job.
func (w *Worker) Recover(ctx context.Context, minIdle time.Duration) (int, error) {
	start := "0-0"
	recovered := 0
	for {
		msgs, next, err := w.q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.q.streamKey(w.kind),
			Group:    w.q.consumerGroup,
			Consumer: w.consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			return recovered, fmt.Errorf("xautoclaim %s: %w", w.kind, err)
		}

		for _, msg := range msgs {
			w.logger.Info("Recovered pending job", "event", "job_recovered", "message_id", msg.ID)
			w.handleMessage(ctx, msg)
			recovered++
		}

		if next == "0-0" || next == "" || ctx.Err() != nil {
			return recovered, nil
		}
		start = next
	}
}
