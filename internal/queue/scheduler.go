package queue

import (
	"context"
	"time"
)

// RunScheduler releases delayed jobs onto their streams once due.
func (q *RedisQueue) RunScheduler(ctx context.Context, interval time.Duration) {
	q.runPromoter(ctx, scheduledKey, interval, "scheduler")
}
