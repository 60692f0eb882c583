package queue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"redis-job-pipeline/internal/store"
)

var fixedNow = time.UnixMilli(1_760_000_000_000)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewRedisQueue(rdb, store.NewStatusStore(rdb), Options{}, discardLogger())
	q.now = func() time.Time { return fixedNow }
	return q
}

func retryEntries(t *testing.T, q *RedisQueue) []redis.Z {
	t.Helper()
	zs, err := q.rdb.ZRangeWithScores(context.Background(), retryKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRANGE: %v", err)
	}
	return zs
}

func decodeMember(t *testing.T, member interface{}) Job {
	t.Helper()
	var job Job
	if err := json.Unmarshal([]byte(member.(string)), &job); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	return job
}

func jobStatus(t *testing.T, q *RedisQueue, id string) map[string]string {
	t.Helper()
	data, err := q.status.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", id, err)
	}
	return data
}

func redisZ(at time.Time, member string) redis.Z {
	return redis.Z{Score: float64(at.UnixMilli()), Member: member}
}
