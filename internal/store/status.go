package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusScheduled JobStatus = "scheduled"
	StatusActive    JobStatus = "active"
	StatusRetrying  JobStatus = "retrying"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// StatusStore keeps one hash per job at job:<id>.
type StatusStore struct {
	rdb *redis.Client
}

func NewStatusStore(rdb *redis.Client) *StatusStore {
	return &StatusStore{rdb: rdb}
}

func statusKey(jobID string) string {
	return "job:" + jobID
}

func (s *StatusStore) SetStatus(ctx context.Context, jobID string, status JobStatus, fields ...map[string]interface{}) error {
	data := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().Unix(),
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			data[k] = v
		}
	}

	return s.rdb.HSet(ctx, statusKey(jobID), data).Err()
}

// GetJob returns the status hash. It returns ErrNotFound for unknown ids.
func (s *StatusStore) GetJob(ctx context.Context, jobID string) (map[string]string, error) {
	data, err := s.rdb.HGetAll(ctx, statusKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}
