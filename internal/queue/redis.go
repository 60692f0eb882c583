package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"redis-job-pipeline/internal/config"
	"redis-job-pipeline/internal/store"
)

const (
	retryKey     = "jobs:retry"
	scheduledKey = "jobs:scheduled"
	dlqKey       = "jobs:dlq"
)

// NewRedisClient connects to the configured Redis and verifies the
// connection.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// OptionsFromConfig maps the queue settings in cfg onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		StreamPrefix:  cfg.StreamPrefix,
		ConsumerGroup: cfg.ConsumerGroup,
		Defaults:      DefaultOptions(cfg.BackoffBase, cfg.WebhookMaxAttempts, cfg.DefaultMaxAttempts),
	}
}

type Options struct {
	StreamPrefix  string
	ConsumerGroup string
	Defaults      map[Kind]JobOptions
}

// RedisQueue stores each Kind in its own stream read by one consumer group.
// Failed runs wait in the retry set, delayed jobs in the scheduled set, and
// exhausted jobs are appended to the dead-letter stream.
type RedisQueue struct {
	rdb           *redis.Client
	status        *store.StatusStore
	streamPrefix  string
	consumerGroup string
	defaults      map[Kind]JobOptions
	logger        *slog.Logger
	now           func() time.Time
}

func NewRedisQueue(rdb *redis.Client, status *store.StatusStore, opts Options, logger *slog.Logger) *RedisQueue {
	if opts.StreamPrefix == "" {
		opts.StreamPrefix = "jobs:stream"
	}
	if opts.ConsumerGroup == "" {
		opts.ConsumerGroup = "jobs:cg"
	}
	if opts.Defaults == nil {
		opts.Defaults = DefaultOptions(time.Second, 5, 1)
	}
	return &RedisQueue{
		rdb:           rdb,
		status:        status,
		streamPrefix:  opts.StreamPrefix,
		consumerGroup: opts.ConsumerGroup,
		defaults:      opts.Defaults,
		logger:        logger,
		now:           time.Now,
	}
}

func (q *RedisQueue) Client() *redis.Client {
	return q.rdb
}

func (q *RedisQueue) streamKey(kind Kind) string {
	return q.streamPrefix + ":" + string(kind)
}

// EnsureGroups creates every queue stream and its consumer group. Groups
// start at the beginning of the stream so jobs enqueued before the first
// worker came up are not skipped.
func (q *RedisQueue) EnsureGroups(ctx context.Context) error {
	for _, kind := range Kinds() {
		err := q.rdb.XGroupCreateMkStream(ctx, q.streamKey(kind), q.consumerGroup, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group for %s: %w", kind, err)
		}
	}
	return nil
}

// Enqueue stores a job for kind and returns its id. It is safe for
// concurrent use.
func (q *RedisQueue) Enqueue(ctx context.Context, kind Kind, payload interface{}, opts ...EnqueueOption) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}

	cfg := enqueueConfig{opts: q.defaults[kind]}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.opts.Backoff.Validate(); err != nil {
		return "", err
	}

	now := q.now()
	job := Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     raw,
		MaxAttempts: cfg.opts.MaxAttempts,
		Backoff:     cfg.opts.Backoff,
		TimeoutMS:   int(cfg.opts.Timeout.Milliseconds()),
		CreatedAt:   now.UnixMilli(),
	}

	due := now.Add(cfg.delay)
	if cfg.delay > 0 {
		job.ScheduledAt = due.UnixMilli()
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	if cfg.delay > 0 {
		if err := q.status.SetStatus(ctx, job.ID, store.StatusScheduled, map[string]interface{}{
			"queue":        string(kind),
			"created_at":   now.Unix(),
			"scheduled_at": due.Unix(),
		}); err != nil {
			return "", fmt.Errorf("record status: %w", err)
		}
		if err := q.rdb.ZAdd(ctx, scheduledKey, redis.Z{
			Score:  float64(job.ScheduledAt),
			Member: string(jobJSON),
		}).Err(); err != nil {
			return "", fmt.Errorf("schedule job: %w", err)
		}
		return job.ID, nil
	}

	if err := q.status.SetStatus(ctx, job.ID, store.StatusQueued, map[string]interface{}{
		"queue":      string(kind),
		"created_at": now.Unix(),
	}); err != nil {
		return "", fmt.Errorf("record status: %w", err)
	}
	if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamKey(kind),
		Values: map[string]interface{}{"job": string(jobJSON)},
	}).Err(); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return job.ID, nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return raw, nil
	}
}
