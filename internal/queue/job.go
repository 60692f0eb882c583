package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind names a queue. Every Kind has its own stream and exactly one handler.
type Kind string

const (
	KindFileRename Kind = "file-rename"
	KindZipExport  Kind = "zip-export"
	KindWebhooks   Kind = "webhooks"
)

var ErrUnknownKind = errors.New("unknown queue")

func Kinds() []Kind {
	return []Kind{KindFileRename, KindZipExport, KindWebhooks}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindFileRename, KindZipExport, KindWebhooks:
		return true
	}
	return false
}

type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// maxBackoffShift bounds 2^n so long-running unlimited jobs cannot overflow.
const maxBackoffShift = 20

// MaxBackoffDelay is the largest accepted base delay.
const MaxBackoffDelay = 24 * time.Hour

var ErrInvalidBackoff = errors.New("invalid backoff")

type Backoff struct {
	Type    BackoffType `json:"type"`
	DelayMS int64       `json:"delay_ms"`
}

// Delay is the wait before the run following attemptsMade completed runs:
// base * 2^attemptsMade for exponential backoff, base for fixed.
func (b Backoff) Delay(attemptsMade int) time.Duration {
	if b.DelayMS > int64(math.MaxInt64/time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	base := time.Duration(b.DelayMS) * time.Millisecond
	if b.Type == BackoffFixed || attemptsMade <= 0 {
		return base
	}
	if attemptsMade > maxBackoffShift {
		attemptsMade = maxBackoffShift
	}
	if base > time.Duration(math.MaxInt64>>attemptsMade) {
		return time.Duration(math.MaxInt64)
	}
	return base * (1 << attemptsMade)
}

func (b Backoff) Validate() error {
	if b.Type != BackoffExponential && b.Type != BackoffFixed {
		return fmt.Errorf("%w: type must be exponential or fixed", ErrInvalidBackoff)
	}
	if b.DelayMS < 0 || b.DelayMS > MaxBackoffDelay.Milliseconds() {
		return fmt.Errorf("%w: delay_ms must be between 0 and %d", ErrInvalidBackoff, MaxBackoffDelay.Milliseconds())
	}
	return nil
}

type Job struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"queue"`
	Payload      json.RawMessage `json:"payload"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Backoff      Backoff         `json:"backoff"`
	TimeoutMS    int             `json:"timeout_ms,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	ScheduledAt  int64           `json:"scheduled_at,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Kind, err))
	}
	return nil
}

// JobOptions are the per-kind defaults applied at enqueue time.
type JobOptions struct {
	MaxAttempts int
	Backoff     Backoff
	Timeout     time.Duration
}

// DefaultOptions gives webhook deliveries webhookAttempts runs and every
// other queue otherAttempts, all on exponential backoff from base.
func DefaultOptions(base time.Duration, webhookAttempts, otherAttempts int) map[Kind]JobOptions {
	backoff := Backoff{Type: BackoffExponential, DelayMS: base.Milliseconds()}
	return map[Kind]JobOptions{
		KindFileRename: {MaxAttempts: otherAttempts, Backoff: backoff},
		KindZipExport:  {MaxAttempts: otherAttempts, Backoff: backoff},
		KindWebhooks:   {MaxAttempts: webhookAttempts, Backoff: backoff},
	}
}

type enqueueConfig struct {
	opts  JobOptions
	delay time.Duration
}

type EnqueueOption func(*enqueueConfig)

// WithMaxAttempts overrides the attempt ceiling. Zero or less means unlimited.
func WithMaxAttempts(n int) EnqueueOption {
	return func(c *enqueueConfig) { c.opts.MaxAttempts = n }
}

func WithBackoff(b Backoff) EnqueueOption {
	return func(c *enqueueConfig) { c.opts.Backoff = b }
}

// WithDelay holds the job in the scheduled set for d before it becomes visible.
func WithDelay(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) { c.delay = d }
}

// WithTimeout bounds each run of the handler.
func WithTimeout(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) { c.opts.Timeout = d }
}
