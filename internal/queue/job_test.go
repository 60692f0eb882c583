package queue

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	exp := Backoff{Type: BackoffExponential, DelayMS: 1000}
	tests := []struct {
		name         string
		backoff      Backoff
		attemptsMade int
		want         time.Duration
	}{
		{"first retry", exp, 0, time.Second},
		{"second retry", exp, 1, 2 * time.Second},
		{"third retry", exp, 2, 4 * time.Second},
		{"fifth retry", exp, 4, 16 * time.Second},
		{"fixed ignores attempts", Backoff{Type: BackoffFixed, DelayMS: 500}, 3, 500 * time.Millisecond},
		{"exponent is capped", exp, 1000, time.Second * (1 << maxBackoffShift)},
		{"largest base saturates", Backoff{Type: BackoffExponential, DelayMS: MaxBackoffDelay.Milliseconds()}, maxBackoffShift, time.Duration(math.MaxInt64)},
		{"product saturates", Backoff{Type: BackoffExponential, DelayMS: 1 << 50}, maxBackoffShift, time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.backoff.Delay(tt.attemptsMade); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attemptsMade, got, tt.want)
			}
		})
	}
}

func TestBackoffValidate(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		ok      bool
	}{
		{"exponential", Backoff{Type: BackoffExponential, DelayMS: 1000}, true},
		{"fixed zero", Backoff{Type: BackoffFixed}, true},
		{"ceiling", Backoff{Type: BackoffFixed, DelayMS: MaxBackoffDelay.Milliseconds()}, true},
		{"unknown type", Backoff{Type: "linear", DelayMS: 1000}, false},
		{"negative", Backoff{Type: BackoffExponential, DelayMS: -1}, false},
		{"above ceiling", Backoff{Type: BackoffExponential, DelayMS: MaxBackoffDelay.Milliseconds() + 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.backoff.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidBackoff) {
				t.Errorf("expected ErrInvalidBackoff, got %v", err)
			}
		})
	}
}

func TestNextAttempt(t *testing.T) {
	backoff := Backoff{Type: BackoffExponential, DelayMS: 1000}
	boom := errors.New("boom")

	tests := []struct {
		name      string
		job       Job
		err       error
		wantRetry bool
		wantDelay time.Duration
	}{
		{"first failure of five", Job{AttemptsMade: 0, MaxAttempts: 5, Backoff: backoff}, boom, true, time.Second},
		{"fourth failure of five", Job{AttemptsMade: 3, MaxAttempts: 5, Backoff: backoff}, boom, true, 8 * time.Second},
		{"fifth failure of five", Job{AttemptsMade: 4, MaxAttempts: 5, Backoff: backoff}, boom, false, 0},
		{"single attempt", Job{AttemptsMade: 0, MaxAttempts: 1, Backoff: backoff}, boom, false, 0},
		{"unlimited", Job{AttemptsMade: 50, MaxAttempts: 0, Backoff: backoff}, boom, true, time.Second * (1 << maxBackoffShift)},
		{"permanent", Job{AttemptsMade: 0, MaxAttempts: 5, Backoff: backoff}, Permanent(boom), false, 0},
		{"wrapped permanent", Job{AttemptsMade: 0, MaxAttempts: 5, Backoff: backoff}, fmt.Errorf("ctx: %w", Permanent(boom)), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := nextAttempt(tt.job, tt.err)
			if retry != tt.wantRetry || delay != tt.wantDelay {
				t.Errorf("nextAttempt = (%v, %v), want (%v, %v)", delay, retry, tt.wantDelay, tt.wantRetry)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("emails"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestJobDecodeIsPermanent(t *testing.T) {
	job := Job{Kind: KindFileRename, Payload: []byte(`{"oldPattern": 3}`)}
	var p struct {
		OldPattern string `json:"oldPattern"`
	}
	err := job.Decode(&p)
	if err == nil || !IsPermanent(err) {
		t.Fatalf("expected permanent decode error, got %v", err)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(time.Second, 5, 1)
	if opts[KindWebhooks].MaxAttempts != 5 {
		t.Errorf("webhooks attempts = %d", opts[KindWebhooks].MaxAttempts)
	}
	if opts[KindFileRename].MaxAttempts != 1 || opts[KindZipExport].MaxAttempts != 1 {
		t.Error("other queues should default to a single attempt")
	}
	if b := opts[KindWebhooks].Backoff; b.Type != BackoffExponential || b.DelayMS != 1000 {
		t.Errorf("backoff = %+v", b)
	}
}
