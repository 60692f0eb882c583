package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"REDIS_ADDR", "BACKOFF_BASE", "WEBHOOK_MAX_ATTEMPTS", "DEFAULT_MAX_ATTEMPTS", "WEBHOOK_TIMEOUT", "APP_ENV"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.BackoffBase != time.Second {
		t.Errorf("BackoffBase = %v, want 1s", cfg.BackoffBase)
	}
	if cfg.WebhookMaxAttempts != 5 {
		t.Errorf("WebhookMaxAttempts = %d, want 5", cfg.WebhookMaxAttempts)
	}
	if cfg.DefaultMaxAttempts != 1 {
		t.Errorf("DefaultMaxAttempts = %d, want 1", cfg.DefaultMaxAttempts)
	}
	if cfg.WebhookTimeout != 10*time.Second {
		t.Errorf("WebhookTimeout = %v, want 10s", cfg.WebhookTimeout)
	}
	if cfg.Production() {
		t.Error("default environment should not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REDIS_DB", "3")
	t.Setenv("BACKOFF_BASE", "250ms")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()

	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if cfg.BackoffBase != 250*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 250ms", cfg.BackoffBase)
	}
	if !cfg.Production() {
		t.Error("expected production")
	}
	if !cfg.S3UseSSL {
		t.Error("expected S3UseSSL")
	}
	if cfg.WebhookMaxAttempts != 5 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.WebhookMaxAttempts)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
