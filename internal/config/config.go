package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	StreamPrefix  string
	ConsumerGroup string
	WorkerName    string
	Port          string

	DatabaseURL string

	BlobBackend string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	AMQPURL      string
	AMQPDLQQueue string

	Env                string
	BackoffBase        time.Duration
	WebhookMaxAttempts int
	DefaultMaxAttempts int
	WebhookTimeout     time.Duration
	PollInterval       time.Duration
	ClaimIdle          time.Duration

	LogLevel string
}

func Load() Config {
	return Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		StreamPrefix:  getEnv("STREAM_PREFIX", "jobs:stream"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "jobs:cg"),
		WorkerName:    getEnv("WORKER_NAME", hostname()),
		Port:          getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", "file:jobs.db?_busy_timeout=5000"),

		BlobBackend: getEnv("BLOB_BACKEND", "memory"),
		S3Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "files"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPDLQQueue: getEnv("AMQP_DLQ_QUEUE", "jobs.dlq"),

		Env:                getEnv("APP_ENV", "development"),
		BackoffBase:        getEnvDuration("BACKOFF_BASE", time.Second),
		WebhookMaxAttempts: getEnvInt("WEBHOOK_MAX_ATTEMPTS", 5),
		DefaultMaxAttempts: getEnvInt("DEFAULT_MAX_ATTEMPTS", 1),
		WebhookTimeout:     getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		PollInterval:       getEnvDuration("POLL_INTERVAL", time.Second),
		ClaimIdle:          getEnvDuration("CLAIM_IDLE", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Production reports whether webhook targets must use https.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker"
	}
	return h
}
