package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"redis-job-pipeline/internal/blob"
	"redis-job-pipeline/internal/config"
	"redis-job-pipeline/internal/export"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/rename"
	"redis-job-pipeline/internal/store"
	"redis-job-pipeline/internal/webhook"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker exited", "event", "worker_error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	rdb, err := queue.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := blob.New(cfg)
	if err != nil {
		return err
	}

	reg := queue.NewRegistry()
	if err := reg.Register(queue.KindFileRename, rename.NewHandler(db, blobs, logger)); err != nil {
		return err
	}
	if err := reg.Register(queue.KindZipExport, export.NewHandler(db, blobs, logger)); err != nil {
		return err
	}
	delivery := webhook.NewHandler(db, db, webhook.NewValidator(cfg.Production()), nil, cfg.WebhookTimeout, logger)
	if err := reg.Register(queue.KindWebhooks, delivery); err != nil {
		return err
	}

	var sinks []queue.DeadLetterSink
	if cfg.AMQPURL != "" {
		mq, err := queue.NewRabbitMQ(cfg.AMQPURL, cfg.AMQPDLQQueue)
		if err != nil {
			return err
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}

	q := queue.NewRedisQueue(rdb, store.NewStatusStore(rdb), queue.OptionsFromConfig(cfg), logger)
	pool, err := queue.NewPool(q, reg, queue.PoolConfig{
		Name:         cfg.WorkerName,
		PollInterval: cfg.PollInterval,
		ClaimIdle:    cfg.ClaimIdle,
		Sinks:        sinks,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("Worker running", "event", "worker_pool_started", "name", cfg.WorkerName, "blob_backend", cfg.BlobBackend)
	return pool.Run(ctx)
}
