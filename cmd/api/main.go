package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"redis-job-pipeline/internal/api"
	"redis-job-pipeline/internal/config"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := queue.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Error("Redis unavailable", "event", "startup_error", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Database unavailable", "event", "startup_error", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	status := store.NewStatusStore(rdb)
	q := queue.NewRedisQueue(rdb, status, queue.OptionsFromConfig(cfg), logger)
	if err := q.EnsureGroups(ctx); err != nil {
		logger.Error("Creating consumer groups failed", "event", "startup_error", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(q, status, db, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API listening", "event", "api_started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "event", "api_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "event", "api_shutdown_error", "error", err)
	}
	logger.Info("API stopped", "event", "api_stopped")
}
