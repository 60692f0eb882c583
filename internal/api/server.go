package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"redis-job-pipeline/internal/domain"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/store"
)

type DeliveryLister interface {
	Deliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error)
}

type Server struct {
	queue      *queue.RedisQueue
	status     *store.StatusStore
	deliveries DeliveryLister
	logger     *slog.Logger
}

func NewServer(q *queue.RedisQueue, status *store.StatusStore, deliveries DeliveryLister, logger *slog.Logger) *Server {
	return &Server{queue: q, status: status, deliveries: deliveries, logger: logger}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/jobs", s.createJob)
	r.GET("/jobs/:id", s.getJob)
	r.GET("/dlq", s.listDeadLetters)
	r.POST("/dlq/:id/retry", s.retryDeadLetter)
	r.GET("/webhooks/:id/deliveries", s.listDeliveries)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"event", "http_request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
