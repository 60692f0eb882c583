package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/store"
)

type createJobRequest struct {
	Queue       string          `json:"queue" binding:"required"`
	Payload     json.RawMessage `json:"payload" binding:"required"`
	ScheduledAt int64           `json:"scheduled_at"`
	MaxAttempts *int            `json:"max_attempts"`
	Backoff     *queue.Backoff  `json:"backoff"`
	TimeoutMS   int             `json:"timeout_ms"`
}

func (s *Server) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, err := queue.ParseKind(req.Queue)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []queue.EnqueueOption
	if req.MaxAttempts != nil {
		opts = append(opts, queue.WithMaxAttempts(*req.MaxAttempts))
	}
	if req.Backoff != nil {
		if err := req.Backoff.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts = append(opts, queue.WithBackoff(*req.Backoff))
	}
	if req.TimeoutMS > 0 {
		opts = append(opts, queue.WithTimeout(time.Duration(req.TimeoutMS)*time.Millisecond))
	}
	if delay := time.Until(time.Unix(req.ScheduledAt, 0)); req.ScheduledAt > 0 && delay > 0 {
		opts = append(opts, queue.WithDelay(delay))
	}

	id, err := s.queue.Enqueue(c.Request.Context(), kind, req.Payload, opts...)
	if err != nil {
		s.logger.Error("Enqueue failed", "event", "enqueue_error", "queue", kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "accepted"})
}

func (s *Server) getJob(c *gin.Context) {
	data, err := s.status.GetJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) listDeadLetters(c *gin.Context) {
	jobs, err := s.queue.DeadLetters(c.Request.Context(), int64(limitParam(c)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) retryDeadLetter(c *gin.Context) {
	id, err := s.queue.RetryDeadLetter(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dead letter not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "requeued"})
}

func (s *Server) listDeliveries(c *gin.Context) {
	out, err := s.deliveries.Deliveries(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || n <= 0 || n > 1000 {
		return 100
	}
	return n
}
