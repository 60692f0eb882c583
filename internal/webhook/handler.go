package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/datatypes"

	"redis-job-pipeline/internal/domain"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/store"
)

const (
	DefaultTimeout = 10 * time.Second
	ledgerTimeout  = 5 * time.Second
	maxDrain       = 64 << 10
)

// Payload is the body of a job on the webhooks queue.
type Payload struct {
	WebhookID string          `json:"webhookId"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

type WebhookStore interface {
	Webhook(ctx context.Context, id string) (*domain.Webhook, error)
}

type Ledger interface {
	RecordDelivery(ctx context.Context, rec *domain.WebhookDelivery) error
}

type URLValidator interface {
	Validate(ctx context.Context, raw string) error
}

// DeliveryError reports a non-2xx response.
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook responded with HTTP %d", e.StatusCode)
}

// Handler delivers one signed POST per job and records every attempt in the
// ledger.
type Handler struct {
	webhooks  WebhookStore
	ledger    Ledger
	validator URLValidator
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(webhooks WebhookStore, ledger Ledger, validator URLValidator, client *http.Client, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = NewHTTPClient(timeout)
	}
	return &Handler{
		webhooks:  webhooks,
		ledger:    ledger,
		validator: validator,
		client:    client,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.WebhookID == "" {
		return queue.Permanent(errors.New("webhookId is required"))
	}
	log := h.logger.With("job_id", job.ID, "webhook_id", p.WebhookID, "event_name", p.Event)

	hook, err := h.webhooks.Webhook(ctx, p.WebhookID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("Webhook not found, skipping", "event", "webhook_skipped", "reason", "not_found")
		return nil
	}
	if err != nil {
		return err
	}
	if !hook.IsActive {
		log.Info("Webhook inactive, skipping", "event", "webhook_skipped", "reason", "inactive")
		return nil
	}

	if err := h.validator.Validate(ctx, hook.URL); err != nil {
		if errors.Is(err, ErrURLNotAllowed) {
			return queue.Permanent(err)
		}
		return err
	}

	body, err := Canonicalize(p.Payload)
	if err != nil {
		return queue.Permanent(err)
	}

	code, sendErr := h.send(ctx, hook, p.Event, body)
	if sendErr != nil && errors.Is(ctx.Err(), context.Canceled) {
		// shutdown: the entry stays pending and the replay records this
		// attempt number
		log.Warn("Delivery interrupted", "event", "webhook_interrupted", "attempt", job.AttemptsMade+1, "error", sendErr)
		return sendErr
	}

	rec := &domain.WebhookDelivery{
		WebhookID:      hook.ID,
		Event:          p.Event,
		Payload:        datatypes.JSON(body),
		Status:         domain.DeliverySuccess,
		Attempts:       job.AttemptsMade + 1,
		ResponseStatus: code,
		LastAttemptAt:  h.now().UTC(),
	}
	if sendErr != nil {
		rec.Status = domain.DeliveryFailed
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := h.ledger.RecordDelivery(lctx, rec); err != nil {
		// A retry would deliver a second time; only retry when the
		// delivery itself failed.
		log.Error("Failed to record delivery", "event", "ledger_error", "error", err)
	}

	if sendErr != nil {
		log.Warn("Webhook delivery failed", "event", "webhook_failed", "webhook", hook, "attempt", rec.Attempts, "error", sendErr)
		return sendErr
	}
	log.Info("Webhook delivered", "event", "webhook_delivered", "webhook", hook, "attempt", rec.Attempts, "status_code", *code)
	return nil
}

// send posts body and returns the response status, nil when no response
// arrived.
func (h *Handler) send(ctx context.Context, hook *domain.Webhook, event string, body []byte) (*int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(hook.Secret, body))
	req.Header.Set(EventHeader, event)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	code := resp.StatusCode
	if code < 200 || code >= 300 {
		return &code, &DeliveryError{StatusCode: code}
	}
	return &code, nil
}
