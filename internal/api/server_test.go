package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"redis-job-pipeline/internal/domain"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/store"
)

type testEnv struct {
	router *gin.Engine
	queue  *queue.RedisQueue
	db     *store.DB
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	status := store.NewStatusStore(rdb)
	q := queue.NewRedisQueue(rdb, status, queue.Options{}, logger)
	return testEnv{router: NewServer(q, status, db, logger).Router(), queue: q, db: db}
}

func (e testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateAndGetJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/jobs", map[string]interface{}{
		"queue":   "webhooks",
		"payload": map[string]interface{}{"webhookId": "wh", "event": "form.submitted", "payload": map[string]int{"id": 1}},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /jobs = %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = env.do(t, http.MethodGet, "/jobs/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /jobs/:id = %d", w.Code)
	}
	var status map[string]string
	decode(t, w, &status)
	if status["status"] != "queued" || status["queue"] != "webhooks" {
		t.Errorf("status = %v", status)
	}
}

func TestCreateJobScheduled(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/jobs", map[string]interface{}{
		"queue":        "file-rename",
		"payload":      map[string]string{"oldPattern": "draft", "newPattern": "final"},
		"scheduled_at": time.Now().Add(time.Hour).Unix(),
		"max_attempts": 3,
		"backoff":      map[string]interface{}{"type": "fixed", "delay_ms": 500},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /jobs = %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	var status map[string]string
	decode(t, env.do(t, http.MethodGet, "/jobs/"+created.ID, nil), &status)
	if status["status"] != "scheduled" {
		t.Errorf("status = %q, want scheduled", status["status"])
	}
}

func TestCreateJobRejects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"unknown queue", map[string]interface{}{"queue": "emails", "payload": map[string]string{}}},
		{"missing payload", map[string]interface{}{"queue": "webhooks"}},
		{"bad backoff", map[string]interface{}{"queue": "webhooks", "payload": map[string]string{}, "backoff": map[string]interface{}{"type": "linear"}}},
		{"negative backoff delay", map[string]interface{}{"queue": "webhooks", "payload": map[string]string{}, "backoff": map[string]interface{}{"type": "fixed", "delay_ms": -5}}},
		{"huge backoff delay", map[string]interface{}{"queue": "webhooks", "payload": map[string]string{}, "backoff": map[string]interface{}{"type": "exponential", "delay_ms": int64(1) << 50}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/jobs", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/jobs/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeadLetterListAndRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := queue.Job{ID: "dead-1", Kind: queue.KindWebhooks, Payload: json.RawMessage(`{}`), AttemptsMade: 5, MaxAttempts: 5}
	if err := env.queue.DeadLetter(ctx, queue.DeadJob{Job: job, Error: "HTTP 500", FailedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/dlq", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /dlq = %d", w.Code)
	}
	var dead []queue.DeadJob
	decode(t, w, &dead)
	if len(dead) != 1 || dead[0].Job.ID != "dead-1" || dead[0].Error != "HTTP 500" {
		t.Fatalf("dead letters = %+v", dead)
	}

	if w := env.do(t, http.MethodPost, "/dlq/"+dead[0].EntryID+"/retry", nil); w.Code != http.StatusAccepted {
		t.Fatalf("retry = %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/dlq/"+dead[0].EntryID+"/retry", nil); w.Code != http.StatusNotFound {
		t.Errorf("second retry = %d, want 404", w.Code)
	}
}

func TestListDeliveries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := 200
	if err := env.db.RecordDelivery(ctx, &domain.WebhookDelivery{
		WebhookID:      "wh",
		Event:          "form.submitted",
		Status:         domain.DeliverySuccess,
		Attempts:       1,
		ResponseStatus: &code,
		LastAttemptAt:  time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/webhooks/wh/deliveries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []domain.WebhookDelivery
	decode(t, w, &got)
	if len(got) != 1 || got[0].Status != domain.DeliverySuccess || *got[0].ResponseStatus != 200 {
		t.Errorf("deliveries = %+v", got)
	}
}
