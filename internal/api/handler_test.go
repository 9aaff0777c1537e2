package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/queue"
	"github.com/fitreserve/mailroom/internal/redis"
)

type mockRepository struct {
	messages map[uuid.UUID]*db.Message

	getErr    error
	listErr   error
	cancelErr error
	statsErr  error

	cancelled []uuid.UUID
}

func newMockRepository() *mockRepository {
	return &mockRepository{messages: make(map[uuid.UUID]*db.Message)}
}

func (m *mockRepository) GetMessage(ctx context.Context, id uuid.UUID) (*db.Message, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, db.ErrMessageNotFound
	}
	return msg, nil
}

func (m *mockRepository) ListMessages(ctx context.Context, status string, limit, offset int) ([]*db.Message, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*db.Message
	for _, msg := range m.messages {
		if status == "" || msg.Status == status {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockRepository) CancelMessage(ctx context.Context, id uuid.UUID) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return db.ErrMessageNotFound
	}
	if msg.Status != db.StatusPending && msg.Status != db.StatusFailed {
		return db.ErrNotCancellable
	}
	msg.Status = db.StatusCancelled
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockRepository) Stats(ctx context.Context) (*db.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	stats := &db.QueueStats{}
	for _, msg := range m.messages {
		switch msg.Status {
		case db.StatusPending:
			stats.Pending++
		case db.StatusProcessing:
			stats.Processing++
		case db.StatusSent:
			stats.Sent++
		case db.StatusFailed:
			stats.Failed++
		case db.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

type mockEnqueueService struct {
	result *queue.EnqueueResult
	err    error
	calls  []queue.EnqueueParams
	last   *queue.EnqueueParams
}

func (m *mockEnqueueService) Enqueue(ctx context.Context, params queue.EnqueueParams) (*queue.EnqueueResult, error) {
	m.calls = append(m.calls, params)
	m.last = &params
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockTrigger struct {
	nudges int
}

func (m *mockTrigger) Nudge(ctx context.Context) { m.nudges++ }

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/emails", h.CreateEmail)
	r.Get("/v1/emails", h.ListEmails)
	r.Get("/v1/emails/{id}", h.GetEmail)
	r.Post("/v1/emails/{id}/cancel", h.CancelEmail)
	r.Post("/v1/queue/process", h.ProcessQueue)
	r.Get("/v1/queue/stats", h.QueueStats)
	return r
}

func enqueueBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"to":           "member@example.co.th",
		"subject":      "ยืนยันการจอง BK-1001",
		"html_content": "<p>body</p>",
		"email_type":   "booking_confirmation",
		"priority":     "high",
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestCreateEmail_Success(t *testing.T) {
	id := uuid.New()
	enq := &mockEnqueueService{result: &queue.EnqueueResult{Queued: true, ID: id}}
	h := NewHandler(zap.NewNop(), newMockRepository(), enq, &mockTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EnqueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.Success || resp.MessageID != id.String() {
		t.Errorf("unexpected response: %+v", resp)
	}

	if enq.last == nil || enq.last.To != "member@example.co.th" {
		t.Error("params not forwarded to enqueue service")
	}
}

func TestCreateEmail_PreferenceDenialIs200(t *testing.T) {
	enq := &mockEnqueueService{result: &queue.EnqueueResult{
		Queued: false,
		Reason: "Promotional emails not enabled",
	}}
	h := NewHandler(zap.NewNop(), newMockRepository(), enq, &mockTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("denial must be 200, got %d", rec.Code)
	}

	var resp EnqueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error != "Promotional emails not enabled" {
		t.Errorf("expected denial reason, got %q", resp.Error)
	}
}

func TestCreateEmail_ValidationErrorIs400(t *testing.T) {
	enq := &mockEnqueueService{err: queue.ErrInvalidParams}
	h := NewHandler(zap.NewNop(), newMockRepository(), enq, &mockTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateEmail_MalformedJSON(t *testing.T) {
	h := NewHandler(zap.NewNop(), newMockRepository(), &mockEnqueueService{}, &mockTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json, got %s", ct)
	}
}

func TestCreateEmail_EnqueueErrorIs500(t *testing.T) {
	enq := &mockEnqueueService{err: errors.New("db down")}
	h := NewHandler(zap.NewNop(), newMockRepository(), enq, &mockTrigger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func newTestIdempotency(t *testing.T) *redis.IdempotencyService {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatal(err)
	}
	client, err := redis.New(context.Background(), redis.Config{Host: mr.Host(), Port: port}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewIdempotencyService(client, zap.NewNop())
}

func TestCreateEmail_IdempotentReplay(t *testing.T) {
	id := uuid.New()
	enq := &mockEnqueueService{result: &queue.EnqueueResult{Queued: true, ID: id}}
	h := NewHandlerWithIdempotency(zap.NewNop(), newMockRepository(), enq, &mockTrigger{}, newTestIdempotency(t))
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	req.Header.Set("Idempotency-Key", "booking-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	req.Header.Set("Idempotency-Key", "booking-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 replay, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Idempotency-Replayed") != "true" {
		t.Error("replay header not set")
	}

	var resp EnqueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.MessageID != id.String() {
		t.Errorf("unexpected replayed response: %+v", resp)
	}

	if len(enq.calls) != 1 {
		t.Errorf("expected 1 enqueue, got %d", len(enq.calls))
	}
}

func TestCreateEmail_DeniedRequestRetryIsNotADuplicate(t *testing.T) {
	enq := &mockEnqueueService{result: &queue.EnqueueResult{
		Queued: false,
		Reason: "Promotional emails not enabled",
	}}
	h := NewHandlerWithIdempotency(zap.NewNop(), newMockRepository(), enq, &mockTrigger{}, newTestIdempotency(t))
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	req.Header.Set("Idempotency-Key", "promo-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// A retry with the same key must replay the denial, not collide
	// with a reserved key.
	req = httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	req.Header.Set("Idempotency-Key", "promo-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 replay, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Idempotency-Replayed") != "true" {
		t.Error("replay header not set")
	}

	var resp EnqueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("expected success=false on replayed denial")
	}
	if resp.Error != "Promotional emails not enabled" {
		t.Errorf("expected denial reason, got %q", resp.Error)
	}
}

func TestCreateEmail_EnqueueErrorReleasesKey(t *testing.T) {
	enq := &mockEnqueueService{err: errors.New("db down")}
	h := NewHandlerWithIdempotency(zap.NewNop(), newMockRepository(), enq, &mockTrigger{}, newTestIdempotency(t))
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	req.Header.Set("Idempotency-Key", "flaky-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	// A retry after the transient failure must run, not 409.
	id := uuid.New()
	enq.err = nil
	enq.result = &queue.EnqueueResult{Queued: true, ID: id}

	req = httptest.NewRequest(http.MethodPost, "/v1/emails", enqueueBody(t))
	req.Header.Set("Idempotency-Key", "flaky-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on retry, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetEmail(t *testing.T) {
	repo := newMockRepository()
	msg := &db.Message{
		ID:        uuid.New(),
		To:        "member@example.co.th",
		Subject:   "s",
		Status:    db.StatusSent,
		EmailType: db.TypeWelcome,
		CreatedAt: time.Now(),
	}
	repo.messages[msg.ID] = msg

	h := NewHandler(zap.NewNop(), repo, &mockEnqueueService{}, &mockTrigger{})
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/emails/"+msg.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got db.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != msg.ID || got.Status != db.StatusSent {
		t.Errorf("unexpected message: %+v", got)
	}

	// Unknown id
	req = httptest.NewRequest(http.MethodGet, "/v1/emails/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}

	// Malformed id
	req = httptest.NewRequest(http.MethodGet, "/v1/emails/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestListEmails_StatusFilter(t *testing.T) {
	repo := newMockRepository()
	for _, status := range []string{db.StatusPending, db.StatusSent, db.StatusSent} {
		m := &db.Message{ID: uuid.New(), Status: status}
		repo.messages[m.ID] = m
	}

	h := NewHandler(zap.NewNop(), repo, &mockEnqueueService{}, &mockTrigger{})
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/emails?status=sent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("expected 2 sent messages, got %d", resp.Count)
	}

	// Invalid status value
	req = httptest.NewRequest(http.MethodGet, "/v1/emails?status=bogus", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid status, got %d", rec.Code)
	}
}

func TestCancelEmail(t *testing.T) {
	repo := newMockRepository()
	pending := &db.Message{ID: uuid.New(), Status: db.StatusPending}
	sent := &db.Message{ID: uuid.New(), Status: db.StatusSent}
	repo.messages[pending.ID] = pending
	repo.messages[sent.ID] = sent

	h := NewHandler(zap.NewNop(), repo, &mockEnqueueService{}, &mockTrigger{})
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/emails/"+pending.ID.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if pending.Status != db.StatusCancelled {
		t.Error("message not cancelled")
	}

	// Already sent: conflict
	req = httptest.NewRequest(http.MethodPost, "/v1/emails/"+sent.ID.String()+"/cancel", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for sent message, got %d", rec.Code)
	}

	// Unknown id
	req = httptest.NewRequest(http.MethodPost, "/v1/emails/"+uuid.NewString()+"/cancel", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestProcessQueue_NudgesAndReturns202(t *testing.T) {
	trigger := &mockTrigger{}
	h := NewHandler(zap.NewNop(), newMockRepository(), &mockEnqueueService{}, trigger)

	req := httptest.NewRequest(http.MethodPost, "/v1/queue/process", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if trigger.nudges != 1 {
		t.Errorf("expected 1 nudge, got %d", trigger.nudges)
	}
}

func queueDepthGauge(t *testing.T, status string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "mailroom_queue_depth" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("no mailroom_queue_depth sample for status %q", status)
	return 0
}

func TestQueueStats(t *testing.T) {
	repo := newMockRepository()
	for i := 0; i < 3; i++ {
		m := &db.Message{ID: uuid.New(), Status: db.StatusPending}
		repo.messages[m.ID] = m
	}
	for _, status := range []string{db.StatusFailed, db.StatusSent, db.StatusSent, db.StatusCancelled} {
		m := &db.Message{ID: uuid.New(), Status: status}
		repo.messages[m.ID] = m
	}

	h := NewHandler(zap.NewNop(), repo, &mockEnqueueService{}, &mockTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/queue/stats", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats db.QueueStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 3 || stats.Failed != 1 || stats.Sent != 2 || stats.Cancelled != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// The depth gauge tracks every status, not just the active ones.
	for status, want := range map[string]float64{
		db.StatusPending:    3,
		db.StatusProcessing: 0,
		db.StatusSent:       2,
		db.StatusFailed:     1,
		db.StatusCancelled:  1,
	} {
		if got := queueDepthGauge(t, status); got != want {
			t.Errorf("queue depth %s: expected %v, got %v", status, want, got)
		}
	}
}

func TestQueueStats_RepoError(t *testing.T) {
	repo := newMockRepository()
	repo.statsErr = errors.New("db down")

	h := NewHandler(zap.NewNop(), repo, &mockEnqueueService{}, &mockTrigger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/queue/stats", nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
