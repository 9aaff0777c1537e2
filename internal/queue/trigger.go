package queue

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Trigger asks the processor to run soon. Nudging is fire-and-forget:
// a failed nudge is logged and swallowed, never surfaced to the enqueue
// that requested it, because the scheduled processing pass remains the
// correctness backstop.
type Trigger interface {
	Nudge(ctx context.Context)
}

// WorkerTrigger nudges an in-process worker through its wake channel.
type WorkerTrigger struct {
	worker *Worker
}

// NewWorkerTrigger creates a trigger bound to an in-process worker.
func NewWorkerTrigger(w *Worker) *WorkerTrigger {
	return &WorkerTrigger{worker: w}
}

// Nudge implements Trigger.
func (t *WorkerTrigger) Nudge(ctx context.Context) {
	t.worker.Nudge()
}

// HTTPTrigger fires a non-blocking POST at a processing endpoint. Used
// when the processor runs in a separate deployment (scheduled function,
// second instance) rather than in this process.
type HTTPTrigger struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPTrigger creates a trigger that POSTs to the given URL.
func NewHTTPTrigger(url string, logger *zap.Logger) *HTTPTrigger {
	return &HTTPTrigger{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Nudge implements Trigger. The request runs on its own goroutine with
// its own deadline so the enqueue request that triggered it returns
// immediately.
func (t *HTTPTrigger) Nudge(ctx context.Context) {
	go func() {
		reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.url, nil)
		if err != nil {
			t.logger.Warn("failed to build processing nudge", zap.Error(err))
			return
		}

		resp, err := t.client.Do(req)
		if err != nil {
			t.logger.Warn("processing nudge failed", zap.Error(err), zap.String("url", t.url))
			return
		}
		resp.Body.Close()
	}()
}

// NoopTrigger leaves everything to the scheduled processing pass.
type NoopTrigger struct{}

// Nudge implements Trigger.
func (NoopTrigger) Nudge(ctx context.Context) {}
