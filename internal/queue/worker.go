package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker runs the processor on a schedule and on demand. The nudge
// channel has capacity one: back-to-back nudges while a pass is running
// collapse into a single follow-up pass.
type Worker struct {
	processor *Processor
	interval  time.Duration
	nudge     chan struct{}
	logger    *zap.Logger
}

// NewWorker creates a worker that polls at the given interval.
func NewWorker(processor *Processor, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		processor: processor,
		interval:  interval,
		nudge:     make(chan struct{}, 1),
		logger:    logger,
	}
}

// Nudge requests a processing pass soon. Never blocks.
func (w *Worker) Nudge() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}

// Start runs the processing loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("queue worker started", zap.Duration("poll_interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopping")
			return
		case <-ticker.C:
			w.runPass(ctx)
		case <-w.nudge:
			w.runPass(ctx)
		}
	}
}

func (w *Worker) runPass(ctx context.Context) {
	processed, err := w.processor.ProcessBatch(ctx)
	if err != nil {
		w.logger.Error("processing pass failed", zap.Error(err))
		return
	}
	if processed > 0 {
		w.logger.Info("processing pass complete", zap.Int("attempted", processed))
	}
}
