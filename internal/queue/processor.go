package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/metrics"
	"github.com/fitreserve/mailroom/internal/transport"
)

// ProcessorStore is the slice of the repository the processor mutates.
// ClaimDue must be atomic with respect to concurrent processor runs.
type ProcessorStore interface {
	ClaimDue(ctx context.Context, limit int) ([]*db.Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, errMsg string, errDetails json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, errDetails json.RawMessage) error
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
}

// ProcessorConfig tunes a processing pass.
type ProcessorConfig struct {
	BatchSize   int
	BaseDelay   time.Duration // first retry delay, doubles per retry
	SendTimeout time.Duration // per-message transport deadline
	SendRate    rate.Limit    // provider pacing; 0 disables
}

// Processor drives the retry state machine: claim due messages, attempt
// delivery, record the outcome. It is safe to invoke concurrently from
// overlapping triggers because claiming is atomic in the store.
type Processor struct {
	store     ProcessorStore
	transport transport.Transport
	limiter   *rate.Limiter
	config    ProcessorConfig
	logger    *zap.Logger
}

// NewProcessor creates a processor over the given store and transport.
func NewProcessor(store ProcessorStore, t transport.Transport, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.SendRate > 0 {
		limiter = rate.NewLimiter(cfg.SendRate, 1)
	}

	return &Processor{
		store:     store,
		transport: t,
		limiter:   limiter,
		config:    cfg,
		logger:    logger,
	}
}

// ProcessBatch claims one batch of due messages and attempts each in
// priority order. A single message's failure never aborts the batch.
// Returns how many messages were attempted.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := p.store.ClaimDue(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to claim due messages", zap.Error(err))
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	p.logger.Info("processing batch", zap.Int("count", len(messages)))

	for i, m := range messages {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				// Context cancelled mid-batch: hand the unattempted
				// claims back so the next pass can pick them up.
				p.releaseClaims(ctx, messages[i:])
				return i, err
			}
		}
		p.processMessage(ctx, m)
	}

	return len(messages), nil
}

func (p *Processor) releaseClaims(ctx context.Context, messages []*db.Message) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, m := range messages {
		if err := p.store.ReleaseClaim(releaseCtx, m.ID); err != nil {
			p.logger.Error("failed to release claimed message",
				zap.Error(err),
				zap.String("message_id", m.ID.String()),
			)
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, m *db.Message) {
	email := &transport.Email{
		To:      m.To,
		Subject: m.Subject,
		HTML:    m.HTMLBody,
	}
	if m.FromEmail != nil {
		email.From = *m.FromEmail
	}
	if m.TextBody != nil {
		email.Text = *m.TextBody
	}

	// Bounded per-message deadline so a hung provider cannot stall
	// the whole batch; exceeding it is an ordinary transport failure.
	sendCtx, cancel := context.WithTimeout(ctx, p.config.SendTimeout)
	start := time.Now()
	result, err := p.transport.Send(sendCtx, email)
	cancel()

	metrics.ObserveSendDuration(p.transport.Name(), time.Since(start))

	// Outcome writes survive shutdown so an attempted message is never
	// stranded in processing.
	markCtx := context.WithoutCancel(ctx)

	if err != nil {
		p.handleFailure(markCtx, m, err)
		return
	}

	if err := p.store.MarkSent(markCtx, m.ID, result.ProviderMessageID); err != nil {
		p.logger.Error("failed to mark message sent",
			zap.Error(err),
			zap.String("message_id", m.ID.String()),
		)
		return
	}

	metrics.RecordEmailProcessed("sent", p.transport.Name())

	p.logger.Info("email sent",
		zap.String("message_id", m.ID.String()),
		zap.String("email_type", string(m.EmailType)),
		zap.String("provider_message_id", result.ProviderMessageID),
	)
}

func (p *Processor) handleFailure(ctx context.Context, m *db.Message, sendErr error) {
	newCount := m.RetryCount + 1
	errMsg := sendErr.Error()

	details, _ := json.Marshal(map[string]any{
		"provider": p.transport.Name(),
		"attempt":  newCount,
		"error":    errMsg,
	})

	if newCount < m.MaxRetries {
		// Backoff uses the pre-increment count: the first failure
		// waits one base delay.
		delay := Backoff(m.RetryCount, p.config.BaseDelay)
		nextRetry := time.Now().Add(delay)

		p.logger.Warn("send failed, scheduling retry",
			zap.Error(sendErr),
			zap.String("message_id", m.ID.String()),
			zap.Int("retry_count", newCount),
			zap.Duration("retry_in", delay),
		)

		if err := p.store.MarkRetry(ctx, m.ID, newCount, nextRetry, errMsg, details); err != nil {
			p.logger.Error("failed to mark message for retry",
				zap.Error(err),
				zap.String("message_id", m.ID.String()),
			)
		}
		metrics.RecordEmailProcessed("retry", p.transport.Name())
		return
	}

	p.logger.Error("send failed, retries exhausted",
		zap.Error(sendErr),
		zap.String("message_id", m.ID.String()),
		zap.Int("retry_count", newCount),
		zap.Int("max_retries", m.MaxRetries),
	)

	if err := p.store.MarkFailed(ctx, m.ID, newCount, errMsg, details); err != nil {
		p.logger.Error("failed to mark message failed",
			zap.Error(err),
			zap.String("message_id", m.ID.String()),
		)
	}
	metrics.RecordEmailProcessed("failed", p.transport.Name())
}
