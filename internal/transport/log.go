package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogTransport logs instead of delivering (development/testing).
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport creates a log-only transport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Name implements Transport.
func (t *LogTransport) Name() string { return "log" }

// Send logs the message and fabricates a provider id.
func (t *LogTransport) Send(ctx context.Context, email *Email) (*SendResult, error) {
	id := fmt.Sprintf("log-%s", uuid.New())

	t.logger.Info("email logged (development mode)",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.Int("html_bytes", len(email.HTML)),
		zap.String("message_id", id),
	)

	return &SendResult{ProviderMessageID: id}, nil
}
