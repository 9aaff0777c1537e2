package breaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/transport"
)

// ProtectedTransport wraps a mail transport with a CircuitBreaker.
// An open circuit surfaces as an ordinary delivery error, so the queue
// processor's retry/backoff path handles it like any provider outage.
type ProtectedTransport struct {
	transport transport.Transport
	breaker   *CircuitBreaker
	logger    *zap.Logger
}

// NewProtectedTransport wraps a transport with circuit breaker protection.
func NewProtectedTransport(t transport.Transport, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedTransport {
	return &ProtectedTransport{
		transport: t,
		breaker:   breaker,
		logger:    logger,
	}
}

// Name delegates to the underlying transport.
func (p *ProtectedTransport) Name() string {
	return p.transport.Name()
}

// Send attempts delivery through the circuit breaker.
func (p *ProtectedTransport) Send(ctx context.Context, email *transport.Email) (*transport.SendResult, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("provider", p.transport.Name()),
			zap.String("to", email.To),
			zap.String("state", p.breaker.GetState().String()),
		)
		return nil, fmt.Errorf("%w: %s provider unavailable", ErrCircuitOpen, p.transport.Name())
	}

	result, err := p.transport.Send(ctx, email)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, err
	}

	p.breaker.RecordSuccess()
	return result, nil
}

// Breaker exposes the underlying circuit breaker for monitoring.
func (p *ProtectedTransport) Breaker() *CircuitBreaker {
	return p.breaker
}
