// Package breaker protects the active mail provider from cascade
// failures: once the provider starts failing consistently, sends fail
// fast instead of burning the processing batch on a dead upstream.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/metrics"
)

// State of the circuit.
//
// State transitions:
//
//	Closed -> Open:      failure count reaches the threshold
//	Open -> HalfOpen:    recovery timeout expires
//	HalfOpen -> Closed:  probe send succeeds
//	HalfOpen -> Open:    probe send fails
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // failing fast
	StateHalfOpen              // single probe allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the circuit is rejecting sends.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config for a CircuitBreaker.
type Config struct {
	// Name identifies the guarded provider ("ses", "resend", "smtp").
	Name string

	// MaxFailures is the consecutive-failure threshold that opens
	// the circuit.
	MaxFailures int

	// RecoveryTimeout is the open-state dwell time before a probe.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		MaxFailures:     5,
		RecoveryTimeout: 30 * time.Second,
	}
}

// CircuitBreaker tracks consecutive provider failures.
type CircuitBreaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger

	state           State
	failureCount    int
	lastStateChange time.Time
	probeInFlight   bool
}

// New creates a CircuitBreaker.
func New(cfg Config, logger *zap.Logger) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		config:          cfg,
		logger:          logger,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a send may proceed right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful send.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.probeInFlight = false
	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure notes a failed send and opens the circuit at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probeInFlight = false

	if cb.state == StateHalfOpen {
		cb.transitionTo(StateOpen)
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.config.MaxFailures {
		cb.transitionTo(StateOpen)
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit back to closed (operator override).
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.probeInFlight = false

	cb.logger.Info("circuit breaker manually reset",
		zap.String("name", cb.config.Name),
	)
}

// transitionTo changes state (must be called with lock held).
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	metrics.SetCircuitState(cb.config.Name, int(newState))

	cb.logger.Info("circuit breaker state transition",
		zap.String("name", cb.config.Name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)
}

// String returns a human-readable snapshot.
func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker[%s] state=%s failures=%d/%d",
		cb.config.Name, cb.state, cb.failureCount, cb.config.MaxFailures)
}
