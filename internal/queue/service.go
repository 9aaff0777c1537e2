// Package queue implements the durable email queue: gated enqueue, the
// retry/backoff processor, and the processing triggers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/gate"
	"github.com/fitreserve/mailroom/internal/metrics"
)

// DefaultMaxRetries bounds delivery attempts per message.
const DefaultMaxRetries = 3

// ErrInvalidParams marks enqueue requests rejected during validation.
var ErrInvalidParams = errors.New("invalid enqueue params")

// EnqueueStore is the slice of the repository the enqueue path writes to.
type EnqueueStore interface {
	InsertMessage(ctx context.Context, m *db.Message) error
}

// Checker is the preference gate contract.
type Checker interface {
	Check(ctx context.Context, emailType db.EmailType, to string, userID *uuid.UUID) (gate.Decision, error)
}

// EnqueueParams is the enqueue input surface.
type EnqueueParams struct {
	To                  string         `json:"to"`
	Subject             string         `json:"subject"`
	HTMLContent         string         `json:"html_content"`
	TextContent         *string        `json:"text_content,omitempty"`
	EmailType           db.EmailType   `json:"email_type"`
	Priority            db.Priority    `json:"priority,omitempty"`
	UserID              *uuid.UUID     `json:"user_id,omitempty"`
	FromEmail           *string        `json:"from_email,omitempty"`
	ScheduledAt         *time.Time     `json:"scheduled_at,omitempty"`
	MaxRetries          *int           `json:"max_retries,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	RelatedResourceType *string        `json:"related_resource_type,omitempty"`
	RelatedResourceID   *string        `json:"related_resource_id,omitempty"`
}

// EnqueueResult reports the outcome of an enqueue. A preference denial
// is an expected, common outcome: Queued is false, Reason explains why,
// and no error is returned.
type EnqueueResult struct {
	Queued bool      `json:"queued"`
	ID     uuid.UUID `json:"id,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Service owns the enqueue path: validate, gate, insert, nudge.
type Service struct {
	store    EnqueueStore
	gate     Checker
	trigger  Trigger
	provider string
	logger   *zap.Logger
}

// NewService creates the enqueue service. provider is recorded on each
// row for record-keeping; trigger may be NoopTrigger.
func NewService(store EnqueueStore, checker Checker, trigger Trigger, provider string, logger *zap.Logger) *Service {
	if trigger == nil {
		trigger = NoopTrigger{}
	}
	return &Service{
		store:    store,
		gate:     checker,
		trigger:  trigger,
		provider: provider,
		logger:   logger,
	}
}

// Enqueue validates the params, runs the preference gate, and persists
// the message as pending. High and urgent priority request an immediate
// processing nudge; low and normal wait for the scheduled pass.
func (s *Service) Enqueue(ctx context.Context, params EnqueueParams) (*EnqueueResult, error) {
	if err := validateParams(&params); err != nil {
		return nil, err
	}

	decision, err := s.gate.Check(ctx, params.EmailType, params.To, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("preference gate: %w", err)
	}
	if !decision.Allowed {
		s.logger.Info("enqueue denied by preferences",
			zap.String("email_type", string(params.EmailType)),
			zap.String("reason", decision.Reason),
		)
		metrics.RecordEnqueueDenied(decision.Reason)
		return &EnqueueResult{Queued: false, Reason: decision.Reason}, nil
	}

	scheduledAt := time.Now()
	if params.ScheduledAt != nil {
		scheduledAt = *params.ScheduledAt
	}

	maxRetries := DefaultMaxRetries
	if params.MaxRetries != nil && *params.MaxRetries > 0 {
		maxRetries = *params.MaxRetries
	}

	var metadata json.RawMessage
	if len(params.Metadata) > 0 {
		metadata, err = json.Marshal(params.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	nextRetry := scheduledAt
	provider := s.provider

	m := &db.Message{
		ID:                  uuid.New(),
		To:                  params.To,
		FromEmail:           params.FromEmail,
		UserID:              params.UserID,
		Subject:             params.Subject,
		HTMLBody:            params.HTMLContent,
		TextBody:            params.TextContent,
		EmailType:           params.EmailType,
		Priority:            params.Priority,
		Status:              db.StatusPending,
		ScheduledAt:         scheduledAt,
		NextRetryAt:         &nextRetry,
		RetryCount:          0,
		MaxRetries:          maxRetries,
		Provider:            &provider,
		Metadata:            metadata,
		RelatedResourceType: params.RelatedResourceType,
		RelatedResourceID:   params.RelatedResourceID,
	}

	if err := s.store.InsertMessage(ctx, m); err != nil {
		return nil, err
	}

	metrics.RecordEmailEnqueued(string(params.EmailType), string(params.Priority))

	if params.Priority == db.PriorityHigh || params.Priority == db.PriorityUrgent {
		s.trigger.Nudge(ctx)
	}

	return &EnqueueResult{Queued: true, ID: m.ID}, nil
}

func validateParams(params *EnqueueParams) error {
	if params.To == "" {
		return fmt.Errorf("%w: recipient address is required", ErrInvalidParams)
	}
	if params.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	}
	if params.HTMLContent == "" {
		return fmt.Errorf("%w: html content is required", ErrInvalidParams)
	}
	if !params.EmailType.Valid() {
		return fmt.Errorf("%w: unknown email type %q", ErrInvalidParams, params.EmailType)
	}
	if params.Priority == "" {
		params.Priority = db.PriorityNormal
	}
	if !params.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidParams, params.Priority)
	}
	return nil
}
