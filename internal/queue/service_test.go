package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/gate"
)

type fakeEnqueueStore struct {
	inserted  []*db.Message
	insertErr error
}

func (s *fakeEnqueueStore) InsertMessage(ctx context.Context, m *db.Message) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	s.inserted = append(s.inserted, m)
	return nil
}

type fakeChecker struct {
	decision gate.Decision
	err      error
	calls    int
}

func (c *fakeChecker) Check(ctx context.Context, emailType db.EmailType, to string, userID *uuid.UUID) (gate.Decision, error) {
	c.calls++
	if c.err != nil {
		return gate.Decision{}, c.err
	}
	return c.decision, nil
}

type countingTrigger struct {
	nudges int
}

func (t *countingTrigger) Nudge(ctx context.Context) { t.nudges++ }

func allowAll() *fakeChecker {
	return &fakeChecker{decision: gate.Decision{Allowed: true}}
}

func validParams() EnqueueParams {
	return EnqueueParams{
		To:          "member@example.co.th",
		Subject:     "ยืนยันการจอง BK-1001",
		HTMLContent: "<p>body</p>",
		EmailType:   db.TypeBookingConfirmation,
	}
}

func TestEnqueue_PersistsPendingMessage(t *testing.T) {
	store := &fakeEnqueueStore{}
	svc := NewService(store, allowAll(), NoopTrigger{}, "resend", zap.NewNop())

	result, err := svc.Enqueue(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !result.Queued {
		t.Fatalf("expected queued, got reason %q", result.Reason)
	}
	if result.ID == uuid.Nil {
		t.Fatal("expected a message id")
	}

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}

	m := store.inserted[0]
	if m.Status != db.StatusPending {
		t.Errorf("expected status pending, got %s", m.Status)
	}
	if m.RetryCount != 0 {
		t.Errorf("expected retry_count 0, got %d", m.RetryCount)
	}
	if m.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected default max_retries %d, got %d", DefaultMaxRetries, m.MaxRetries)
	}
	if m.Priority != db.PriorityNormal {
		t.Errorf("expected default priority normal, got %s", m.Priority)
	}
	if m.Provider == nil || *m.Provider != "resend" {
		t.Errorf("expected provider recorded")
	}
	if m.NextRetryAt == nil || !m.NextRetryAt.Equal(m.ScheduledAt) {
		t.Errorf("expected next_retry_at pinned to scheduled_at")
	}
}

func TestEnqueue_DenialIsNotAnError(t *testing.T) {
	store := &fakeEnqueueStore{}
	checker := &fakeChecker{decision: gate.Decision{
		Allowed: false,
		Reason:  gate.ReasonPromotionalNotEnabled,
	}}
	svc := NewService(store, checker, NoopTrigger{}, "resend", zap.NewNop())

	params := validParams()
	params.EmailType = db.TypePromotional

	result, err := svc.Enqueue(context.Background(), params)
	if err != nil {
		t.Fatalf("denial must not be an error: %v", err)
	}
	if result.Queued {
		t.Fatal("expected not queued")
	}
	if result.Reason != "Promotional emails not enabled" {
		t.Errorf("unexpected reason %q", result.Reason)
	}
	if len(store.inserted) != 0 {
		t.Fatal("denied message must not be persisted")
	}
}

func TestEnqueue_GateErrorPropagates(t *testing.T) {
	store := &fakeEnqueueStore{}
	checker := &fakeChecker{err: errors.New("db down")}
	svc := NewService(store, checker, NoopTrigger{}, "resend", zap.NewNop())

	if _, err := svc.Enqueue(context.Background(), validParams()); err == nil {
		t.Fatal("expected gate error to propagate")
	}
	if len(store.inserted) != 0 {
		t.Fatal("nothing should be persisted on gate error")
	}
}

func TestEnqueue_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EnqueueParams)
	}{
		{"missing recipient", func(p *EnqueueParams) { p.To = "" }},
		{"missing subject", func(p *EnqueueParams) { p.Subject = "" }},
		{"missing html", func(p *EnqueueParams) { p.HTMLContent = "" }},
		{"unknown email type", func(p *EnqueueParams) { p.EmailType = "carrier_pigeon" }},
		{"unknown priority", func(p *EnqueueParams) { p.Priority = "extreme" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeEnqueueStore{}
			svc := NewService(store, allowAll(), NoopTrigger{}, "resend", zap.NewNop())

			params := validParams()
			tc.mutate(&params)

			_, err := svc.Enqueue(context.Background(), params)
			if !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
			if len(store.inserted) != 0 {
				t.Fatal("invalid params must not be persisted")
			}
		})
	}
}

func TestEnqueue_HighPriorityNudges(t *testing.T) {
	tests := []struct {
		priority db.Priority
		nudges   int
	}{
		{db.PriorityLow, 0},
		{db.PriorityNormal, 0},
		{db.PriorityHigh, 1},
		{db.PriorityUrgent, 1},
	}

	for _, tc := range tests {
		trigger := &countingTrigger{}
		svc := NewService(&fakeEnqueueStore{}, allowAll(), trigger, "resend", zap.NewNop())

		params := validParams()
		params.Priority = tc.priority

		if _, err := svc.Enqueue(context.Background(), params); err != nil {
			t.Fatalf("%s: Enqueue failed: %v", tc.priority, err)
		}
		if trigger.nudges != tc.nudges {
			t.Errorf("%s: expected %d nudges, got %d", tc.priority, tc.nudges, trigger.nudges)
		}
	}
}

func TestEnqueue_HonorsScheduledAtAndOverrides(t *testing.T) {
	store := &fakeEnqueueStore{}
	svc := NewService(store, allowAll(), NoopTrigger{}, "smtp", zap.NewNop())

	future := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	maxRetries := 5
	from := "bookings@fitreserve.co.th"

	params := validParams()
	params.ScheduledAt = &future
	params.MaxRetries = &maxRetries
	params.FromEmail = &from
	params.Metadata = map[string]any{"booking_number": "BK-1001"}

	result, err := svc.Enqueue(context.Background(), params)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !result.Queued {
		t.Fatal("expected queued")
	}

	m := store.inserted[0]
	if !m.ScheduledAt.Equal(future) {
		t.Errorf("expected scheduled_at %v, got %v", future, m.ScheduledAt)
	}
	if m.MaxRetries != 5 {
		t.Errorf("expected max_retries override 5, got %d", m.MaxRetries)
	}
	if m.FromEmail == nil || *m.FromEmail != from {
		t.Errorf("expected from_email override")
	}
	if len(m.Metadata) == 0 {
		t.Error("expected metadata persisted")
	}
}

func TestEnqueue_InsertErrorPropagates(t *testing.T) {
	store := &fakeEnqueueStore{insertErr: errors.New("constraint violation")}
	svc := NewService(store, allowAll(), NoopTrigger{}, "resend", zap.NewNop())

	if _, err := svc.Enqueue(context.Background(), validParams()); err == nil {
		t.Fatal("expected insert error to propagate")
	}
}
