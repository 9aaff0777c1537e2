// Package gate decides whether an email should be queued at all, based
// on per-user notification preferences and newsletter subscriptions.
package gate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitreserve/mailroom/internal/db"
)

// Store is the read-only slice of the repository the gate needs.
type Store interface {
	GetUserPreferences(ctx context.Context, userID uuid.UUID) (*db.UserNotificationPreferences, error)
	GetNewsletterSubscription(ctx context.Context, email string) (*db.NewsletterSubscription, error)
}

// Decision is the gate's verdict. Reason is set only on denial and is a
// human-readable explanation suitable for API responses.
type Decision struct {
	Allowed bool
	Reason  string
}

// Denial reasons. These surface to callers, so keep them stable.
const (
	ReasonEmailDisabled         = "Email notifications disabled"
	ReasonBookingConfDisabled   = "Booking confirmation emails disabled"
	ReasonBookingRemDisabled    = "Booking reminder emails disabled"
	ReasonPromotionalNotEnabled = "Promotional emails not enabled"
	ReasonNoActiveSubscription  = "No active newsletter subscription"
)

// Gate is a pure decision function over store reads; it never writes.
type Gate struct {
	store  Store
	logger *zap.Logger
}

// New creates a preference gate backed by the given store.
func New(store Store, logger *zap.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Check decides whether an email of the given type may be queued for the
// recipient. The default is open: no preference record and no special
// category means allow. An error is returned only for store failures,
// never for a denial.
func (g *Gate) Check(ctx context.Context, emailType db.EmailType, to string, userID *uuid.UUID) (Decision, error) {
	var prefs *db.UserNotificationPreferences

	if userID != nil {
		p, err := g.store.GetUserPreferences(ctx, *userID)
		if err != nil {
			return Decision{}, fmt.Errorf("load user preferences: %w", err)
		}
		prefs = p
	}

	if prefs != nil {
		if !prefs.EmailEnabled {
			return deny(ReasonEmailDisabled), nil
		}

		switch emailType {
		case db.TypeBookingConfirmation:
			if !prefs.BookingConfirmation {
				return deny(ReasonBookingConfDisabled), nil
			}
		case db.TypeBookingReminder, db.TypeEventReminder:
			if !prefs.BookingReminder {
				return deny(ReasonBookingRemDisabled), nil
			}
		}
	}

	switch emailType {
	case db.TypeNewsletter:
		sub, err := g.store.GetNewsletterSubscription(ctx, to)
		if err != nil {
			return Decision{}, fmt.Errorf("load newsletter subscription: %w", err)
		}
		if sub == nil || !sub.IsActive {
			return deny(ReasonNoActiveSubscription), nil
		}

	case db.TypePromotional:
		sub, err := g.store.GetNewsletterSubscription(ctx, to)
		if err != nil {
			return Decision{}, fmt.Errorf("load newsletter subscription: %w", err)
		}
		if sub != nil && sub.IsActive {
			break
		}
		// No active subscription: fall back to the user preference.
		if prefs == nil || !prefs.PromotionsNews {
			return deny(ReasonPromotionalNotEnabled), nil
		}
	}

	return Decision{Allowed: true}, nil
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
