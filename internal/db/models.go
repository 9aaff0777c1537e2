package db

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Message is a row in the email_queue table. It is created once by an
// enqueue and afterwards mutated only by the queue processor.
type Message struct {
	ID                  uuid.UUID       `json:"id"`
	To                  string          `json:"to"`
	FromEmail           *string         `json:"from_email,omitempty"`
	UserID              *uuid.UUID      `json:"user_id,omitempty"`
	Subject             string          `json:"subject"`
	HTMLBody            string          `json:"html_body"`
	TextBody            *string         `json:"text_body,omitempty"`
	EmailType           EmailType       `json:"email_type"`
	Priority            Priority        `json:"priority"`
	Status              string          `json:"status"`
	ScheduledAt         time.Time       `json:"scheduled_at"`
	NextRetryAt         *time.Time      `json:"next_retry_at,omitempty"`
	RetryCount          int             `json:"retry_count"`
	MaxRetries          int             `json:"max_retries"`
	LastAttemptAt       *time.Time      `json:"last_attempt_at,omitempty"`
	SentAt              *time.Time      `json:"sent_at,omitempty"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	ErrorDetails        json.RawMessage `json:"error_details,omitempty"`
	Provider            *string         `json:"provider,omitempty"`
	ProviderMessageID   *string         `json:"provider_message_id,omitempty"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	RelatedResourceType *string         `json:"related_resource_type,omitempty"`
	RelatedResourceID   *string         `json:"related_resource_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// EmailType classifies a queued message. The set is closed; anything
// the callers cannot express maps to TypeOther.
type EmailType string

const (
	TypeVerification        EmailType = "verification"
	TypeBookingConfirmation EmailType = "booking_confirmation"
	TypeBookingReminder     EmailType = "booking_reminder"
	TypeEventReminder       EmailType = "event_reminder"
	TypePaymentReceipt      EmailType = "payment_receipt"
	TypePaymentFailed       EmailType = "payment_failed"
	TypePartnerApproval     EmailType = "partner_approval"
	TypePartnerRejection    EmailType = "partner_rejection"
	TypeAdminAlert          EmailType = "admin_alert"
	TypeContactForm         EmailType = "contact_form"
	TypeWelcome             EmailType = "welcome"
	TypeNewsletter          EmailType = "newsletter"
	TypePromotional         EmailType = "promotional"
	TypeOther               EmailType = "other"
)

// Valid reports whether t is one of the known email types.
func (t EmailType) Valid() bool {
	switch t {
	case TypeVerification, TypeBookingConfirmation, TypeBookingReminder,
		TypeEventReminder, TypePaymentReceipt, TypePaymentFailed,
		TypePartnerApproval, TypePartnerRejection, TypeAdminAlert,
		TypeContactForm, TypeWelcome, TypeNewsletter, TypePromotional,
		TypeOther:
		return true
	}
	return false
}

// Priority orders eligible-message selection. Urgent and high priority
// messages also request an immediate processing nudge at enqueue time.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Weight maps a priority to its selection rank. Higher sends first.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// SortDue orders messages the way ClaimDue's query does: priority weight
// descending, then scheduled_at ascending. RETURNING does not guarantee
// row order, so claimed batches are re-sorted with this before processing.
func SortDue(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		wi, wj := messages[i].Priority.Weight(), messages[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return messages[i].ScheduledAt.Before(messages[j].ScheduledAt)
	})
}

// UserNotificationPreferences gates which email categories a user
// receives. Read-only from this service's perspective; the marketplace
// backend owns the table. A missing row means "no restriction".
type UserNotificationPreferences struct {
	UserID              uuid.UUID `json:"user_id"`
	EmailEnabled        bool      `json:"email_enabled"`
	BookingConfirmation bool      `json:"booking_confirmation"`
	BookingReminder     bool      `json:"booking_reminder"`
	PromotionsNews      bool      `json:"promotions_news"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewsletterSubscription is keyed by lower-cased email address.
// Absent or inactive blocks newsletter-type mail.
type NewsletterSubscription struct {
	Email        string          `json:"email"`
	IsActive     bool            `json:"is_active"`
	Categories   json.RawMessage `json:"categories,omitempty"`
	SubscribedAt time.Time       `json:"subscribed_at"`
}

// QueueStats holds per-status message counts.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}
