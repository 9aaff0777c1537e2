// Package sender exposes typed helpers that render a template and enqueue
// the resulting email with the right subject, priority, and metadata.
package sender

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/queue"
	"github.com/fitreserve/mailroom/internal/template"
)

// Enqueuer is the queue surface the mailer needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, params queue.EnqueueParams) (*queue.EnqueueResult, error)
}

// Mailer builds and enqueues the transactional emails FitReserve sends.
type Mailer struct {
	queue Enqueuer
}

// New creates a Mailer on top of the queue service.
func New(q Enqueuer) *Mailer {
	return &Mailer{queue: q}
}

// render resolves the email type's renderer through the dispatch table.
func render(emailType db.EmailType, data any) (string, error) {
	r, ok := template.ForType(emailType)
	if !ok {
		return "", fmt.Errorf("no template for email type %s", emailType)
	}
	return r(data)
}

func (m *Mailer) enqueue(ctx context.Context, to string, userID *uuid.UUID, subject, html string, emailType db.EmailType, priority db.Priority, meta map[string]any, resourceType, resourceID string) (*queue.EnqueueResult, error) {
	params := queue.EnqueueParams{
		To:          to,
		Subject:     subject,
		HTMLContent: html,
		EmailType:   emailType,
		Priority:    priority,
		UserID:      userID,
	}
	if resourceType != "" {
		params.RelatedResourceType = &resourceType
	}
	if resourceID != "" {
		params.RelatedResourceID = &resourceID
	}
	if meta != nil {
		params.Metadata = meta
	}
	return m.queue.Enqueue(ctx, params)
}

// SendBookingConfirmation queues the confirmation sent after a successful booking.
func (m *Mailer) SendBookingConfirmation(ctx context.Context, to string, userID *uuid.UUID, data template.BookingConfirmationData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypeBookingConfirmation, data)
	if err != nil {
		return nil, fmt.Errorf("render booking confirmation: %w", err)
	}
	subject := fmt.Sprintf("ยืนยันการจอง %s - FitReserve", data.BookingNumber)
	return m.enqueue(ctx, to, userID, subject, html, db.TypeBookingConfirmation, db.PriorityHigh,
		map[string]any{"booking_number": data.BookingNumber, "gym_name": data.GymName},
		"booking", data.BookingNumber)
}

// SendBookingReminder queues the reminder sent before a booked session.
func (m *Mailer) SendBookingReminder(ctx context.Context, to string, userID *uuid.UUID, data template.BookingReminderData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypeBookingReminder, data)
	if err != nil {
		return nil, fmt.Errorf("render booking reminder: %w", err)
	}
	subject := fmt.Sprintf("เตือนการจองของคุณที่ %s - FitReserve", data.GymName)
	return m.enqueue(ctx, to, userID, subject, html, db.TypeBookingReminder, db.PriorityNormal,
		map[string]any{"booking_number": data.BookingNumber},
		"booking", data.BookingNumber)
}

// SendPaymentReceipt queues the receipt after a payment succeeds.
func (m *Mailer) SendPaymentReceipt(ctx context.Context, to string, userID *uuid.UUID, data template.PaymentReceiptData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypePaymentReceipt, data)
	if err != nil {
		return nil, fmt.Errorf("render payment receipt: %w", err)
	}
	subject := fmt.Sprintf("ใบเสร็จรับเงิน %s - FitReserve", data.ReceiptNumber)
	return m.enqueue(ctx, to, userID, subject, html, db.TypePaymentReceipt, db.PriorityHigh,
		map[string]any{"receipt_number": data.ReceiptNumber},
		"payment", data.ReceiptNumber)
}

// SendPaymentFailed queues the notice after a payment attempt fails.
func (m *Mailer) SendPaymentFailed(ctx context.Context, to string, userID *uuid.UUID, data template.PaymentFailedData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypePaymentFailed, data)
	if err != nil {
		return nil, fmt.Errorf("render payment failed: %w", err)
	}
	subject := "การชำระเงินไม่สำเร็จ - FitReserve"
	return m.enqueue(ctx, to, userID, subject, html, db.TypePaymentFailed, db.PriorityUrgent,
		map[string]any{"booking_number": data.BookingNumber},
		"booking", data.BookingNumber)
}

// SendPartnerApproval queues the approval notice for a gym partner application.
func (m *Mailer) SendPartnerApproval(ctx context.Context, to string, userID *uuid.UUID, data template.PartnerApplicationData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypePartnerApproval, data)
	if err != nil {
		return nil, fmt.Errorf("render partner approval: %w", err)
	}
	subject := fmt.Sprintf("ยินดีด้วย! %s ได้รับการอนุมัติ - FitReserve", data.GymName)
	return m.enqueue(ctx, to, userID, subject, html, db.TypePartnerApproval, db.PriorityHigh,
		map[string]any{"gym_name": data.GymName},
		"partner", data.GymName)
}

// SendPartnerRejection queues the rejection notice for a gym partner application.
func (m *Mailer) SendPartnerRejection(ctx context.Context, to string, userID *uuid.UUID, data template.PartnerApplicationData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypePartnerRejection, data)
	if err != nil {
		return nil, fmt.Errorf("render partner rejection: %w", err)
	}
	subject := "ผลการพิจารณาใบสมัครพาร์ทเนอร์ - FitReserve"
	return m.enqueue(ctx, to, userID, subject, html, db.TypePartnerRejection, db.PriorityNormal,
		map[string]any{"gym_name": data.GymName},
		"partner", data.GymName)
}

// SendAdminAlert queues an operational alert aimed at the admin inbox.
// Alerts bypass user preference checks since the recipient is staff.
func (m *Mailer) SendAdminAlert(ctx context.Context, to string, data template.AdminAlertData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypeAdminAlert, data)
	if err != nil {
		return nil, fmt.Errorf("render admin alert: %w", err)
	}
	subject := fmt.Sprintf("[%s] %s - FitReserve Admin", data.Severity, data.Title)
	return m.enqueue(ctx, to, nil, subject, html, db.TypeAdminAlert, db.PriorityUrgent,
		map[string]any{"severity": data.Severity},
		"", "")
}

// SendVerificationCode queues an email verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, to string, userID *uuid.UUID, data template.VerificationData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypeVerification, data)
	if err != nil {
		return nil, fmt.Errorf("render verification: %w", err)
	}
	subject := "รหัสยืนยันอีเมลของคุณ - FitReserve"
	return m.enqueue(ctx, to, userID, subject, html, db.TypeVerification, db.PriorityUrgent, nil, "", "")
}

// SendWelcome queues the welcome email after signup.
func (m *Mailer) SendWelcome(ctx context.Context, to string, userID *uuid.UUID, data template.WelcomeData) (*queue.EnqueueResult, error) {
	html, err := render(db.TypeWelcome, data)
	if err != nil {
		return nil, fmt.Errorf("render welcome: %w", err)
	}
	subject := "ยินดีต้อนรับสู่ FitReserve"
	return m.enqueue(ctx, to, userID, subject, html, db.TypeWelcome, db.PriorityNormal, nil, "", "")
}
