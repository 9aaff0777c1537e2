package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrMessageNotFound is returned when a queue message id has no row.
var ErrMessageNotFound = errors.New("message not found")

// ErrNotCancellable is returned when a cancel targets a message that has
// already been sent or is mid-flight.
var ErrNotCancellable = errors.New("message is not in a cancellable state")

// Repository is the durable queue store plus the read-only preference
// lookups the gate needs.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new queue repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const messageColumns = `
	id, recipient, from_email, user_id, subject, html_body, text_body,
	email_type, priority, status, scheduled_at, next_retry_at,
	retry_count, max_retries, last_attempt_at, sent_at,
	error_message, error_details, provider, provider_message_id,
	metadata, related_resource_type, related_resource_id,
	created_at, updated_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.To,
		&m.FromEmail,
		&m.UserID,
		&m.Subject,
		&m.HTMLBody,
		&m.TextBody,
		&m.EmailType,
		&m.Priority,
		&m.Status,
		&m.ScheduledAt,
		&m.NextRetryAt,
		&m.RetryCount,
		&m.MaxRetries,
		&m.LastAttemptAt,
		&m.SentAt,
		&m.ErrorMessage,
		&m.ErrorDetails,
		&m.Provider,
		&m.ProviderMessageID,
		&m.Metadata,
		&m.RelatedResourceType,
		&m.RelatedResourceID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage persists a new queue message. The caller is expected to
// have run the preference gate already; this is a plain insert with
// status=pending, retry_count=0, and next_retry_at pinned to scheduled_at.
func (r *Repository) InsertMessage(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO email_queue (
			id, recipient, from_email, user_id, subject, html_body, text_body,
			email_type, priority, status, scheduled_at, next_retry_at,
			retry_count, max_retries, provider,
			metadata, related_resource_type, related_resource_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		m.ID,
		m.To,
		m.FromEmail,
		m.UserID,
		m.Subject,
		m.HTMLBody,
		m.TextBody,
		m.EmailType,
		m.Priority,
		m.Status,
		m.ScheduledAt,
		m.NextRetryAt,
		m.RetryCount,
		m.MaxRetries,
		m.Provider,
		m.Metadata,
		m.RelatedResourceType,
		m.RelatedResourceID,
	).Scan(&m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to insert queue message",
			zap.Error(err),
			zap.String("message_id", m.ID.String()),
		)
		return fmt.Errorf("insert message: %w", err)
	}

	r.logger.Info("message queued",
		zap.String("message_id", m.ID.String()),
		zap.String("email_type", string(m.EmailType)),
		zap.String("priority", string(m.Priority)),
	)

	return nil
}

// claimDueQuery flips due rows to processing in one statement. The
// eligibility predicate and the SKIP LOCKED claim are load-bearing:
// exhausted or not-yet-due rows must never be selected, and two
// overlapping processor runs must never claim the same row.
const claimDueQuery = `
	UPDATE email_queue
	SET status = 'processing', last_attempt_at = NOW(), updated_at = NOW()
	WHERE id IN (
		SELECT id FROM email_queue
		WHERE status IN ('pending', 'failed')
		  AND retry_count < max_retries
		  AND scheduled_at <= NOW()
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY
			CASE priority
				WHEN 'urgent' THEN 4
				WHEN 'high' THEN 3
				WHEN 'normal' THEN 2
				ELSE 1
			END DESC,
			scheduled_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + messageColumns

// ClaimDue atomically selects up to limit sendable messages and flips
// them to processing.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.db.Pool().Query(ctx, claimDueQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	// UPDATE ... RETURNING loses the subquery order.
	SortDue(messages)

	return messages, nil
}

// markSentQuery only applies to a row mid-attempt: once sent, sent_at
// and provider_message_id can never change.
const markSentQuery = `
	UPDATE email_queue
	SET status = 'sent', sent_at = NOW(), provider_message_id = $1,
	    error_message = NULL, error_details = NULL, next_retry_at = NULL,
	    updated_at = NOW()
	WHERE id = $2 AND status = 'processing'
`

// MarkSent records a successful delivery. Sent is terminal; a message
// already in another terminal state is left untouched.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	result, err := r.db.Pool().Exec(ctx, markSentQuery, providerMessageID, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	return nil
}

// MarkRetry records a failed attempt that still has retries left: the
// row returns to failed with next_retry_at set, and will be re-claimed
// once the backoff window passes.
func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, errMsg string, errDetails json.RawMessage) error {
	query := `
		UPDATE email_queue
		SET status = 'failed', retry_count = $1, next_retry_at = $2,
		    error_message = $3, error_details = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.Pool().Exec(ctx, query, retryCount, nextRetryAt, errMsg, errDetails, id)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	return nil
}

// MarkFailed records retry exhaustion. With retry_count at max_retries
// the row no longer satisfies ClaimDue's predicate, so failed here is
// terminal.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, errDetails json.RawMessage) error {
	query := `
		UPDATE email_queue
		SET status = 'failed', retry_count = $1, next_retry_at = NULL,
		    error_message = $2, error_details = $3, updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, retryCount, errMsg, errDetails, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	return nil
}

// ReleaseClaim returns a claimed message to pending without recording
// an attempt. Used when a processing pass is cut short before the
// message was tried.
func (r *Repository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE email_queue
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	return nil
}

// CancelMessage is the administrative terminal transition. Only messages
// that have not been sent and are not mid-attempt can be cancelled.
func (r *Repository) CancelMessage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE email_queue
		SET status = 'cancelled', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("cancel message: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish missing row from wrong state for the API layer.
		if _, err := r.GetMessage(ctx, id); err != nil {
			return err
		}
		return ErrNotCancellable
	}

	r.logger.Info("message cancelled", zap.String("message_id", id.String()))

	return nil
}

// GetMessage retrieves a queue message by ID
func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM email_queue WHERE id = $1`

	m, err := scanMessage(r.db.Pool().QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if err != nil {
		r.logger.Error("failed to get message",
			zap.Error(err),
			zap.String("message_id", id.String()),
		)
		return nil, fmt.Errorf("query message: %w", err)
	}

	return m, nil
}

// ListMessages returns recent messages, optionally filtered by status,
// newest first.
func (r *Repository) ListMessages(ctx context.Context, status string, limit, offset int) ([]*Message, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + messageColumns + ` FROM email_queue`)

	args := []any{}
	if status != "" {
		sb.WriteString(` WHERE status = $1`)
		args = append(args, status)
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2))
	args = append(args, limit, offset)

	rows, err := r.db.Pool().Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return messages, nil
}

// Stats returns per-status message counts.
func (r *Repository) Stats(ctx context.Context) (*QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM email_queue GROUP BY status`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusSent:
			stats.Sent = count
		case StatusFailed:
			stats.Failed = count
		case StatusCancelled:
			stats.Cancelled = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &stats, nil
}

// GetUserPreferences looks up a user's notification preferences.
// Returns (nil, nil) when no row exists; the gate treats that as
// "no restriction".
func (r *Repository) GetUserPreferences(ctx context.Context, userID uuid.UUID) (*UserNotificationPreferences, error) {
	query := `
		SELECT user_id, email_enabled, booking_confirmation, booking_reminder,
		       promotions_news, updated_at
		FROM user_notification_preferences
		WHERE user_id = $1
	`

	var p UserNotificationPreferences
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.EmailEnabled,
		&p.BookingConfirmation,
		&p.BookingReminder,
		&p.PromotionsNews,
		&p.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user preferences: %w", err)
	}

	return &p, nil
}

// GetNewsletterSubscription looks up a subscription by email address.
// The key is lower-cased here so callers don't have to.
// Returns (nil, nil) when no row exists.
func (r *Repository) GetNewsletterSubscription(ctx context.Context, email string) (*NewsletterSubscription, error) {
	query := `
		SELECT email, is_active, categories, subscribed_at
		FROM newsletter_subscriptions
		WHERE email = $1
	`

	var s NewsletterSubscription
	err := r.db.Pool().QueryRow(ctx, query, strings.ToLower(email)).Scan(
		&s.Email,
		&s.IsActive,
		&s.Categories,
		&s.SubscribedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query newsletter subscription: %w", err)
	}

	return &s, nil
}
