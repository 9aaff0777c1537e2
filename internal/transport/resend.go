package transport

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
	"go.uber.org/zap"
)

// ResendTransport delivers through the Resend transactional email API.
type ResendTransport struct {
	client *resend.Client
	config ResendConfig
	logger *zap.Logger
}

// ResendConfig holds Resend credentials and the default sender.
type ResendConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewResendTransport creates a Resend-backed transport. A missing API
// key is tolerated here; Send fails closed instead.
func NewResendTransport(cfg ResendConfig, logger *zap.Logger) *ResendTransport {
	return &ResendTransport{
		client: resend.NewClient(cfg.APIKey),
		config: cfg,
		logger: logger,
	}
}

// Name implements Transport.
func (t *ResendTransport) Name() string { return "resend" }

// Send delivers an email via the Resend API.
func (t *ResendTransport) Send(ctx context.Context, email *Email) (*SendResult, error) {
	if t.config.APIKey == "" {
		return nil, fmt.Errorf("%w: Resend API key missing", ErrNotConfigured)
	}

	from := email.From
	if from == "" {
		if t.config.FromName != "" {
			from = fmt.Sprintf("%s <%s>", t.config.FromName, t.config.FromEmail)
		} else {
			from = t.config.FromEmail
		}
	}
	if from == "" {
		return nil, fmt.Errorf("%w: Resend sender address missing", ErrNotConfigured)
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}

	sent, err := t.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resend send failed: %w", err)
	}

	t.logger.Info("email sent via Resend",
		zap.String("to", email.To),
		zap.String("message_id", sent.Id),
	)

	return &SendResult{ProviderMessageID: sent.Id}, nil
}
