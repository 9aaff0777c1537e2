package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPTransport delivers through a standard SMTP submission endpoint.
type SMTPTransport struct {
	dialer *gomail.Dialer
	config SMTPConfig
	logger *zap.Logger
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPTransport creates an SMTP-backed transport. A missing host is
// tolerated here; Send fails closed instead.
func NewSMTPTransport(cfg SMTPConfig, logger *zap.Logger) *SMTPTransport {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPTransport{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		config: cfg,
		logger: logger,
	}
}

// Name implements Transport.
func (t *SMTPTransport) Name() string { return "smtp" }

// Send delivers an email over SMTP. SMTP returns no provider id, so a
// Message-ID header is generated here and reported back instead.
func (t *SMTPTransport) Send(ctx context.Context, email *Email) (*SendResult, error) {
	if t.config.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host missing", ErrNotConfigured)
	}

	from := email.From
	if from == "" {
		from = t.config.From
	}
	if from == "" {
		return nil, fmt.Errorf("%w: SMTP sender address missing", ErrNotConfigured)
	}

	messageID := t.buildMessageID(from)

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", email.HTML)
	if email.Text != "" {
		m.AddAlternative("text/plain", email.Text)
	}

	// Transient connect errors get a short in-attempt retry; anything
	// slower falls through to the queue-level backoff.
	var closer gomail.SendCloser
	dial := func() error {
		sc, err := t.dialer.Dial()
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		closer = sc
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	defer closer.Close()

	if err := gomail.Send(closer, m); err != nil {
		return nil, fmt.Errorf("smtp send failed: %w", err)
	}

	t.logger.Info("email sent via SMTP",
		zap.String("to", email.To),
		zap.String("message_id", messageID),
	)

	return &SendResult{ProviderMessageID: messageID}, nil
}

func (t *SMTPTransport) buildMessageID(from string) string {
	domain := t.config.Host
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimSuffix(from[at+1:], ">")
	}
	return fmt.Sprintf("<%s@%s>", uuid.New(), domain)
}
