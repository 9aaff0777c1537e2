package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESTransport delivers through AWS SES.
type SESTransport struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

// SESConfig holds SES settings. Credentials come from the standard AWS
// chain; FromEmail must be a verified identity.
type SESConfig struct {
	Region    string
	FromEmail string
}

// NewSESTransport creates an SES-backed transport.
func NewSESTransport(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESTransport, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESTransport{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Name implements Transport.
func (t *SESTransport) Name() string { return "ses" }

// Send delivers an email via SES and returns the SES message id.
func (t *SESTransport) Send(ctx context.Context, email *Email) (*SendResult, error) {
	if t.from == "" && email.From == "" {
		return nil, fmt.Errorf("%w: SES sender address missing", ErrNotConfigured)
	}

	from := email.From
	if from == "" {
		from = t.from
	}

	body := &types.Body{
		Html: &types.Content{
			Data:    aws.String(email.HTML),
			Charset: aws.String("UTF-8"),
		},
	}
	if email.Text != "" {
		body.Text = &types.Content{
			Data:    aws.String(email.Text),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(email.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send failed: %w", err)
	}

	t.logger.Info("email sent via SES",
		zap.String("to", email.To),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return &SendResult{ProviderMessageID: aws.ToString(result.MessageId)}, nil
}
