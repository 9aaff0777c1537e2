// Package transport holds the pluggable mail delivery backends. Exactly
// one transport is active per deployment; the choice is configuration,
// not a per-message decision.
package transport

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a transport missing its credentials.
// It flows through the normal retry path so callers can tell "service
// unavailable" apart from "provider rejected the message" without the
// send crashing anything.
var ErrNotConfigured = errors.New("mail transport not configured")

// Email is a fully-prepared outbound message.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// SendResult carries the provider's acknowledgement.
type SendResult struct {
	ProviderMessageID string
}

// Transport delivers one message and reports the provider message id.
type Transport interface {
	// Name identifies the provider for record-keeping on queue rows.
	Name() string

	// Send delivers the email. Configuration problems surface as
	// ErrNotConfigured-wrapped errors, never panics.
	Send(ctx context.Context, email *Email) (*SendResult, error)
}
