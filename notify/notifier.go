// Package notify delivers best-effort email notifications: new messages,
// welcome emails and the unread digest.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Notification kinds, used as the metrics "kind" label.
const (
	KindNewMessage = "new_message"
	KindWelcome    = "welcome"
	KindDigest     = "digest"
)

// ErrNotConfigured is returned by a Notifier that has no delivery backend.
var ErrNotConfigured = errors.New("email delivery not configured")

// Email is a rendered message ready for delivery.
type Email struct {
	Kind    string
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers a single email.
type Notifier interface {
	Send(ctx context.Context, email *Email) error
}

// LogNotifier stands in for a real provider when none is configured. It
// logs what would have been sent.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "log_notifier").Logger()}
}

func (n *LogNotifier) Send(_ context.Context, email *Email) error {
	n.log.Warn().
		Str("kind", email.Kind).
		Str("to", email.ToEmail).
		Str("subject", email.Subject).
		Msg("SendGrid API key not configured. Email notification skipped.")
	return ErrNotConfigured
}
