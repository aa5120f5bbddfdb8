// Package notify delivers account lifecycle messages. The credential
// flows hand it a Notification and move on; delivery failures are
// logged by the caller, never surfaced to the end user.
package notify

import "context"

// Kind identifies the message template to deliver.
type Kind string

const (
	KindPasswordReset     Kind = "password_reset"
	KindEmailVerification Kind = "email_verification"
	KindWelcome           Kind = "welcome"
)

// Notification carries everything a transport needs to deliver one
// message. Payload values are template data, e.g. the plaintext token.
type Notification struct {
	Recipient string
	Kind      Kind
	Payload   map[string]string
}

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Noop discards every notification. It is the default so the core flows
// work without a configured transport.
type Noop struct{}

func (Noop) Notify(ctx context.Context, n Notification) error {
	return nil
}

var _ Notifier = Noop{}
