package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the transport settings for the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	// BaseURL is the public URL links in messages point back to.
	BaseURL string
}

// SMTPNotifier delivers notifications as plain-text email via go-mail.
type SMTPNotifier struct {
	cfg SMTPConfig
}

var _ Notifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &SMTPNotifier{cfg: cfg}, nil
}

func (s *SMTPNotifier) Notify(ctx context.Context, n Notification) error {
	subject, body, err := s.render(n)
	if err != nil {
		return err
	}

	return s.send(n.Recipient, subject, body)
}

func (s *SMTPNotifier) render(n Notification) (string, string, error) {
	token := n.Payload["token"]

	switch n.Kind {
	case KindPasswordReset:
		return "Reset your password",
			fmt.Sprintf("Use the link below to choose a new password:\n\n%s/auth/password-reset?token=%s\n\nIf you did not request this, you can ignore this message.", s.cfg.BaseURL, token),
			nil
	case KindEmailVerification:
		return "Verify your email address",
			fmt.Sprintf("Confirm your email address by following this link:\n\n%s/auth/verify?token=%s", s.cfg.BaseURL, token),
			nil
	case KindWelcome:
		return "Welcome",
			"Your account is ready. You can sign in now.",
			nil
	}

	return "", "", fmt.Errorf("unknown notification kind: %s", n.Kind)
}

func (s *SMTPNotifier) send(to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Port 465 expects implicit TLS, everything else STARTTLS.
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
