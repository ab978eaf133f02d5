package service

import (
	"context"
	"fmt"

	"github.com/chirino/portal-service/internal/config"
	"github.com/wneessen/go-mail"
)

// Mailer sends portal mail. The SMTP implementation is the production
// one; tests substitute a recording fake.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, loginURL string, expiry string) error
}

// SMTPMailer sends mail through the configured SMTP relay.
type SMTPMailer struct {
	cfg *config.Config
}

// NewSMTPMailer builds a Mailer from config.
func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendMagicLink(ctx context.Context, email, loginURL string, expiry string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.EmailFrom); err != nil {
		return fmt.Errorf("mailer: invalid from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("mailer: invalid to address: %w", err)
	}
	msg.Subject("Your login link for the Client Portal")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Click this link to log in to your client portal:\n\n%s\n\n"+
			"This link expires in %s.\n\n"+
			"If you didn't request this link, you can safely ignore this email.",
		loginURL, expiry,
	))
	msg.AddAlternativeString(mail.TypeTextHTML, fmt.Sprintf(
		`<p>Click the button below to log in to your client portal:</p>
<p style="margin: 24px 0;">
  <a href="%s" style="background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block;">
    Log in to Portal
  </a>
</p>
<p style="color: #666; font-size: 14px;">This link expires in %s.</p>
<p style="color: #666; font-size: 14px;">If you didn't request this link, you can safely ignore this email.</p>`,
		loginURL, expiry,
	))

	opts := []mail.Option{
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.SMTPUser),
		mail.WithPassword(m.cfg.SMTPPass),
	}
	if m.cfg.SMTPPort == 465 {
		opts = append(opts, mail.WithSSL())
	}
	client, err := mail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("mailer: client setup: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

var _ Mailer = (*SMTPMailer)(nil)
