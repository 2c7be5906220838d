package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTP sends mail through a plain SMTP relay. Used by the worker when no
// Mailgun domain is configured.
type SMTP struct {
	dialer *gomail.Dialer
	sender string
}

func NewSMTP(host string, port int, user, password, sender string) *SMTP {
	return &SMTP{
		dialer: gomail.NewDialer(host, port, user, password),
		sender: sender,
	}
}

// Send delivers a plain-text email. The context is accepted for interface
// symmetry with Mailgun; gomail dials synchronously.
func (s *SMTP) Send(_ context.Context, to, subject, text string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.sender)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
