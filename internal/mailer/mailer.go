// Package mailer delivers activation emails over SMTP.
package mailer

import (
	"fmt"

	"aquasense/internal/config"
	"aquasense/internal/models"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func New(cfg config.Mailer) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.Username,
	}
}

// SendActivation mails the activation link. The link is the only way an
// account leaves the pending state, so delivery failures must bubble up to
// the consumer for a redelivery.
func (m *Mailer) SendActivation(msg models.EmailMessage) error {
	const op = "mailer.SendActivation"

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetHeader("To", msg.Email)
	mail.SetHeader("Subject", "Activate your account")
	mail.SetBody("text/html", fmt.Sprintf(
		`<p>Welcome! Confirm your email address to activate your account.</p>
<p><a href="%s">Activate account</a></p>
<p>The link expires in 5 minutes. If you did not sign up, ignore this email.</p>`,
		msg.Link,
	))

	if err := m.dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
