package notify

import (
	"bytes"
	"fmt"
	"io"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/psepar/demandboard/internal/model"
)

// Mailer mirrors in-app notifications as plain-text emails over SMTP.
type Mailer struct {
	cfg model.SMTPConfig
}

// NewMailer returns a Mailer, or nil when SMTP is not configured.
func NewMailer(cfg model.SMTPConfig) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	return &Mailer{cfg: cfg}
}

// Send builds a MIME message and delivers it to the user's address.
// When a redirect address is configured, the message goes there instead
// and the intended recipient is noted in the body.
func (m *Mailer) Send(to model.User, subject, body string) error {
	addr := to.Email
	if m.cfg.Redirect != "" {
		addr = m.cfg.Redirect
		body = fmt.Sprintf("[destinatário original: %s <%s>]\n\n%s", to.Name, to.Email, body)
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: m.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Name: to.Name, Address: addr}})
	h.SetSubject(subject)

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing message: %w", err)
	}

	host := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(host, auth, m.cfg.From, []string{addr}, buf.Bytes()); err != nil {
		return fmt.Errorf("sending mail to %s: %w", addr, err)
	}
	return nil
}
