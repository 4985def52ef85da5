// Package notifier delivers signal alerts to subscribed recipients over SMTP,
// honoring per-recipient throttles and the daily email quota.
package notifier

import (
	"fmt"
	"net/smtp"

	"github.com/google/uuid"
)

// DispatchError reports a failed delivery to one recipient.
type DispatchError struct {
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Mailer sends HTML mail through a single SMTP relay.
type Mailer struct {
	host string
	port int
	user string
	pass string
	from string

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer configures a mailer. from falls back to user when empty.
func NewMailer(host string, port int, user, pass, from string) *Mailer {
	if from == "" {
		from = user
	}
	return &Mailer{
		host:     host,
		port:     port,
		user:     user,
		pass:     pass,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one HTML message and returns a delivery id for log
// correlation. Errors are wrapped in DispatchError.
func (m *Mailer) Send(to, subject, htmlBody string) (string, error) {
	deliveryID := uuid.NewString()

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n"+
		"MIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n"+
		"Message-ID: <%s@quantora>\r\n\r\n%s",
		m.from, to, subject, deliveryID, htmlBody)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := m.sendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return "", &DispatchError{Recipient: to, Err: err}
	}
	return deliveryID, nil
}
