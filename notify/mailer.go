package notify

import (
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer delivers escalation mail.
type Mailer interface {
	Send(to, subject, body string) error
}

// StdoutMailer prints mail instead of sending it, for local runs.
type StdoutMailer struct{}

func (StdoutMailer) Send(to, subject, body string) error {
	log.Printf("MAIL to=%s subject=%s\n%s", to, subject, body)
	return nil
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
}

// NewSMTPMailer defaults to a local relay on the MailHog port.
func NewSMTPMailer(addr, from string) *SMTPMailer {
	if addr == "" {
		addr = "localhost:1025"
	}
	if from == "" {
		from = "no-reply@csmkit.local"
	}
	return &SMTPMailer{Addr: addr, From: from}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	if to == "" {
		return errors.New("notify: empty mail recipient")
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}
