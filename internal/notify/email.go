package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/collectionpulse/engine/internal/model"
)

// Email is a best-effort SMTP channel. It performs no retries; failures are
// logged by the dispatcher and dropped.
type Email struct {
	smtpAddr string
	from     string
	to       string

	// send is swapped in tests.
	send func(addr, from string, to []string, msg []byte) error
}

// NewEmail creates an email channel.
func NewEmail(smtpAddr, from, to string) *Email {
	return &Email{
		smtpAddr: smtpAddr,
		from:     from,
		to:       to,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Name identifies the channel in logs.
func (e *Email) Name() string { return "email" }

// Send delivers one alert as a plain-text mail.
func (e *Email) Send(ctx context.Context, a model.Alert) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: [%s] %s alert for %s\r\n\r\n%s\r\nTriggered at %s\r\n",
		e.from, e.to, a.Severity, a.Type, a.CollectionID, a.Message, a.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
	)

	if err := e.send(e.smtpAddr, e.from, []string{e.to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
