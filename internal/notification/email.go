package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends codes over SMTP.
type EmailChannel struct {
	mailer Mailer
	from   string
}

func NewEmailChannel(mailer Mailer, from string) *EmailChannel {
	return &EmailChannel{mailer: mailer, from: from}
}

// NewSMTPEmailChannel dials the given SMTP server for every send.
func NewSMTPEmailChannel(host string, port int, user, password, from string) *EmailChannel {
	return NewEmailChannel(gomail.NewDialer(host, port, user, password), from)
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := otpEmailContent(msg)

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := c.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
