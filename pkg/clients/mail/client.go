// Package mail is the adapter for the external mail transport.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Client delivers plain-text mail. No receipt is required: delivery either
// succeeds or the error is propagated for message redelivery to retry.
type Client interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig carries the transport settings, usually sourced from
// SMTP_ENDPOINT, SMTP_USERNAME, SMTP_PASSWORD and SMTP_FROM_EMAIL.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPClient struct {
	config SMTPConfig
	logger *slog.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPClient(config SMTPConfig, logger *slog.Logger) *SMTPClient {
	if config.Port == 0 {
		config.Port = 587
	}

	return &SMTPClient{
		config: config,
		logger: logger.With("module", "mail_client"),
		send:   smtp.SendMail,
	}
}

func (c *SMTPClient) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("mail recipient is required")
	}

	var msg strings.Builder

	msg.WriteString("From: " + c.config.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	var auth smtp.Auth
	if c.config.Username != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	err := c.send(addr, auth, c.config.From, []string{to}, []byte(msg.String()))
	if err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	c.logger.InfoContext(ctx, "Mail sent", "to", to, "subject", subject)

	return nil
}
