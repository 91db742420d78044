// Package email delivers a templated message through the external mail
// transport.
package email

import (
	"context"
	"log/slog"

	"github.com/dukex/flowbox/pkg/clients/mail"
	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/template"
)

const defaultSubject = "Notification from flowbox"

// Action sends one mail. There is no internal retry: a failed send
// propagates and broker redelivery retries the stage.
type Action struct {
	toTemplate      string
	subjectTemplate string
	bodyTemplate    string
	client          mail.Client
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "email")

	to := template.Resolve(a.toTemplate, executionCtx.TriggerData)
	body := template.Resolve(a.bodyTemplate, executionCtx.TriggerData)

	subject := template.Resolve(a.subjectTemplate, executionCtx.TriggerData)
	if subject == "" {
		subject = defaultSubject
	}

	logger.InfoContext(ctx, "Sending email", "to", to, "subject", subject)

	err := a.client.Send(ctx, to, subject, body)
	if err != nil {
		logger.ErrorContext(ctx, "Email delivery failed", "error", err, "to", to)

		return nil, err
	}

	return map[string]any{"to": to, "subject": subject}, nil
}
