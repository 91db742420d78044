// Package transfer sends currency through the external transfer API.
package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowbox/pkg/clients/ledger"
	"github.com/dukex/flowbox/pkg/idempotency"
	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/template"
)

const (
	maxAttempts = 3
	backoffBase = 2 * time.Second
)

// Action submits one transfer. Retries are bounded and only taken on
// failures the ledger adapter classifies as transient; permanent rejections
// propagate immediately. The idempotency guard keeps a redelivered stage
// from repeating a transfer that already settled.
type Action struct {
	amountTemplate      string
	destinationTemplate string
	client              ledger.Client
	guard               idempotency.Guard
	backoff             time.Duration
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "transfer")

	amount := template.Resolve(a.amountTemplate, executionCtx.TriggerData)
	destination := template.Resolve(a.destinationTemplate, executionCtx.TriggerData)

	effectKey := idempotency.EffectKey(executionCtx.RunID, executionCtx.StageIndex)

	completed, err := a.guard.Completed(ctx, effectKey)
	if err != nil {
		return nil, err
	}

	if completed {
		logger.InfoContext(ctx, "Transfer already settled for this stage, skipping",
			"destination", destination, "amount", amount)

		return map[string]any{"skipped": true}, nil
	}

	var receipt *ledger.Receipt

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		logger.InfoContext(ctx, "Submitting transfer",
			"destination", destination, "amount", amount, "attempt", attempt)

		receipt, err = a.client.Transfer(ctx, destination, amount)
		if err == nil {
			break
		}

		if !ledger.IsTransient(err) || attempt == maxAttempts {
			logger.ErrorContext(ctx, "Transfer failed", "error", err, "attempt", attempt)

			return nil, err
		}

		delay := a.backoff << (attempt - 1)
		logger.WarnContext(ctx, "Transfer expired, retrying",
			"error", err, "attempt", attempt, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	err = a.guard.MarkCompleted(ctx, effectKey)
	if err != nil {
		// The transfer settled; a lost marker only risks a duplicate
		// attempt, which the ledger receipt check absorbs.
		logger.WarnContext(ctx, "Failed to record effect marker", "error", err)
	}

	logger.InfoContext(ctx, "Transfer settled", "receipt_id", receipt.ID)

	return map[string]any{
		"receipt_id": receipt.ID,
		"signature":  receipt.Signature,
	}, nil
}
