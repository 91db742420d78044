package transfer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/flowbox/pkg/clients/ledger"
	"github.com/dukex/flowbox/pkg/idempotency"
	"github.com/dukex/flowbox/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	calls     []fakeCall
	responses []error
}

type fakeCall struct {
	destination string
	amount      string
}

func (f *fakeLedger) Transfer(_ context.Context, destination, amount string) (*ledger.Receipt, error) {
	f.calls = append(f.calls, fakeCall{destination: destination, amount: amount})

	index := len(f.calls) - 1
	if index < len(f.responses) && f.responses[index] != nil {
		return nil, f.responses[index]
	}

	return &ledger.Receipt{ID: "tr-1", Signature: "sig"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func executionCtx() models.ExecutionContext {
	return models.ExecutionContext{
		RunID:      "run-1",
		WorkflowID: "wf-1",
		StageIndex: 0,
		TriggerData: map[string]any{
			"comment": map[string]any{
				"amount":  "0.5",
				"address": "dest-wallet",
			},
		},
	}
}

func newTestAction(client ledger.Client, guard idempotency.Guard) (*Action, error) {
	factory := NewActionFactory(client, guard)

	action, err := factory.Create(map[string]string{
		"amount":      "{{comment.amount}}",
		"destination": "{{comment.address}}",
	})
	if err != nil {
		return nil, err
	}

	transferAction := action.(*Action)
	transferAction.backoff = time.Millisecond

	return transferAction, nil
}

func TestActionFactory_Create_RequiresParameters(t *testing.T) {
	factory := NewActionFactory(&fakeLedger{}, idempotency.NewMemoryGuard())

	_, err := factory.Create(map[string]string{"amount": "1"})
	require.Error(t, err)

	_, err = factory.Create(map[string]string{"destination": "d"})
	require.Error(t, err)

	_, err = factory.Create(nil)
	require.Error(t, err)
}

func TestAction_Execute_ResolvesTemplates(t *testing.T) {
	client := &fakeLedger{}

	action, err := newTestAction(client, idempotency.NewMemoryGuard())
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), executionCtx(), testLogger())
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "dest-wallet", client.calls[0].destination)
	assert.Equal(t, "0.5", client.calls[0].amount)

	resultMap := result.(map[string]any)
	assert.Equal(t, "tr-1", resultMap["receipt_id"])
}

func TestAction_Execute_RetriesTransientFailures(t *testing.T) {
	client := &fakeLedger{responses: []error{
		&ledger.TransientError{Err: errors.New("expired")},
		&ledger.TransientError{Err: errors.New("expired")},
		nil,
	}}

	action, err := newTestAction(client, idempotency.NewMemoryGuard())
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), executionCtx(), testLogger())
	require.NoError(t, err)
	assert.Len(t, client.calls, 3)
}

func TestAction_Execute_ExhaustsRetryBound(t *testing.T) {
	expired := &ledger.TransientError{Err: errors.New("expired")}
	client := &fakeLedger{responses: []error{expired, expired, expired}}

	action, err := newTestAction(client, idempotency.NewMemoryGuard())
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), executionCtx(), testLogger())
	require.Error(t, err)
	assert.Len(t, client.calls, maxAttempts)
}

func TestAction_Execute_PermanentFailureDoesNotRetry(t *testing.T) {
	client := &fakeLedger{responses: []error{errors.New("insufficient funds")}}

	action, err := newTestAction(client, idempotency.NewMemoryGuard())
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), executionCtx(), testLogger())
	require.Error(t, err)
	assert.Len(t, client.calls, 1)
}

func TestAction_Execute_SkipsSettledEffect(t *testing.T) {
	client := &fakeLedger{}
	guard := idempotency.NewMemoryGuard()

	action, err := newTestAction(client, guard)
	require.NoError(t, err)

	// First delivery performs the transfer.
	_, err = action.Execute(context.Background(), executionCtx(), testLogger())
	require.NoError(t, err)

	// Redelivery of the same stage must not transfer again.
	result, err := action.Execute(context.Background(), executionCtx(), testLogger())
	require.NoError(t, err)
	assert.Len(t, client.calls, 1)

	resultMap := result.(map[string]any)
	assert.Equal(t, true, resultMap["skipped"])
}
