// Package worker executes single stages of workflow runs in response to
// stage-advance events and publishes the event for the following stage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowbox/pkg/clients/ledger"
	"github.com/dukex/flowbox/pkg/eventbus"
	"github.com/dukex/flowbox/pkg/events"
	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
	"github.com/dukex/flowbox/pkg/registry"
)

// Executor implements the per-stage state machine. Each invocation loads the
// run and its workflow, executes exactly one stage and returns the follow-up
// events to publish. It keeps no state of its own; all progress lives in the
// broker messages.
type Executor struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

func NewExecutor(persistence persistence.Persistence, registry *registry.Registry) *Executor {
	return &Executor{
		persistence: persistence,
		registry:    registry,
	}
}

// ExecuteStage runs one stage of one run.
//
// A nil error with no events means the message is settled and must be
// acknowledged, whether the stage executed, was skipped or was dropped as
// unprocessable. A non-nil error means the stage must be retried through
// broker redelivery; the caller must not acknowledge.
func (e *Executor) ExecuteStage(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	stageIndex int,
) ([]eventbus.Event, error) {
	run, err := e.persistence.RunByID(ctx, runID)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			// Unprocessable: nothing to execute, retrying cannot help.
			logger.ErrorContext(ctx, "Run not found, dropping stage advance")

			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	workflow, err := e.persistence.WorkflowByID(ctx, run.WorkflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			logger.ErrorContext(ctx, "Workflow not found, dropping stage advance",
				"workflow_id", run.WorkflowID)

			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", run.WorkflowID, err)
	}

	lastStage := workflow.LastStageIndex()
	if stageIndex > lastStage {
		// Past the end of the pipeline. Can happen on redelivery of the
		// final stage after its follow-up bookkeeping was lost.
		logger.WarnContext(ctx, "Stage index out of range, dropping stage advance",
			"last_stage", lastStage)

		return nil, nil
	}

	if stageIndex == 0 {
		e.updateStatus(ctx, logger, run.ID, models.RunStatusRunning)
	}

	action, found := workflow.ActionByStage(stageIndex)
	if !found {
		// Same as a missing run: retrying cannot make the stage appear.
		logger.ErrorContext(ctx, "No action at stage index, dropping stage advance")

		return nil, nil
	}

	err = e.execute(ctx, logger, run, action, stageIndex)
	if err != nil {
		if !ledger.IsTransient(err) {
			// Redelivery will not fix a permanent failure; surface it
			// on the run. Status stays advisory.
			e.updateStatus(ctx, logger, run.ID, models.RunStatusFailed)
		}

		return nil, err
	}

	if stageIndex < lastStage {
		return []eventbus.Event{events.NewStageAdvance(run.ID, stageIndex + 1)}, nil
	}

	logger.InfoContext(ctx, "Run completed", "stages", lastStage+1)
	e.updateStatus(ctx, logger, run.ID, models.RunStatusCompleted)

	return nil, nil
}

func (e *Executor) execute(
	ctx context.Context,
	logger *slog.Logger,
	run *models.Run,
	spec models.ActionSpec,
	stageIndex int,
) error {
	action, err := e.registry.CreateAction(spec.HandlerKind, spec.Parameters)
	if err != nil {
		// Unknown kinds and malformed parameters are deterministic; they
		// are skipped so one bad stage does not wedge the run in
		// redelivery.
		if errors.Is(err, registry.ErrUnregisteredAction) {
			logger.ErrorContext(ctx, "No handler registered for action, skipping stage",
				"handler_kind", spec.HandlerKind)
		} else {
			logger.ErrorContext(ctx, "Action spec is invalid, skipping stage",
				"handler_kind", spec.HandlerKind,
				"error", err)
		}

		return nil
	}

	executionCtx := models.ExecutionContext{
		RunID:       run.ID,
		WorkflowID:  run.WorkflowID,
		StageIndex:  stageIndex,
		TriggerData: run.Context,
	}

	logger.InfoContext(ctx, "Executing stage action",
		"action_id", spec.ID,
		"handler_kind", spec.HandlerKind)

	result, err := action.Execute(ctx, executionCtx, logger)
	if err != nil {
		return fmt.Errorf("failed to execute action %s: %w", spec.ID, err)
	}

	logger.InfoContext(ctx, "Stage action executed", "action_id", spec.ID, "result", result)

	return nil
}

// updateStatus records the advisory run status. Failures are logged and
// ignored; status never gates execution.
func (e *Executor) updateStatus(ctx context.Context, logger *slog.Logger, runID string, status models.RunStatus) {
	err := e.persistence.UpdateRunStatus(ctx, runID, status)
	if err != nil {
		logger.WarnContext(ctx, "Failed to update run status",
			"status", status,
			"error", err)
	}
}
