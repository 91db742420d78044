package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowbox/pkg/eventbus"
	"github.com/dukex/flowbox/pkg/events"
	"github.com/dukex/flowbox/pkg/otelhelper"
	"github.com/dukex/flowbox/pkg/persistence"
	"github.com/dukex/flowbox/pkg/registry"
)

// Worker subscribes to stage-advance events and drives the executor. Any
// number of workers may run concurrently; partitioning by run ID keeps each
// run on a single worker at a time.
type Worker struct {
	id       string
	logger   *slog.Logger
	executor *Executor
	eventBus eventbus.EventBus
	tracer   trace.Tracer
}

func NewWorker(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
) *Worker {
	return &Worker{
		id:       id,
		logger:   logger.With("module", "worker", "worker_id", id),
		executor: NewExecutor(persistence, registry),
		eventBus: eventBus,
		tracer:   otel.Tracer("flowbox.worker"),
	}
}

// Start registers the stage-advance handler and blocks consuming events
// until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	err := w.eventBus.Handle(events.StageAdvanceEvent, w.handleStageAdvance)
	if err != nil {
		return fmt.Errorf("failed to register stage advance handler: %w", err)
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	return nil
}

func (w *Worker) handleStageAdvance(ctx context.Context, event any) error {
	stageEvent, ok := event.(*events.StageAdvance)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for StageAdvance")

		return nil
	}

	logger := w.logger.With(
		"run_id", stageEvent.RunID,
		"stage_index", stageEvent.StageIndex,
		"event_id", stageEvent.ID,
	)
	logger.InfoContext(ctx, "Processing stage advance")

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.execute_stage",
		attribute.String(otelhelper.RunIDKey, stageEvent.RunID),
		attribute.Int(otelhelper.StageIndexKey, stageEvent.StageIndex),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	followUps, err := w.executor.ExecuteStage(ctx, logger, stageEvent.RunID, stageEvent.StageIndex)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute stage", "error", err)
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.RunIDKey, stageEvent.RunID))

		return err
	}

	for _, followUp := range followUps {
		publishErr := w.eventBus.Publish(ctx, stageEvent.RunID, followUp)
		if publishErr != nil {
			// Leaving the message unacknowledged re-runs this stage; the
			// handlers' effect guards absorb the duplicate execution.
			logger.ErrorContext(ctx, "Failed to publish follow-up event", "error", publishErr)
			otelhelper.SetError(span, publishErr,
				attribute.String(otelhelper.RunIDKey, stageEvent.RunID))

			return publishErr
		}
	}

	return nil
}
