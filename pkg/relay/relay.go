// Package relay drains the run outbox into the message broker. It is the
// bridge between the transactional datastore and the stage pipeline: a run
// only starts executing once the relay has published its first stage-advance
// event.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowbox/pkg/eventbus"
	"github.com/dukex/flowbox/pkg/events"
	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
)

const (
	// batchSize bounds how many outbox records a single poll dispatches.
	batchSize = 10

	// idleInterval is the pause after an empty poll, errorInterval the
	// longer pause after a datastore or broker failure.
	idleInterval  = 5 * time.Second
	errorInterval = 10 * time.Second
)

// Relay polls the outbox table and publishes a stage-advance event for stage
// zero of every unprocessed record. Records are marked processed only after
// the publish succeeded, so a crash between publish and mark yields a
// duplicate event rather than a lost run.
type Relay struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
}

func NewRelay(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventPublisher,
) *Relay {
	return &Relay{
		logger:      logger.With("module", "relay"),
		persistence: persistence,
		eventBus:    eventBus,
	}
}

// Start runs the poll loop until the context is cancelled. Failures never
// terminate the loop; the relay backs off and retries.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting outbox relay",
		"batch_size", batchSize,
		"idle_interval", idleInterval)

	for {
		interval := r.poll(ctx)

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Stopping outbox relay")

			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// poll dispatches one batch and returns how long to wait before the next one.
func (r *Relay) poll(ctx context.Context) time.Duration {
	records, err := r.persistence.UnprocessedOutbox(ctx, batchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to fetch outbox records", "error", err)

		return errorInterval
	}

	if len(records) == 0 {
		return idleInterval
	}

	r.logger.InfoContext(ctx, "Dispatching outbox records", "count", len(records))

	published := make([]string, 0, len(records))

	for _, record := range records {
		err := r.dispatch(ctx, record)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to publish stage advance",
				"outbox_id", record.ID,
				"run_id", record.RunID,
				"error", err)

			break
		}

		published = append(published, record.ID)
	}

	if len(published) > 0 {
		err = r.persistence.MarkOutboxProcessed(ctx, published)
		if err != nil {
			// Publish already happened; the records will be re-sent next
			// poll and the workers dedupe by effect key.
			r.logger.ErrorContext(ctx, "Failed to mark outbox records processed",
				"count", len(published),
				"error", err)

			return errorInterval
		}
	}

	if len(published) < len(records) {
		return errorInterval
	}

	return idleInterval
}

func (r *Relay) dispatch(ctx context.Context, record *models.OutboxRecord) error {
	event := events.NewStageAdvance(record.RunID, 0)

	return r.eventBus.Publish(ctx, record.RunID, event)
}
