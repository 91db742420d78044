// Package persistence abstracts the datastore shared by the relay, the
// workers and the ingestion surfaces.
package persistence

import (
	"context"

	"github.com/dukex/flowbox/pkg/models"
)

type Persistence interface {
	// Workflow definitions are read-only for the pipeline; SaveWorkflow
	// exists for the CRUD surface and tests.
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error

	// CreateRun writes the run and its outbox record in a single
	// transaction; the pipeline's durability rests on that atomicity.
	CreateRun(ctx context.Context, run *models.Run) error
	RunByID(ctx context.Context, id string) (*models.Run, error)

	// UpdateRunStatus records the advisory lifecycle status; execution
	// progress itself lives in the broker, not here.
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error

	// UnprocessedOutbox returns up to limit records, oldest first.
	// MarkOutboxProcessed is called by the relay only.
	UnprocessedOutbox(ctx context.Context, limit int) ([]*models.OutboxRecord, error)
	MarkOutboxProcessed(ctx context.Context, ids []string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
