package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
)

// RunRepository handles run-related database operations. Creating a run
// also appends an outbox record in the same transaction, so a run never
// exists without its pending dispatch.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	runContext, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, context, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.WorkflowID, runContext, run.Status, run.CreatedAt)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to insert run: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO run_outbox (id, run_id, processed, created_at)
		VALUES ($1, $2, FALSE, $3)
	`, uuid.New().String(), run.ID, run.CreatedAt)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to insert outbox record: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , context
		  , status
		  , created_at
		FROM runs
		WHERE id = $1
	`

	var (
		run        models.Run
		runContext []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.WorkflowID,
		&runContext,
		&run.Status,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	err = json.Unmarshal(runContext, &run.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
	}

	return &run, nil
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus) error {
	result, err := r.db.ExecContext(ctx, "UPDATE runs SET status = $2 WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrRunNotFound
	}

	return nil
}
