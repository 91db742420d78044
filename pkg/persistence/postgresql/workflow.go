package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , owner
		  , trigger_config
		  , created_at
		  , updated_at
		FROM workflows
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadActions(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow actions: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , name
		  , owner
		  , trigger_config
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadActions(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow actions: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	triggerConfig, err := json.Marshal(workflow.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	upsert := `
		INSERT INTO workflows (id, name, owner, trigger_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , owner = EXCLUDED.owner
		  , trigger_config = EXCLUDED.trigger_config
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = transaction.ExecContext(ctx, upsert,
		workflow.ID, workflow.Name, workflow.Owner, triggerConfig, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to save workflow: %w", err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM workflow_actions WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to clear workflow actions: %w", err)
	}

	for _, action := range workflow.Actions {
		parameters, err := json.Marshal(action.Parameters)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to marshal action parameters: %w", err)
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO workflow_actions (workflow_id, id, stage_index, handler_kind, parameters)
			VALUES ($1, $2, $3, $4, $5)
		`, workflow.ID, action.ID, action.StageIndex, action.HandlerKind, parameters)
		if err != nil {
			_ = transaction.Rollback()

			return fmt.Errorf("failed to save workflow action: %w", err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		owner         sql.NullString
		triggerConfig []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&owner,
		&triggerConfig,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Owner = owner.String

	err = json.Unmarshal(triggerConfig, &workflow.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadActions(ctx context.Context, workflow *models.Workflow) error {
	query := `
		SELECT
			id
		  , stage_index
		  , handler_kind
		  , parameters
		FROM workflow_actions
		WHERE workflow_id = $1
		ORDER BY stage_index ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow actions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Actions = make([]models.ActionSpec, 0)

	for rows.Next() {
		var (
			action     models.ActionSpec
			parameters []byte
		)

		err := rows.Scan(&action.ID, &action.StageIndex, &action.HandlerKind, &parameters)
		if err != nil {
			return fmt.Errorf("failed to scan workflow action: %w", err)
		}

		err = json.Unmarshal(parameters, &action.Parameters)
		if err != nil {
			return fmt.Errorf("failed to unmarshal action parameters: %w", err)
		}

		workflow.Actions = append(workflow.Actions, action)
	}

	return rows.Err()
}
