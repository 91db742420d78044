package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/dukex/flowbox/pkg/models"
)

// OutboxRepository handles outbox-related database operations.
type OutboxRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewOutboxRepository(db *sql.DB, logger *slog.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

// Unprocessed returns the oldest unprocessed outbox records, oldest first.
func (r *OutboxRepository) Unprocessed(ctx context.Context, limit int) ([]*models.OutboxRecord, error) {
	query := `
		SELECT
			id
		  , run_id
		  , processed
		  , created_at
		FROM run_outbox
		WHERE NOT processed
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox records: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.OutboxRecord, 0, limit)

	for rows.Next() {
		var record models.OutboxRecord

		err := rows.Scan(&record.ID, &record.RunID, &record.Processed, &record.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating outbox records: %w", err)
	}

	return records, nil
}

// MarkProcessed flags the given records as dispatched. Marking an already
// processed record is a no-op.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		"UPDATE run_outbox SET processed = TRUE WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark outbox records processed: %w", err)
	}

	return nil
}
