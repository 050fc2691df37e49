package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/dbx"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

const rowColumns = `id, url, operation, config, state, attempts, error, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends r as a pending entry and fills in its ID and timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, row *Row) error {
	query := `INSERT INTO queue (url, operation, config, state)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, state, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, row.URL, string(row.Operation), row.Config).
		Scan(&row.ID, &row.State, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	return nil
}

// Claim moves up to limit eligible entries to processing in one statement
// and returns them in insertion order. Rows locked by a concurrent claim are
// skipped, so every entry is handed out to exactly one caller.
func (r *PostgresRepository) Claim(ctx context.Context, limit, maxAttempts int) ([]*Row, error) {
	query := `UPDATE queue SET state = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM queue
			WHERE state = 'pending' OR (state = 'failed' AND attempts < $2)
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + rowColumns

	rows, err := r.db.QueryContext(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to claim: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		var item Row
		if err := rows.Scan(&item.ID, &item.URL, &item.Operation, &item.Config, &item.State,
			&item.Attempts, &item.Error, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Delete removes a processed entry.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

// MarkFailed keeps the entry with an error annotation.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, msg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE queue SET state = 'failed', error = $2, updated_at = now() WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

// Retry resets a failed entry to pending with a fresh attempt budget.
func (r *PostgresRepository) Retry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE queue SET state = 'pending', attempts = 0, error = '', updated_at = now()
		WHERE id = $1 AND state = 'failed'`, id)
	if err != nil {
		return fmt.Errorf("failed to retry queue entry: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

// ReleaseStale returns processing entries last touched before the cutoff to
// pending. They belong to a drain that died mid-batch.
func (r *PostgresRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE queue SET state = 'pending', updated_at = now() WHERE state = 'processing' AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale entries: %w", err)
	}
	return res.RowsAffected()
}

// EvictOlderThan deletes entries created before the cutoff unless they are
// being processed.
func (r *PostgresRepository) EvictOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM queue WHERE created_at < $1 AND state <> 'processing'`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to evict entries: %w", err)
	}
	return res.RowsAffected()
}

// List returns up to limit entries in insertion order.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Row, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+rowColumns+` FROM queue ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		var item Row
		if err := rows.Scan(&item.ID, &item.URL, &item.Operation, &item.Config, &item.State,
			&item.Attempts, &item.Error, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	return result, rows.Err()
}

var _ Repository = (*PostgresRepository)(nil)

// OperationValid reports whether op can be stored.
func OperationValid(op models.Operation) bool {
	return op == models.OperationImport || op == models.OperationExport
}
