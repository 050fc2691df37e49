// Package logs persists journal entries to the event_log table.
package logs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/dbx"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.LogEntry) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	Recent(ctx context.Context, limit int) ([]*models.LogEntry, error)
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.LogEntry) error {
	query := `INSERT INTO event_log (created_at, message, url, severity) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, e.CreatedAt, e.Message, e.URL, string(e.Severity)).Scan(&e.ID); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM event_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune log: %w", err)
	}
	return res.RowsAffected()
}

// Recent returns the newest entries first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, message, url, severity FROM event_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select log: %w", err)
	}
	defer rows.Close()

	var result []*models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Message, &e.URL, &e.Severity); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
