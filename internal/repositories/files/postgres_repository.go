// Package files stores imported File entities in Postgres.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/dbx"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/google/uuid"
)

const fileColumns = `id, url, title, mime_type, size, available, saved_locally, local_path, term_id, checked_at, created_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var f models.File
	err := s.Scan(&f.ID, &f.URL, &f.Title, &f.MimeType, &f.Size, &f.Available,
		&f.SavedLocally, &f.LocalPath, &f.TermID, &f.CheckedAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create inserts f, assigning a new ID when f.ID is empty. A second file with
// the same URL yields common.ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, f *models.File) error {
	if f.URL == "" {
		return common.ErrInvalidURL
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.CheckedAt.IsZero() {
		f.CheckedAt = f.CreatedAt
	}

	query := `INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query, f.ID, f.URL, f.Title, f.MimeType, f.Size, f.Available,
		f.SavedLocally, f.LocalPath, f.TermID, f.CheckedAt, f.CreatedAt)
	if dbx.IsUniqueViolation(err) {
		return common.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + where
	f, err := scanFile(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// Get returns the file with id or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByURL returns the file imported from url or common.ErrorNotFound.
func (r *PostgresRepository) GetByURL(ctx context.Context, url string) (*models.File, error) {
	return r.getOne(ctx, `url = $1`, url)
}

// ExistsURL reports whether a file with exactly this URL is stored.
func (r *PostgresRepository) ExistsURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check url: %w", err)
	}
	return exists, nil
}

// Update writes the mutable attributes of f. ID, URL and CreatedAt never change.
func (r *PostgresRepository) Update(ctx context.Context, f *models.File) error {
	query := `UPDATE files SET title = $2, mime_type = $3, size = $4, available = $5,
		saved_locally = $6, local_path = $7, term_id = $8, checked_at = $9
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, f.ID, f.Title, f.MimeType, f.Size, f.Available,
		f.SavedLocally, f.LocalPath, f.TermID, f.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

// SetAvailability records the outcome of an availability check.
func (r *PostgresRepository) SetAvailability(ctx context.Context, id string, available bool, checkedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET available = $2, checked_at = $3 WHERE id = $1`, id, available, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

// Delete removes the file row; its metadata cascades.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByTerm returns every file attributed to termID.
func (r *PostgresRepository) ListByTerm(ctx context.Context, termID string) ([]*models.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE term_id = $1 ORDER BY url`, termID)
}

// ListPage returns up to limit files whose ID sorts after afterID.
func (r *PostgresRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*models.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE id::text > $1 ORDER BY id::text LIMIT $2`, afterID, limit)
}

// SetMeta upserts one metadata value for a file.
func (r *PostgresRepository) SetMeta(ctx context.Context, id, key, value string) error {
	query := `INSERT INTO file_meta (file_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (file_id, key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, query, id, key, value); err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// GetMeta returns one metadata value or common.ErrorNotFound.
func (r *PostgresRepository) GetMeta(ctx context.Context, id, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM file_meta WHERE file_id = $1 AND key = $2`, id, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// ListMeta returns every metadata value whose key starts with prefix.
func (r *PostgresRepository) ListMeta(ctx context.Context, id, prefix string) (map[string]string, error) {
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM file_meta WHERE file_id = $1 AND key LIKE $2 ORDER BY key`, id, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list meta: %w", err)
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteMeta removes one metadata value. Missing keys are ignored.
func (r *PostgresRepository) DeleteMeta(ctx context.Context, id, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM file_meta WHERE file_id = $1 AND key = $2`, id, key); err != nil {
		return fmt.Errorf("failed to delete meta: %w", err)
	}
	return nil
}
