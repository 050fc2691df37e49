// Package terms stores the directory terms driven by synchronization.
package terms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/dbx"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *models.DirectoryTerm) error
	Get(ctx context.Context, id string) (*models.DirectoryTerm, error)
	GetByName(ctx context.Context, name string) (*models.DirectoryTerm, error)
	List(ctx context.Context, enabledOnly bool) ([]*models.DirectoryTerm, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

const termColumns = `id, name, service, directory_url, enabled, recursive`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts t, assigning an ID when empty. Names are unique.
func (r *PostgresRepository) Create(ctx context.Context, t *models.DirectoryTerm) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `INSERT INTO directory_terms (` + termColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.Service, t.DirectoryURL, t.Enabled, t.Recursive)
	if dbx.IsUniqueViolation(err) {
		return common.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.DirectoryTerm, error) {
	var t models.DirectoryTerm
	err := r.db.QueryRowContext(ctx, `SELECT `+termColumns+` FROM directory_terms WHERE `+where, arg).
		Scan(&t.ID, &t.Name, &t.Service, &t.DirectoryURL, &t.Enabled, &t.Recursive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select term: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.DirectoryTerm, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.DirectoryTerm, error) {
	return r.getOne(ctx, `name = $1`, name)
}

func (r *PostgresRepository) List(ctx context.Context, enabledOnly bool) ([]*models.DirectoryTerm, error) {
	query := `SELECT ` + termColumns + ` FROM directory_terms WHERE enabled OR NOT $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to select terms: %w", err)
	}
	defer rows.Close()

	var result []*models.DirectoryTerm
	for rows.Next() {
		var t models.DirectoryTerm
		if err := rows.Scan(&t.ID, &t.Name, &t.Service, &t.DirectoryURL, &t.Enabled, &t.Recursive); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE directory_terms SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update term: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM directory_terms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete term: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}
