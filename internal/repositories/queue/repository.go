// Package queue stores deferred import/export requests in Postgres.
package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/models"
)

// Row is a queue entry as stored: the options are an encrypted blob.
type Row struct {
	ID        int64
	URL       string
	Operation models.Operation
	Config    string
	State     models.QueueState
	Attempts  int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, r *Row) error
	Claim(ctx context.Context, limit, maxAttempts int) ([]*Row, error)
	Delete(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, msg string) error
	Retry(ctx context.Context, id int64) error
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	EvictOlderThan(ctx context.Context, before time.Time) (int64, error)
	List(ctx context.Context, limit int) ([]*Row, error)
}
