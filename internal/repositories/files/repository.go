package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/models"
)

// Repository persists File entities and the metadata stored against them.
type Repository interface {
	Create(ctx context.Context, f *models.File) error
	Get(ctx context.Context, id string) (*models.File, error)
	GetByURL(ctx context.Context, url string) (*models.File, error)
	ExistsURL(ctx context.Context, url string) (bool, error)
	Update(ctx context.Context, f *models.File) error
	SetAvailability(ctx context.Context, id string, available bool, checkedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListByTerm(ctx context.Context, termID string) ([]*models.File, error)
	ListPage(ctx context.Context, afterID string, limit int) ([]*models.File, error)

	SetMeta(ctx context.Context, id, key, value string) error
	GetMeta(ctx context.Context, id, key string) (string, error)
	ListMeta(ctx context.Context, id, prefix string) (map[string]string, error)
	DeleteMeta(ctx context.Context, id, key string) error
}
