// Package exporter copies locally cached files to external back-ends and
// removes them there again.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/google/uuid"
)

// Adapter exports to one back-end. Every operation is fail-closed: the
// source must exist, the target must not, and a failed upload leaves
// nothing behind.
type Adapter struct {
	backend  backends.Backend
	blob     *blob.Storage
	generate bool
	now      func() time.Time
}

// NewAdapter wraps b. Object stores generate their own keys; every other
// kind needs an explicit target.
func NewAdapter(b backends.Backend, store *blob.Storage) *Adapter {
	return &Adapter{
		backend:  b,
		blob:     store,
		generate: b.Kind() == backends.KindS3,
		now:      time.Now,
	}
}

// IsURLRequired reports whether ExportFile needs a target.
func (a *Adapter) IsURLRequired() bool {
	return !a.generate
}

// GenerateKey returns exports/YYYY/MM/DD/<uuid>/<name>.
func GenerateKey(now time.Time, name string) string {
	if name = path.Base(name); name == "." || name == "/" {
		name = "file"
	}
	return fmt.Sprintf("exports/%04d/%02d/%02d/%s/%s", now.Year(), now.Month(), now.Day(), uuid.New(), name)
}

// ExportFile uploads the cached content of f and returns its URL on the
// back-end. target is a path below the back-end root or a URL of this
// back-end; a trailing slash appends the file title.
func (a *Adapter) ExportFile(ctx context.Context, f *models.File, target string) (string, error) {
	if !f.SavedLocally || f.LocalPath == "" {
		return "", common.ErrSourceMissing
	}
	ok, err := a.blob.Exists(f.LocalPath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrSourceMissing
	}

	p, err := a.targetPath(f, target)
	if err != nil {
		return "", err
	}

	_, err = a.backend.Stat(ctx, p)
	switch {
	case err == nil:
		return "", fmt.Errorf("%w: %s", common.ErrTargetExists, a.backend.URL(p))
	case !errors.Is(err, common.ErrorNotFound):
		return "", err
	}

	size, err := a.blob.Size(f.LocalPath)
	if err != nil {
		return "", err
	}
	rc, err := a.blob.Open(f.LocalPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := a.backend.Put(ctx, p, rc, size); err != nil {
		if errors.Is(err, common.ErrTargetExists) {
			return "", err
		}
		// The target did not exist before, so whatever is there now is ours.
		_ = a.backend.Delete(ctx, p)
		return "", fmt.Errorf("upload: %w", err)
	}
	return a.backend.URL(p), nil
}

// DeleteExportedFile removes the object at rawURL, checking that it exists
// before and is gone afterwards.
func (a *Adapter) DeleteExportedFile(ctx context.Context, rawURL string) error {
	p, err := backends.PathOf(a.backend, rawURL)
	if err != nil {
		return err
	}

	_, err = a.backend.Stat(ctx, p)
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%w: %s", common.ErrExportNotFound, rawURL)
	}
	if err != nil {
		return err
	}

	if err := a.backend.Delete(ctx, p); err != nil {
		return err
	}

	_, err = a.backend.Stat(ctx, p)
	switch {
	case err == nil:
		return common.ErrDeleteIncomplete
	case errors.Is(err, common.ErrorNotFound):
		return nil
	default:
		return err
	}
}

func (a *Adapter) targetPath(f *models.File, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		if !a.generate {
			return "", common.ErrURLRequired
		}
		return GenerateKey(a.now().UTC(), f.Title), nil
	}

	p := target
	if strings.Contains(target, "://") {
		var err error
		if p, err = backends.PathOf(a.backend, target); err != nil {
			return "", err
		}
	}
	if strings.HasSuffix(target, "/") || p == "" {
		p = path.Join(p, path.Base(f.Title))
	}
	return p, nil
}
