package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/credentials"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
)

// ServiceLoader resolves a configured service by name.
type ServiceLoader interface {
	Load(name string) (*credentials.Service, error)
}

type Journal interface {
	Error(ctx context.Context, msg, url string)
	Info(ctx context.Context, level int, msg, url string)
}

// Engine exports files to named services and records where each copy went
// in the file metadata under export.<service>.
type Engine struct {
	files    files.Repository
	blob     *blob.Storage
	services ServiceLoader
	journal  Journal
	open     func(ctx context.Context, cfg backends.Config) (backends.Backend, error)
}

func NewEngine(files files.Repository, store *blob.Storage, services ServiceLoader, journal Journal) *Engine {
	return &Engine{
		files:    files,
		blob:     store,
		services: services,
		journal:  journal,
		open:     backends.OpenConfig,
	}
}

func metaKey(service string) string {
	return common.MetaExportPrefix + service
}

func (e *Engine) adapter(ctx context.Context, service string, login *models.Login) (*Adapter, func(), error) {
	svc, err := e.services.Load(service)
	if err != nil {
		return nil, nil, err
	}
	cfg := svc.Config
	if !login.Empty() {
		cfg = backends.WithCredentials(cfg, login.Username, login.Password)
	}
	b, err := e.open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", service, err)
	}
	return NewAdapter(b, e.blob), func() { _ = b.Close() }, nil
}

// Export copies the cached content of fileID to service and returns the
// URL of the copy. A file is exported to a service at most once.
func (e *Engine) Export(ctx context.Context, fileID, service, target string, login *models.Login) (string, error) {
	u, err := e.export(ctx, fileID, service, target, login)
	if err != nil {
		e.journal.Error(ctx, fmt.Sprintf("export of %s to %s failed: %v", fileID, service, err), target)
		return "", err
	}
	e.journal.Info(ctx, logging.LevelNormal, fmt.Sprintf("exported %s to %s", fileID, service), u)
	return u, nil
}

func (e *Engine) export(ctx context.Context, fileID, service, target string, login *models.Login) (string, error) {
	f, err := e.files.Get(ctx, fileID)
	if err != nil {
		return "", err
	}

	if prev, err := e.files.GetMeta(ctx, fileID, metaKey(service)); err == nil {
		return "", fmt.Errorf("%w: already exported as %s", common.ErrTargetExists, prev)
	} else if !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	a, closeFn, err := e.adapter(ctx, service, login)
	if err != nil {
		return "", err
	}
	defer closeFn()

	if a.IsURLRequired() && strings.TrimSpace(target) == "" {
		return "", common.ErrURLRequired
	}

	u, err := a.ExportFile(ctx, f, target)
	if err != nil {
		return "", err
	}

	if err := e.files.SetMeta(ctx, fileID, metaKey(service), u); err != nil {
		_ = a.DeleteExportedFile(ctx, u)
		return "", err
	}
	return u, nil
}

// Delete removes the copy of fileID on service and forgets it. login
// overrides the stored credentials of service, as for Export.
func (e *Engine) Delete(ctx context.Context, fileID, service string, login *models.Login) error {
	if err := e.delete(ctx, fileID, service, login); err != nil {
		e.journal.Error(ctx, fmt.Sprintf("delete of %s from %s failed: %v", fileID, service, err), "")
		return err
	}
	e.journal.Info(ctx, logging.LevelNormal, fmt.Sprintf("deleted export of %s from %s", fileID, service), "")
	return nil
}

func (e *Engine) delete(ctx context.Context, fileID, service string, login *models.Login) error {
	u, err := e.files.GetMeta(ctx, fileID, metaKey(service))
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrExportNotFound
	}
	if err != nil {
		return err
	}

	a, closeFn, err := e.adapter(ctx, service, login)
	if err != nil {
		return err
	}
	defer closeFn()

	err = a.DeleteExportedFile(ctx, u)
	if err != nil && !errors.Is(err, common.ErrExportNotFound) {
		return err
	}
	return e.files.DeleteMeta(ctx, fileID, metaKey(service))
}

// Exports lists the services fileID was exported to with the copy's URL.
func (e *Engine) Exports(ctx context.Context, fileID string) (map[string]string, error) {
	meta, err := e.files.ListMeta(ctx, fileID, common.MetaExportPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[strings.TrimPrefix(k, common.MetaExportPrefix)] = v
	}
	return out, nil
}

// RemoveFile is the deletion flow for a stored file: every exported copy
// is deleted first, then the cached content, then the file itself. It
// stops at the first export that cannot be deleted so it can be retried.
func (e *Engine) RemoveFile(ctx context.Context, fileID string) error {
	f, err := e.files.Get(ctx, fileID)
	if err != nil {
		return err
	}

	exports, err := e.Exports(ctx, fileID)
	if err != nil {
		return err
	}
	for service := range exports {
		if err := e.Delete(ctx, fileID, service, nil); err != nil {
			return fmt.Errorf("remove export on %s: %w", service, err)
		}
	}

	if f.SavedLocally && f.LocalPath != "" {
		if err := e.blob.Delete(f.LocalPath); err != nil {
			return err
		}
	}
	if err := e.files.Delete(ctx, fileID); err != nil {
		return err
	}

	e.journal.Info(ctx, logging.LevelNormal, "removed "+f.Title, f.URL)
	return nil
}
