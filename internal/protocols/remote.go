package protocols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/credentials"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

// ServiceMatcher finds stored service configurations for a host.
type ServiceMatcher interface {
	Match(kind, host string) (*credentials.Service, bool)
}

// opener turns a parsed URL into a back-end and the path within it.
type opener func(ctx context.Context, u *url.URL, login *models.Login) (backends.Backend, string, error)

// remoteHandler adapts any backends.Backend to the Handler contract.
type remoteHandler struct {
	name             string
	schemes          []string
	savedLocal       bool
	canChangeHosting bool
	open             opener

	index   URLIndex
	journal Journal
}

func (h *remoteHandler) Name() string             { return h.name }
func (h *remoteHandler) ShouldBeSavedLocal() bool { return h.savedLocal }
func (h *remoteHandler) CanChangeHosting() bool   { return h.canChangeHosting }

func (h *remoteHandler) IsURLCompatible(rawURL string) bool {
	return hasScheme(rawURL, h.schemes...)
}

func (h *remoteHandler) CheckURL(rawURL string) bool {
	u, ok := parse(rawURL, h.schemes...)
	if !ok {
		return false
	}
	if u.Scheme == "file" {
		return u.Path != ""
	}
	return u.Host != ""
}

func (h *remoteHandler) connect(ctx context.Context, rawURL string, login *models.Login) (backends.Backend, string, *url.URL, error) {
	u, ok := parse(rawURL, h.schemes...)
	if !ok || !h.CheckURL(rawURL) {
		return nil, "", nil, fmt.Errorf("%w: %s", common.ErrInvalidURL, common.RedactURL(rawURL))
	}
	b, p, err := h.open(ctx, u, login)
	if err != nil {
		return nil, "", nil, err
	}
	return b, p, u, nil
}

func (h *remoteHandler) URLInfos(ctx context.Context, rawURL string, login *models.Login) ([]models.FileInfo, error) {
	b, p, u, err := h.connect(ctx, rawURL, login)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	var entries []backends.Entry
	if strings.HasSuffix(u.Path, "/") {
		entries, err = b.List(ctx, p, false)
	} else {
		var st *backends.Entry
		st, err = b.Stat(ctx, p)
		switch {
		case err != nil:
		case st.IsDir:
			entries, err = b.List(ctx, p, false)
		default:
			entries = []backends.Entry{*st}
		}
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrNoFilesFound
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, common.ErrNoFilesFound
	}

	infos := make([]models.FileInfo, 0, len(entries))
	for _, e := range entries {
		entryPath := e.Path
		infos = append(infos, models.FileInfo{
			Title:      e.Name,
			URL:        b.URL(e.Path),
			MimeType:   resolveMime(e.ContentType, e.Name, func() (io.ReadCloser, error) { return b.Open(ctx, entryPath) }),
			Size:       e.Size,
			ModifiedAt: e.ModifiedAt,
		})
	}

	return dedupe(ctx, h.index, h.journal, infos)
}

func (h *remoteHandler) IsAvailable(ctx context.Context, rawURL string, login *models.Login) (bool, error) {
	b, p, _, err := h.connect(ctx, rawURL, login)
	if err != nil {
		return false, err
	}
	defer b.Close()

	st, err := b.Stat(ctx, p)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !st.IsDir, nil
}

func (h *remoteHandler) Open(ctx context.Context, rawURL string, login *models.Login) (io.ReadCloser, error) {
	b, p, _, err := h.connect(ctx, rawURL, login)
	if err != nil {
		return nil, err
	}
	rc, err := b.Open(ctx, p)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return &backendReader{ReadCloser: rc, backend: b}, nil
}

// backendReader closes the back-end together with the stream.
type backendReader struct {
	io.ReadCloser
	backend backends.Backend
}

func (r *backendReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.backend.Close(); err == nil {
		err = cerr
	}
	return err
}

func unescapedPath(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	return path.Clean(p)
}
