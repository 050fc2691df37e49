package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/timex"
	"github.com/studio-b12/gowebdav"
)

const defaultWebDAVTimeout = 30 * time.Second

// WebDAVConfig addresses a WebDAV collection over http or https.
type WebDAVConfig struct {
	BaseURL  string         `json:"base_url"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Timeout  timex.Duration `json:"timeout,omitempty"`
}

func (c *WebDAVConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("base_url must be an http or https URL")
	}
	return nil
}

// davClient is the subset of *gowebdav.Client used here.
type davClient interface {
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	ReadStream(path string) (io.ReadCloser, error)
	WriteStream(path string, stream io.Reader, mode os.FileMode) error
	Remove(path string) error
	MkdirAll(path string, mode os.FileMode) error
}

var newDAVClient = func(base, user, password string, timeout time.Duration) davClient {
	c := gowebdav.NewClient(base, user, password)
	c.SetTimeout(timeout)
	return c
}

// WebDAV is a back-end over a WebDAV collection.
type WebDAV struct {
	client davClient
	base   *url.URL
}

func NewWebDAV(cfg WebDAVConfig) *WebDAV {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultWebDAVTimeout
	}
	base, _ := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	return &WebDAV{client: newDAVClient(cfg.BaseURL, cfg.Username, cfg.Password, timeout), base: base}
}

func (w *WebDAV) Kind() string { return KindWebDAV }

func davEntry(p string, fi os.FileInfo) Entry {
	e := Entry{
		Path:       cleanPath(p),
		Name:       fi.Name(),
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime(),
		IsDir:      fi.IsDir(),
	}
	if ct, ok := fi.(interface{ ContentType() string }); ok {
		e.ContentType = ct.ContentType()
	}
	return e
}

func davPath(p string) string {
	return "/" + cleanPath(p)
}

func (w *WebDAV) Stat(_ context.Context, p string) (*Entry, error) {
	fi, err := w.client.Stat(davPath(p))
	if gowebdav.IsErrNotFound(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("propfind %s: %w", p, err)
	}
	e := davEntry(p, fi)
	return &e, nil
}

func (w *WebDAV) List(ctx context.Context, dir string, recursive bool) ([]Entry, error) {
	var out []Entry
	if err := w.walk(ctx, cleanPath(dir), recursive, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *WebDAV) walk(ctx context.Context, dir string, recursive bool, out *[]Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	infos, err := w.client.ReadDir(davPath(dir))
	if gowebdav.IsErrNotFound(err) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("propfind %s: %w", dir, err)
	}

	for _, fi := range infos {
		rel := path.Join(dir, fi.Name())
		if !fi.IsDir() {
			*out = append(*out, davEntry(rel, fi))
			continue
		}
		if recursive {
			if err := w.walk(ctx, rel, true, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *WebDAV) Open(_ context.Context, p string) (io.ReadCloser, error) {
	rc, err := w.client.ReadStream(davPath(p))
	if gowebdav.IsErrNotFound(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return rc, nil
}

func (w *WebDAV) Put(_ context.Context, p string, r io.Reader, _ int64) error {
	target := davPath(p)
	if dir := path.Dir(target); dir != "/" {
		if err := w.client.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkcol %s: %w", dir, err)
		}
	}
	if err := w.client.WriteStream(target, r, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}
	return nil
}

func (w *WebDAV) Delete(_ context.Context, p string) error {
	err := w.client.Remove(davPath(p))
	if gowebdav.IsErrNotFound(err) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// URL maps the collection onto the webdav/webdavs scheme so the protocol
// registry can tell it apart from plain HTTP.
func (w *WebDAV) URL(p string) string {
	if w.base == nil {
		return ""
	}
	u := *w.base
	u.User = nil
	if u.Scheme == "https" {
		u.Scheme = "webdavs"
	} else {
		u.Scheme = "webdav"
	}
	u.Path = path.Join(u.Path, davPath(p))
	return u.String()
}

func (w *WebDAV) Close() error { return nil }
