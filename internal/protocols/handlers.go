package protocols

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/spf13/afero"
)

// Handler names.
const (
	NameFile   = "file"
	NameFTP    = "ftp"
	NameS3     = "s3"
	NameWebDAV = "webdav"
	NameHTTP   = "http"
)

// Deps are the collaborators shared by the built-in handlers.
type Deps struct {
	Index    URLIndex
	Journal  Journal
	Services ServiceMatcher

	// Blob receives content the HTTP handler stages for sniffing.
	Blob          *blob.Storage
	HTTPClient    *http.Client
	MaxStageBytes int64

	// FS backs the file handler; nil means the host filesystem.
	FS afero.Fs
	// OpenBackend builds remote back-ends; nil means backends.OpenConfig.
	OpenBackend func(ctx context.Context, cfg backends.Config) (backends.Backend, error)
}

func (d Deps) openBackend() func(ctx context.Context, cfg backends.Config) (backends.Backend, error) {
	if d.OpenBackend != nil {
		return d.OpenBackend
	}
	return backends.OpenConfig
}

func (d Deps) match(kind, host string) backends.Config {
	if d.Services == nil {
		return nil
	}
	svc, ok := d.Services.Match(kind, host)
	if !ok {
		return nil
	}
	return svc.Config
}

// NewDefaultRegistry registers the built-in handlers in priority order:
// file, ftp, s3, webdav and finally generic http(s).
func NewDefaultRegistry(d Deps) *Registry {
	return NewRegistry(
		NewFileHandler(d),
		NewFTPHandler(d),
		NewS3Handler(d),
		NewWebDAVHandler(d),
		NewHTTPHandler(d),
	)
}

// NewFileHandler serves file:// URLs from the local filesystem. Content is
// always cached because a local path is not servable.
func NewFileHandler(d Deps) Handler {
	fs := d.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &remoteHandler{
		name:             NameFile,
		schemes:          []string{"file"},
		savedLocal:       true,
		canChangeHosting: true,
		index:            d.Index,
		journal:          d.Journal,
		open: func(_ context.Context, u *url.URL, _ *models.Login) (backends.Backend, string, error) {
			return backends.NewLocalWithFS(fs, "/"), unescapedPath(u), nil
		},
	}
}

// NewFTPHandler serves ftp:// URLs. Credentials come from the call, the URL
// userinfo or a stored ftp service for the same host, in that order.
func NewFTPHandler(d Deps) Handler {
	openBackend := d.openBackend()
	return &remoteHandler{
		name:             NameFTP,
		schemes:          []string{"ftp"},
		savedLocal:       true,
		canChangeHosting: true,
		index:            d.Index,
		journal:          d.Journal,
		open: func(ctx context.Context, u *url.URL, login *models.Login) (backends.Backend, string, error) {
			cfg := backends.FTPConfig{}
			if stored, ok := d.match(backends.KindFTP, u.Host).(*backends.FTPConfig); ok {
				cfg = *stored
			}
			cfg.Host = u.Host
			cfg.Root = ""
			if l := loginFromURL(u, login); l != nil {
				cfg.Username, cfg.Password = l.Username, l.Password
			}
			b, err := openBackend(ctx, &cfg)
			return b, unescapedPath(u), err
		},
	}
}

// NewS3Handler serves s3://bucket/key URLs. Object URLs are not stable
// public references, so content is cached and the hosting is fixed.
func NewS3Handler(d Deps) Handler {
	openBackend := d.openBackend()
	return &remoteHandler{
		name:             NameS3,
		schemes:          []string{"s3"},
		savedLocal:       true,
		canChangeHosting: false,
		index:            d.Index,
		journal:          d.Journal,
		open: func(ctx context.Context, u *url.URL, login *models.Login) (backends.Backend, string, error) {
			cfg := backends.S3Config{}
			if stored, ok := d.match(backends.KindS3, u.Host).(*backends.S3Config); ok {
				cfg = *stored
			}
			cfg.Bucket = u.Host
			cfg.Prefix = ""
			if !login.Empty() {
				cfg.AccessKey, cfg.SecretKey = login.Username, login.Password
			}
			b, err := openBackend(ctx, &cfg)
			return b, unescapedPath(u), err
		},
	}
}

// NewWebDAVHandler serves webdav:// (http) and webdavs:// (https) URLs.
func NewWebDAVHandler(d Deps) Handler {
	openBackend := d.openBackend()
	return &remoteHandler{
		name:             NameWebDAV,
		schemes:          []string{"webdav", "webdavs"},
		savedLocal:       true,
		canChangeHosting: true,
		index:            d.Index,
		journal:          d.Journal,
		open: func(ctx context.Context, u *url.URL, login *models.Login) (backends.Backend, string, error) {
			cfg := backends.WebDAVConfig{}
			if stored, ok := d.match(backends.KindWebDAV, u.Host).(*backends.WebDAVConfig); ok {
				cfg = *stored
			}
			scheme := "http"
			if u.Scheme == "webdavs" {
				scheme = "https"
			}
			cfg.BaseURL = scheme + "://" + u.Host
			if l := loginFromURL(u, login); l != nil {
				cfg.Username, cfg.Password = l.Username, l.Password
			}
			b, err := openBackend(ctx, &cfg)
			return b, unescapedPath(u), err
		},
	}
}
