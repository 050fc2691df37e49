// Package backends gives one storage interface over the remote stores the
// pipeline imports from, exports to and synchronizes against.
package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
)

// Back-end kinds.
const (
	KindLocal  = "local"
	KindS3     = "s3"
	KindFTP    = "ftp"
	KindWebDAV = "webdav"
)

// Entry describes one object on a back-end.
type Entry struct {
	// Path is slash-separated and relative to the back-end root.
	Path        string
	Name        string
	Size        int64
	ModifiedAt  time.Time
	IsDir       bool
	ContentType string
}

// Backend is a remote (or local) object store.
type Backend interface {
	Kind() string
	// Stat returns common.ErrorNotFound when nothing exists at p.
	Stat(ctx context.Context, p string) (*Entry, error)
	// List returns the files below dir. Directories are descended into only
	// when recursive is set and are never returned themselves.
	List(ctx context.Context, dir string, recursive bool) ([]Entry, error)
	Open(ctx context.Context, p string) (io.ReadCloser, error)
	// Put writes r to p. size may be -1 when unknown.
	Put(ctx context.Context, p string, r io.Reader, size int64) error
	Delete(ctx context.Context, p string) error
	// URL is the canonical URL of p, without credentials.
	URL(p string) string
	Close() error
}

// Config is implemented by every per-kind configuration.
type Config interface {
	Validate() error
}

// Open builds a back-end of kind from its JSON configuration.
func Open(ctx context.Context, kind string, raw json.RawMessage) (Backend, error) {
	cfg, err := DecodeConfig(kind, raw)
	if err != nil {
		return nil, err
	}
	return OpenConfig(ctx, cfg)
}

// DecodeConfig parses and validates a stored configuration.
func DecodeConfig(kind string, raw json.RawMessage) (Config, error) {
	var cfg Config
	switch kind {
	case KindLocal:
		cfg = &LocalConfig{}
	case KindS3:
		cfg = &S3Config{}
	case KindFTP:
		cfg = &FTPConfig{}
	case KindWebDAV:
		cfg = &WebDAVConfig{}
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownService, kind)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", kind, err)
	}
	return cfg, nil
}

// OpenConfig builds a back-end from an already decoded configuration.
func OpenConfig(ctx context.Context, cfg Config) (Backend, error) {
	switch c := cfg.(type) {
	case *LocalConfig:
		return NewLocal(*c), nil
	case *S3Config:
		return NewS3(ctx, *c)
	case *FTPConfig:
		return NewFTP(ctx, *c)
	case *WebDAVConfig:
		return NewWebDAV(*c), nil
	default:
		return nil, fmt.Errorf("%w: %T", common.ErrUnknownService, cfg)
	}
}

// WithCredentials returns a copy of cfg using username and password. Local
// configurations carry no credentials and are returned unchanged.
func WithCredentials(cfg Config, username, password string) Config {
	switch c := cfg.(type) {
	case *S3Config:
		cp := *c
		cp.AccessKey, cp.SecretKey = username, password
		return &cp
	case *FTPConfig:
		cp := *c
		cp.Username, cp.Password = username, password
		return &cp
	case *WebDAVConfig:
		cp := *c
		cp.Username, cp.Password = username, password
		return &cp
	default:
		return cfg
	}
}

// PathOf maps a URL produced by b.URL back to a path on b. URLs of another
// host or outside the back-end root yield common.ErrInvalidURL.
func PathOf(b Backend, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidURL, err)
	}
	base, err := url.Parse(b.URL(""))
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %s is not on this service", common.ErrInvalidURL, common.RedactURL(rawURL))
	}

	root := strings.TrimSuffix(base.Path, "/")
	if u.Path != root && !strings.HasPrefix(u.Path, root+"/") {
		return "", fmt.Errorf("%w: %s is outside the service root", common.ErrInvalidURL, common.RedactURL(rawURL))
	}
	return cleanPath(strings.TrimPrefix(u.Path, root)), nil
}

// cleanPath normalizes p to a slash path without leading slash.
func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
