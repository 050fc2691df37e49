// Package protocols resolves URLs into file metadata and content, one
// Handler per supported scheme, dispatched by an ordered Registry.
package protocols

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

// Handler knows how to validate, resolve and fetch one kind of URL.
type Handler interface {
	Name() string
	// IsURLCompatible is a cheap syntactic test used for dispatch.
	IsURLCompatible(rawURL string) bool
	// CheckURL is the deeper validity test.
	CheckURL(rawURL string) bool
	// URLInfos resolves rawURL into one FileInfo per file. Files whose URL
	// is already imported are dropped with a warning; when nothing is left
	// the error is common.ErrDuplicate.
	URLInfos(ctx context.Context, rawURL string, login *models.Login) ([]models.FileInfo, error)
	// ShouldBeSavedLocal reports whether imported files must be cached
	// because the remote URL is not a stable public reference.
	ShouldBeSavedLocal() bool
	// CanChangeHosting reports whether the file can later move to another
	// physical store without breaking references.
	CanChangeHosting() bool
	IsAvailable(ctx context.Context, rawURL string, login *models.Login) (bool, error)
	Open(ctx context.Context, rawURL string, login *models.Login) (io.ReadCloser, error)
}

// URLIndex answers duplicate checks against stored files.
type URLIndex interface {
	ExistsURL(ctx context.Context, url string) (bool, error)
}

// Journal is the event sink handlers report to.
type Journal interface {
	Warning(ctx context.Context, level int, msg, url string)
	Info(ctx context.Context, level int, msg, url string)
}

// parse accepts absolute URLs with one of schemes.
func parse(rawURL string, schemes ...string) (*url.URL, bool) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return u, true
		}
	}
	return nil, false
}

func hasScheme(rawURL string, schemes ...string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	for _, s := range schemes {
		if strings.HasPrefix(lower, s+"://") {
			return true
		}
	}
	return false
}

// dedupe drops infos whose URL is already stored.
func dedupe(ctx context.Context, index URLIndex, journal Journal, infos []models.FileInfo) ([]models.FileInfo, error) {
	if index == nil {
		return infos, nil
	}

	out := infos[:0]
	dropped := 0
	for _, fi := range infos {
		exists, err := index.ExistsURL(ctx, fi.URL)
		if err != nil {
			return nil, err
		}
		if exists {
			dropped++
			if journal != nil {
				journal.Warning(ctx, logging.LevelEssential, "duplicate url skipped", fi.URL)
			}
			continue
		}
		out = append(out, fi)
	}

	if len(out) == 0 && dropped > 0 {
		return nil, common.ErrDuplicate
	}
	return out, nil
}

// loginFromURL returns explicit credentials, falling back to URL userinfo.
func loginFromURL(u *url.URL, login *models.Login) *models.Login {
	if !login.Empty() {
		return login
	}
	if u.User == nil {
		return nil
	}
	pw, _ := u.User.Password()
	return &models.Login{Username: u.User.Username(), Password: pw}
}
