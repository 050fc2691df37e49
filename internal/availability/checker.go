// Package availability re-validates stored files: a file is available when
// its source is reachable and its mime type is still allowed.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/protocols"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4
	pageSize           = 200
)

type MimePolicy interface {
	MimeAllowed(mime string) bool
}

// Cipher opens the logins kept with imported files.
type Cipher interface {
	Decrypt(ciphertext string) (string, error)
}

type Journal interface {
	Warning(ctx context.Context, level int, msg, url string)
	Info(ctx context.Context, level int, msg, url string)
}

type Stats struct {
	Checked     int
	Available   int
	Unavailable int
}

type Checker struct {
	files       files.Repository
	registry    *protocols.Registry
	policy      MimePolicy
	journal     Journal
	cipher      Cipher
	concurrency int
	now         func() time.Time
}

func NewChecker(files files.Repository, registry *protocols.Registry, policy MimePolicy, journal Journal, concurrency int) *Checker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Checker{
		files:       files,
		registry:    registry,
		policy:      policy,
		journal:     journal,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SetCipher lets checks authenticate with the login a file was imported
// with. Without a cipher every check is anonymous.
func (c *Checker) SetCipher(cipher Cipher) {
	c.cipher = cipher
}

// CheckAll pages through every file and updates its availability with at
// most concurrency checks in flight. Only storage errors are returned.
func (c *Checker) CheckAll(ctx context.Context) (Stats, error) {
	c.journal.Info(ctx, logging.LevelDetailed, "availability check started", "")

	var (
		mu    sync.Mutex
		stats Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	after := ""
	for {
		page, err := c.files.ListPage(gctx, after, pageSize)
		if err != nil {
			_ = g.Wait()
			return stats, err
		}
		for _, f := range page {
			f := f
			g.Go(func() error {
				ok, err := c.Check(gctx, f)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				stats.Checked++
				if ok {
					stats.Available++
				} else {
					stats.Unavailable++
				}
				return nil
			})
		}
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	c.journal.Info(ctx, logging.LevelDetailed, "availability check finished", "")
	return stats, nil
}

// Check re-derives one file's availability and stores it with a new
// CheckedAt. A disallowed mime type makes the file unavailable without any
// network call.
func (c *Checker) Check(ctx context.Context, f *models.File) (bool, error) {
	available := c.policy.MimeAllowed(f.MimeType) && c.reachable(ctx, f)

	if available != f.Available {
		c.journal.Info(ctx, logging.LevelNormal, availabilityMsg(available), f.URL)
	}
	if err := c.files.SetAvailability(ctx, f.ID, available, c.now().UTC()); err != nil {
		return false, err
	}
	return available, nil
}

func (c *Checker) reachable(ctx context.Context, f *models.File) bool {
	h, err := c.registry.Resolve(f.URL)
	if err != nil {
		c.journal.Warning(ctx, logging.LevelNormal, err.Error(), f.URL)
		return false
	}
	ok, err := h.IsAvailable(ctx, f.URL, c.login(ctx, f))
	if err != nil {
		c.journal.Warning(ctx, logging.LevelDetailed, "unreachable: "+err.Error(), f.URL)
		return false
	}
	return ok
}

// login returns the stored import login of f, or nil.
func (c *Checker) login(ctx context.Context, f *models.File) *models.Login {
	if c.cipher == nil {
		return nil
	}
	ct, err := c.files.GetMeta(ctx, f.ID, common.MetaLogin)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		c.journal.Warning(ctx, logging.LevelDetailed, "stored login not loaded: "+err.Error(), f.URL)
		return nil
	}
	plain, err := c.cipher.Decrypt(ct)
	if err != nil {
		c.journal.Warning(ctx, logging.LevelNormal, "stored login unusable: "+err.Error(), f.URL)
		return nil
	}
	raw := []byte(plain)
	defer common.WipeByteArray(raw)

	var login models.Login
	if err := json.Unmarshal(raw, &login); err != nil {
		c.journal.Warning(ctx, logging.LevelNormal, "stored login unusable: "+err.Error(), f.URL)
		return nil
	}
	return &login
}

func availabilityMsg(available bool) string {
	if available {
		return "file is available again"
	}
	return "file became unavailable"
}
