// Package synchronizer reconciles the files of a directory term against the
// current listing of its remote directory.
package synchronizer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
	"github.com/dmitrijs2005/extmedia/internal/repositories/terms"
)

// PrunePolicy decides what happens to files removed upstream.
type PrunePolicy string

const (
	// PruneMark keeps the file and marks it unavailable.
	PruneMark PrunePolicy = "mark"
	// PruneDelete removes the file with its cached content and exports.
	PruneDelete PrunePolicy = "delete"
)

// ParsePrunePolicy maps "" to PruneMark.
func ParsePrunePolicy(s string) (PrunePolicy, error) {
	switch PrunePolicy(s) {
	case "", PruneMark:
		return PruneMark, nil
	case PruneDelete:
		return PruneDelete, nil
	default:
		return "", fmt.Errorf("unknown prune policy %q", s)
	}
}

const DefaultLockTTL = time.Hour

type Importer interface {
	AddURL(ctx context.Context, url string, opts models.ImportOptions) (models.URLResult, error)
}

type Remover interface {
	RemoveFile(ctx context.Context, fileID string) error
}

type Services interface {
	Backend(ctx context.Context, name string) (backends.Backend, error)
}

// MimePolicy is the current mime allow-list.
type MimePolicy interface {
	MimeAllowed(mime string) bool
}

type Journal interface {
	Error(ctx context.Context, msg, url string)
	Info(ctx context.Context, level int, msg, url string)
}

// Result summarises one pass.
type Result struct {
	Listed   int
	Added    int
	Failed   int
	Pruned   int
	Restored int
	// Skipped is set when the term is disabled or another pass holds it.
	Skipped bool
}

type Engine struct {
	files    files.Repository
	terms    terms.Repository
	services Services
	importer Importer
	remover  Remover
	locker   Locker
	journal  Journal
	mimes    MimePolicy
	policy   PrunePolicy
	lockTTL  time.Duration
	now      func() time.Time
}

func NewEngine(files files.Repository, terms terms.Repository, services Services, importer Importer,
	remover Remover, locker Locker, journal Journal, mimes MimePolicy, policy PrunePolicy) *Engine {
	if policy == "" {
		policy = PruneMark
	}
	return &Engine{
		files:    files,
		terms:    terms,
		services: services,
		importer: importer,
		remover:  remover,
		locker:   locker,
		journal:  journal,
		mimes:    mimes,
		policy:   policy,
		lockTTL:  DefaultLockTTL,
		now:      time.Now,
	}
}

// SyncTerm loads the term, connects to its service and runs one pass.
func (e *Engine) SyncTerm(ctx context.Context, termID string) (Result, error) {
	term, err := e.terms.Get(ctx, termID)
	if err != nil {
		return Result{}, err
	}
	if !term.Enabled {
		e.journal.Info(ctx, logging.LevelDetailed, "term "+term.Name+" is disabled, skipped", term.DirectoryURL)
		return Result{Skipped: true}, nil
	}

	b, err := e.services.Backend(ctx, term.Service)
	if err != nil {
		e.journal.Error(ctx, fmt.Sprintf("sync of %s aborted: %v", term.Name, err), term.DirectoryURL)
		return Result{}, err
	}
	defer b.Close()

	return e.Sync(ctx, term.DirectoryURL, b, term)
}

// Sync lists dirURL on b and reconciles the term's files against it: new
// remote files are imported, files gone upstream are pruned per policy and
// pruned files that reappear are marked available again unless their mime
// type is no longer allowed. A failed listing
// aborts the pass before anything is changed.
func (e *Engine) Sync(ctx context.Context, dirURL string, b backends.Backend, term *models.DirectoryTerm) (Result, error) {
	var res Result

	release, ok, err := e.locker.Lock(ctx, "sync:"+term.ID, e.lockTTL)
	if err != nil {
		return res, fmt.Errorf("lock term %s: %w", term.Name, err)
	}
	if !ok {
		e.journal.Info(ctx, logging.LevelDetailed, "sync of "+term.Name+" already running, skipped", dirURL)
		res.Skipped = true
		return res, nil
	}
	defer release()

	e.journal.Info(ctx, logging.LevelDetailed, "sync of "+term.Name+" started", dirURL)

	entries, err := e.list(ctx, dirURL, b, term.Recursive)
	if err != nil {
		e.journal.Error(ctx, fmt.Sprintf("sync of %s aborted: listing failed: %v", term.Name, err), dirURL)
		return res, err
	}
	res.Listed = len(entries)

	local, err := e.files.ListByTerm(ctx, term.ID)
	if err != nil {
		return res, err
	}
	known := make(map[string]*models.File, len(local))
	for _, f := range local {
		known[f.URL] = f
	}

	remote := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		u := b.URL(entry.Path)
		remote[u] = struct{}{}

		if f, ok := known[u]; ok {
			if !f.Available && e.mimes.MimeAllowed(f.MimeType) {
				if err := e.files.SetAvailability(ctx, f.ID, true, e.now().UTC()); err != nil {
					return res, err
				}
				res.Restored++
			}
			continue
		}

		r, err := e.importer.AddURL(ctx, u, models.ImportOptions{TermID: term.ID})
		if err != nil {
			return res, err
		}
		if r.OK {
			res.Added++
		} else {
			res.Failed++
		}
	}

	for _, f := range local {
		if _, ok := remote[f.URL]; ok {
			continue
		}
		pruned, err := e.prune(ctx, f)
		if err != nil {
			return res, err
		}
		if pruned {
			res.Pruned++
		}
	}

	e.journal.Info(ctx, logging.LevelNormal,
		fmt.Sprintf("sync of %s finished: %d listed, %d added, %d pruned, %d failed",
			term.Name, res.Listed, res.Added, res.Pruned, res.Failed), dirURL)
	return res, nil
}

func (e *Engine) list(ctx context.Context, dirURL string, b backends.Backend, recursive bool) ([]backends.Entry, error) {
	dir, err := backends.PathOf(b, dirURL)
	if err != nil {
		return nil, err
	}
	return b.List(ctx, dir, recursive)
}

// prune applies the policy to a file that is gone upstream. A failed hard
// delete is journaled and left for the next pass.
func (e *Engine) prune(ctx context.Context, f *models.File) (bool, error) {
	switch e.policy {
	case PruneDelete:
		if err := e.remover.RemoveFile(ctx, f.ID); err != nil {
			e.journal.Error(ctx, "prune failed: "+err.Error(), f.URL)
			return false, nil
		}
		return true, nil
	default:
		if !f.Available {
			return false, nil
		}
		if err := e.files.SetAvailability(ctx, f.ID, false, e.now().UTC()); err != nil {
			return false, err
		}
		e.journal.Info(ctx, logging.LevelNormal, "gone upstream, marked unavailable", f.URL)
		return true, nil
	}
}
