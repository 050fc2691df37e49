// Package queue defers import and export requests and drains them in
// bounded batches.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/dbx"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	queuerepo "github.com/dmitrijs2005/extmedia/internal/repositories/queue"
	"github.com/dmitrijs2005/extmedia/internal/repositories/repomanager"
)

// Defaults for Options fields left at zero.
const (
	DefaultBatchSize    = 10
	DefaultMaxAttempts  = 3
	DefaultMaxAge       = 7 * 24 * time.Hour
	DefaultLeaseTimeout = 30 * time.Minute
)

type Importer interface {
	AddURL(ctx context.Context, url string, opts models.ImportOptions) (models.URLResult, error)
}

type Exporter interface {
	Export(ctx context.Context, fileID, service, target string, login *models.Login) (string, error)
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Journal interface {
	Error(ctx context.Context, msg, url string)
	Info(ctx context.Context, level int, msg, url string)
}

type Options struct {
	// BatchSize bounds how many entries one drain claims.
	BatchSize int
	// MaxAttempts caps how often a failed entry is claimed again.
	MaxAttempts int
	// MaxAge evicts entries, failed or not, created longer ago.
	MaxAge time.Duration
	// LeaseTimeout releases processing entries abandoned by a dead drain.
	LeaseTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = DefaultLeaseTimeout
	}
	return o
}

// Stats summarises one drain.
type Stats struct {
	Released int64
	Evicted  int64
	Claimed  int
	Done     int
	Failed   int
	// Skipped is set when another drain of this process was in flight.
	Skipped bool
}

type Service struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	cipher   Cipher
	importer Importer
	exporter Exporter
	journal  Journal
	opts     Options

	running atomic.Bool
	now     func() time.Time
}

func NewService(db *sql.DB, repos repomanager.RepositoryManager, cipher Cipher, importer Importer, exporter Exporter, journal Journal, opts Options) *Service {
	return &Service{
		db:       db,
		repos:    repos,
		cipher:   cipher,
		importer: importer,
		exporter: exporter,
		journal:  journal,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Enqueue stores a pending entry. The options are encrypted because they
// may carry credentials.
func (s *Service) Enqueue(ctx context.Context, url string, op models.Operation, opts models.QueueOptions) (*models.QueueEntry, error) {
	url = strings.TrimSpace(url)
	if !queuerepo.OperationValid(op) {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	if op == models.OperationImport && url == "" {
		return nil, common.ErrNoURLs
	}
	if op == models.OperationExport && (opts.FileID == "" || opts.Service == "") {
		return nil, errors.New("export entries need a file and a service")
	}

	opts.Import.Queue = false
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	config, err := s.cipher.Encrypt(string(b))
	if err != nil {
		return nil, fmt.Errorf("encrypt options: %w", err)
	}

	row := &queuerepo.Row{URL: url, Operation: op, Config: config}
	if err := s.repos.Queue(s.db).Insert(ctx, row); err != nil {
		return nil, err
	}

	s.journal.Info(ctx, logging.LevelDetailed, fmt.Sprintf("%s queued as entry %d", op, row.ID), url)

	entry := toEntry(row)
	entry.Options = opts
	return entry, nil
}

// Process drains one batch. Housekeeping and the claim run in a single
// transaction; every claimed entry is then either deleted on success or
// kept as failed with the reason. Overlapping calls in one process are
// skipped; overlapping processes are kept apart by the claim itself.
func (s *Service) Process(ctx context.Context) (Stats, error) {
	var stats Stats
	if !s.running.CompareAndSwap(false, true) {
		s.journal.Info(ctx, logging.LevelDetailed, "queue drain already running, skipped", "")
		stats.Skipped = true
		return stats, nil
	}
	defer s.running.Store(false)

	var rows []*queuerepo.Row
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Queue(tx)
		now := s.now()

		var err error
		if stats.Released, err = repo.ReleaseStale(ctx, now.Add(-s.opts.LeaseTimeout)); err != nil {
			return err
		}
		if stats.Evicted, err = repo.EvictOlderThan(ctx, now.Add(-s.opts.MaxAge)); err != nil {
			return err
		}
		rows, err = repo.Claim(ctx, s.opts.BatchSize, s.opts.MaxAttempts)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("claim queue batch: %w", err)
	}
	stats.Claimed = len(rows)

	repo := s.repos.Queue(s.db)
	for _, row := range rows {
		if err := s.run(ctx, row); err != nil {
			stats.Failed++
			s.journal.Error(ctx, fmt.Sprintf("queue entry %d failed: %v", row.ID, err), row.URL)
			if err := repo.MarkFailed(ctx, row.ID, common.Reason(err)); err != nil {
				return stats, err
			}
			continue
		}
		stats.Done++
		if err := repo.Delete(ctx, row.ID); err != nil {
			return stats, err
		}
	}

	if stats.Claimed > 0 || stats.Evicted > 0 {
		s.journal.Info(ctx, logging.LevelNormal,
			fmt.Sprintf("queue drained: %d done, %d failed, %d evicted", stats.Done, stats.Failed, stats.Evicted), "")
	}
	return stats, nil
}

func (s *Service) run(ctx context.Context, row *queuerepo.Row) error {
	plain, err := s.cipher.Decrypt(row.Config)
	if err != nil {
		return err
	}
	var opts models.QueueOptions
	if err := json.Unmarshal([]byte(plain), &opts); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecrypt, err)
	}

	switch row.Operation {
	case models.OperationImport:
		opts.Import.Queue = false
		res, err := s.importer.AddURL(ctx, row.URL, opts.Import)
		if err != nil {
			return err
		}
		if !res.OK {
			return errors.New(res.Reason)
		}
		return nil
	case models.OperationExport:
		if s.exporter == nil {
			return errors.New("export is not configured")
		}
		_, err := s.exporter.Export(ctx, opts.FileID, opts.Service, row.URL, opts.Import.Login)
		return err
	default:
		return fmt.Errorf("unknown operation %q", row.Operation)
	}
}

// List returns up to limit entries without their options.
func (s *Service) List(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	rows, err := s.repos.Queue(s.db).List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.QueueEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, toEntry(r))
	}
	return out, nil
}

// Retry makes a failed entry eligible again with a fresh attempt budget.
func (s *Service) Retry(ctx context.Context, id int64) error {
	return s.repos.Queue(s.db).Retry(ctx, id)
}

func toEntry(r *queuerepo.Row) *models.QueueEntry {
	return &models.QueueEntry{
		ID:        r.ID,
		URL:       r.URL,
		Operation: r.Operation,
		State:     r.State,
		Attempts:  r.Attempts,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
