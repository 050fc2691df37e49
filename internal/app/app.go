// Package app is the assembly root: it opens the stores named by the
// configuration and wires every pipeline component with explicit
// dependencies.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/extmedia/internal/availability"
	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/config"
	"github.com/dmitrijs2005/extmedia/internal/credentials"
	"github.com/dmitrijs2005/extmedia/internal/cryptox"
	"github.com/dmitrijs2005/extmedia/internal/exporter"
	"github.com/dmitrijs2005/extmedia/internal/filex"
	"github.com/dmitrijs2005/extmedia/internal/importer"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/netx"
	"github.com/dmitrijs2005/extmedia/internal/protocols"
	"github.com/dmitrijs2005/extmedia/internal/queue"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
	"github.com/dmitrijs2005/extmedia/internal/repositories/logs"
	"github.com/dmitrijs2005/extmedia/internal/repositories/repomanager"
	"github.com/dmitrijs2005/extmedia/internal/repositories/terms"
	"github.com/dmitrijs2005/extmedia/internal/scheduler"
	"github.com/dmitrijs2005/extmedia/internal/settings"
	"github.com/dmitrijs2005/extmedia/internal/synchronizer"
	"github.com/redis/go-redis/v9"
)

// lockPrefix namespaces the sync locks in a shared redis.
const lockPrefix = "extmedia:"

// openDB is a seam for tests.
var openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var newRepositoryManager = func() repomanager.RepositoryManager {
	return repomanager.NewPostgresRepositoryManager()
}

type App struct {
	Config *config.Config
	Log    logging.Logger

	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Settings settings.Store
	Blob     *blob.Storage

	Files    files.Repository
	Terms    terms.Repository
	Logs     logs.Repository
	Crypt    *cryptox.Crypt
	Services *credentials.Store
	Journal  *logging.Journal
	Registry *protocols.Registry
	Policy   *importer.Policy

	Importer  *importer.Importer
	Checker   *availability.Checker
	Queue     *queue.Service
	Exporter  *exporter.Engine
	Sync      *synchronizer.Engine
	Scheduler *scheduler.Scheduler

	closers []func() error
}

// New opens the database, runs pending migrations, opens the settings and
// blob stores and wires the components.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	a.Repos = newRepositoryManager()
	if err := a.Repos.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	settingsPath, err := filex.EnsureFileDir(cfg.SettingsPath)
	if err != nil {
		return err
	}
	store, err := settings.OpenBolt(settingsPath)
	if err != nil {
		return err
	}
	a.Settings = store
	a.closers = append(a.closers, store.Close)

	root, err := filex.EnsureDir(cfg.StorageRoot)
	if err != nil {
		return err
	}
	a.Blob = blob.NewOS(root)
	return nil
}

// wire builds the components on top of the opened stores.
func (a *App) wire() error {
	cfg := a.Config

	a.Files = a.Repos.Files(a.DB)
	a.Terms = a.Repos.Terms(a.DB)
	a.Logs = a.Repos.Logs(a.DB)

	crypt, err := cryptox.New(a.Settings, cfg.CryptStrategy, a.Log)
	if err != nil {
		return err
	}
	a.Crypt = crypt
	a.Services = credentials.New(a.Settings, crypt)

	a.Journal = logging.NewJournal(a.Log, a.Logs, func() int {
		return settings.Int(a.Settings, common.SettingLogVerbosity, cfg.LogVerbosity)
	})

	a.Registry = protocols.NewDefaultRegistry(protocols.Deps{
		Index:         a.Files,
		Journal:       a.Journal,
		Services:      a.Services,
		Blob:          a.Blob,
		HTTPClient:    netx.NewClient(cfg.HTTPTimeout),
		MaxStageBytes: cfg.MaxStageBytes,
	})
	a.Policy = importer.NewPolicy(a.Settings, cfg.AllowedMimeTypes, cfg.AlwaysDownload)

	a.Importer = importer.New(a.Registry, a.Files, a.Blob, a.Policy, a.Journal)
	a.Exporter = exporter.NewEngine(a.Files, a.Blob, a.Services, a.Journal)
	a.Queue = queue.NewService(a.DB, a.Repos, crypt, a.Importer, a.Exporter, a.Journal, queue.Options{
		BatchSize:    cfg.QueueBatchSize,
		MaxAttempts:  cfg.QueueMaxAttempts,
		MaxAge:       cfg.QueueMaxAge,
		LeaseTimeout: cfg.QueueLeaseTimeout,
	})
	a.Importer.SetQueue(a.Queue)
	a.Importer.SetCipher(a.Crypt)
	a.Checker = availability.NewChecker(a.Files, a.Registry, a.Policy, a.Journal, cfg.CheckConcurrency)
	a.Checker.SetCipher(a.Crypt)

	locker, err := a.locker()
	if err != nil {
		return err
	}
	policy, err := synchronizer.ParsePrunePolicy(cfg.SyncPrunePolicy)
	if err != nil {
		return err
	}
	a.Sync = synchronizer.NewEngine(a.Files, a.Terms, a.Services, a.Importer, a.Exporter, locker, a.Journal, a.Policy, policy)

	a.Scheduler = scheduler.New(a.Settings, scheduler.DefaultIntervals, a.Journal, a.Log, cfg.SchedulerTick)
	a.Scheduler.Add(
		scheduler.CheckFilesJob(a.Checker),
		scheduler.QueueDrainJob(a.Queue),
		scheduler.LogPruneJob(a.Journal, cfg.LogRetention),
	)
	a.Scheduler.AddSource(scheduler.SyncJobs(a.Terms, a.Sync))
	return nil
}

// locker serializes passes over one term: across processes when a redis
// URL is configured, otherwise within this process only.
func (a *App) locker() (synchronizer.Locker, error) {
	if a.Config.RedisURL == "" {
		return synchronizer.NewMemoryLocker(), nil
	}
	opts, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, rdb.Close)
	return synchronizer.NewRedisLocker(rdb, lockPrefix), nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	return a.Repos.RunMigrations(ctx, a.DB)
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
