package logging

import (
	"context"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

// Verbosity levels passed to Journal.Record. Lower is more important.
const (
	LevelEssential = 0
	LevelNormal    = 1
	LevelDetailed  = 2
	LevelTrace     = 3
)

// DefaultRetention is how long journal rows are kept before Prune removes them.
const DefaultRetention = 50 * 24 * time.Hour

// Store persists journal rows.
type Store interface {
	Append(ctx context.Context, e *models.LogEntry) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Journal is the pipeline's event sink. Fatal and error events are always
// recorded; warnings and info only when their level does not exceed the
// current verbosity, which is re-read on every call.
type Journal struct {
	log       Logger
	store     Store
	verbosity func() int
	now       func() time.Time
}

// NewJournal builds a Journal. A nil store only logs; a nil verbosity func
// means LevelNormal.
func NewJournal(log Logger, store Store, verbosity func() int) *Journal {
	if verbosity == nil {
		verbosity = func() int { return LevelNormal }
	}
	return &Journal{log: log, store: store, verbosity: verbosity, now: time.Now}
}

// Record logs msg for url at severity. level is ignored for fatal and error.
func (j *Journal) Record(ctx context.Context, severity models.Severity, level int, msg, url string) {
	if severity != models.SeverityFatal && severity != models.SeverityError && level > j.verbosity() {
		return
	}

	url = common.RedactURL(url)

	switch severity {
	case models.SeverityFatal, models.SeverityError:
		j.log.Error(ctx, msg, "url", url, "severity", string(severity))
	case models.SeverityWarning:
		j.log.Warn(ctx, msg, "url", url)
	default:
		j.log.Info(ctx, msg, "url", url, "level", level)
	}

	if j.store == nil {
		return
	}

	e := &models.LogEntry{CreatedAt: j.now().UTC(), Message: msg, URL: url, Severity: severity}
	if err := j.store.Append(ctx, e); err != nil {
		j.log.Error(ctx, "cannot persist journal entry", "error", err)
	}
}

func (j *Journal) Error(ctx context.Context, msg, url string) {
	j.Record(ctx, models.SeverityError, LevelEssential, msg, url)
}

func (j *Journal) Warning(ctx context.Context, level int, msg, url string) {
	j.Record(ctx, models.SeverityWarning, level, msg, url)
}

func (j *Journal) Info(ctx context.Context, level int, msg, url string) {
	j.Record(ctx, models.SeverityInfo, level, msg, url)
}

// Prune removes rows older than retention and returns how many were deleted.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if j.store == nil {
		return 0, nil
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := j.store.DeleteOlderThan(ctx, j.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	j.log.Info(ctx, "journal pruned", "deleted", n)
	return n, nil
}
