package scheduler

import (
	"context"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/availability"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/queue"
	"github.com/dmitrijs2005/extmedia/internal/synchronizer"
)

const (
	EventCheckFiles = "check-files"
	EventQueueDrain = "queue-drain"
	EventLogPrune   = "log-prune"
	EventSync       = "sync"
)

type Checker interface {
	CheckAll(ctx context.Context) (availability.Stats, error)
}

type Drainer interface {
	Process(ctx context.Context) (queue.Stats, error)
}

type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

type Syncer interface {
	SyncTerm(ctx context.Context, termID string) (synchronizer.Result, error)
}

type TermLister interface {
	List(ctx context.Context, enabledOnly bool) ([]*models.DirectoryTerm, error)
}

// DefaultIntervals are used until an operator stores other values.
var DefaultIntervals = map[string]string{
	IntervalKey(EventCheckFiles): "daily",
	IntervalKey(EventQueueDrain): "hourly",
	IntervalKey(EventLogPrune):   "daily",
	IntervalKey(EventSync):       "twicedaily",
}

func CheckFilesJob(c Checker) Job {
	return Job{
		Event:       EventCheckFiles,
		IntervalKey: IntervalKey(EventCheckFiles),
		Run: func(ctx context.Context, _ map[string]string) error {
			_, err := c.CheckAll(ctx)
			return err
		},
	}
}

func QueueDrainJob(d Drainer) Job {
	return Job{
		Event:       EventQueueDrain,
		IntervalKey: IntervalKey(EventQueueDrain),
		Run: func(ctx context.Context, _ map[string]string) error {
			_, err := d.Process(ctx)
			return err
		},
	}
}

func LogPruneJob(p Pruner, retention time.Duration) Job {
	return Job{
		Event:       EventLogPrune,
		IntervalKey: IntervalKey(EventLogPrune),
		Run: func(ctx context.Context, _ map[string]string) error {
			_, err := p.Prune(ctx, retention)
			return err
		},
	}
}

// SyncJobs is a Source with one job per enabled term. All terms share the
// sync interval; each keeps its own last-run time.
func SyncJobs(terms TermLister, s Syncer) Source {
	return func(ctx context.Context) ([]Job, error) {
		list, err := terms.List(ctx, true)
		if err != nil {
			return nil, err
		}
		jobs := make([]Job, 0, len(list))
		for _, t := range list {
			jobs = append(jobs, Job{
				Event:       EventSync + ":" + t.Name,
				IntervalKey: IntervalKey(EventSync),
				Args:        map[string]string{"term": t.ID},
				Run: func(ctx context.Context, args map[string]string) error {
					_, err := s.SyncTerm(ctx, args["term"])
					return err
				},
			})
		}
		return jobs, nil
	}
}
