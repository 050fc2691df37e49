// Package scheduler runs the periodic jobs of the pipeline: availability
// checks, queue draining, log pruning and directory synchronization.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/settings"
)

// RunFunc executes one job run with the job's argument bag.
type RunFunc func(ctx context.Context, args map[string]string) error

// Job is a named periodic task. Its interval lives in the settings store
// under IntervalKey and is re-read on every check.
type Job struct {
	Event       string
	IntervalKey string
	Args        map[string]string
	Run         RunFunc
}

// Source lists jobs that depend on current state, such as one sync job per
// enabled term. It is called on every tick.
type Source func(ctx context.Context) ([]Job, error)

type Journal interface {
	Error(ctx context.Context, msg, url string)
	Info(ctx context.Context, level int, msg, url string)
}

// IntervalKey is the settings key holding the interval of name.
func IntervalKey(name string) string {
	return common.SettingSchedulePrefix + name + common.SettingScheduleIntervalS
}

func lastRunKey(event string) string { return common.SettingSchedulePrefix + event + ".last" }

type Scheduler struct {
	store    settings.Store
	defaults map[string]string
	jobs     []Job
	sources  []Source
	journal  Journal
	log      logging.Logger
	tick     time.Duration
	now      func() time.Time
	running  atomic.Bool
}

// New returns a scheduler. defaults maps interval keys to the value used
// when the settings store has none.
func New(store settings.Store, defaults map[string]string, journal Journal, log logging.Logger, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		store:    store,
		defaults: defaults,
		journal:  journal,
		log:      log,
		tick:     tick,
		now:      time.Now,
	}
}

func (s *Scheduler) Add(jobs ...Job) { s.jobs = append(s.jobs, jobs...) }

func (s *Scheduler) AddSource(src Source) { s.sources = append(s.sources, src) }

// Interval reads the job's current period from settings.
func (s *Scheduler) Interval(j Job) (time.Duration, error) {
	v, err := s.store.Get(j.IntervalKey, s.defaults[j.IntervalKey])
	if err != nil {
		return 0, err
	}
	return ParseInterval(v)
}

// IsEnabled reports whether the job currently has a non-zero interval. An
// unparsable interval disables the job.
func (s *Scheduler) IsEnabled(j Job) bool {
	d, err := s.Interval(j)
	return err == nil && d > 0
}

// SetInterval validates and stores the interval of name.
func (s *Scheduler) SetInterval(name, value string) error {
	if _, err := ParseInterval(value); err != nil {
		return err
	}
	return s.store.Set(IntervalKey(name), value)
}

// Jobs returns the static jobs followed by those of every source.
func (s *Scheduler) Jobs(ctx context.Context) ([]Job, error) {
	out := append([]Job(nil), s.jobs...)
	for _, src := range s.sources {
		jobs, err := src(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, jobs...)
	}
	return out, nil
}

// LastRun returns when the job last completed, or the zero time.
func (s *Scheduler) LastRun(event string) time.Time {
	v, err := s.store.Get(lastRunKey(event), "")
	if err != nil || v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Scheduler) due(j Job, now time.Time) bool {
	d, err := s.Interval(j)
	if err != nil {
		s.log.Warn(context.Background(), "job disabled by invalid interval", "job", j.Event, "error", err)
		return false
	}
	if d == 0 {
		return false
	}
	last := s.LastRun(j.Event)
	return last.IsZero() || !now.Before(last.Add(d))
}

// Tick runs every enabled job whose interval has elapsed, one after the
// other, and returns the events that ran. A failing job does not stop the
// others. Overlapping ticks return ErrAlreadyRunning.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, common.ErrAlreadyRunning
	}
	defer s.running.Store(false)

	jobs, err := s.Jobs(ctx)
	if err != nil {
		s.journal.Error(ctx, "listing jobs failed: "+err.Error(), "")
	}

	var ran []string
	for _, j := range jobs {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if !s.due(j, now) {
			continue
		}
		s.run(ctx, j, now)
		ran = append(ran, j.Event)
	}
	return ran, err
}

// RunNow runs the named job immediately, enabled or not.
func (s *Scheduler) RunNow(ctx context.Context, event string) error {
	jobs, err := s.Jobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Event == event {
			return s.run(ctx, j, s.now())
		}
	}
	return common.ErrUnknownJob
}

// run executes j and records the run. A failure is journaled as an error
// and returned.
func (s *Scheduler) run(ctx context.Context, j Job, now time.Time) error {
	s.journal.Info(ctx, logging.LevelTrace, "job "+j.Event+" started", "")
	start := s.now()

	err := j.Run(ctx, j.Args)
	if err != nil {
		s.journal.Error(ctx, "job "+j.Event+" failed: "+err.Error(), "")
	}
	if serr := s.store.Set(lastRunKey(j.Event), now.UTC().Format(time.RFC3339Nano)); serr != nil {
		s.log.Error(ctx, "recording job run failed", "job", j.Event, "error", serr)
	}

	s.journal.Info(ctx, logging.LevelTrace, "job "+j.Event+" finished in "+s.now().Sub(start).Round(time.Millisecond).String(), "")
	return err
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx, s.now()); err != nil && !errors.Is(err, common.ErrAlreadyRunning) && ctx.Err() == nil {
			s.log.Warn(ctx, "tick incomplete", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
