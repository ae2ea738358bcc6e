package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "feedpush/pkg/logx"
)

// Job is the scheduled work. Its context is canceled on Stop or after Timeout.
type Job func(ctx context.Context) error

type Config struct {
	Schedule string
	Timezone string // IANA TZ, e.g. "Asia/Shanghai"; empty means local
	Timeout  time.Duration
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Spec      string    `json:"spec"`
	Timezone  string    `json:"timezone"`
	Next      time.Time `json:"next"`
	Running   bool      `json:"running"`
	Runs      uint64    `json:"runs"`
	Skipped   uint64    `json:"skipped"`
	LastStart time.Time `json:"last_start"`
	LastEnd   time.Time `json:"last_end"`
	LastErr   string    `json:"last_err,omitempty"`
}

type Scheduler struct {
	log logx.Logger
	job Job

	mu      sync.Mutex
	cfg     Config
	spec    ParsedSpec
	loc     *time.Location
	c       *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	wg      sync.WaitGroup

	lastMu    sync.Mutex
	lastStart time.Time
	lastEnd   time.Time
	lastErr   string
}

func New(cfg Config, job Job, log logx.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		log:  log.With(logx.String("comp", "scheduler")),
		job:  job,
		cfg:  cfg,
		spec: spec,
		loc:  loc,
	}, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Start begins triggering. Runs get a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.startCronLocked(); err != nil {
		s.cancel()
		return err
	}
	s.log.Info("scheduler started",
		logx.String("spec", s.spec.String()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.nextLocked()),
	)
	return nil
}

func (s *Scheduler) startCronLocked() error {
	sched, err := s.spec.Schedule()
	if err != nil {
		return err
	}
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	s.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.fire("schedule") }))
	s.c.Start()
	return nil
}

// Stop stops triggering, cancels an in-flight run and waits for it (bounded by ctx).
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running job")
	}
}

// Reschedule swaps the schedule and timezone in place. A run in flight is
// not interrupted, and overlap protection carries over.
func (s *Scheduler) Reschedule(cfg Config) error {
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := spec.String() != s.spec.String() || loc.String() != s.loc.String()
	s.cfg, s.spec, s.loc = cfg, spec, loc
	if !changed || s.c == nil {
		return nil
	}
	s.c.Stop()
	if err := s.startCronLocked(); err != nil {
		return err
	}
	s.log.Info("schedule changed", logx.String("spec", spec.String()), logx.String("tz", loc.String()), logx.Time("next", s.nextLocked()))
	return nil
}

// Trigger runs the job now in the background unless a run is in flight.
// It reports whether a run was started.
func (s *Scheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.skip("manual")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runClaimed("manual")
	}()
	return true
}

func (s *Scheduler) fire(reason string) {
	if !s.running.CompareAndSwap(false, true) {
		s.skip(reason)
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.runClaimed(reason)
}

func (s *Scheduler) skip(reason string) {
	n := s.skipped.Add(1)
	s.log.Warn("previous run still in progress; skipping", logx.String("trigger", reason), logx.Int64("skipped_total", int64(n)))
}

// runClaimed executes the job; the caller holds the running flag.
func (s *Scheduler) runClaimed(reason string) {
	defer s.running.Store(false)

	s.mu.Lock()
	parent, timeout := s.ctx, s.cfg.Timeout
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return
	}
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	start := time.Now()
	s.lastMu.Lock()
	s.lastStart = start
	s.lastMu.Unlock()
	s.runs.Add(1)

	err := s.call(ctx)

	s.lastMu.Lock()
	s.lastEnd = time.Now()
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.lastMu.Unlock()

	if err != nil {
		s.log.Warn("job failed", logx.String("trigger", reason), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("trigger", reason), logx.Duration("took", time.Since(start)))
}

func (s *Scheduler) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
			s.log.Error("job panicked", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
		}
	}()
	return s.job(ctx)
}

func (s *Scheduler) nextLocked() time.Time {
	if s.c == nil || s.entryID == 0 {
		return time.Time{}
	}
	return s.c.Entry(s.entryID).Next
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Spec: s.spec.String(), Timezone: s.loc.String(), Next: s.nextLocked()}
	s.mu.Unlock()

	snap.Running = s.running.Load()
	snap.Runs = s.runs.Load()
	snap.Skipped = s.skipped.Load()

	s.lastMu.Lock()
	snap.LastStart, snap.LastEnd, snap.LastErr = s.lastStart, s.lastEnd, s.lastErr
	s.lastMu.Unlock()
	return snap
}
