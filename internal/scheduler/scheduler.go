package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownJob is returned by Trigger for a name that was never registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrJobRunning is returned by Trigger while the job is already executing.
	ErrJobRunning = errors.New("scheduler: job already running")
	// ErrTooSoon is returned by Trigger when the minimum gap since the last run has not elapsed.
	ErrTooSoon = errors.New("scheduler: minimum interval not elapsed")
)

// Job is a periodic task.
type Job struct {
	Name string
	// Interval is the tick period.
	Interval time.Duration
	// MinElapsed skips a tick that comes sooner than this after the previous run.
	MinElapsed time.Duration
	// RunOnStart runs the job once immediately instead of waiting for the first tick.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// TickerFunc returns a tick channel and its stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Config describes the scheduler's time source and logger.
type Config struct {
	Clock     func() time.Time
	NewTicker TickerFunc
	Logger    *zap.Logger
}

// Scheduler runs each registered job in its own loop. A job never overlaps itself.
type Scheduler struct {
	clock     func() time.Time
	newTicker TickerFunc
	logger    *zap.Logger

	mu   sync.Mutex
	jobs map[string]*jobState
	wg   sync.WaitGroup
}

type jobState struct {
	job     Job
	running sync.Mutex
	mu      sync.Mutex
	lastRun time.Time
}

func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newTicker := cfg.NewTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:     clock,
		newTicker: newTicker,
		logger:    logger,
		jobs:      make(map[string]*jobState),
	}
}

// Register adds job. Names must be unique and intervals positive.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job requires a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("scheduler: job %s requires a positive interval", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}
	s.jobs[job.Name] = &jobState{job: job}
	return nil
}

// Start launches one loop per job. Loops stop when ctx is cancelled; Wait blocks until they exit.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	states := make([]*jobState, 0, len(s.jobs))
	for _, state := range s.jobs {
		states = append(states, state)
	}
	s.mu.Unlock()

	for _, state := range states {
		s.wg.Add(1)
		go func(state *jobState) {
			defer s.wg.Done()
			s.loop(ctx, state)
		}(state)
	}
}

// Wait blocks until every loop started by Start has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Trigger runs the named job now, honouring the overlap and minimum-gap guards.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	state, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runOnce(ctx, state)
}

// LastRun reports when the named job last started.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	state, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.lastRun, !state.lastRun.IsZero()
}

func (s *Scheduler) loop(ctx context.Context, state *jobState) {
	ticks, stop := s.newTicker(state.job.Interval)
	defer stop()

	if state.job.RunOnStart {
		s.tick(ctx, state)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.tick(ctx, state)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, state *jobState) {
	err := s.runOnce(ctx, state)
	switch {
	case err == nil:
	case errors.Is(err, ErrTooSoon), errors.Is(err, ErrJobRunning):
		s.logger.Debug("scheduled job skipped", zap.String("job", state.job.Name), zap.Error(err))
	default:
		s.logger.Error("scheduled job failed", zap.String("job", state.job.Name), zap.Error(err))
	}
}

func (s *Scheduler) runOnce(ctx context.Context, state *jobState) error {
	if !state.running.TryLock() {
		return ErrJobRunning
	}
	defer state.running.Unlock()

	now := s.clock()
	state.mu.Lock()
	last := state.lastRun
	if !last.IsZero() && state.job.MinElapsed > 0 && now.Sub(last) < state.job.MinElapsed {
		state.mu.Unlock()
		return fmt.Errorf("%w: %s since last run", ErrTooSoon, now.Sub(last).Round(time.Second))
	}
	state.lastRun = now
	state.mu.Unlock()

	started := time.Now()
	err := state.job.Run(ctx)
	s.logger.Info("scheduled job finished",
		zap.String("job", state.job.Name),
		zap.Duration("elapsed", time.Since(started)),
		zap.Bool("ok", err == nil))
	return err
}
