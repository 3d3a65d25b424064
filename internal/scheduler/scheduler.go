// Package scheduler keeps one identity pointer fresh: a warm-up run shortly after
// start, then a fixed interval, plus on-demand triggers that join any run in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentregistry/internal/metrics"
	"agentregistry/internal/submitter"

	"golang.org/x/sync/singleflight"
)

// ErrNotConfigured is reported by a scheduler disabled at startup
var ErrNotConfigured = errors.New("scheduler not configured")

// State of the refresh cycle
type State string

const (
	StateIdle       State = "idle"
	StateScheduled  State = "scheduled"
	StateSubmitting State = "submitting"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

const flightKey = "refresh"

// Refresher performs one refresh run
type Refresher interface {
	Refresh(ctx context.Context) submitter.Result
}

// Config holds the timer settings
type Config struct {
	Interval time.Duration
	Warmup   time.Duration // Delay of the one-shot run after Start; zero skips it
}

// Status is a snapshot of the scheduler
type Status struct {
	Enabled   bool
	Reason    error
	State     State
	LastState State // Confirmed or Failed after the first run
	Interval  time.Duration
	Runs      int
	Skipped   int
	NextRunAt time.Time
	Last      *submitter.Result
}

// Scheduler drives a Refresher on a timer with at most one run in flight
type Scheduler struct {
	refresher Refresher
	config    Config
	disabled  error

	group singleflight.Group
	wg    sync.WaitGroup

	mu        sync.Mutex
	state     State
	runs      int
	skipped   int
	last      *submitter.Result
	lastState State
	nextRunAt time.Time
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Scheduler. A nil refresher or a non-positive interval yields a
// disabled scheduler.
func New(refresher Refresher, config Config) *Scheduler {
	if refresher == nil {
		return Disabled(errors.New("no refresher"))
	}
	if config.Interval <= 0 {
		return Disabled(fmt.Errorf("interval must be positive, got %s", config.Interval))
	}
	return &Scheduler{
		refresher: refresher,
		config:    config,
		state:     StateIdle,
		runCtx:    context.Background(),
	}
}

// Disabled creates a Scheduler that never arms timers and answers every
// trigger with a not-configured result
func Disabled(reason error) *Scheduler {
	return &Scheduler{
		disabled: fmt.Errorf("%w: %w", ErrNotConfigured, reason),
		state:    StateIdle,
		runCtx:   context.Background(),
	}
}

// Enabled reports whether the scheduler will run
func (s *Scheduler) Enabled() bool {
	return s.disabled == nil
}

// Start arms the warm-up and interval timers. Runs outlive ctx so that a
// submission in progress is not abandoned; use Stop to wait for it.
func (s *Scheduler) Start(ctx context.Context) {
	if s.disabled != nil {
		slog.Warn("Scheduler: Disabled, not arming timers", "reason", s.disabled)
		return
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.runCtx = context.WithoutCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Scheduler: Started",
		"interval", s.config.Interval,
		"warmup", s.config.Warmup,
	)

	go s.loop(loopCtx)
}

// Stop halts the timers and waits for an in-flight run, or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		slog.Info("Scheduler: Stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var warmup <-chan time.Time
	if s.config.Warmup > 0 {
		timer := time.NewTimer(s.config.Warmup)
		defer timer.Stop()
		warmup = timer.C
		s.setNextRun(time.Now().Add(s.config.Warmup))
	} else {
		s.setNextRun(time.Now().Add(s.config.Interval))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-warmup:
			warmup = nil
			s.tick()
		case <-ticker.C:
			s.tick()
		}
		s.setNextRun(time.Now().Add(s.config.Interval))
	}
}

// tick starts a run unless one is already in flight. Ticks are never queued.
func (s *Scheduler) tick() bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.skipped++
		state := s.state
		s.mu.Unlock()

		metrics.SyncTicksSkipped.Inc()
		slog.Info("Scheduler: Tick skipped, refresh in flight", "state", state)
		return false
	}
	s.state = StateScheduled
	s.mu.Unlock()

	s.await(s.group.DoChan(flightKey, s.run))
	return true
}

// await tracks a flight until it ends so Stop can wait for it
func (s *Scheduler) await(ch <-chan singleflight.Result) <-chan singleflight.Result {
	out := make(chan singleflight.Result, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := <-ch
		s.settle()
		out <- res
	}()
	return out
}

// settle returns the scheduler to Idle once the flight has ended and its key is
// released. A run that has already begun is left alone.
func (s *Scheduler) settle() {
	s.mu.Lock()
	switch s.state {
	case StateScheduled, StateConfirmed, StateFailed:
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// Trigger requests a refresh now. If a run is in flight the caller receives its
// result instead of starting another. The error is non-nil only when ctx ends
// before the run does.
func (s *Scheduler) Trigger(ctx context.Context) (submitter.Result, error) {
	if s.disabled != nil {
		return submitter.Result{Outcome: submitter.OutcomeNotConfigured, Err: s.disabled}, nil
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateScheduled
	}
	s.mu.Unlock()

	ch := s.await(s.group.DoChan(flightKey, s.run))

	select {
	case res := <-ch:
		return res.Val.(submitter.Result), nil
	case <-ctx.Done():
		return submitter.Result{}, fmt.Errorf("waiting for refresh: %w", ctx.Err())
	}
}

// run is the single flight body. It leaves the terminal state in place; the
// awaiting goroutine moves it to Idle after singleflight forgets the flight.
func (s *Scheduler) run() (any, error) {
	s.mu.Lock()
	s.state = StateSubmitting
	ctx := s.runCtx
	s.mu.Unlock()

	slog.Info("Scheduler: Refresh started")

	result := s.refresh(ctx)

	terminal := StateConfirmed
	if result.Outcome != submitter.OutcomeConfirmed {
		terminal = StateFailed
	}

	s.mu.Lock()
	s.runs++
	s.last = &result
	s.lastState = terminal
	s.state = terminal
	s.mu.Unlock()

	slog.Info("Scheduler: Refresh finished",
		"run_id", result.RunID,
		"state", terminal,
		"pointer", result.Pointer,
	)
	if result.Err != nil {
		slog.Warn("Scheduler: Refresh failed, waiting for next tick",
			"run_id", result.RunID,
			"error", result.Err,
		)
	}

	return result, nil
}

// refresh shields the scheduler from a panicking Refresher
func (s *Scheduler) refresh(ctx context.Context) (result submitter.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = submitter.Result{
				Outcome:    submitter.OutcomeFailed,
				Err:        fmt.Errorf("%w: refresher panicked: %v", submitter.ErrTransactionFailure, r),
				FinishedAt: time.Now().UTC(),
			}
		}
	}()
	return s.refresher.Refresh(ctx)
}

func (s *Scheduler) setNextRun(at time.Time) {
	s.mu.Lock()
	s.nextRunAt = at
	s.mu.Unlock()
}

// Status returns a snapshot of the scheduler
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Enabled:   s.disabled == nil,
		Reason:    s.disabled,
		State:     s.state,
		LastState: s.lastState,
		Interval:  s.config.Interval,
		Runs:      s.runs,
		Skipped:   s.skipped,
		NextRunAt: s.nextRunAt,
	}
	if s.last != nil {
		last := *s.last
		status.Last = &last
	}
	return status
}
