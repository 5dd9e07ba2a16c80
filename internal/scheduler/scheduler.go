// Package scheduler drives the periodic background check. It is a two-state
// machine, Stopped and Scheduled, with a coarse liveness probe that restarts
// the whole setup when the timer goes missing. There is no graceful stop
// short of process teardown; that is a property of the hosting model, not a
// bug.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State of the scheduler
type State int

const (
	Stopped State = iota
	Scheduled
)

const (
	// probeInterval is how often the liveness probe runs.
	probeInterval = 2 * time.Minute
	// staleFactor: a heartbeat older than staleFactor poll intervals means
	// the timer is gone.
	staleFactor = 3
)

// Scheduler runs the check on a repeating timer. The interval is recomputed
// from configuration on every (re)start, so a settings change only needs to
// call Reconfigure.
type Scheduler struct {
	check    func(context.Context)
	interval func() time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	current  time.Duration
	done     chan struct{}
	lastTick time.Time
}

// New creates a scheduler. check is the poll cycle; interval supplies the
// configured cadence and is consulted on every start.
func New(check func(context.Context), interval func() time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{check: check, interval: interval, logger: logger}
}

// Start moves Stopped -> Scheduled: tears down any existing timer, starts a
// fresh repeating one and performs one immediate out-of-band check without
// waiting for the first tick. Overlapping timers never coexist because the
// old generation's done channel is closed before the new one starts.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.teardownLocked()

	interval := s.interval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	s.done = done
	s.current = interval
	s.state = Scheduled
	s.lastTick = time.Now()
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", interval)

	go s.loop(ctx, interval, done)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	// Out-of-band first check.
	s.check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.lastTick = time.Now()
			s.mu.Unlock()
			s.check(ctx)
		}
	}
}

// Reconfigure handles a settings-changed signal: full teardown, then rebuild
// with the freshly computed interval.
func (s *Scheduler) Reconfigure(ctx context.Context) {
	s.logger.Info("scheduler reconfiguring")
	s.Start(ctx)
}

// RunProbe blocks, periodically verifying the timer is still live and
// restarting the whole setup when it is not. Meant to run in its own
// goroutine for the lifetime of the daemon.
func (s *Scheduler) RunProbe(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.alive() {
				s.logger.Warn("poll timer lost, restarting scheduler")
				s.Start(ctx)
			}
		}
	}
}

// alive is the coarse liveness check: scheduled, and the heartbeat is not
// hopelessly stale.
func (s *Scheduler) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Scheduled || s.done == nil {
		return false
	}
	return time.Since(s.lastTick) < s.current*staleFactor
}

// State returns the current machine state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) teardownLocked() {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.state = Stopped
}
