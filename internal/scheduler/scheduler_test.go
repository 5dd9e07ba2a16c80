package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pyloadwatch/internal/log"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

func TestStartRunsImmediateCheck(t *testing.T) {
	var checks atomic.Int64
	s := New(func(context.Context) { checks.Add(1) }, func() time.Duration { return time.Hour }, log.Null())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, func() bool { return checks.Load() == 1 }, "immediate check did not run")
	if s.State() != Scheduled {
		t.Errorf("expected Scheduled state")
	}
}

func TestTickerRepeatsChecks(t *testing.T) {
	var checks atomic.Int64
	s := New(func(context.Context) { checks.Add(1) }, func() time.Duration { return 20 * time.Millisecond }, log.Null())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, func() bool { return checks.Load() >= 3 }, "ticker checks did not accumulate")
}

func TestReconfigureReplacesTimer(t *testing.T) {
	var checks atomic.Int64
	var interval atomic.Int64
	interval.Store(int64(time.Hour))
	s := New(
		func(context.Context) { checks.Add(1) },
		func() time.Duration { return time.Duration(interval.Load()) },
		log.Null(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	waitFor(t, func() bool { return checks.Load() == 1 }, "first immediate check")

	// Tighten the interval and reconfigure: the old hour-long timer must be
	// gone and the new cadence must produce ticks.
	interval.Store(int64(20 * time.Millisecond))
	s.Reconfigure(ctx)

	waitFor(t, func() bool { return checks.Load() >= 4 }, "reconfigured cadence did not take effect")
	if s.State() != Scheduled {
		t.Errorf("expected Scheduled after reconfigure")
	}
}

func TestNonPositiveIntervalFallsBackToDefault(t *testing.T) {
	var checks atomic.Int64
	s := New(func(context.Context) { checks.Add(1) }, func() time.Duration { return 0 }, log.Null())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, func() bool { return checks.Load() == 1 }, "immediate check under default interval")
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != 30*time.Second {
		t.Errorf("expected the 30s default, got %v", current)
	}
}

func TestContextCancelStopsLoop(t *testing.T) {
	var checks atomic.Int64
	s := New(func(context.Context) { checks.Add(1) }, func() time.Duration { return 20 * time.Millisecond }, log.Null())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	waitFor(t, func() bool { return checks.Load() >= 1 }, "initial check")

	cancel()
	time.Sleep(60 * time.Millisecond)
	settled := checks.Load()
	time.Sleep(100 * time.Millisecond)
	if checks.Load() != settled {
		t.Errorf("checks continued after cancellation")
	}
}

func TestAliveDetectsStaleHeartbeat(t *testing.T) {
	s := New(func(context.Context) {}, func() time.Duration { return 10 * time.Millisecond }, log.Null())

	if s.alive() {
		t.Fatalf("a never-started scheduler is not alive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	if !s.alive() {
		t.Fatalf("freshly started scheduler should be alive")
	}

	// Age the heartbeat past the staleness bound without touching the loop.
	s.mu.Lock()
	s.lastTick = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	if s.alive() {
		t.Errorf("stale heartbeat should read as dead")
	}
}

func TestStartIsSelfHealing(t *testing.T) {
	// Start after a simulated loss restores Scheduled and ticks resume.
	var checks atomic.Int64
	s := New(func(context.Context) { checks.Add(1) }, func() time.Duration { return 20 * time.Millisecond }, log.Null())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	waitFor(t, func() bool { return checks.Load() >= 1 }, "initial check")

	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
	if s.State() != Stopped {
		t.Fatalf("teardown should leave Stopped")
	}

	before := checks.Load()
	s.Start(ctx)
	waitFor(t, func() bool { return checks.Load() > before }, "restart did not resume checks")
	if s.State() != Scheduled {
		t.Errorf("expected Scheduled after restart")
	}
}
