package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pyloadwatch/internal/api"
	"pyloadwatch/internal/badge"
	"pyloadwatch/internal/config"
	"pyloadwatch/internal/hook"
	"pyloadwatch/internal/indicator"
	"pyloadwatch/internal/log"
	"pyloadwatch/internal/notify"
	"pyloadwatch/internal/pyload"
	"pyloadwatch/internal/scheduler"
	"pyloadwatch/internal/service"
	"pyloadwatch/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

// driftCheckInterval is how often the badge indicator is compared against
// the persisted count.
const driftCheckInterval = 5 * time.Minute

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("pyloadwatchd %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.Setup(&cfg.Logging)
	if err != nil {
		// Fall back to a null logger if file logging fails
		logger = log.Null()
	}
	slog.SetDefault(logger)

	logger.Info("starting pyloadwatchd", "version", Version)

	st, err := store.Open(config.DataPath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ind := indicator.NewFile(cfg.Daemon.BadgeFile)
	badgeMgr := badge.NewManager(st, ind, logger)
	// Re-apply the persisted badge before the first poll, so a daemon
	// restart is not observable from the indicator.
	badgeMgr.Restore()

	conn := cfg.Connection
	gateway := pyload.NewClient(conn.BaseURL(), conn.Username, conn.Password, logger)
	dispatcher := notify.NewDispatcher(st, notify.NewDesktop(), logger)
	downloads := service.NewDownloadService(gateway, st, badgeMgr, dispatcher, logger)

	finishedHook := hook.NewRunner(cfg.Daemon.OnFinishedCmd, cfg.Daemon.OnFinishedArgs, logger)
	if finishedHook.Enabled() {
		downloads.OnFinished(finishedHook.Finished)
	}

	// The configured poll cadence, re-read on every scheduler (re)start.
	var cfgMu sync.Mutex
	pollInterval := func() time.Duration {
		cfgMu.Lock()
		defer cfgMu.Unlock()
		return time.Duration(cfg.Daemon.PollIntervalSec) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(downloads.Check, pollInterval, logger)

	// Settings change: reload config, swap the remote client, force a fresh
	// login and rebuild the scheduler from scratch.
	reload := func() {
		newCfg, err := config.Load()
		if err != nil {
			logger.Warn("settings change ignored, reload failed", "error", err)
			return
		}
		cfgMu.Lock()
		*cfg = *newCfg
		conn := cfg.Connection
		cfgMu.Unlock()

		downloads.SetGateway(pyload.NewClient(conn.BaseURL(), conn.Username, conn.Password, logger))
		st.SetLoggedIn(false)
		sched.Reconfigure(ctx)
		logger.Info("settings reloaded")
	}
	config.Watch(reload)

	server := api.NewServer(downloads, badgeMgr, dispatcher, st, reload, logger)
	go func() {
		if err := server.Run(ctx, cfg.Daemon.ListenAddr); err != nil {
			logger.Error("control api stopped", "error", err)
		}
	}()

	go runDriftChecks(ctx, badgeMgr)
	go sched.RunProbe(ctx)
	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// runDriftChecks re-applies the persisted badge when the host environment
// resets the indicator outside our control.
func runDriftChecks(ctx context.Context, badgeMgr *badge.Manager) {
	ticker := time.NewTicker(driftCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			badgeMgr.CheckDrift()
		}
	}
}
