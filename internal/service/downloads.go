// Package service orchestrates one poll cycle — fetch, normalize, reconcile,
// notify, badge — and the user-triggered mutations. Cycles always rebuild
// the task set from scratch; a mutation racing a cycle in flight is healed
// by the follow-up poll rather than by locking.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pyloadwatch/internal/badge"
	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/ledger"
	"pyloadwatch/internal/notify"
	"pyloadwatch/internal/reconcile"
	"pyloadwatch/internal/store"
)

// DownloadService drives the reconciliation layer between the remote server
// and the durable local state.
type DownloadService struct {
	gateway    domain.Gateway
	store      *store.Store
	badge      *badge.Manager
	dispatcher *notify.Dispatcher
	logger     *slog.Logger

	mu         sync.RWMutex
	snapshot   domain.Snapshot
	onFinished func([]domain.Task)
}

// NewDownloadService creates the service.
func NewDownloadService(gw domain.Gateway, st *store.Store, bm *badge.Manager, disp *notify.Dispatcher, logger *slog.Logger) *DownloadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadService{
		gateway:    gw,
		store:      st,
		badge:      bm,
		dispatcher: disp,
		logger:     logger,
	}
}

// OnFinished registers a callback invoked with the newly completed tasks of
// each poll cycle, after the notification dispatch. Used for the
// finished-download command hook.
func (s *DownloadService) OnFinished(fn func([]domain.Task)) {
	s.mu.Lock()
	s.onFinished = fn
	s.mu.Unlock()
}

// SetGateway swaps the remote client, used when connection settings change.
func (s *DownloadService) SetGateway(gw domain.Gateway) {
	s.mu.Lock()
	s.gateway = gw
	s.mu.Unlock()
}

func (s *DownloadService) gw() domain.Gateway {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gateway
}

// Check runs one poll cycle. Nothing here is fatal: every failure path
// degrades to "no-op, try again next cycle" and a transient outage never
// erases known completions from the badge or the ledger.
func (s *DownloadService) Check(ctx context.Context) {
	s.pickUpPendingAction()

	if !s.ensureLoggedIn(ctx) {
		return
	}

	activeListing, errActive := s.gw().ActiveListing(ctx)
	queueListing, errQueue := s.gw().QueueListing(ctx)

	if errActive != nil && errQueue != nil {
		s.abortCycle(errActive)
		return
	}
	if errActive != nil {
		s.logger.Warn("active listing failed, continuing with queue only", "error", errActive)
		activeListing = nil
	}
	if errQueue != nil {
		s.logger.Warn("queue listing failed, continuing with active only", "error", errQueue)
		queueListing = nil
	}

	snapshot := reconcile.Merge(activeListing, queueListing)
	snapshot.Connected = true
	snapshot.FetchedAt = time.Now().Unix()

	prev := ledger.New(s.store.Ledger())
	newlyFinished, updated := ledger.ComputeNewlyFinished(snapshot.Completed, prev)
	// Persist the ledger before dispatching, so a crash mid-dispatch drops a
	// notice instead of duplicating one.
	if err := s.store.SaveLedger(updated.IDs()); err != nil {
		s.logger.Warn("failed to persist ledger", "error", err)
	}
	s.dispatcher.Finished(newlyFinished)

	s.mu.RLock()
	hook := s.onFinished
	s.mu.RUnlock()
	if hook != nil && len(newlyFinished) > 0 {
		hook(newlyFinished)
	}

	s.badge.Update(len(snapshot.Completed))
	s.store.SetLastError("")

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()

	s.logger.Debug("poll cycle complete",
		"active", len(snapshot.Active),
		"completed", len(snapshot.Completed),
		"newlyFinished", len(newlyFinished))
}

// ensureLoggedIn re-authenticates when the session flag is down. A rejected
// login keeps the flag down, which gates the rest of the cycle.
func (s *DownloadService) ensureLoggedIn(ctx context.Context) bool {
	if s.store.LoggedIn() {
		return true
	}
	if err := s.gw().Login(ctx); err != nil {
		s.abortCycle(err)
		return false
	}
	s.store.SetLoggedIn(true)
	return true
}

// abortCycle records the failure and flips the connectivity flag without
// touching badge or ledger state.
func (s *DownloadService) abortCycle(err error) {
	s.logger.Warn("poll cycle aborted", "error", err)
	s.store.SetLastError(err.Error())
	if domain.IsAuthFailure(err) {
		s.store.SetLoggedIn(false)
	}

	s.mu.Lock()
	s.snapshot.Connected = false
	s.mu.Unlock()
}

// pickUpPendingAction handles the one-shot record the popup leaves behind
// when the daemon was unreachable.
func (s *DownloadService) pickUpPendingAction() {
	action, ok := s.store.TakePendingAction()
	if !ok {
		return
	}
	s.logger.Info("picking up pending action", "type", action.Type, "taskId", action.TaskID)
	if action.Type == "added" && action.TaskID != "" {
		s.RegisterAdded(action.TaskID, action.Name, false)
	}
}

// RegisterAdded pre-registers a just-added download in the ledger so it is
// never announced as newly finished, and optionally emits the added notice.
func (s *DownloadService) RegisterAdded(id, name string, announce bool) {
	led := ledger.New(s.store.Ledger())
	led.Add(id)
	if err := s.store.SaveLedger(led.IDs()); err != nil {
		s.logger.Warn("failed to persist ledger", "error", err)
	}
	if announce && name != "" {
		s.dispatcher.Added(name)
	}
}

// Snapshot returns the latest reconciled view.
func (s *DownloadService) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Add queues a new download package and re-polls to pick up the server's
// view of it. The URL pre-check is advisory; a failed check does not block
// the add since server versions disagree on checkURLs support.
func (s *DownloadService) Add(ctx context.Context, name, url string) (string, error) {
	if err := s.gw().CheckURL(ctx, url); err != nil {
		s.logger.Debug("url pre-check failed, adding anyway", "error", err)
	}

	id, err := s.gw().AddPackage(ctx, name, url)
	if err != nil {
		return "", err
	}
	if id != "" {
		s.RegisterAdded(id, name, false)
	}
	s.Check(ctx)
	return id, nil
}

// Remove deletes a task server-side, drops it optimistically from the local
// snapshot and re-polls to self-correct rather than attempting rollback.
func (s *DownloadService) Remove(ctx context.Context, id string) error {
	if err := s.gw().RemoveTask(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot.Active = dropTask(s.snapshot.Active, id)
	s.snapshot.Completed = dropTask(s.snapshot.Completed, id)
	s.mu.Unlock()

	s.Check(ctx)
	return nil
}

// ClearFinished removes all finished downloads server-side and resets the
// local completion state: badge to zero and the ledger emptied. This is the
// one explicit user action that resets the ledger.
func (s *DownloadService) ClearFinished(ctx context.Context) error {
	if err := s.gw().ClearFinished(ctx); err != nil {
		return err
	}
	if err := s.store.SaveLedger([]string{}); err != nil {
		s.logger.Warn("failed to reset ledger", "error", err)
	}
	s.badge.Update(0)
	s.Check(ctx)
	return nil
}

// SpeedLimit reads the server's speed-limit flag.
func (s *DownloadService) SpeedLimit(ctx context.Context) (bool, error) {
	return s.gw().SpeedLimit(ctx)
}

// SetSpeedLimit toggles the server's speed-limit flag.
func (s *DownloadService) SetSpeedLimit(ctx context.Context, enabled bool) error {
	return s.gw().SetSpeedLimit(ctx, enabled)
}

func dropTask(tasks []domain.Task, id string) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
