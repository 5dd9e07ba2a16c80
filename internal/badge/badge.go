// Package badge keeps the persistent completed-downloads counter and the
// visible indicator consistent with each other, across daemon restarts and
// against the host environment resetting the indicator behind our back.
package badge

import (
	"log/slog"

	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/store"
)

// Manager owns the badge state transitions. Safe to call every poll cycle
// unconditionally: updates are idempotent.
type Manager struct {
	store     *store.Store
	indicator domain.Indicator
	logger    *slog.Logger
}

// NewManager creates a badge manager.
func NewManager(st *store.Store, ind domain.Indicator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, indicator: ind, logger: logger}
}

// Update drives the badge to count. Zero clears the indicator and deletes
// the persisted entry; absence, not a stored "0", is the representation of
// empty. A positive count is persisted first, then shown, so a crash between
// the two is healed by the next Restore or drift check.
func (m *Manager) Update(count int) {
	if count <= 0 {
		if err := m.store.DeleteBadgeCount(); err != nil {
			m.logger.Warn("failed to delete badge count", "error", err)
		}
		if err := m.indicator.Clear(); err != nil {
			m.logger.Warn("failed to clear indicator", "error", err)
		}
		return
	}

	if err := m.store.SaveBadgeCount(count); err != nil {
		m.logger.Warn("failed to persist badge count", "error", err)
	}
	if err := m.indicator.Show(count); err != nil {
		m.logger.Warn("failed to show indicator", "count", count, "error", err)
	}
}

// Restore re-applies the persisted count to the indicator. Called once at
// daemon start, before the first poll completes, so a restart is never
// observably different from the badge having existed all along.
func (m *Manager) Restore() {
	count, ok := m.store.BadgeCount()
	if !ok || count <= 0 {
		if err := m.indicator.Clear(); err != nil {
			m.logger.Warn("failed to clear indicator on restore", "error", err)
		}
		return
	}
	m.logger.Info("restoring badge", "count", count)
	if err := m.indicator.Show(count); err != nil {
		m.logger.Warn("failed to restore indicator", "count", count, "error", err)
	}
}

// CheckDrift compares the persisted count against what the indicator is
// actually showing and re-applies the persisted value on mismatch. Runs on a
// lower cadence than the poll cycle; it is a coarse liveness repair, not a
// precise one.
func (m *Manager) CheckDrift() {
	persisted, havePersisted := m.store.BadgeCount()
	visible, haveVisible := m.indicator.Current()

	switch {
	case havePersisted && (!haveVisible || visible != persisted):
		m.logger.Info("indicator drifted, re-applying persisted badge", "persisted", persisted)
		if err := m.indicator.Show(persisted); err != nil {
			m.logger.Warn("failed to re-apply indicator", "error", err)
		}
	case !havePersisted && haveVisible:
		m.logger.Info("stray indicator with no persisted badge, clearing")
		if err := m.indicator.Clear(); err != nil {
			m.logger.Warn("failed to clear stray indicator", "error", err)
		}
	}
}
