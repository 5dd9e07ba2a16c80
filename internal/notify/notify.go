// Package notify emits user-facing notices for finished downloads. Dispatch
// is gated by the mutable notification preferences in the store, which the
// daemon consults but does not own.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"

	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/store"
)

// Desktop delivers notifications through the OS notification service.
type Desktop struct{}

// NewDesktop creates the desktop notifier.
func NewDesktop() *Desktop {
	return &Desktop{}
}

// Notify implements domain.Notifier.
func (d *Desktop) Notify(n domain.Notification) error {
	if n.Sound {
		return beeep.Alert(n.Title, n.Message, "")
	}
	return beeep.Notify(n.Title, n.Message, "")
}

// Dispatcher applies the notification policy: one named notice for a single
// newly finished download, one aggregate notice for several, never one per
// task. All sends are best-effort; failures are logged and swallowed.
type Dispatcher struct {
	store    *store.Store
	notifier domain.Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(st *store.Store, notifier domain.Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: st, notifier: notifier, logger: logger}
}

// Finished announces newly completed downloads.
func (d *Dispatcher) Finished(newlyFinished []domain.Task) {
	if len(newlyFinished) == 0 {
		return
	}
	prefs := d.store.NotificationPrefs()
	if !prefs.Enabled || !prefs.OnFinished {
		return
	}

	message := fmt.Sprintf("%d downloads finished", len(newlyFinished))
	if len(newlyFinished) == 1 {
		message = newlyFinished[0].Name
	}
	d.send(domain.Notification{
		ID:      uuid.NewString(),
		Title:   "Download finished",
		Message: message,
		Sound:   prefs.Sound,
	})
}

// Added announces a download that was just queued.
func (d *Dispatcher) Added(name string) {
	prefs := d.store.NotificationPrefs()
	if !prefs.Enabled || !prefs.OnAdded {
		return
	}
	d.send(domain.Notification{
		ID:      uuid.NewString(),
		Title:   "Download added",
		Message: name,
		Sound:   false,
	})
}

// Custom relays a caller-provided notification, still honoring the master
// enabled flag.
func (d *Dispatcher) Custom(title, message string) {
	prefs := d.store.NotificationPrefs()
	if !prefs.Enabled {
		return
	}
	d.send(domain.Notification{
		ID:      uuid.NewString(),
		Title:   title,
		Message: message,
		Sound:   false,
	})
}

func (d *Dispatcher) send(n domain.Notification) {
	if err := d.notifier.Notify(n); err != nil {
		d.logger.Warn("notification delivery failed", "id", n.ID, "error", err)
	}
}
