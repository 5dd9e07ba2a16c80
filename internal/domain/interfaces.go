package domain

import "context"

// Indicator is the visible badge surface: a small persistent counter shown
// outside the process (status bar, tray). Zero is represented by clearing
// the indicator, never by showing "0". The host environment may reset the
// indicator at any time, so implementations must also report the currently
// visible value for drift correction.
type Indicator interface {
	// Show drives the indicator to display count (count > 0).
	Show(count int) error

	// Clear removes the indicator entirely.
	Clear() error

	// Current returns the value the indicator is showing right now, and
	// false when no indicator is visible.
	Current() (int, bool)
}

// Notification is one user-facing completion notice.
type Notification struct {
	ID      string
	Title   string
	Message string
	Sound   bool
}

// Notifier delivers a notification to the user. Delivery is best-effort;
// failures are logged and swallowed, never propagated into the poll cycle.
type Notifier interface {
	Notify(n Notification) error
}

// NotificationPrefs gates notification dispatch. The core consults these
// before emitting but does not own the values; they are mutable through the
// settings surface and persisted in the local store.
type NotificationPrefs struct {
	Enabled    bool `json:"enabled"`
	OnFinished bool `json:"onFinished"`
	OnAdded    bool `json:"onAdded"`
	Sound      bool `json:"sound"`
}

// DefaultNotificationPrefs enables finished-download notices without sound.
func DefaultNotificationPrefs() NotificationPrefs {
	return NotificationPrefs{Enabled: true, OnFinished: true, OnAdded: true}
}

// Gateway is the remote API capability the poll cycle consumes. The concrete
// client lives in internal/pyload; the interface exists so the cycle and its
// tests can run against a fake server.
type Gateway interface {
	ServerStatus(ctx context.Context) error
	Login(ctx context.Context) error
	ActiveListing(ctx context.Context) ([]Task, error)
	QueueListing(ctx context.Context) ([]Task, error)
	CheckURL(ctx context.Context, url string) error
	AddPackage(ctx context.Context, name, url string) (string, error)
	RemoveTask(ctx context.Context, id string) error
	ClearFinished(ctx context.Context) error
	SpeedLimit(ctx context.Context) (bool, error)
	SetSpeedLimit(ctx context.Context, enabled bool) error
}
