package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/store"
)

// Client is the popup's side of the cross-process boundary. Every send is
// allowed to fail silently: the daemon may simply not be running. Where it
// matters, a failed send falls back to writing a pending-action record to
// the shared store for the daemon to pick up on its next cycle.
type Client struct {
	baseURL    string
	httpClient *http.Client
	openStore  func() (*store.Store, error)
	logger     *slog.Logger
}

// NewClient creates a messenger for the daemon at addr. openStore opens the
// shared store on demand; it is only called after a send has failed, which
// is also the only time the store's file lock is free (the daemon holds it
// while running). It may be nil to skip the fallback.
func NewClient(addr string, openStore func() (*store.Store, error), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    "http://" + addr,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		openStore:  openStore,
		logger:     logger,
	}
}

// CheckNow asks the daemon to poll immediately. When the daemon is down a
// pending refresh record is left in the store instead.
func (c *Client) CheckNow() {
	if err := c.post("/api/messages/check", nil); err != nil {
		c.logger.Debug("daemon unreachable for check message", "error", err)
		c.leavePending(store.PendingAction{Type: "refresh", At: time.Now().Unix()})
	}
}

// DownloadAdded tells the daemon a download was queued so it can
// pre-register the id in the ledger. Falls back to the store when the
// daemon is down.
func (c *Client) DownloadAdded(id, name string, notify bool) {
	msg := map[string]any{"id": id, "name": name, "notify": notify}
	if err := c.post("/api/messages/download-added", msg); err != nil {
		c.logger.Debug("daemon unreachable for download-added message", "error", err)
		c.leavePending(store.PendingAction{Type: "added", TaskID: id, Name: name, At: time.Now().Unix()})
	}
}

// SettingsChanged signals a scheduler rebuild. Best-effort; the daemon also
// watches the config file itself.
func (c *Client) SettingsChanged() {
	if err := c.post("/api/messages/settings-changed", nil); err != nil {
		c.logger.Debug("daemon unreachable for settings-changed message", "error", err)
	}
}

// NotificationPrefsChanged pushes updated preferences.
func (c *Client) NotificationPrefsChanged(prefs domain.NotificationPrefs) {
	if err := c.post("/api/messages/notification-prefs-changed", prefs); err != nil {
		c.logger.Debug("daemon unreachable for prefs message", "error", err)
	}
}

// RestoreBadge asks the daemon to re-apply a badge count.
func (c *Client) RestoreBadge(count int) {
	if err := c.post("/api/messages/badge-restore", map[string]any{"count": count}); err != nil {
		c.logger.Debug("daemon unreachable for badge-restore message", "error", err)
	}
}

// Notify asks the daemon to emit a notification.
func (c *Client) Notify(title, message string) {
	msg := map[string]any{"title": title, "message": message}
	if err := c.post("/api/messages/notify", msg); err != nil {
		c.logger.Debug("daemon unreachable for notify message", "error", err)
	}
}

// State fetches the daemon's latest view. Unlike the messages this reports
// failure, so the popup can fall back to polling the server itself.
func (c *Client) State() (domain.Snapshot, bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/state")
	if err != nil {
		return domain.Snapshot{}, false, domain.ErrNotRunning
	}
	defer resp.Body.Close()

	var state stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("bad state response: %w", err)
	}
	return state.Snapshot, state.LoggedIn, nil
}

func (c *Client) post(path string, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}
	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("daemon answered %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) leavePending(action store.PendingAction) {
	if c.openStore == nil {
		return
	}
	st, err := c.openStore()
	if err != nil {
		c.logger.Warn("failed to open store for pending action", "error", err)
		return
	}
	defer st.Close()
	if err := st.SetPendingAction(action); err != nil {
		c.logger.Warn("failed to record pending action", "error", err)
	}
}
