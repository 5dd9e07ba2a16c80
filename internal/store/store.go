// Package store is the durable local state behind the daemon: the
// notification ledger, the badge count, notification preferences and the
// one-shot pending-action hand-off between popup and daemon. Everything is
// last-write-wins; writers are idempotent or monotonic, so no cross-key
// transactions are needed.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"pyloadwatch/internal/domain"
)

var bucketState = []byte("state")

// Store keys
const (
	keyLedger        = "notifiedDownloads"
	keyBadgeCount    = "badgeCount"
	keyNotifyPrefs   = "notificationPrefs"
	keyPendingAction = "pendingAction"
	keyLoggedIn      = "loggedIn"
	keyLastError     = "lastError"
)

// PendingAction records the last action taken while the daemon was not
// listening, for it to pick up on its next cycle. One-shot: reading it
// clears it.
type PendingAction struct {
	Type   string `json:"type"` // "refresh", "added"
	TaskID string `json:"taskId,omitempty"`
	Name   string `json:"name,omitempty"`
	At     int64  `json:"at"`
}

// Store wraps the BoltDB file shared by the daemon and the popup.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at dir/pyloadwatch.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dir, "pyloadwatch.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *Store) get(key string, dest interface{}) bool {
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketState).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *Store) put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put([]byte(key), data)
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Delete([]byte(key))
	})
}

// === Notification ledger ===

// Ledger returns the persisted already-notified id list, oldest first.
func (s *Store) Ledger() []string {
	var ids []string
	if !s.get(keyLedger, &ids) {
		return []string{}
	}
	return ids
}

// SaveLedger persists the already-notified id list.
func (s *Store) SaveLedger(ids []string) error {
	return s.put(keyLedger, ids)
}

// === Badge count ===

// BadgeCount returns the persisted badge count. Absence of the entry is the
// persisted representation of zero.
func (s *Store) BadgeCount() (int, bool) {
	var count int
	if !s.get(keyBadgeCount, &count) {
		return 0, false
	}
	return count, true
}

// SaveBadgeCount persists a positive badge count.
func (s *Store) SaveBadgeCount(count int) error {
	return s.put(keyBadgeCount, count)
}

// DeleteBadgeCount removes the persisted count entirely.
func (s *Store) DeleteBadgeCount() error {
	return s.delete(keyBadgeCount)
}

// === Notification preferences ===

// NotificationPrefs returns the persisted preferences, or the defaults when
// none were saved yet.
func (s *Store) NotificationPrefs() domain.NotificationPrefs {
	prefs := domain.DefaultNotificationPrefs()
	s.get(keyNotifyPrefs, &prefs)
	return prefs
}

// SaveNotificationPrefs persists the preferences.
func (s *Store) SaveNotificationPrefs(prefs domain.NotificationPrefs) error {
	return s.put(keyNotifyPrefs, prefs)
}

// === Pending action hand-off ===

// SetPendingAction records an action taken while the daemon was unreachable.
func (s *Store) SetPendingAction(action PendingAction) error {
	return s.put(keyPendingAction, action)
}

// TakePendingAction returns and clears the pending action, if any.
func (s *Store) TakePendingAction() (PendingAction, bool) {
	var action PendingAction
	if !s.get(keyPendingAction, &action) {
		return PendingAction{}, false
	}
	s.delete(keyPendingAction)
	return action, true
}

// === Session ===

// LoggedIn reports the persisted login-state flag.
func (s *Store) LoggedIn() bool {
	var flag bool
	if !s.get(keyLoggedIn, &flag) {
		return false
	}
	return flag
}

// SetLoggedIn flips the persisted login-state flag.
func (s *Store) SetLoggedIn(flag bool) error {
	return s.put(keyLoggedIn, flag)
}

// === Connectivity ===

// LastError returns the last poll-cycle error message, empty when the last
// cycle succeeded.
func (s *Store) LastError() string {
	var msg string
	s.get(keyLastError, &msg)
	return msg
}

// SetLastError records the last poll-cycle error message.
func (s *Store) SetLastError(msg string) error {
	if msg == "" {
		return s.delete(keyLastError)
	}
	return s.put(keyLastError, msg)
}
