package domain

import "fmt"

// Status classifies a download task. The set is closed for statuses the
// server is known to report; anything else is passed through verbatim so an
// unknown server version never loses information.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	// StatusComplete is a distinct wire value on some server versions but
	// behaviorally equivalent to StatusFinished.
	StatusComplete Status = "complete"
)

// Task represents one download/file unit tracked by the remote server and
// mirrored locally. Tasks are rebuilt from scratch on every poll cycle and
// never mutated in place across cycles.
type Task struct {
	ID      string  // Stable identifier within a listing snapshot
	Name    string  // Display name, never empty
	Status  Status  // Closed set or opaque passthrough
	URL     string  // Source URL or hoster, may be empty
	AddedAt int64   // Unix timestamp when the task was added
	Percent float64 // 0-100
	Size    int64   // Total size in bytes
	Loaded  int64   // Bytes downloaded so far
	Speed   int64   // Download speed in bytes/sec
	ETA     int64   // Estimated seconds remaining
}

// IsCompleted reports whether the task counts as done. This is the single
// completion rule used everywhere: finished-equivalent status or a full
// progress bar, nothing else.
func (t Task) IsCompleted() bool {
	return t.Status == StatusFinished || t.Status == StatusComplete || t.Percent == 100
}

// IsFailed reports whether the task ended in an error state.
func (t Task) IsFailed() bool {
	return t.Status == StatusFailed
}

// FormattedSize returns the task size in a human-readable form.
func (t Task) FormattedSize() string {
	return FormatBytes(t.Size)
}

// FormatBytes renders a byte count with a binary-ish unit suffix.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// Snapshot is the result of reconciling the two listing endpoints into one
// coherent view: the deduplicated task set partitioned into active and
// completed, plus the aggregate download speed of the active partition.
type Snapshot struct {
	Active    []Task
	Completed []Task
	// TotalSpeed is the sum of Speed over Active, in bytes/sec.
	TotalSpeed int64
	// Connected is false when the last poll could not reach the server.
	Connected bool
	// FetchedAt is the unix timestamp of the poll that produced the snapshot.
	FetchedAt int64
}
