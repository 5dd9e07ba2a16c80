// Package ledger tracks which task ids have already triggered a completion
// notification, so a download is announced exactly once even across daemon
// restarts. The ledger is an ordered set bounded at MaxEntries; on overflow
// the oldest entries are evicted first.
package ledger

import "pyloadwatch/internal/domain"

// MaxEntries bounds the ledger size. Trimming keeps the most recent entries.
const MaxEntries = 100

// Ledger is an insertion-ordered set of already-notified task ids. The zero
// value is not usable; construct with New.
type Ledger struct {
	order []string
	index map[string]struct{}
}

// New builds a ledger from a persisted id list, oldest first. Duplicates in
// the input are collapsed, keeping the first occurrence.
func New(ids []string) *Ledger {
	l := &Ledger{
		order: make([]string, 0, len(ids)),
		index: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		l.add(id)
	}
	l.trim()
	return l
}

// Contains reports whether id was already notified.
func (l *Ledger) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

// IDs returns the ids oldest first, for persistence.
func (l *Ledger) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of tracked ids.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Add records an id immediately, ahead of any poll cycle. Used when a
// download is registered through the add flow and must never produce a
// duplicate completion notice later.
func (l *Ledger) Add(id string) {
	l.add(id)
	l.trim()
}

func (l *Ledger) add(id string) {
	if id == "" {
		return
	}
	if _, ok := l.index[id]; ok {
		return
	}
	l.order = append(l.order, id)
	l.index[id] = struct{}{}
}

func (l *Ledger) trim() {
	if len(l.order) <= MaxEntries {
		return
	}
	evicted := l.order[:len(l.order)-MaxEntries]
	for _, id := range evicted {
		delete(l.index, id)
	}
	l.order = append([]string(nil), l.order[len(l.order)-MaxEntries:]...)
}

// ComputeNewlyFinished returns the completed tasks that have not been
// notified yet, plus the updated ledger. The updated ledger re-affirms every
// completed id, not just the new ones, then trims to the bound. The function
// is pure: the input ledger is never mutated, and identical inputs always
// produce identical outputs, so repeated identical polls are idempotent.
// Persisting the returned ledger is the caller's job and should happen
// immediately, to shrink the window where a crash causes a duplicate notice.
func ComputeNewlyFinished(completed []domain.Task, prev *Ledger) ([]domain.Task, *Ledger) {
	updated := New(prev.IDs())

	newlyFinished := []domain.Task{}
	for _, task := range completed {
		if !updated.Contains(task.ID) {
			newlyFinished = append(newlyFinished, task)
		}
		updated.add(task.ID)
	}
	updated.trim()
	return newlyFinished, updated
}
