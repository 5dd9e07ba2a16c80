package ledger

import (
	"fmt"
	"testing"

	"pyloadwatch/internal/domain"
)

func completed(ids ...string) []domain.Task {
	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, domain.Task{ID: id, Name: "task-" + id, Status: domain.StatusFinished, Percent: 100})
	}
	return tasks
}

func TestNewCollapsesDuplicates(t *testing.T) {
	l := New([]string{"a", "b", "a", "c", "b"})
	if l.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", l.Len())
	}
	want := []string{"a", "b", "c"}
	for i, id := range l.IDs() {
		if id != want[i] {
			t.Errorf("position %d: got %q, want %q", i, id, want[i])
		}
	}
}

func TestAddIgnoresEmptyAndRepeated(t *testing.T) {
	l := New(nil)
	l.Add("")
	l.Add("x")
	l.Add("x")
	if l.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", l.Len())
	}
	if !l.Contains("x") || l.Contains("") {
		t.Errorf("membership wrong after adds")
	}
}

func TestComputeNewlyFinishedFirstSighting(t *testing.T) {
	prev := New(nil)

	newly, updated := ComputeNewlyFinished(completed("1", "2"), prev)
	if len(newly) != 2 {
		t.Fatalf("expected both tasks to be new, got %d", len(newly))
	}
	if !updated.Contains("1") || !updated.Contains("2") {
		t.Errorf("updated ledger should record both ids")
	}
	if prev.Len() != 0 {
		t.Errorf("input ledger must not be mutated, has %d entries", prev.Len())
	}
}

func TestComputeNewlyFinishedNoRepeat(t *testing.T) {
	_, l := ComputeNewlyFinished(completed("1", "2"), New(nil))

	newly, _ := ComputeNewlyFinished(completed("1", "2"), l)
	if len(newly) != 0 {
		t.Errorf("already-notified tasks must not repeat, got %d", len(newly))
	}
}

func TestComputeNewlyFinishedIsIdempotent(t *testing.T) {
	prev := New([]string{"a"})
	tasks := completed("a", "b", "c")

	newly1, updated1 := ComputeNewlyFinished(tasks, prev)
	newly2, updated2 := ComputeNewlyFinished(tasks, prev)

	if len(newly1) != len(newly2) {
		t.Fatalf("identical inputs produced different outputs: %d vs %d", len(newly1), len(newly2))
	}
	ids1, ids2 := updated1.IDs(), updated2.IDs()
	if len(ids1) != len(ids2) {
		t.Fatalf("ledger lengths differ: %d vs %d", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Errorf("ledger order differs at %d: %q vs %q", i, ids1[i], ids2[i])
		}
	}
}

func TestComputeNewlyFinishedPreRegisteredAddIsSilent(t *testing.T) {
	l := New(nil)
	l.Add("pre-registered")

	newly, _ := ComputeNewlyFinished(completed("pre-registered"), l)
	if len(newly) != 0 {
		t.Errorf("a pre-registered id must not be announced again")
	}
}

func TestBoundEvictsOldestFirst(t *testing.T) {
	ids := make([]string, 0, MaxEntries)
	for i := 0; i < MaxEntries; i++ {
		ids = append(ids, fmt.Sprintf("old-%d", i))
	}
	l := New(ids)

	l.Add("newcomer")

	if l.Len() != MaxEntries {
		t.Fatalf("ledger must stay bounded at %d, got %d", MaxEntries, l.Len())
	}
	if l.Contains("old-0") {
		t.Errorf("oldest entry should have been evicted")
	}
	if !l.Contains("old-1") || !l.Contains("newcomer") {
		t.Errorf("eviction removed the wrong entries")
	}
	if got := l.IDs()[0]; got != "old-1" {
		t.Errorf("order after eviction should start at old-1, got %q", got)
	}
}

func TestEvictedIDNotifiesAgain(t *testing.T) {
	// Once an id falls off the bounded ledger, a later sighting of the same
	// id is announced again. That is the accepted cost of the bound.
	ids := []string{"ancient"}
	for i := 0; i < MaxEntries; i++ {
		ids = append(ids, fmt.Sprintf("filler-%d", i))
	}
	l := New(ids)
	if l.Contains("ancient") {
		t.Fatalf("ancient should have been trimmed during construction")
	}

	newly, _ := ComputeNewlyFinished(completed("ancient"), l)
	if len(newly) != 1 {
		t.Errorf("evicted id should be treated as new again, got %d", len(newly))
	}
}

func TestComputeNewlyFinishedTrimsOverflow(t *testing.T) {
	tasks := completed()
	for i := 0; i < MaxEntries+10; i++ {
		tasks = append(tasks, domain.Task{ID: fmt.Sprintf("t-%d", i), Status: domain.StatusFinished})
	}

	newly, updated := ComputeNewlyFinished(tasks, New(nil))
	if len(newly) != MaxEntries+10 {
		t.Errorf("every unseen task is announced regardless of the bound, got %d", len(newly))
	}
	if updated.Len() != MaxEntries {
		t.Errorf("updated ledger must be trimmed to %d, got %d", MaxEntries, updated.Len())
	}
	if updated.Contains("t-0") {
		t.Errorf("oldest overflow ids should be evicted")
	}
	if !updated.Contains(fmt.Sprintf("t-%d", MaxEntries+9)) {
		t.Errorf("newest id should survive the trim")
	}
}
