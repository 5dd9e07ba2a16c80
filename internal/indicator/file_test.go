package indicator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShowAndCurrent(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "badge"))

	if _, ok := f.Current(); ok {
		t.Fatalf("no file should mean no visible badge")
	}

	if err := f.Show(3); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	count, ok := f.Current()
	if !ok || count != 3 {
		t.Errorf("expected 3/true, got %d/%v", count, ok)
	}

	if err := f.Show(8); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if count, _ := f.Current(); count != 8 {
		t.Errorf("expected overwritten count 8, got %d", count)
	}
}

func TestShowCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "badge")
	f := NewFile(path)

	if err := f.Show(1); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("badge file missing: %v", err)
	}
}

func TestClearTolerantOfMissingFile(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "badge"))

	if err := f.Clear(); err != nil {
		t.Fatalf("clear of a missing file should succeed: %v", err)
	}

	f.Show(2)
	if err := f.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok := f.Current(); ok {
		t.Errorf("cleared badge should be invisible")
	}
}

func TestCurrentRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badge")
	if err := os.WriteFile(path, []byte("not a number\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	f := NewFile(path)
	if _, ok := f.Current(); ok {
		t.Errorf("garbage content should not count as a visible badge")
	}
}
