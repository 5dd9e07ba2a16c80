// Package indicator holds visible-badge implementations. The file indicator
// publishes the count as a small file for status-bar consumers (polybar,
// i3blocks, waybar custom modules); absence of the file is the visible
// representation of zero, matching the persisted representation.
package indicator

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File writes the badge count to a single file. The host environment owns
// the file between writes and may delete it at any time, which is exactly
// the drift the badge manager's reconciliation pass corrects.
type File struct {
	path string
}

// NewFile creates a file indicator at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Show writes count to the badge file atomically.
func (f *File) Show(count int) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(count)+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Clear removes the badge file. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Current reads back the visible value, reporting false when no badge is
// shown or the file content is not a count.
func (f *File) Current() (int, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return count, true
}
