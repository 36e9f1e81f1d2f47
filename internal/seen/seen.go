package seen

import (
	"path/filepath"
	"sync"
)

// Tracker is the set of paths the organizer has claimed, produced or chosen
// to ignore. Entries are never removed.
type Tracker struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{paths: make(map[string]struct{})}
}

// MarkSeen adds path to the set.
func (t *Tracker) MarkSeen(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths[filepath.Clean(path)] = struct{}{}
}

// IsSeen reports whether path is in the set.
func (t *Tracker) IsSeen(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.paths[filepath.Clean(path)]
	return ok
}

// Claim adds path and reports true if it was not already present. Only one
// of several concurrent callers for the same path gets true.
func (t *Tracker) Claim(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := filepath.Clean(path)
	if _, ok := t.paths[key]; ok {
		return false
	}
	t.paths[key] = struct{}{}
	return true
}

// Len returns the number of tracked paths
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}
