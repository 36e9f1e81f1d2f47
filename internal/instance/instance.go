package instance

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another process holds the lock for the same directory.
var ErrAlreadyRunning = errors.New("another organizer is already watching this directory")

// Lock guarantees a single organizer per watched directory.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock for root, storing the lock file in dataDir.
func Acquire(dataDir, root string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := LockPath(dataDir, root)
	l := &Lock{path: path, lock: flock.New(path)}

	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, root)
	}
	return l, nil
}

// LockPath returns the lock file used for root.
func LockPath(dataDir, root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return filepath.Join(dataDir, "organizer-"+hex.EncodeToString(sum[:6])+".lock")
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks. The lock file itself is left in place.
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
