package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrCrossDevice is returned when source and destination live on different
// filesystems. The source is left untouched.
var ErrCrossDevice = errors.New("source and destination are on different filesystems")

var rename = os.Rename

// Move renames src to dst, creating dst's directory if needed. A rename
// across filesystems fails with ErrCrossDevice; no copy is attempted.
func Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to move %s: %w", filepath.Base(src), ErrCrossDevice)
	}
	return fmt.Errorf("failed to move file: %w", err)
}
