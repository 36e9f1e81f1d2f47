package logrotation

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102-150405"

// Options controls when the log is rotated and how many backups survive.
type Options struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

func (o Options) withDefaults() Options {
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 100
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 30
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 5
	}
	return o
}

// Writer is an io.WriteCloser that appends to a log file and moves it aside
// once it grows past the size limit. Backups are named
// <file>.<timestamp>[.gz] and pruned by age and count.
type Writer struct {
	filename string
	opts     Options
	maxSize  int64
	now      func() time.Time

	mu   sync.Mutex
	file *os.File
	size int64
	wg   sync.WaitGroup

	// maintMu serializes compression and pruning across rotations.
	maintMu sync.Mutex
}

// Open opens (or creates) filename for appending.
func Open(filename string, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	w := &Writer{
		filename: filename,
		opts:     opts,
		maxSize:  int64(opts.MaxSizeMB) * 1024 * 1024,
		now:      time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Filename returns the path of the active log file.
func (w *Writer) Filename() string {
	return w.filename
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rotation regardless of the current size.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

// Close waits for pending compression and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

func (w *Writer) open() error {
	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

func (w *Writer) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}

	backup := w.backupName()
	if err := os.Rename(w.filename, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.maintMu.Lock()
		defer w.maintMu.Unlock()
		if w.opts.Compress {
			_ = compress(backup)
		}
		w.prune()
	}()

	return w.open()
}

// backupName picks a timestamped name that does not exist yet.
func (w *Writer) backupName() string {
	base := fmt.Sprintf("%s.%s", w.filename, w.now().Format(backupTimeFormat))
	name := base
	for i := 1; ; i++ {
		_, errPlain := os.Stat(name)
		_, errGz := os.Stat(name + ".gz")
		if os.IsNotExist(errPlain) && os.IsNotExist(errGz) {
			return name
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

// Backups lists rotated files for the log, oldest first.
func (w *Writer) Backups() ([]string, error) {
	infos, err := w.backups()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(w.filename)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = filepath.Join(dir, info.Name())
	}
	return names, nil
}

func (w *Writer) backups() ([]os.FileInfo, error) {
	dir := filepath.Dir(w.filename)
	prefix := filepath.Base(w.filename) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var infos []os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ModTime().Equal(infos[j].ModTime()) {
			return infos[i].Name() < infos[j].Name()
		}
		return infos[i].ModTime().Before(infos[j].ModTime())
	})
	return infos, nil
}

// prune drops backups older than MaxAgeDays, then the oldest ones beyond MaxBackups.
func (w *Writer) prune() {
	infos, err := w.backups()
	if err != nil {
		return
	}
	dir := filepath.Dir(w.filename)
	cutoff := w.now().AddDate(0, 0, -w.opts.MaxAgeDays)

	kept := infos[:0]
	for _, info := range infos {
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, info.Name()))
			continue
		}
		kept = append(kept, info)
	}

	for len(kept) > w.opts.MaxBackups {
		os.Remove(filepath.Join(dir, kept[0].Name()))
		kept = kept[1:]
	}
}

func compress(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(filename + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}
