package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DateLayout is the timestamp format stored in each record.
const DateLayout = "2006-01-02 15:04:05"

// Record describes one completed move
type Record struct {
	File        string `json:"file"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Destination string `json:"destination"`
}

// NewRecord builds a record stamped with at.
func NewRecord(file, category, destination string, at time.Time) Record {
	return Record{
		File:        file,
		Type:        category,
		Date:        at.Format(DateLayout),
		Destination: destination,
	}
}

// Recorder persists the move history as a single JSON array. Every append
// loads the full log, adds the record and atomically replaces the file.
type Recorder struct {
	path string
	mu   sync.Mutex
}

// New creates a recorder backed by path. The file is created on first append.
func New(path string) *Recorder {
	return &Recorder{path: path}
}

// Path returns the history file location
func (r *Recorder) Path() string {
	return r.path
}

// Load returns all records. A missing file yields an empty history.
func (r *Recorder) Load() ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Record appends rec to the history.
func (r *Recorder) Record(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	records = append(records, rec)

	return r.save(records)
}

func (r *Recorder) load() ([]Record, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	records := []Record{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", r.path, err)
	}
	return records, nil
}

// save writes records to a temp file next to the log and renames it into
// place, so a crash never leaves a truncated history behind.
func (r *Recorder) save(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close history: %w", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set history permissions: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}
