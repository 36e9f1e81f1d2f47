package filewatcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Kind is the type of a watch notification
type Kind int

const (
	// Created is a new path appearing in the watched directory.
	Created Kind = iota
	// MovedFrom is a path renamed or moved away.
	MovedFrom
	// MovedTo is a path that appeared as the target of a rename.
	MovedTo
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case MovedFrom:
		return "moved_from"
	case MovedTo:
		return "moved_to"
	default:
		return "unknown"
	}
}

// Event is a notification about a path directly inside the watched directory.
type Event struct {
	Kind Kind
	Path string
	// OldPath is the rename source for MovedTo events, when known.
	OldPath string
}

// DefaultRenameWindow is how long a rename source is remembered while
// waiting for the matching create.
const DefaultRenameWindow = 500 * time.Millisecond

type pendingRename struct {
	path string
	at   time.Time
}

// Watcher watches a single directory (non-recursively) and translates
// fsnotify operations into Events.
type Watcher struct {
	mu           sync.Mutex
	dir          string
	fsWatcher    *fsnotify.Watcher
	logger       zerolog.Logger
	events       chan Event
	stopChan     chan struct{}
	stopped      bool
	started      bool
	wg           sync.WaitGroup
	lastRename   *pendingRename
	renameWindow time.Duration
	now          func() time.Time
}

// NewWatcher creates a watcher for dir. Call Start to begin delivering events.
func NewWatcher(logger zerolog.Logger, dir string) *Watcher {
	return &Watcher{
		dir:          filepath.Clean(dir),
		logger:       logger.With().Str("component", "filewatcher").Logger(),
		events:       make(chan Event, 100),
		stopChan:     make(chan struct{}),
		renameWindow: DefaultRenameWindow,
		now:          time.Now,
	}
}

// Events returns the notification channel. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start registers the directory with fsnotify and begins forwarding events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("watcher for %s already started", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}

	w.fsWatcher = fsw
	w.started = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.handleEvents()
	}()

	w.logger.Info().Str("dir", w.dir).Msg("Started watching directory")
	return nil
}

// Stop stops the watcher and closes the events channel. Safe to call twice.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.logger.Debug().Msg("File watcher already stopped")
		return
	}
	w.stopped = true
	close(w.stopChan)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)

	w.logger.Info().Msg("File watcher stopped")
}

func (w *Watcher) handleEvents() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Raw file event")

			ev, ok := w.translate(event)
			if !ok {
				continue
			}

			select {
			case w.events <- ev:
			case <-w.stopChan:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str("dir", w.dir).Msg("Watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// translate maps an fsnotify event to an Event. fsnotify reports a rename
// as Rename on the old name followed by Create on the new one; a Create
// that follows a Rename in this directory within renameWindow is reported
// as MovedTo.
func (w *Watcher) translate(event fsnotify.Event) (Event, bool) {
	path := filepath.Clean(event.Name)
	if filepath.Dir(path) != w.dir {
		return Event{}, false
	}

	switch {
	case event.Has(fsnotify.Create):
		if w.lastRename != nil && w.now().Sub(w.lastRename.at) <= w.renameWindow && w.lastRename.path != path {
			oldPath := w.lastRename.path
			w.lastRename = nil
			return Event{Kind: MovedTo, Path: path, OldPath: oldPath}, true
		}
		w.lastRename = nil
		return Event{Kind: Created, Path: path}, true

	case event.Has(fsnotify.Rename):
		w.lastRename = &pendingRename{path: path, at: w.now()}
		return Event{Kind: MovedFrom, Path: path}, true
	}

	return Event{}, false
}
