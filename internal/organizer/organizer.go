package organizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/your-org/fileorganizer/internal/classify"
	"github.com/your-org/fileorganizer/internal/destination"
	"github.com/your-org/fileorganizer/internal/fileops"
	"github.com/your-org/fileorganizer/internal/filewatcher"
	"github.com/your-org/fileorganizer/internal/history"
	"github.com/your-org/fileorganizer/internal/seen"
	"github.com/your-org/fileorganizer/internal/stability"
)

// StabilityWaiter blocks until a file has finished being written.
type StabilityWaiter interface {
	WaitUntilStable(ctx context.Context, path string) error
}

// HistoryRecorder persists completed moves.
type HistoryRecorder interface {
	Record(rec history.Record) error
}

// Options holds the collaborators and filters of an Organizer.
type Options struct {
	Root           string
	Classifier     *classify.Table
	Resolver       *destination.Resolver
	Stability      StabilityWaiter
	History        HistoryRecorder
	Seen           *seen.Tracker
	IgnorePrefixes []string
	IgnoreSuffixes []string
	// Reserved paths are never moved, nor are rotated siblings (path + ".").
	Reserved []string
}

// Organizer drives each observed path through filtering, stability wait,
// classification, destination resolution, move and history recording.
type Organizer struct {
	root           string
	classifier     *classify.Table
	resolver       *destination.Resolver
	stability      StabilityWaiter
	history        HistoryRecorder
	seen           *seen.Tracker
	ignorePrefixes []string
	ignoreSuffixes []string
	reserved       []string
	logger         zerolog.Logger
	now            func() time.Time
	rename         func(src, dst string) error

	// moveMu covers resolve+rename so two pipelines never pick the same name.
	moveMu sync.Mutex
	wg     sync.WaitGroup
	stats  stats

	listenersMu sync.RWMutex
	listeners   []func(history.Record)
}

// New creates an organizer. Root, Resolver, Stability, History and Seen are required.
func New(logger zerolog.Logger, opts Options) (*Organizer, error) {
	if opts.Root == "" || opts.Resolver == nil || opts.Stability == nil || opts.History == nil || opts.Seen == nil {
		return nil, errors.New("organizer requires root, resolver, stability detector, history and seen tracker")
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	suffixes := make([]string, len(opts.IgnoreSuffixes))
	for i, s := range opts.IgnoreSuffixes {
		suffixes[i] = strings.ToLower(s)
	}

	var reserved []string
	for _, p := range opts.Reserved {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			reserved = append(reserved, abs)
		}
	}

	o := &Organizer{
		root:           root,
		classifier:     opts.Classifier,
		resolver:       opts.Resolver,
		stability:      opts.Stability,
		history:        opts.History,
		seen:           opts.Seen,
		ignorePrefixes: opts.IgnorePrefixes,
		ignoreSuffixes: suffixes,
		reserved:       reserved,
		logger:         logger.With().Str("component", "organizer").Logger(),
		now:            time.Now,
		rename:         fileops.Move,
	}
	o.stats.started = o.now()
	return o, nil
}

// OnMove registers fn to be called after every recorded move.
func (o *Organizer) OnMove(fn func(history.Record)) {
	o.listenersMu.Lock()
	defer o.listenersMu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Scan processes every regular file directly inside the root, one at a
// time. Symlinks are followed when deciding what counts as a file. It is meant to run once before live monitoring starts.
func (o *Organizer) Scan(ctx context.Context) error {
	o.logger.Info().Str("dir", o.root).Msg("Scanning for existing files")

	entries, err := os.ReadDir(o.root)
	if err != nil {
		return fmt.Errorf("failed to read watch directory: %w", err)
	}

	counts := make(map[State]int)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		res := o.Process(ctx, filepath.Join(o.root, entry.Name()))
		counts[res.State]++
	}

	o.logger.Info().
		Int("moved", counts[StateRecorded]).
		Int("skipped", counts[StateSkipped]).
		Int("errored", counts[StateErrored]).
		Msg("Finished scanning")

	return ctx.Err()
}

// Run consumes watch events until ctx is done or the channel is closed,
// processing each arrival in its own goroutine. It returns once every
// pipeline it started has finished.
func (o *Organizer) Run(ctx context.Context, events <-chan filewatcher.Event) {
	defer o.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.Handle(ctx, ev)
		}
	}
}

// Handle dispatches a single event. Arrivals are processed asynchronously;
// call Wait to block until they finish.
func (o *Organizer) Handle(ctx context.Context, ev filewatcher.Event) {
	switch ev.Kind {
	case filewatcher.MovedFrom:
		o.seen.MarkSeen(ev.Path)
		o.logger.Debug().Str("file", ev.Path).Msg("Path moved away, marked as seen")

	case filewatcher.Created, filewatcher.MovedTo:
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.Process(ctx, ev.Path)
		}()

	default:
		o.logger.Warn().Str("file", ev.Path).Str("kind", ev.Kind.String()).Msg("Ignoring unknown event")
	}
}

// Wait blocks until all pipelines started by Handle have returned.
func (o *Organizer) Wait() {
	o.wg.Wait()
}

// Process runs the full pipeline for path and returns its terminal state.
// Errors and panics are contained and logged here.
func (o *Organizer) Process(ctx context.Context, path string) (res Result) {
	path = filepath.Clean(path)
	name := filepath.Base(path)
	logger := o.logger.With().Str("file", name).Logger()

	o.stats.inFlight.Add(1)
	defer func() {
		if r := recover(); r != nil {
			res = Result{State: StateErrored, Err: fmt.Errorf("panic: %v", r)}
			logger.Error().Err(res.Err).Str("path", path).Msg("Error processing file")
		}
		o.stats.inFlight.Add(-1)
		o.stats.count(res.State)
	}()

	if reason := o.filter(path, name); reason != "" {
		logger.Debug().Str("reason", reason).Msg("Skipping file")
		return Result{State: StateSkipped, Reason: reason}
	}

	logger.Info().Str("path", path).Msg("File event detected")
	return o.pipeline(ctx, logger, path, name)
}

// filter returns a non-empty reason when path must not be processed. A path
// that passes is claimed in the seen set before filter returns.
func (o *Organizer) filter(path, name string) string {
	if o.seen.IsSeen(path) {
		return "already seen"
	}
	for _, r := range o.reserved {
		if path == r || strings.HasPrefix(path, r+".") {
			return "reserved file"
		}
	}
	for _, prefix := range o.ignorePrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return "hidden file"
		}
	}
	lower := strings.ToLower(name)
	for _, suffix := range o.ignoreSuffixes {
		if suffix != "" && strings.HasSuffix(lower, suffix) {
			return "incomplete download"
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "missing"
	}
	if !info.Mode().IsRegular() {
		return "not a regular file"
	}

	if !o.seen.Claim(path) {
		return "already seen"
	}
	return ""
}

func (o *Organizer) pipeline(ctx context.Context, logger zerolog.Logger, path, name string) Result {
	logger.Debug().Str("state", StateAwaitingStability.String()).Msg("Waiting for file to settle")
	if err := o.stability.WaitUntilStable(ctx, path); err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			logger.Warn().Err(err).Msg("Stopped waiting for file, shutting down")
		case errors.Is(err, stability.ErrVanished):
			logger.Warn().Err(err).Msg("Error processing file")
		default:
			logger.Error().Err(err).Msg("Error processing file")
		}
		return Result{State: StateErrored, Err: err}
	}
	logger.Info().Msg("File is now stable")

	category := o.classifier.Classify(name)
	logger.Debug().Str("state", StateClassified.String()).Str("type", category).Msg("Classified file")

	dest, err := o.move(path, category, name)
	if err != nil {
		logger.Error().Err(err).Str("type", category).Msg("Error processing file")
		return Result{State: StateErrored, Err: err}
	}

	rel, err := o.resolver.Rel(dest)
	if err != nil {
		rel = dest
	}
	logger.Info().Str("destination", rel).Str("type", category).Msgf("Moved '%s' to '%s'", name, rel)

	rec := history.NewRecord(name, category, rel, o.now())
	if err := o.history.Record(rec); err != nil {
		logger.Error().Err(err).Str("destination", rel).Msg("Failed to record history")
		return Result{State: StateErrored, Destination: dest, Err: err}
	}

	o.notify(rec)
	return Result{State: StateRecorded, Destination: dest, Record: rec}
}

// move resolves a free destination and renames path into it. The
// destination is marked seen before the lock is released.
func (o *Organizer) move(path, category, name string) (string, error) {
	o.moveMu.Lock()
	defer o.moveMu.Unlock()

	dest, err := o.resolver.Resolve(category, name)
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}
	if err := o.rename(path, dest); err != nil {
		return "", fmt.Errorf("move to %s: %w", dest, err)
	}
	o.seen.MarkSeen(dest)
	return dest, nil
}

func (o *Organizer) notify(rec history.Record) {
	o.listenersMu.RLock()
	defer o.listenersMu.RUnlock()
	for _, fn := range o.listeners {
		fn(rec)
	}
}
