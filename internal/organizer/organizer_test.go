package organizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fileorganizer/internal/classify"
	"github.com/your-org/fileorganizer/internal/destination"
	"github.com/your-org/fileorganizer/internal/fileops"
	"github.com/your-org/fileorganizer/internal/filewatcher"
	"github.com/your-org/fileorganizer/internal/history"
	"github.com/your-org/fileorganizer/internal/seen"
	"github.com/your-org/fileorganizer/internal/stability"
)

type fixture struct {
	root    string
	org     *Organizer
	history *history.Recorder
	seen    *seen.Tracker
}

// instantStability treats every existing file as stable.
type instantStability struct{}

func (instantStability) WaitUntilStable(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return stability.ErrVanished
	}
	return ctx.Err()
}

type failingHistory struct{}

func (failingHistory) Record(history.Record) error {
	return errors.New("disk full")
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	root := t.TempDir()
	hist := history.New(filepath.Join(t.TempDir(), "history.json"))
	tracker := seen.New()

	o := Options{
		Root: root,
		Classifier: classify.NewTable(map[string][]string{
			"Documents": {".pdf", ".docx"},
			"Images":    {".jpg", ".png"},
		}),
		Resolver: destination.New(root, map[string]string{
			"Documents": "Documents",
			"Images":    "Images",
			"Others":    "Others",
		}),
		Stability:      instantStability{},
		History:        hist,
		Seen:           tracker,
		IgnorePrefixes: []string{"."},
		IgnoreSuffixes: []string{".tmp", ".crdownload"},
	}
	for _, fn := range opts {
		fn(&o)
	}

	org, err := New(zerolog.Nop(), o)
	require.NoError(t, err)
	org.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local) }

	return &fixture{root: root, org: org, history: hist, seen: tracker}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(zerolog.Nop(), Options{})
	assert.Error(t, err)
}

func TestProcess_MovesAndRecords(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "report.pdf", "pdf bytes")

	res := f.org.Process(context.Background(), path)
	require.NoError(t, res.Err)
	assert.Equal(t, StateRecorded, res.State)
	assert.Equal(t, filepath.Join(f.root, "Documents", "report.pdf"), res.Destination)

	assert.NoFileExists(t, path)
	data, err := os.ReadFile(res.Destination)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))

	records, err := f.history.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.Record{
		File:        "report.pdf",
		Type:        "Documents",
		Date:        "2024-03-01 09:30:00",
		Destination: filepath.Join("Documents", "report.pdf"),
	}, records[0])

	assert.True(t, f.seen.IsSeen(path))
	assert.True(t, f.seen.IsSeen(res.Destination))
}

func TestProcess_CollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "Images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "Images", "photo.jpg"), []byte("old"), 0o644))

	path := f.write(t, "photo.jpg", "new")
	res := f.org.Process(context.Background(), path)
	require.Equal(t, StateRecorded, res.State)
	assert.Equal(t, filepath.Join(f.root, "Images", "photo_1.jpg"), res.Destination)

	old, err := os.ReadFile(filepath.Join(f.root, "Images", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
	assert.Equal(t, filepath.Join("Images", "photo_1.jpg"), res.Record.Destination)
}

func TestProcess_UnknownExtensionGoesToOthers(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "notes.xyz", "data")

	res := f.org.Process(context.Background(), path)
	require.Equal(t, StateRecorded, res.State)
	assert.Equal(t, "Others", res.Record.Type)
	assert.FileExists(t, filepath.Join(f.root, "Others", "notes.xyz"))
}

func TestProcess_SkipsFiltered(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		reason string
	}{
		{".hidden.pdf", "hidden file"},
		{"movie.mp4.crdownload", "incomplete download"},
		{"partial.TMP", "incomplete download"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := f.write(t, tt.name, "x")
			res := f.org.Process(context.Background(), path)
			assert.Equal(t, StateSkipped, res.State)
			assert.Equal(t, tt.reason, res.Reason)
			assert.FileExists(t, path)
		})
	}

	records, err := f.history.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcess_SkipsDirectoriesAndMissing(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.root, "subdir.pdf")
	require.NoError(t, os.Mkdir(dir, 0o755))

	res := f.org.Process(context.Background(), dir)
	assert.Equal(t, StateSkipped, res.State)
	assert.DirExists(t, dir)

	res = f.org.Process(context.Background(), filepath.Join(f.root, "gone.pdf"))
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, "missing", res.Reason)
}

func TestProcess_ReservedFilesStay(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Reserved = []string{filepath.Join(o.Root, "organizer.log"), filepath.Join(o.Root, "history.json")}
	})

	for _, name := range []string{"organizer.log", "organizer.log.20240101-000000", "history.json"} {
		path := f.write(t, name, "x")
		res := f.org.Process(context.Background(), path)
		assert.Equal(t, StateSkipped, res.State, name)
		assert.Equal(t, "reserved file", res.Reason, name)
	}
}

func TestProcess_SeenPathIsSkipped(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.pdf", "x")
	f.seen.MarkSeen(path)

	res := f.org.Process(context.Background(), path)
	assert.Equal(t, StateSkipped, res.State)
	assert.FileExists(t, path)
}

func TestProcess_HistoryFailure(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.History = failingHistory{} })
	path := f.write(t, "a.png", "x")

	res := f.org.Process(context.Background(), path)
	assert.Equal(t, StateErrored, res.State)
	assert.Error(t, res.Err)
	// The move itself is not rolled back.
	assert.FileExists(t, filepath.Join(f.root, "Images", "a.png"))
	assert.Equal(t, int64(1), f.org.Stats().Errored)
}

func TestProcess_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Stability = stability.New(zerolog.Nop(), stability.Options{Wait: time.Hour, Pause: time.Hour})
	})
	path := f.write(t, "slow.pdf", "x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- f.org.Process(ctx, path) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, StateErrored, res.State)
		assert.ErrorIs(t, res.Err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not return after cancellation")
	}
	assert.FileExists(t, path)
}

func TestProcess_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.org.OnMove(func(history.Record) { panic("listener exploded") })
	path := f.write(t, "a.pdf", "x")

	res := f.org.Process(context.Background(), path)
	assert.Equal(t, StateErrored, res.State)
	assert.ErrorContains(t, res.Err, "listener exploded")
	assert.Equal(t, int64(0), f.org.Stats().InFlight)
}

func TestProcess_CrossDeviceMoveLeavesFile(t *testing.T) {
	f := newFixture(t)
	f.org.rename = func(src, dst string) error {
		return fmt.Errorf("failed to move %s: %w", filepath.Base(src), fileops.ErrCrossDevice)
	}
	path := f.write(t, "x.pdf", "x")

	res := f.org.Process(context.Background(), path)
	assert.Equal(t, StateErrored, res.State)
	assert.ErrorIs(t, res.Err, fileops.ErrCrossDevice)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(f.root, "Documents", "x.pdf"))

	records, err := f.history.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int64(1), f.org.Stats().Errored)
}

func TestProcess_FollowsSymlinkToFile(t *testing.T) {
	f := newFixture(t)
	target := filepath.Join(t.TempDir(), "real.pdf")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(f.root, "link.pdf")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res := f.org.Process(context.Background(), link)
	require.Equal(t, StateRecorded, res.State)

	info, err := os.Lstat(filepath.Join(f.root, "Documents", "link.pdf"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	assert.FileExists(t, target)
}

func TestProcess_SkipsSymlinkToDirectory(t *testing.T) {
	f := newFixture(t)
	link := filepath.Join(f.root, "folder.pdf")
	if err := os.Symlink(t.TempDir(), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res := f.org.Process(context.Background(), link)
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, "not a regular file", res.Reason)
}

func TestHandle_DuplicateEventsMoveOnce(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "dup.pdf", "x")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.org.Handle(ctx, filewatcher.Event{Kind: filewatcher.Created, Path: path})
	}
	f.org.Wait()

	records, err := f.history.Load()
	require.NoError(t, err)
	assert.Len(t, records, 1)
	stats := f.org.Stats()
	assert.Equal(t, int64(1), stats.Moved)
	assert.Equal(t, int64(4), stats.Skipped)
}

func TestHandle_MovedFromMarksSeen(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "renamed.pdf", "x")

	f.org.Handle(context.Background(), filewatcher.Event{Kind: filewatcher.MovedFrom, Path: path})
	f.org.Wait()

	assert.True(t, f.seen.IsSeen(path))
	assert.FileExists(t, path)
}

func TestHandle_MovedToIsProcessed(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "done.jpg", "x")

	f.org.Handle(context.Background(), filewatcher.Event{
		Kind:    filewatcher.MovedTo,
		Path:    path,
		OldPath: filepath.Join(f.root, "done.jpg.crdownload"),
	})
	f.org.Wait()

	assert.FileExists(t, filepath.Join(f.root, "Images", "done.jpg"))
}

func TestHandle_ConcurrentSameNameGetDistinctDestinations(t *testing.T) {
	f := newFixture(t)
	sub := t.TempDir()

	// Identical names arriving from different source dirs must not overwrite each other.
	var paths []string
	for i := 0; i < 8; i++ {
		dir := filepath.Join(sub, fmt.Sprintf("src%d", i))
		require.NoError(t, os.Mkdir(dir, 0o755))
		p := filepath.Join(dir, "same.pdf")
		require.NoError(t, os.WriteFile(p, []byte(fmt.Sprint(i)), 0o644))
		paths = append(paths, p)
	}

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			f.org.Process(context.Background(), p)
		}(p)
	}
	wg.Wait()

	entries, err := os.ReadDir(filepath.Join(f.root, "Documents"))
	require.NoError(t, err)
	assert.Len(t, entries, 8)

	records, err := f.history.Load()
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

func TestScan_ProcessesExistingFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.pdf", "1")
	f.write(t, "b.png", "2")
	f.write(t, ".hidden", "3")
	require.NoError(t, os.Mkdir(filepath.Join(f.root, "Folder"), 0o755))

	require.NoError(t, f.org.Scan(context.Background()))

	assert.FileExists(t, filepath.Join(f.root, "Documents", "a.pdf"))
	assert.FileExists(t, filepath.Join(f.root, "Images", "b.png"))
	assert.FileExists(t, filepath.Join(f.root, ".hidden"))
	assert.DirExists(t, filepath.Join(f.root, "Folder"))
	assert.Equal(t, int64(2), f.org.Stats().Moved)
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "r.docx", "x")

	var notified []history.Record
	var mu sync.Mutex
	f.org.OnMove(func(rec history.Record) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, rec)
	})

	events := make(chan filewatcher.Event, 1)
	events <- filewatcher.Event{Kind: filewatcher.Created, Path: path}
	close(events)

	done := make(chan struct{})
	go func() {
		f.org.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 1)
	assert.Equal(t, "r.docx", notified[0].File)
}

func TestRun_DownloadRenamedOnCompletionMovesOnce(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Stability = stability.New(zerolog.Nop(), stability.Options{Wait: 10 * time.Millisecond, Pause: 10 * time.Millisecond})
	})

	watcher := filewatcher.NewWatcher(zerolog.Nop(), f.root)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.org.Run(ctx, watcher.Events())
		close(done)
	}()

	partial := f.write(t, "manual.pdf.crdownload", "partial")
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(partial, []byte("complete"), 0o644))
	require.NoError(t, os.Rename(partial, filepath.Join(f.root, "manual.pdf")))

	dest := filepath.Join(f.root, "Documents", "manual.pdf")
	require.Eventually(t, func() bool {
		_, err := os.Stat(dest)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// Leave room for a duplicate move to show up before stopping.
	time.Sleep(700 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	records, err := f.history.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "manual.pdf", records[0].File)
	assert.Equal(t, filepath.Join("Documents", "manual.pdf"), records[0].Destination)
	assert.Equal(t, int64(1), f.org.Stats().Moved)
	assert.NoFileExists(t, filepath.Join(f.root, "Documents", "manual_1.pdf"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.org.Run(ctx, make(chan filewatcher.Event))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "recorded", StateRecorded.String())
	assert.Equal(t, "awaiting_stability", StateAwaitingStability.String())
	assert.Equal(t, "unknown", State(99).String())
}
