package stability

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector() *Detector {
	return New(zerolog.Nop(), Options{
		Wait:  40 * time.Millisecond,
		Pause: 10 * time.Millisecond,
	})
}

func TestNew_Defaults(t *testing.T) {
	d := New(zerolog.Nop(), Options{MaxWait: -1})
	assert.Equal(t, DefaultWait, d.opts.Wait)
	assert.Equal(t, DefaultPause, d.opts.Pause)
	assert.Zero(t, d.opts.MaxWait)
}

func TestIsStable_UnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "done.bin")
	require.NoError(t, os.WriteFile(path, []byte("complete"), 0o644))

	assert.True(t, newTestDetector().IsStable(context.Background(), path))
}

func TestIsStable_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	assert.False(t, newTestDetector().IsStable(context.Background(), path))
}

func TestIsStable_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.bin")
	assert.False(t, newTestDetector().IsStable(context.Background(), path))
}

func TestIsStable_GrowingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "growing.bin")
	require.NoError(t, os.WriteFile(path, []byte("part"), 0o644))

	d := New(zerolog.Nop(), Options{Wait: 200 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString("more bytes")
	}()

	assert.False(t, d.IsStable(context.Background(), path))
	<-done
}

func TestIsStable_DisappearsBetweenSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	d := New(zerolog.Nop(), Options{Wait: 200 * time.Millisecond})

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.Remove(path)
	}()

	assert.False(t, d.IsStable(context.Background(), path))
}

func TestIsStable_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(zerolog.Nop(), Options{Wait: time.Hour})
	assert.False(t, d.IsStable(ctx, path))
}

func TestWaitUntilStable_EventuallyStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "download.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = os.WriteFile(path, []byte("finished download"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, newTestDetector().WaitUntilStable(ctx, path))
}

func TestWaitUntilStable_Vanished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-there.bin")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newTestDetector().WaitUntilStable(ctx, path)
	assert.ErrorIs(t, err, ErrVanished)
}

func TestWaitUntilStable_CancelledDuringWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := newTestDetector().WaitUntilStable(ctx, path)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitUntilStable_MaxWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	d := New(zerolog.Nop(), Options{
		Wait:    10 * time.Millisecond,
		Pause:   10 * time.Millisecond,
		MaxWait: 50 * time.Millisecond,
	})

	err := d.WaitUntilStable(context.Background(), path)
	assert.ErrorIs(t, err, ErrTimeout)
}
