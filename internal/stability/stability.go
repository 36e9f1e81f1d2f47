package stability

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

var (
	// ErrVanished is returned when the file disappears while waiting for it to settle.
	ErrVanished = errors.New("file vanished while waiting for it to settle")

	// ErrTimeout is returned when MaxWait is set and the file keeps changing.
	ErrTimeout = errors.New("file did not settle within max wait")
)

const (
	DefaultWait  = 2 * time.Second
	DefaultPause = 2 * time.Second
)

// Options configures a Detector
type Options struct {
	// Wait is the delay between the two size samples of one check.
	Wait time.Duration
	// Pause is the extra delay after a failed check.
	Pause time.Duration
	// MaxWait bounds WaitUntilStable. Zero waits forever.
	MaxWait time.Duration
}

// Detector decides whether a file has finished being written by sampling its size.
type Detector struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a detector, filling unset durations with defaults.
func New(logger zerolog.Logger, opts Options) *Detector {
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	if opts.Pause <= 0 {
		opts.Pause = DefaultPause
	}
	if opts.MaxWait < 0 {
		opts.MaxWait = 0
	}

	return &Detector{
		opts:   opts,
		logger: logger.With().Str("component", "stability").Logger(),
	}
}

// IsStable samples the size of path twice, Wait apart. It reports true only
// when both samples succeed, are equal and non-zero. A cancelled context,
// a missing file or a stat error all report false.
func (d *Detector) IsStable(ctx context.Context, path string) bool {
	first, err := fileSize(path)
	if err != nil {
		return false
	}

	if !sleep(ctx, d.opts.Wait) {
		return false
	}

	second, err := fileSize(path)
	if err != nil {
		return false
	}

	return first == second && second > 0
}

// WaitUntilStable blocks until IsStable reports true. It returns ctx.Err()
// when cancelled, ErrVanished when the file is gone on two consecutive
// checks, and ErrTimeout only when MaxWait is configured.
func (d *Detector) WaitUntilStable(ctx context.Context, path string) error {
	start := time.Now()
	missing := false

	for attempt := 1; ; attempt++ {
		if d.IsStable(ctx, path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		size, err := fileSize(path)
		if os.IsNotExist(err) {
			if missing {
				return ErrVanished
			}
			missing = true
		} else {
			missing = false
		}

		if d.opts.MaxWait > 0 && time.Since(start) >= d.opts.MaxWait {
			return ErrTimeout
		}

		d.logger.Info().
			Str("file", path).
			Int("attempt", attempt).
			Str("size", humanize.IBytes(uint64(max(size, 0)))).
			Msg("Waiting for file to be fully downloaded")

		if !sleep(ctx, d.opts.Pause) {
			return ctx.Err()
		}
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
