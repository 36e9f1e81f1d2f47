package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/your-org/fileorganizer/internal/api"
	"github.com/your-org/fileorganizer/internal/config"
	"github.com/your-org/fileorganizer/internal/destination"
	"github.com/your-org/fileorganizer/internal/filebrowser"
	"github.com/your-org/fileorganizer/internal/filewatcher"
	"github.com/your-org/fileorganizer/internal/history"
	"github.com/your-org/fileorganizer/internal/instance"
	"github.com/your-org/fileorganizer/internal/organizer"
	"github.com/your-org/fileorganizer/internal/seen"
	"github.com/your-org/fileorganizer/internal/stability"
	"github.com/your-org/fileorganizer/internal/websocket"
)

// startupError logs at fatal level without exiting so deferred cleanup
// runs. main turns the returned error into exit status 1.
func startupError(logger zerolog.Logger, err error, msg string) error {
	logger.WithLevel(zerolog.FatalLevel).Err(err).Msg(msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// bootstrap loads config and logging shared by run and scan.
func bootstrap(flags *globalFlags, console io.Writer) (*config.Config, *logSetup, error) {
	cfg, path, err := loadConfig(flags)
	if err != nil {
		// Console-only logger so the failure still reaches the log stream.
		if setup, logErr := newLogger(flags, nil, console); logErr == nil {
			setup.logger.WithLevel(zerolog.FatalLevel).Err(err).Str("path", path).Msg("Failed to load configuration")
		}
		return nil, nil, err
	}

	setup, err := newLogger(flags, cfg, console)
	if err != nil {
		return nil, nil, err
	}

	setup.logger.Info().Str("config", path).Msg("Program start")
	setup.logger.Info().
		Str("watchDir", cfg.WatchDir).
		Str("historyFile", cfg.HistoryFile).
		Str("logFile", cfg.LogFile).
		Int("categories", len(cfg.FileTypes)).
		Msg("Configuration loaded")
	return cfg, setup, nil
}

func newOrganizer(logger zerolog.Logger, cfg *config.Config) (*organizer.Organizer, *history.Recorder, error) {
	recorder := history.New(cfg.HistoryFile)
	org, err := organizer.New(logger, organizer.Options{
		Root:       cfg.WatchDir,
		Classifier: cfg.ClassifierTable(),
		Resolver:   destination.New(cfg.WatchDir, cfg.FolderPaths),
		Stability: stability.New(logger, stability.Options{
			Wait:    cfg.StabilityWait.Std(),
			Pause:   cfg.StabilityPause.Std(),
			MaxWait: cfg.MaxWait.Std(),
		}),
		History:        recorder,
		Seen:           seen.New(),
		IgnorePrefixes: cfg.IgnorePrefixes,
		IgnoreSuffixes: cfg.IgnoreSuffixes,
		Reserved:       []string{cfg.HistoryFile, cfg.LogFile},
	})
	return org, recorder, err
}

// runOrganizer is the long-running mode: scan, then watch until SIGINT/SIGTERM.
func runOrganizer(parent context.Context, flags *globalFlags, console io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, setup, err := bootstrap(flags, console)
	if err != nil {
		return err
	}
	defer setup.Close()
	logger := setup.logger

	lock, err := instance.Acquire(config.DataDir(), cfg.WatchDir)
	if err != nil {
		return startupError(logger, err, "Failed to acquire instance lock")
	}
	defer lock.Release()

	org, recorder, err := newOrganizer(logger, cfg)
	if err != nil {
		return startupError(logger, err, "Failed to create organizer")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StatusAddr != "" {
		hub := websocket.NewHub(logger, setup.sessionID)
		org.OnMove(func(rec history.Record) {
			if err := hub.Broadcast(websocket.MessageTypeMove, rec); err != nil {
				logger.Warn().Err(err).Msg("Failed to publish move event")
			}
		})

		server := api.NewServer(logger, api.Options{
			Addr:      cfg.StatusAddr,
			SessionID: setup.sessionID,
			LogFile:   cfg.LogFile,
			History:   recorder,
			Stats:     org,
			Events:    hub,
			Files:     filebrowser.New(logger, cfg.WatchDir),
		})
		if err := server.Start(ctx); err != nil {
			return startupError(logger, err, "Failed to start status server")
		}
	}

	// Subscribe before scanning so files arriving during the sweep are not missed.
	watcher := filewatcher.NewWatcher(logger, cfg.WatchDir)
	if err := watcher.Start(); err != nil {
		return startupError(logger, err, "Failed to start watcher")
	}
	defer watcher.Stop()

	if err := org.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return startupError(logger, err, "Startup scan failed")
	}

	logger.Info().Str("dir", cfg.WatchDir).Msg("Monitoring folder")
	org.Run(ctx, watcher.Events())

	stats := org.Stats()
	logger.Info().
		Int64("moved", stats.Moved).
		Int64("skipped", stats.Skipped).
		Int64("errored", stats.Errored).
		Msg("Shutting down")
	return nil
}

// runScan organizes whatever is in the folder right now and exits.
func runScan(parent context.Context, flags *globalFlags, console io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, setup, err := bootstrap(flags, console)
	if err != nil {
		return err
	}
	defer setup.Close()
	logger := setup.logger

	lock, err := instance.Acquire(config.DataDir(), cfg.WatchDir)
	if err != nil {
		return startupError(logger, err, "Failed to acquire instance lock")
	}
	defer lock.Release()

	org, _, err := newOrganizer(logger, cfg)
	if err != nil {
		return startupError(logger, err, "Failed to create organizer")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := org.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := org.Stats()
	logger.Info().
		Int64("moved", stats.Moved).
		Int64("skipped", stats.Skipped).
		Int64("errored", stats.Errored).
		Msg("Scan complete")
	return nil
}
