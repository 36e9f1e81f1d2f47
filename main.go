/*
 * File Organizer
 * Copyright (C) 2025 Your Organization
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/your-org/fileorganizer/internal/config"
	"github.com/your-org/fileorganizer/internal/logrotation"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	noConsole  bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "fileorganizer",
		Short:         "Sort new files in a downloads folder into category folders",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrganizer(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.noConsole, "quiet", false, "Only write logs to the log file")

	rootCmd.AddCommand(newRunCommand(flags))
	rootCmd.AddCommand(newScanCommand(flags))
	rootCmd.AddCommand(newHistoryCommand(flags))
	rootCmd.AddCommand(newConfigCommand(flags))

	return rootCmd
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Organize existing files, then watch the folder until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrganizer(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}
}

// loadConfig resolves the config path and loads and validates it.
func loadConfig(flags *globalFlags) (*config.Config, string, error) {
	path := flags.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, path, fmt.Errorf("configuration file not found at %s (create one with 'fileorganizer config init')", path)
		}
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, path, nil
}

// logSetup is the root logger plus the file it writes to.
type logSetup struct {
	logger    zerolog.Logger
	sessionID string
	file      *logrotation.Writer
}

func (l *logSetup) Close() {
	if l.file != nil {
		l.file.Close()
	}
}

// newLogger builds a console + rotating file logger. Before the config is
// known, logFile may be empty and only the console is used.
func newLogger(flags *globalFlags, cfg *config.Config, console io.Writer) (*logSetup, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	levelName := flags.logLevel
	if levelName == "" && cfg != nil {
		levelName = cfg.LogLevel
	}
	if levelName != "" {
		parsed, err := zerolog.ParseLevel(levelName)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	setup := &logSetup{sessionID: uuid.NewString()}

	var writers []io.Writer
	if !flags.noConsole {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	}
	if cfg != nil && cfg.LogFile != "" {
		rot := cfg.LogRotation
		file, err := logrotation.Open(cfg.LogFile, logrotation.Options{
			MaxSizeMB:  rot.MaxSizeMB,
			MaxAgeDays: rot.MaxAgeDays,
			MaxBackups: rot.MaxBackups,
			Compress:   rot.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rotating log writer: %w", err)
		}
		setup.file = file
		writers = append(writers, file)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	setup.logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("session", setup.sessionID).
		Logger()
	return setup, nil
}
