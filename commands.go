package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/your-org/fileorganizer/internal/config"
	"github.com/your-org/fileorganizer/internal/history"
)

func newScanCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Organize the files currently in the folder and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), flags, cmd.OutOrStdout())
		},
	}
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	var limit int
	var category string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded moves, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}

			records, err := history.New(cfg.HistoryFile).Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No files have been moved yet.")
				return nil
			}
			fmt.Fprintln(out, renderHistory(records, category, limit, time.Now()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	cmd.Flags().StringVarP(&category, "type", "t", "", "Only show moves of this category")
	return cmd
}

// renderHistory draws records newest first as a table.
func renderHistory(records []history.Record, category string, limit int, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"#", "File", "Type", "Destination", "Moved"})

	shown := 0
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && shown >= limit {
			break
		}
		rec := records[i]
		if category != "" && !strings.EqualFold(rec.Type, category) {
			continue
		}
		shown++
		tw.AppendRow(table.Row{i + 1, rec.File, rec.Type, rec.Destination, movedAgo(rec.Date, now)})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d", shown, len(records))})
	return tw.Render()
}

func movedAgo(date string, now time.Time) string {
	at, err := time.ParseInLocation(history.DateLayout, date, time.Local)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s (%s)", date, humanize.RelTime(at, now, "ago", "from now"))
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand(flags))
	configCmd.AddCommand(newConfigValidateCommand(flags))
	configCmd.AddCommand(newConfigImportINICommand(flags))
	configCmd.AddCommand(newConfigExportINICommand(flags))
	return configCmd
}

func targetPath(flags *globalFlags) string {
	if flags.configPath != "" {
		return flags.configPath
	}
	return config.DefaultPath()
}

func writeConfig(cfg *config.Config, target string, overwrite bool, out io.Writer) error {
	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := cfg.Save(target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote configuration to %s\n", target)
	return nil
}

func newConfigInitCommand(flags *globalFlags) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with the standard categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.FileTypes = sampleFileTypes()
			cfg.FolderPaths = make(map[string]string, len(cfg.FileTypes)+1)
			for category := range cfg.FileTypes {
				cfg.FolderPaths[category] = category
			}
			cfg.FolderPaths["Others"] = "Others"
			return writeConfig(cfg, targetPath(flags), overwrite, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration loads and is usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration %s is valid\n", path)
			fmt.Fprintf(out, "  watching:   %s\n", cfg.WatchDir)
			fmt.Fprintf(out, "  categories: %s\n", strings.Join(cfg.ClassifierTable().Categories(), ", "))
			return nil
		},
	}
}

func newConfigImportINICommand(flags *globalFlags) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import-ini <file.ini>",
		Short: "Convert an INI category file into a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ImportINI(args[0])
			if err != nil {
				return err
			}
			return writeConfig(cfg, targetPath(flags), overwrite, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigExportINICommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export-ini <file.ini>",
		Short: "Write the category tables of the configuration as INI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := targetPath(flags)
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := config.ExportINI(cfg, target); err != nil {
				return fmt.Errorf("failed to export INI: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", path, target)
			return nil
		},
	}
}

func sampleFileTypes() map[string][]string {
	return map[string][]string{
		"Documents":  {".pdf", ".doc", ".docx", ".txt", ".rtf", ".odt", ".xls", ".xlsx", ".ppt", ".pptx", ".csv", ".ods"},
		"Images":     {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".heic"},
		"Videos":     {".mp4", ".mkv", ".avi", ".mov", ".wmv", ".webm"},
		"Audio":      {".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a"},
		"Archives":   {".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz"},
		"Installers": {".exe", ".msi", ".dmg", ".pkg", ".deb", ".rpm", ".appimage"},
		"Code":       {".py", ".go", ".js", ".ts", ".html", ".css", ".json", ".sh"},
		"Ebooks":     {".epub", ".mobi", ".azw3"},
		"Torrents":   {".torrent"},
		"DiskImages": {".iso", ".img"},
		"Fonts":      {".ttf", ".otf", ".woff", ".woff2"},
	}
}
