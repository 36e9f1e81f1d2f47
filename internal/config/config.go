package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/fileorganizer/internal/classify"
)

var (
	// ErrAmbiguousExtension is returned when one extension belongs to several categories.
	ErrAmbiguousExtension = errors.New("extension registered in more than one category")

	// ErrMissingRoot is returned when the watched directory is unusable.
	ErrMissingRoot = errors.New("watch directory is not accessible")
)

type Config struct {
	WatchDir       string              `json:"watch_dir" yaml:"watch_dir"`
	HistoryFile    string              `json:"history_file" yaml:"history_file"`
	LogFile        string              `json:"log_file" yaml:"log_file"`
	LogLevel       string              `json:"log_level" yaml:"log_level"`
	StabilityWait  Duration            `json:"stability_wait" yaml:"stability_wait"`
	StabilityPause Duration            `json:"stability_pause" yaml:"stability_pause"`
	MaxWait        Duration            `json:"max_wait" yaml:"max_wait"`
	IgnorePrefixes []string            `json:"ignore_prefixes" yaml:"ignore_prefixes"`
	IgnoreSuffixes []string            `json:"ignore_suffixes" yaml:"ignore_suffixes"`
	FileTypes      map[string][]string `json:"file_types" yaml:"file_types"`
	FolderPaths    map[string]string   `json:"folder_paths" yaml:"folder_paths"`
	StatusAddr     string              `json:"status_addr,omitempty" yaml:"status_addr,omitempty"`
	LogRotation    LogRotation         `json:"log_rotation" yaml:"log_rotation"`
}

// LogRotation controls the rotating log file
type LogRotation struct {
	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups"`
	Compress   bool `json:"compress" yaml:"compress"`
}

// Default returns a configuration with every setting except the type tables filled in.
func Default() *Config {
	home := homeDir()
	return &Config{
		WatchDir:       filepath.Join(home, "Downloads"),
		HistoryFile:    filepath.Join(home, "FileOrganizer_history.json"),
		LogFile:        filepath.Join(home, "FileOrganizer.log"),
		LogLevel:       "info",
		StabilityWait:  Duration(2 * time.Second),
		StabilityPause: Duration(2 * time.Second),
		IgnorePrefixes: []string{"."},
		IgnoreSuffixes: []string{".tmp", ".crdownload"},
		FileTypes:      map[string][]string{},
		FolderPaths:    map[string]string{},
		LogRotation: LogRotation{
			MaxSizeMB:  100,
			MaxAgeDays: 30,
			MaxBackups: 5,
			Compress:   true,
		},
	}
}

// Load reads the configuration at path on top of the defaults. The format
// is YAML for .yaml/.yml files and JSON otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	cfg.expandPaths()
	return cfg, nil
}

// Save writes the configuration to path in the format implied by its extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate normalizes extensions and checks the settings needed to start.
func (c *Config) Validate() error {
	if c.WatchDir == "" {
		return fmt.Errorf("%w: watch_dir is empty", ErrMissingRoot)
	}
	abs, err := filepath.Abs(c.WatchDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingRoot, err)
	}
	c.WatchDir = abs

	info, err := os.Stat(c.WatchDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMissingRoot, c.WatchDir)
	}

	if c.HistoryFile == "" {
		return errors.New("history_file is empty")
	}
	if c.StabilityWait < 0 || c.StabilityPause < 0 || c.MaxWait < 0 {
		return errors.New("stability durations must not be negative")
	}

	owner := make(map[string]string)
	categories := make([]string, 0, len(c.FileTypes))
	for category := range c.FileTypes {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		seen := make(map[string]struct{})
		normalized := make([]string, 0, len(c.FileTypes[category]))
		for _, ext := range c.FileTypes[category] {
			ext = classify.NormalizeExtension(ext)
			if ext == "" {
				continue
			}
			if prev, ok := owner[ext]; ok && prev != category {
				return fmt.Errorf("%w: %s is in both %s and %s", ErrAmbiguousExtension, ext, prev, category)
			}
			owner[ext] = category
			if _, dup := seen[ext]; dup {
				continue
			}
			seen[ext] = struct{}{}
			normalized = append(normalized, ext)
		}
		c.FileTypes[category] = normalized
	}

	for i, suffix := range c.IgnoreSuffixes {
		c.IgnoreSuffixes[i] = strings.ToLower(suffix)
	}

	return nil
}

// ClassifierTable builds the classifier for the configured file types.
func (c *Config) ClassifierTable() *classify.Table {
	return classify.NewTable(c.FileTypes)
}

// DataDir returns the directory for lock files and the default config.
func DataDir() string {
	dir := os.Getenv("ORGANIZER_DATA_DIR")
	if dir == "" {
		dir = filepath.Join(homeDir(), ".fileorganizer")
	}
	return dir
}

// DefaultPath returns the config location used when none is given.
func DefaultPath() string {
	if path := os.Getenv("ORGANIZER_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(DataDir(), "config.json")
}

func (c *Config) expandPaths() {
	c.WatchDir = expandHome(c.WatchDir)
	c.HistoryFile = expandHome(c.HistoryFile)
	c.LogFile = expandHome(c.LogFile)
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
