package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// ImportINI reads file type tables from an INI file:
//
//	[General]
//	WatchDir = ~/Downloads
//	HistoryFile = ~/FileOrganizer_history.json
//
//	[FileTypes]
//	Documents = .pdf, .docx
//
//	[FolderPaths]
//	Documents = Documents
//
// Settings missing from the file keep their defaults.
func ImportINI(filePath string) (*Config, error) {
	file, err := ini.Load(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	cfg := Default()

	general := file.Section("General")
	if v := general.Key("WatchDir").String(); v != "" {
		cfg.WatchDir = v
	}
	if v := general.Key("HistoryFile").String(); v != "" {
		cfg.HistoryFile = v
	}
	if v := general.Key("LogFile").String(); v != "" {
		cfg.LogFile = v
	}
	if v := general.Key("LogLevel").String(); v != "" {
		cfg.LogLevel = v
	}
	if v := general.Key("StabilityWait").String(); v != "" {
		if err := cfg.StabilityWait.set(v); err != nil {
			return nil, fmt.Errorf("StabilityWait: %w", err)
		}
	}

	for _, key := range file.Section("FileTypes").Keys() {
		var exts []string
		for _, ext := range strings.Split(key.String(), ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				exts = append(exts, ext)
			}
		}
		cfg.FileTypes[key.Name()] = exts
	}

	for _, key := range file.Section("FolderPaths").Keys() {
		cfg.FolderPaths[key.Name()] = strings.TrimSpace(key.String())
	}

	cfg.expandPaths()
	return cfg, nil
}

// ExportINI writes the file type tables and general settings of cfg as INI.
func ExportINI(cfg *Config, filePath string) error {
	file := ini.Empty()

	general, _ := file.NewSection("General")
	general.NewKey("WatchDir", cfg.WatchDir)
	general.NewKey("HistoryFile", cfg.HistoryFile)
	general.NewKey("LogFile", cfg.LogFile)
	general.NewKey("LogLevel", cfg.LogLevel)
	general.NewKey("StabilityWait", cfg.StabilityWait.String())

	fileTypes, _ := file.NewSection("FileTypes")
	for _, category := range sortedKeys(cfg.FileTypes) {
		fileTypes.NewKey(category, strings.Join(cfg.FileTypes[category], ", "))
	}

	folderPaths, _ := file.NewSection("FolderPaths")
	for _, category := range sortedKeys(cfg.FolderPaths) {
		folderPaths.NewKey(category, cfg.FolderPaths[category])
	}

	return file.SaveTo(filePath)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
