package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogEntry is one parsed line of the JSON log file.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	File      string                 `json:"file,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	LineNum   int                    `json:"lineNum"`
}

// LogsResponse represents paginated log response
type LogsResponse struct {
	Logs       []LogEntry `json:"logs"`
	TotalLines int        `json:"totalLines"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalPages int        `json:"totalPages"`
	HasMore    bool       `json:"hasMore"`
}

// handleLogs returns the log file newest first, paginated and filtered.
// GET /api/logs?page=1&pageSize=100&level=error&search=report.pdf
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 100
	}
	levelFilter := strings.ToLower(r.URL.Query().Get("level"))
	searchFilter := strings.ToLower(r.URL.Query().Get("search"))

	entries, err := readLogEntries(s.opts.LogFile, levelFilter, searchFilter)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read logs: %v", err), http.StatusInternalServerError)
		return
	}

	total := len(entries)
	totalPages := (total + pageSize - 1) / pageSize
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	writeJSON(w, http.StatusOK, LogsResponse{
		Logs:       entries[start:end],
		TotalLines: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	})
}

// readLogEntries parses zerolog JSON lines, skipping anything else.
// A missing file yields no entries.
func readLogEntries(path, level, search string) ([]LogEntry, error) {
	entries := []LogEntry{}
	if path == "" {
		return entries, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		var data map[string]interface{}
		if err := json.Unmarshal(line, &data); err != nil {
			continue
		}

		entry := LogEntry{LineNum: lineNum, Metadata: make(map[string]interface{})}
		switch ts := data["time"].(type) {
		case float64:
			entry.Timestamp = time.Unix(int64(ts), 0).Format(time.RFC3339)
		case string:
			entry.Timestamp = ts
		}
		entry.Level, _ = data["level"].(string)
		entry.Message, _ = data["message"].(string)
		entry.File, _ = data["file"].(string)

		for key, val := range data {
			switch key {
			case "time", "level", "message", "file":
			default:
				entry.Metadata[key] = val
			}
		}

		if level != "" && entry.Level != level {
			continue
		}
		if search != "" {
			text := strings.ToLower(entry.Message + " " + entry.File + " " + fmt.Sprint(entry.Metadata))
			if !strings.Contains(text, search) {
				continue
			}
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
