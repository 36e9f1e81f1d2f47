package filebrowser

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// DefaultMaxItems caps a single directory listing.
const DefaultMaxItems = 1000

var errOutsideRoot = errors.New("access denied: path outside watched folder")

// Browser serves a read-only view of the watched folder and the category
// folders inside it.
type Browser struct {
	root     string
	maxItems int
	logger   zerolog.Logger
}

// FileInfo represents a file or directory
type FileInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	IsDir     bool      `json:"isDir"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"sizeHuman,omitempty"`
	ModTime   time.Time `json:"modTime"`
}

// BrowseResponse represents the response from a browse request
type BrowseResponse struct {
	Path      string     `json:"path"`
	Parent    string     `json:"parent,omitempty"`
	Files     []FileInfo `json:"files"`
	Truncated bool       `json:"truncated,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates a browser rooted at root.
func New(logger zerolog.Logger, root string) *Browser {
	return &Browser{
		root:     filepath.Clean(root),
		maxItems: DefaultMaxItems,
		logger:   logger.With().Str("component", "filebrowser").Logger(),
	}
}

// RegisterHandlers mounts the browser endpoints on mux.
func (b *Browser) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/files/browse", b.handleBrowse)
	mux.HandleFunc("/api/files/download", b.handleDownload)
}

// resolve maps a root-relative request path to an absolute path inside root.
func (b *Browser) resolve(requested string) (string, string, error) {
	rel := filepath.Clean("/" + filepath.FromSlash(requested))
	abs := filepath.Join(b.root, rel)

	check, err := filepath.Rel(b.root, abs)
	if err != nil || check == ".." || strings.HasPrefix(check, ".."+string(filepath.Separator)) {
		return "", "", errOutsideRoot
	}

	// Symlinks may point anywhere; only follow ones that stay inside root.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		realRoot, rootErr := filepath.EvalSymlinks(b.root)
		if rootErr == nil {
			if r, err := filepath.Rel(realRoot, real); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				return "", "", errOutsideRoot
			}
		}
	}

	return abs, filepath.ToSlash(check), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleBrowse lists a directory, directories first.
// GET /api/files/browse?path=Images
func (b *Browser) handleBrowse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	requested := r.URL.Query().Get("path")
	abs, rel, err := b.resolve(requested)
	if err != nil {
		b.logger.Warn().Err(err).Str("path", requested).Msg("Path validation failed")
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
		return
	}

	info, err := os.Stat(abs)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "path not found"})
		return
	}
	if !info.IsDir() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "path is not a directory"})
		return
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		b.logger.Error().Err(err).Str("path", abs).Msg("Failed to read directory")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read directory"})
		return
	}

	resp := BrowseResponse{Path: rel, Files: []FileInfo{}}
	if rel != "." {
		resp.Parent = filepath.ToSlash(filepath.Dir(rel))
	}

	for _, entry := range entries {
		if len(resp.Files) >= b.maxItems {
			resp.Truncated = true
			break
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		item := FileInfo{
			Name:    entry.Name(),
			Path:    filepath.ToSlash(filepath.Join(rel, entry.Name())),
			IsDir:   entry.IsDir(),
			ModTime: fi.ModTime(),
		}
		if !entry.IsDir() {
			item.Size = fi.Size()
			item.SizeHuman = humanize.IBytes(uint64(fi.Size()))
		}
		resp.Files = append(resp.Files, item)
	}

	sort.SliceStable(resp.Files, func(i, j int) bool {
		if resp.Files[i].IsDir != resp.Files[j].IsDir {
			return resp.Files[i].IsDir
		}
		return strings.ToLower(resp.Files[i].Name) < strings.ToLower(resp.Files[j].Name)
	})

	writeJSON(w, http.StatusOK, resp)
}

// handleDownload streams a single file.
// GET /api/files/download?path=Documents/report.pdf
func (b *Browser) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	requested := r.URL.Query().Get("path")
	abs, _, err := b.resolve(requested)
	if err != nil {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error()})
		return
	}

	file, err := os.Open(abs)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "file not found"})
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "path is not a file"})
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}
