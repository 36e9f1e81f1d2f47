package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/your-org/fileorganizer/internal/filebrowser"
	"github.com/your-org/fileorganizer/internal/history"
	"github.com/your-org/fileorganizer/internal/organizer"
	"github.com/your-org/fileorganizer/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

// HistorySource provides the persisted move log.
type HistorySource interface {
	Load() ([]history.Record, error)
}

// StatsSource provides live organizer counters.
type StatsSource interface {
	Stats() organizer.Stats
}

// Options wires the server to the running organizer.
type Options struct {
	Addr      string
	SessionID string
	LogFile   string
	History   HistorySource
	Stats     StatsSource
	Events    *websocket.Hub
	Files     *filebrowser.Browser
}

// Server is a small read-mostly HTTP API over the organizer state.
type Server struct {
	opts   Options
	logger zerolog.Logger
	mux    *http.ServeMux
	srv    *http.Server
	addr   string
}

// NewServer creates a server and registers its handlers.
func NewServer(logger zerolog.Logger, opts Options) *Server {
	s := &Server{
		opts:   opts,
		logger: logger.With().Str("component", "api").Logger(),
		mux:    http.NewServeMux(),
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/history", s.handleHistory)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/loglevel", s.handleLogLevel)
	s.mux.HandleFunc("/api/logs", s.handleLogs)
	if s.opts.Events != nil {
		s.mux.Handle("/api/events", s.opts.Events)
	}
	if s.opts.Files != nil {
		s.opts.Files.RegisterHandlers(s.mux)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves until ctx is done.
// It returns once the listener is bound; serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Status server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.opts.Events != nil {
			s.opts.Events.Close()
		}
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("Status server shutdown")
		}
	}()

	s.addr = ln.Addr().String()
	s.logger.Info().Str("addr", s.addr).Msg("Status server listening")
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	return s.addr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"session": s.opts.SessionID,
	}
	if s.opts.Stats != nil {
		started := s.opts.Stats.Stats().StartedAt
		resp["uptime"] = time.Since(started).Round(time.Second).String()
		resp["started"] = humanize.Time(started)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HistoryResponse is the body of /api/history.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
	Count   int              `json:"count"`
	Total   int              `json:"total"`
}

// handleHistory returns recorded moves, newest first.
// GET /api/history?limit=50&type=Images
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Use GET", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.History == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Records: []history.Record{}})
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("Invalid limit: %s", raw), http.StatusBadRequest)
			return
		}
		limit = n
	}
	typeFilter := r.URL.Query().Get("type")

	records, err := s.opts.History.Load()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read history: %v", err), http.StatusInternalServerError)
		return
	}

	out := []history.Record{}
	for i := len(records) - 1; i >= 0 && (limit == 0 || len(out) < limit); i-- {
		if typeFilter != "" && records[i].Type != typeFilter {
			continue
		}
		out = append(out, records[i])
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Records: out, Count: len(out), Total: len(records)})
}

// StatsResponse is the body of /api/stats.
type StatsResponse struct {
	organizer.Stats
	Uptime      string `json:"uptime"`
	Subscribers int    `json:"subscribers"`
}

// GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Stats == nil {
		http.Error(w, "Stats unavailable", http.StatusServiceUnavailable)
		return
	}

	st := s.opts.Stats.Stats()
	resp := StatsResponse{
		Stats:  st,
		Uptime: time.Since(st.StartedAt).Round(time.Second).String(),
	}
	if s.opts.Events != nil {
		resp.Subscribers = s.opts.Events.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// LogLevelResponse represents log level status
type LogLevelResponse struct {
	CurrentLevel    string   `json:"currentLevel"`
	AvailableLevels []string `json:"availableLevels"`
}

// LogLevelRequest represents log level change request
type LogLevelRequest struct {
	Level string `json:"level"`
}

var availableLevels = []string{"debug", "info", "warn", "error"}

// handleLogLevel gets or sets the global log level.
// GET /api/loglevel
// POST /api/loglevel  {"level": "debug"}
func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, LogLevelResponse{
			CurrentLevel:    zerolog.GlobalLevel().String(),
			AvailableLevels: availableLevels,
		})

	case http.MethodPost:
		var req LogLevelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
			return
		}
		level, err := zerolog.ParseLevel(req.Level)
		if err != nil || req.Level == "" {
			http.Error(w, fmt.Sprintf("Invalid log level: %s. Valid levels: debug, info, warn, error", req.Level), http.StatusBadRequest)
			return
		}

		old := zerolog.GlobalLevel()
		zerolog.SetGlobalLevel(level)
		s.logger.Info().
			Str("oldLevel", old.String()).
			Str("newLevel", level.String()).
			Msg("Log level changed via API")

		writeJSON(w, http.StatusOK, LogLevelResponse{
			CurrentLevel:    level.String(),
			AvailableLevels: availableLevels,
		})

	default:
		http.Error(w, "Method not allowed. Use GET or POST", http.StatusMethodNotAllowed)
	}
}
