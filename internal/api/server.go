// Package api exposes the fetch pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/justlep/scraper/internal/config"
	"github.com/justlep/scraper/internal/storage"
	"github.com/justlep/scraper/pkg/scraper"
)

// Server maps HTTP requests onto scraper operations.
type Server struct {
	scraper  *scraper.Scraper
	defaults config.FetchConfig
	history  *storage.History
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux. history may be nil.
func NewServer(s *scraper.Scraper, defaults config.FetchConfig, history *storage.History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		scraper:  s,
		defaults: defaults,
		history:  history,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	srv.routes()
	return srv
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/fetch", s.handleFetch)
	s.mux.HandleFunc("/api/title", s.handleTitle)
	s.mux.HandleFunc("/api/history", s.handleHistory)
}

// FetchRequest is the JSON payload of POST /api/fetch. Unset numeric
// fields inherit the service defaults.
type FetchRequest struct {
	URL string `json:"url"`

	StartToken    string `json:"start_token,omitempty"`
	StartIncluded bool   `json:"start_included,omitempty"`
	StopToken     string `json:"stop_token,omitempty"`
	StopIncluded  bool   `json:"stop_included,omitempty"`

	MaxBytes      int    `json:"max_bytes,omitempty"`
	TimeoutMS     int    `json:"timeout_ms,omitempty"`
	MaxRedirects  int    `json:"max_redirects,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	Headers       string `json:"headers,omitempty"`
	Compact       bool   `json:"compact,omitempty"`
	Text          bool   `json:"text,omitempty"`
	Rendered      bool   `json:"rendered,omitempty"`
	SkipRateLimit bool   `json:"skip_rate_limit,omitempty"`
}

// FetchResponse is the JSON payload returned by POST /api/fetch.
type FetchResponse struct {
	URL        string `json:"url"`
	Fragment   string `json:"fragment"`
	Bytes      int    `json:"bytes"`
	LoadMillis int64  `json:"load_millis"`
	FetchedAt  string `json:"fetched_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload: "+err.Error())
		return
	}

	opts, err := s.buildOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fetch := s.scraper.FetchFragment
	if req.Text {
		fetch = s.scraper.FetchText
	}
	fragment, err := fetch(r.Context(), opts)
	if err != nil {
		s.logger.Warn("fetch failed", "url", req.URL, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	loadMillis := opts.Timings().Load.Milliseconds()
	fetchedAt := time.Now().UTC()
	s.record(r, storage.Record{
		URL:        req.URL,
		FinalURL:   opts.FinalLocation().String(),
		StartToken: req.StartToken,
		StopToken:  req.StopToken,
		FetchedAt:  fetchedAt,
		BodyBytes:  len(fragment),
		LoadMillis: loadMillis,
		Fragment:   fragment,
	})

	writeJSON(w, http.StatusOK, FetchResponse{
		URL:        opts.FinalLocation().String(),
		Fragment:   fragment,
		Bytes:      len(fragment),
		LoadMillis: loadMillis,
		FetchedAt:  fetchedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	location := strings.TrimSpace(r.URL.Query().Get("url"))
	if location == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	skipRateLimit := r.URL.Query().Get("skip_rate_limit") == "true"

	title, err := s.scraper.LookupTitle(r.Context(), location, skipRateLimit)
	if err != nil {
		s.logger.Warn("title lookup failed", "url", location, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":   location,
		"title": title,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "fetch history is not enabled")
		return
	}
	records, err := s.history.Recent(r.Context(), 50)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) buildOptions(req FetchRequest) (*scraper.Options, error) {
	opts, err := scraper.NewOptions(req.URL)
	if err != nil {
		return nil, err
	}
	opts.SetStartToken(req.StartToken, req.StartIncluded)
	opts.SetStopToken(req.StopToken, req.StopIncluded)
	opts.SetCompact(req.Compact)
	opts.SetRendered(req.Rendered)
	if req.SkipRateLimit {
		opts.SetRateLimited(false)
	}

	if ua := firstNonEmpty(req.UserAgent, s.defaults.UserAgent); ua != "" {
		opts.SetUserAgent(ua)
	}
	// Service-wide default headers first; per-request headers override.
	for name, value := range s.defaults.Headers {
		if err := opts.SetHeader(name, value); err != nil {
			return nil, err
		}
	}
	if req.Headers != "" {
		parsed, err := scraper.ParseHeaderBlock(req.Headers)
		if err != nil {
			return nil, err
		}
		for name, value := range parsed {
			if err := opts.SetHeader(name, value); err != nil {
				return nil, err
			}
		}
	}
	if n := pick(req.MaxBytes, s.defaults.MaxBytes); n > 0 {
		if err := opts.SetMaxBytes(n); err != nil {
			return nil, err
		}
	}
	if s.defaults.ChunkBuffer > 0 {
		if err := opts.SetChunkBufferSize(s.defaults.ChunkBuffer); err != nil {
			return nil, err
		}
	}
	timeout := s.defaults.Timeout.Duration
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	if timeout > 0 {
		if err := opts.SetTimeout(timeout); err != nil {
			return nil, err
		}
	}
	if n := pick(req.MaxRedirects, s.defaults.MaxRedirects); n > 0 {
		if err := opts.SetMaxRedirects(n); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func (s *Server) record(r *http.Request, rec storage.Record) {
	if s.history == nil {
		return
	}
	if err := s.history.Save(r.Context(), rec); err != nil {
		s.logger.Error("record fetch", "url", rec.URL, "error", err)
	}
}

// statusFor maps pipeline failures to HTTP statuses. Unknown errors are
// treated as upstream failures since the fetch itself crossed the network.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scraper.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, scraper.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, scraper.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, scraper.ErrRedirectLimit):
		return http.StatusLoopDetected
	default:
		return http.StatusBadGateway
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func pick(override, fallback int) int {
	if override > 0 {
		return override
	}
	return fallback
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
