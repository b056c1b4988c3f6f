package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitedoc/internal/config"
	"sitedoc/internal/job"
	"sitedoc/pkg/types"
)

// Server exposes the HTTP API for managing conversion jobs.
type Server struct {
	manager  *job.Manager
	defaults types.ConversionOptions
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux.
func NewServer(manager *job.Manager, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager:  manager,
		defaults: cfg.DefaultOptions(),
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	s.mux.HandleFunc("/docs", s.handleDocs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.createJob(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if trimmed == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(trimmed, "/")
	jobID, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		s.getJob(w, r, jobID)
		return
	}

	switch parts[1] {
	case "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		s.streamJobEvents(w, r, jobID)
	case "cancel":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		s.cancelJob(w, r, jobID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	opts := s.defaults
	if req.Options != nil {
		opts = mergeOptions(s.defaults, *req.Options)
	}

	j, err := s.manager.Submit(job.Request{URL: req.URL, Options: opts})
	if err != nil {
		if errors.Is(err, job.ErrMaxConcurrency) {
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Info("job created", "job_id", j.ID(), "url", j.URL())
	writeJSON(w, http.StatusAccepted, j.Snapshot())
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, id string) {
	j, ok := s.manager.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, JobDetail{
		Job:    j.Snapshot(),
		Result: j.Result(),
	})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.manager.Cancel(id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request, id string) {
	j, ok := s.manager.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	eventCh, cancel := j.Subscribe()
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case evt, open := <-eventCh:
			if !open {
				return
			}
			envelope := SSEEvent{Type: "progress", Progress: evt}
			if evt.Status.Terminal() {
				envelope.Type = string(evt.Status)
			}
			payload, err := json.Marshal(envelope)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", envelope.Type)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// mergeOptions overlays the request options on the service defaults. Zero
// values in the request mean "use the default".
func mergeOptions(base, req types.ConversionOptions) types.ConversionOptions {
	out := base
	if req.MaxDepth > 0 {
		out.MaxDepth = req.MaxDepth
	}
	if req.MaxPages > 0 {
		out.MaxPages = req.MaxPages
	}
	if req.IncludeImages != nil {
		out.IncludeImages = req.IncludeImages
	}
	if req.IncludeSitemap != nil {
		out.IncludeSitemap = req.IncludeSitemap
	}
	if req.IncludeScreenshot != nil {
		out.IncludeScreenshot = req.IncludeScreenshot
	}
	if req.SaveMode != "" {
		out.SaveMode = req.SaveMode
	}
	if strings.TrimSpace(req.Title) != "" {
		out.Title = strings.TrimSpace(req.Title)
	}
	out.Normalize()
	return out
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
