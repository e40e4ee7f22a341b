// Package service implements the animator: it runs validated Blender
// scripts headless and uploads the exported GLB to cloud storage.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/df07/blender-llm/internal/platform/metrics"
	"github.com/df07/blender-llm/script"
)

// Runner executes a Blender script and produces a GLB at outputPath.
type Runner interface {
	Render(ctx context.Context, scriptPath, outputPath string) error
}

// Uploader stores a rendered GLB and its script, returning a time-limited
// download URL for the GLB.
type Uploader interface {
	Upload(ctx context.Context, glbPath, scriptPath string) (url string, expires time.Time, err error)
}

// Service is the animator HTTP surface.
type Service struct {
	runner   Runner
	uploader Uploader
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func New(runner Runner, uploader Uploader, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{runner: runner, uploader: uploader, metrics: m, log: log}
}

// Routes builds the HTTP routing table.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
	}
	r.Get("/health", s.handleHealth)
	r.Post("/render", s.handleRender)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok", "service": "animator"}`))
}

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	Script   string `json:"script"`
	Prompt   string `json:"prompt,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// RenderResponse is the success body of POST /render.
type RenderResponse struct {
	SignedURL  string `json:"signed_url"`
	Expiration string `json:"expiration"`
}

func (s *Service) handleRender(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Script == "" {
		writeError(w, http.StatusBadRequest, "script is required")
		return
	}

	if result := script.Validate(req.Script); !result.Valid {
		if s.metrics != nil {
			s.metrics.ScriptRejected()
		}
		s.log.Warn("render rejected by validator", "thread", req.ThreadID, "error", result.Error)
		writeError(w, http.StatusBadRequest, result.Error)
		return
	}

	workDir, err := os.MkdirTemp("", "animation-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create working directory")
		return
	}
	defer os.RemoveAll(workDir)

	scriptPath := filepath.Join(workDir, "script.py")
	outputPath := filepath.Join(workDir, "animation.glb")
	if err := os.WriteFile(scriptPath, []byte(req.Script), 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write script")
		return
	}

	s.log.Info("render starting", "thread", req.ThreadID, "script_bytes", len(req.Script))
	start := time.Now()

	if err := s.runner.Render(r.Context(), scriptPath, outputPath); err != nil {
		if s.metrics != nil {
			s.metrics.RenderFailed()
		}
		s.log.Error("render failed", "thread", req.ThreadID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	url, expires, err := s.uploader.Upload(r.Context(), outputPath, scriptPath)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RenderFailed()
		}
		s.log.Error("upload failed", "thread", req.ThreadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store rendered animation")
		return
	}

	if s.metrics != nil {
		s.metrics.RenderSucceeded()
	}
	s.log.Info("render finished", "thread", req.ThreadID, "duration", time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RenderResponse{
		SignedURL:  url,
		Expiration: expires.UTC().Format(time.RFC3339),
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
