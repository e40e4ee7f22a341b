// Package server exposes the animation agent over HTTP: chat turns stream
// their progress as Server-Sent Events, and scene state is readable per
// conversation thread.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/df07/blender-llm/agent"
	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/internal/platform/metrics"
	"github.com/df07/blender-llm/scene"
)

// Server handles web requests for the animation agent.
type Server struct {
	workflow *agent.Workflow
	registry *llm.Registry
	store    *scene.Store
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu        sync.RWMutex
	histories map[string][]llm.Message
}

// New creates a server around a configured workflow. The store is the same
// one the workflow records scenes in; the server only reads it.
func New(workflow *agent.Workflow, registry *llm.Registry, store *scene.Store, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		workflow:  workflow,
		registry:  registry,
		store:     store,
		metrics:   m,
		log:       log,
		histories: make(map[string][]llm.Message),
	}
}

// Routes builds the HTTP routing table.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/models", s.handleModels)
	r.Post("/generate", s.handleGenerate)
	r.Route("/thread/{thread_id}", func(r chi.Router) {
		r.Post("/", s.handleChat)
		r.Get("/", s.handleGetThread)
	})
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok", "service": "blender-llm"}`))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.registry.ListModels()})
}

func (s *Server) history(threadID string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]llm.Message{}, s.histories[threadID]...)
}

func (s *Server) appendHistory(threadID string, msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[threadID] = append(s.histories[threadID], msgs...)
}
