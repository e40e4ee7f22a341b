package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/df07/blender-llm/agent"
	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/agent/llm/claude"
	"github.com/df07/blender-llm/agent/llm/gemini"
	"github.com/df07/blender-llm/agent/llm/openrouter"
	"github.com/df07/blender-llm/internal/platform/config"
	"github.com/df07/blender-llm/internal/platform/logging"
	"github.com/df07/blender-llm/internal/platform/metrics"
	"github.com/df07/blender-llm/scene"
	"github.com/df07/blender-llm/web/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8081")
	model := config.GetEnv("MODEL", "")
	sceneDir := config.GetEnv("SCENE_DATA_DIR", "scene_data")
	animatorURL := config.GetEnv("BLENDER_SERVICE_URL", "http://localhost:8082")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logging.New(logLevel, logFormat)

	registry := llm.NewRegistry()
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		provider, err := gemini.NewProvider(context.Background(), key)
		if err != nil {
			log.Error("gemini provider init failed", "error", err)
		} else {
			registry.Add(provider)
		}
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		provider, err := claude.NewProvider()
		if err != nil {
			log.Error("claude provider init failed", "error", err)
		} else {
			registry.Add(provider)
		}
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		provider, err := openrouter.NewProvider(key)
		if err != nil {
			log.Error("openrouter provider init failed", "error", err)
		} else {
			registry.Add(provider)
		}
	}
	if len(registry.ListModels()) == 0 {
		log.Error("no LLM providers configured, set GEMINI_API_KEY, ANTHROPIC_API_KEY or OPENROUTER_API_KEY")
		os.Exit(1)
	}
	if model == "" {
		model = registry.DefaultModel()
		log.Info("no MODEL configured, using newest registered model", "model", model)
	}

	store, err := scene.NewStore(sceneDir)
	if err != nil {
		log.Error("scene store init failed", "error", err)
		os.Exit(1)
	}

	var tokens agent.TokenSource
	if config.GetEnv("BLENDER_SERVICE_AUTH", "") == "idtoken" {
		tokens = agent.IDTokenSource{Audience: animatorURL}
	}

	met := metrics.New("web")
	workflow := agent.NewWorkflow(agent.WorkflowConfig{
		Registry: registry,
		Model:    model,
		Renderer: agent.NewRenderClient(animatorURL, tokens),
		Store:    store,
		Metrics:  met,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server.New(workflow, registry, store, met, log).Routes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("animation web server starting",
		"port", port,
		"model", model,
		"animator_url", animatorURL,
		"scene_dir", sceneDir,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
