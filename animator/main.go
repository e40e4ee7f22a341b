package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/df07/blender-llm/animator/service"
	"github.com/df07/blender-llm/internal/platform/config"
	"github.com/df07/blender-llm/internal/platform/logging"
	"github.com/df07/blender-llm/internal/platform/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8082")
	bucket := config.GetEnv("GCS_BUCKET", "")
	blender := config.GetEnv("BLENDER_BINARY", "blender")
	renderTimeout := config.GetEnvDuration("RENDER_TIMEOUT", 4*time.Minute)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logging.New(logLevel, logFormat)

	if bucket == "" {
		log.Error("GCS_BUCKET is required")
		os.Exit(1)
	}

	uploader, err := service.NewGCSUploader(context.Background(), bucket)
	if err != nil {
		log.Error("uploader init failed", "error", err)
		os.Exit(1)
	}

	runner := service.NewBlenderRunner(blender, renderTimeout, log)
	met := metrics.New("animator")
	svc := service.New(runner, uploader, met, log)

	srv := &http.Server{Addr: ":" + port, Handler: svc.Routes()}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("animator starting",
		"port", port,
		"bucket", bucket,
		"blender", blender,
		"render_timeout", renderTimeout,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining renders")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("animator stopped")
}
