package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/app"
	"github.com/user/catalog-service/internal/usecase"
	"github.com/user/catalog-service/pkg/config"
	"github.com/user/catalog-service/pkg/logger"
	"github.com/user/catalog-service/pkg/metrics"
)

// The worker consumes item jobs that drains fan out to the job queue.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("could not load config", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("could not build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if !cfg.QueueEnabled {
		log.Fatal("QUEUE_ENABLED must be true to run the queue worker")
	}
	if cfg.StoreDriver == "memory" {
		log.Fatal("the queue worker needs a shared store; set STORE_DRIVER=postgres")
	}

	metrics.Init()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize catalog worker", zap.Error(err))
	}
	defer a.Close()

	worker := usecase.NewQueueWorker(a.Queue, a.Processor, cfg.QueueWorkers, cfg.QueueItemTimeout, log.Named("worker"))
	worker.Start(ctx)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("worker started", zap.Int("workers", cfg.QueueWorkers), zap.String("metrics_port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server forced to shutdown", zap.Error(err))
	}

	log.Info("worker exiting")
}
