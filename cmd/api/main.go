package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/app"
	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/delivery/http/router"
	"github.com/user/catalog-service/internal/usecase"
	"github.com/user/catalog-service/pkg/config"
	"github.com/user/catalog-service/pkg/logger"
	"github.com/user/catalog-service/pkg/metrics"
)

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

	metrics.Init()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize catalog service", zap.Error(err))
	}
	defer a.Close()

	apiHandler := handler.NewHandler(a.RunMgr, a.Drain, a.Processor, a.Checks, log.Named("http"))
	// Drains may run up to their wall-clock cap; leave room to write the response.
	requestTimeout := usecase.MaxDrainWallClock + 30*time.Second
	httpRouter := router.New(apiHandler, router.Options{
		AdminToken:          cfg.AdminToken,
		CronSecret:          cfg.CronSecret,
		CronSchedulerHeader: cfg.CronSchedulerHeader,
		Timeout:             requestTimeout,
	}, log.Named("http"))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exiting")
}
