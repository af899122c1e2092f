package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"DiagnosisWorker/internal/app"
	"DiagnosisWorker/internal/config"
	"DiagnosisWorker/internal/logging"
)

func main() {
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application failed to start", "error", err)
		os.Exit(1)
	}

	runErr := application.Run(ctx)
	if err := application.Close(context.Background()); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	if runErr != nil {
		logger.Error("application stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("diagnosis worker stopped")
}
