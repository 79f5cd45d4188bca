package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/di"
	"github.com/aristath/macrobrain/internal/server"
	"github.com/aristath/macrobrain/pkg/logger"
)

func main() {
	// Load configuration first; the logger level comes from it
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("dataDir", cfg.DataDir).
		Str("optimizerMode", string(cfg.OptimizerMode)).
		Msg("Starting macrobrain")

	// Wire everything: databases, repositories, services, jobs
	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.Scheduler.Start()
	defer container.Scheduler.Stop()

	// Initialize HTTP server
	srv := server.New(cfg.Port, server.Deps{
		Pipeline:    container.Orchestrator,
		Worlds:      container.Assembler,
		Forecasts:   container.Forecasts,
		Optimizer:   container.Optimizer,
		Decisions:   container.DecisionRepo,
		Simulator:   container.Simulator,
		Runs:        container.RunRepo,
		Stress:      container.StressRunner,
		Presets:     container.Presets,
		Calibrator:  container.Calibrator,
		Calibration: container.CalibrationRepo,
		Promoter:    container.Promoter,
		Gate:        container.Gate,
		Archive:     container.Archiver,
		Cache:       container.Cache,
		Started:     time.Now().UTC(),
	}, cfg.DevMode, log)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
