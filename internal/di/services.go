package di

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/archive"
	"github.com/aristath/macrobrain/internal/cache"
	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/brain"
	"github.com/aristath/macrobrain/internal/modules/calibration"
	"github.com/aristath/macrobrain/internal/modules/crossasset"
	"github.com/aristath/macrobrain/internal/modules/forecast"
	"github.com/aristath/macrobrain/internal/modules/guard"
	"github.com/aristath/macrobrain/internal/modules/macro"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/optimizer"
	"github.com/aristath/macrobrain/internal/modules/policy"
	"github.com/aristath/macrobrain/internal/modules/promotion"
	"github.com/aristath/macrobrain/internal/modules/regime"
	"github.com/aristath/macrobrain/internal/modules/simulation"
	"github.com/aristath/macrobrain/internal/modules/stress"
)

const worldFetchTimeout = 10 * time.Second

// InitializeServices creates all business-logic services and stores them in
// the container.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.MarketData = marketdata.NewService(container.SeriesRepo)
	container.Cache = cache.New(log)
	container.Optimizer = optimizer.NewEngine(container.AdaptiveRepo, log)

	// The live pipeline persists decisions; the stress replica below runs
	// against shocked data and never writes.
	container.Orchestrator = buildPipeline(container, cfg, container.MarketData, container.DecisionRepo, log)
	container.Assembler = buildAssembler(container, cfg, container.MarketData, log)
	container.Forecasts = forecast.NewService(container.ForecastStore, log)

	// The simulator replays history through its own pipeline with a nil sink
	// so walk-forward decisions never land in the live decision history.
	simPipeline := buildPipeline(container, cfg, container.MarketData, nil, log)
	container.Simulator = simulation.NewEngine(simPipeline, container.MarketData, log)

	factory := func(loader stress.Loader) stress.Pipeline {
		return buildPipeline(container, cfg, loader, nil, log)
	}
	container.StressRunner = stress.NewRunner(container.MarketData, factory, container.RunRepo, log)

	presets, err := stress.LoadPresets(cfg.PresetsDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load stress presets: %w", err)
		}
		log.Warn().Str("dir", cfg.PresetsDir).Msg("No stress presets directory, continuing without presets")
	}
	container.Presets = presets

	container.Calibrator = calibration.NewCalibrator(container.MarketData, log)
	container.Refresher = NewCalibrationRefresher(container.Calibrator, container.CalibrationRepo, cfg, log)
	container.ForecastRefresher = NewForecastRefresher(
		container.Assembler, forecast.NewTrainer(log), container.ForecastStore,
		container.MarketData, cfg, log)

	container.Gate = promotion.NewGate(log)
	container.Promoter = promotion.NewPromoter(container.Gate, container.CalibrationRepo, true, log)

	archiver, err := archive.New(context.Background(), cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("initialize archiver: %w", err)
	}
	container.Archiver = archiver

	// Seed the default calibration and adaptive parameters so the pipeline
	// can decide before the first tuning run.
	for _, asset := range domain.RiskAssets() {
		if err := container.CalibrationRepo.EnsureDefault(asset, cfg.Horizons); err != nil {
			return fmt.Errorf("seed default calibration for %s: %w", asset, err)
		}
		if _, err := container.AdaptiveRepo.EnsureDefault(asset); err != nil {
			return fmt.Errorf("seed default adaptive params for %s: %w", asset, err)
		}
	}

	log.Info().Msg("All services initialized")

	return nil
}

// buildAssembler wires the world-state assembler over a loader.
func buildAssembler(container *Container, cfg *config.Config, loader marketdata.Loader, log zerolog.Logger) *brain.Assembler {
	scores := macro.NewScoreEngine(loader, container.CalibrationRepo, log)
	liquidity := macro.NewLiquidityService(loader, log)
	guardEngine := guard.NewEngine(loader, log)
	crossEngine := crossasset.NewEngine(loader, log)
	regimeEngine := regime.NewEngine(container.RegimeRepo, log)

	return brain.NewAssembler(
		scores,
		liquidity,
		guardEngine,
		crossEngine,
		container.RegimeRepo,
		regimeEngine,
		cfg.Horizons,
		worldFetchTimeout,
		log,
	)
}

// buildPipeline wires a full decision pipeline over a loader. Repositories
// are shared; only the data source and the decision sink vary, which is what
// lets the stress runner swap in shocked series without touching anything
// else.
func buildPipeline(container *Container, cfg *config.Config, loader marketdata.Loader, sink brain.DecisionSink, log zerolog.Logger) *brain.Orchestrator {
	assembler := buildAssembler(container, cfg, loader, log)
	forecasts := forecast.NewService(container.ForecastStore, log)
	allocator := policy.NewEngine(cfg.MinCashFloor, log)
	optimizerEngine := optimizer.NewEngine(container.AdaptiveRepo, log)

	return brain.NewOrchestrator(
		assembler,
		forecasts,
		allocator,
		optimizerEngine,
		sink,
		container.AdaptiveRepo,
		cfg.OptimizerMode,
		log,
	)
}
