// Package di provides dependency injection wiring and initialization.
//
// The Container is the single source of truth for all service instances. It
// is created by Wire() and handed to the HTTP server and the scheduler.
package di

import (
	"github.com/aristath/macrobrain/internal/archive"
	"github.com/aristath/macrobrain/internal/cache"
	"github.com/aristath/macrobrain/internal/database"
	"github.com/aristath/macrobrain/internal/modules/adaptive"
	"github.com/aristath/macrobrain/internal/modules/brain"
	"github.com/aristath/macrobrain/internal/modules/calibration"
	"github.com/aristath/macrobrain/internal/modules/forecast"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/optimizer"
	"github.com/aristath/macrobrain/internal/modules/promotion"
	"github.com/aristath/macrobrain/internal/modules/regime"
	"github.com/aristath/macrobrain/internal/modules/simulation"
	"github.com/aristath/macrobrain/internal/modules/stress"
	"github.com/aristath/macrobrain/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases (3-database architecture)
	// market.db  - ingested series observations (standard profile)
	// state.db   - decisions, regime timeline, calibrations, models (history profile)
	// cache.db   - job history and other ephemeral data (cache profile)
	MarketDB *database.DB
	StateDB  *database.DB
	CacheDB  *database.DB

	// Repositories - data access layer
	SeriesRepo      *marketdata.SeriesRepository
	RegimeRepo      *regime.Repository
	CalibrationRepo *calibration.Repository
	ForecastStore   *forecast.Store
	DecisionRepo    *brain.DecisionRepository
	RunRepo         *simulation.RunRepository
	AdaptiveRepo    *adaptive.Repository
	JobHistoryRepo  *scheduler.JobHistoryRepository

	// Services - business logic layer
	MarketData        *marketdata.Service
	Assembler         *brain.Assembler
	Forecasts         *forecast.Service
	Optimizer         *optimizer.Engine
	Orchestrator      *brain.Orchestrator
	Simulator         *simulation.Engine
	StressRunner      *stress.Runner
	Presets           []stress.Preset
	Calibrator        *calibration.Calibrator
	Refresher         *CalibrationRefresher
	ForecastRefresher *ForecastRefresher
	Gate              *promotion.Gate
	Promoter          *promotion.Promoter
	Cache             *cache.Cache
	Archiver          *archive.Archiver

	// Scheduler runs the recurring jobs and records their outcomes in the
	// cache database.
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered scheduler jobs for manual triggering.
type JobInstances struct {
	DailyDecision      *scheduler.DailyDecisionJob
	CalibrationRefresh *scheduler.CalibrationRefreshJob
	ForecastTraining   *scheduler.ForecastTrainingJob
	CacheSweep         *scheduler.CacheSweepJob
}

// Close releases every database connection. Safe on a partially initialized
// container.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.MarketDB, c.StateDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
