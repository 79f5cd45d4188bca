package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/modules/adaptive"
	"github.com/aristath/macrobrain/internal/modules/brain"
	"github.com/aristath/macrobrain/internal/modules/calibration"
	"github.com/aristath/macrobrain/internal/modules/forecast"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/regime"
	"github.com/aristath/macrobrain/internal/modules/simulation"
	"github.com/aristath/macrobrain/internal/scheduler"
)

// InitializeRepositories creates all repositories and stores them in the
// container.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.SeriesRepo = marketdata.NewSeriesRepository(container.MarketDB, log)
	container.RegimeRepo = regime.NewRepository(container.StateDB, log)
	container.CalibrationRepo = calibration.NewRepository(container.StateDB, log)
	container.ForecastStore = forecast.NewStore(container.StateDB, log)
	container.DecisionRepo = brain.NewDecisionRepository(container.StateDB, log)
	container.RunRepo = simulation.NewRunRepository(container.StateDB, log)
	container.AdaptiveRepo = adaptive.NewRepository(container.StateDB, log)
	container.JobHistoryRepo = scheduler.NewJobHistoryRepository(container.CacheDB, log)

	return nil
}
