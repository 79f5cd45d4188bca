package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/scheduler"
)

// Job schedules (standard 5-field cron, UTC):
//   daily decision      - every day after the US close data has settled
//   calibration refresh - weekly, Monday early morning
//   forecast training   - weekly, Monday after the calibration refresh
//   cache sweep         - hourly
const (
	scheduleDailyDecision      = "30 6 * * *"
	scheduleCalibrationRefresh = "0 3 * * 1"
	scheduleForecastTraining   = "0 4 * * 1"
	scheduleCacheSweep         = "0 * * * *"
)

// RegisterJobs creates the recurring jobs and registers them with the
// scheduler. Returns the instances for manual triggering via the API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	sched := container.Scheduler

	instances := &JobInstances{}

	instances.DailyDecision = scheduler.NewDailyDecisionJob(container.Orchestrator, domain.RiskAssets(), log)
	if err := sched.AddJob(scheduleDailyDecision, instances.DailyDecision); err != nil {
		return nil, fmt.Errorf("register daily decision job: %w", err)
	}

	instances.CalibrationRefresh = scheduler.NewCalibrationRefreshJob(container.Refresher, domain.RiskAssets(), log)
	if err := sched.AddJob(scheduleCalibrationRefresh, instances.CalibrationRefresh); err != nil {
		return nil, fmt.Errorf("register calibration refresh job: %w", err)
	}

	instances.ForecastTraining = scheduler.NewForecastTrainingJob(container.ForecastRefresher, domain.RiskAssets(), log)
	if err := sched.AddJob(scheduleForecastTraining, instances.ForecastTraining); err != nil {
		return nil, fmt.Errorf("register forecast training job: %w", err)
	}

	instances.CacheSweep = scheduler.NewCacheSweepJob(container.Cache, log)
	if err := sched.AddJob(scheduleCacheSweep, instances.CacheSweep); err != nil {
		return nil, fmt.Errorf("register cache sweep job: %w", err)
	}

	log.Info().Msg("All jobs registered")

	return instances, nil
}
