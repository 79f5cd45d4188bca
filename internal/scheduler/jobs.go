package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/cache"
	"github.com/aristath/macrobrain/internal/domain"
)

// DecisionPipeline runs one full decision.
type DecisionPipeline interface {
	Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error)
}

// DailyDecisionJob snapshots a fresh decision for every allocatable asset.
type DailyDecisionJob struct {
	pipeline DecisionPipeline
	assets   []domain.Asset
	timeout  time.Duration
	log      zerolog.Logger
}

// NewDailyDecisionJob creates a new daily decision job
func NewDailyDecisionJob(pipeline DecisionPipeline, assets []domain.Asset, log zerolog.Logger) *DailyDecisionJob {
	return &DailyDecisionJob{
		pipeline: pipeline,
		assets:   assets,
		timeout:  2 * time.Minute,
		log:      log.With().Str("component", "daily_decision_job").Logger(),
	}
}

// Name returns the job name
func (j *DailyDecisionJob) Name() string { return "daily_decision" }

// Run executes the daily decision job. Per-asset failures are collected so
// one broken asset never blocks the others.
func (j *DailyDecisionJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	now := time.Now().UTC()
	var failed []string
	for _, asset := range j.assets {
		if _, err := j.pipeline.Decide(ctx, asset, now, domain.PostureNeutral); err != nil {
			j.log.Error().Err(err).Str("asset", string(asset)).Msg("Daily decision failed")
			failed = append(failed, string(asset))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("daily decision failed for %v", failed)
	}
	return nil
}

// CalibrationRefresher re-runs the weight search for one asset.
type CalibrationRefresher interface {
	Refresh(ctx context.Context, asset domain.Asset) error
}

// CalibrationRefreshJob refreshes the calibrated weights weekly.
type CalibrationRefreshJob struct {
	refresher CalibrationRefresher
	assets    []domain.Asset
	timeout   time.Duration
	log       zerolog.Logger
}

// NewCalibrationRefreshJob creates a new calibration refresh job
func NewCalibrationRefreshJob(refresher CalibrationRefresher, assets []domain.Asset, log zerolog.Logger) *CalibrationRefreshJob {
	return &CalibrationRefreshJob{
		refresher: refresher,
		assets:    assets,
		timeout:   30 * time.Minute,
		log:       log.With().Str("component", "calibration_refresh_job").Logger(),
	}
}

// Name returns the job name
func (j *CalibrationRefreshJob) Name() string { return "calibration_refresh" }

// Run executes the calibration refresh job
func (j *CalibrationRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var failed []string
	for _, asset := range j.assets {
		if err := j.refresher.Refresh(ctx, asset); err != nil {
			j.log.Error().Err(err).Str("asset", string(asset)).Msg("Calibration refresh failed")
			failed = append(failed, string(asset))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("calibration refresh failed for %v", failed)
	}
	return nil
}

// ForecastTrainer retrains and activates the forecast model for one asset.
type ForecastTrainer interface {
	Refresh(ctx context.Context, asset domain.Asset) error
}

// ForecastTrainingJob retrains the quantile forecasters weekly.
type ForecastTrainingJob struct {
	trainer ForecastTrainer
	assets  []domain.Asset
	timeout time.Duration
	log     zerolog.Logger
}

// NewForecastTrainingJob creates a new forecast training job
func NewForecastTrainingJob(trainer ForecastTrainer, assets []domain.Asset, log zerolog.Logger) *ForecastTrainingJob {
	return &ForecastTrainingJob{
		trainer: trainer,
		assets:  assets,
		timeout: 30 * time.Minute,
		log:     log.With().Str("component", "forecast_training_job").Logger(),
	}
}

// Name returns the job name
func (j *ForecastTrainingJob) Name() string { return "forecast_training" }

// Run executes the forecast training job
func (j *ForecastTrainingJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var failed []string
	for _, asset := range j.assets {
		if err := j.trainer.Refresh(ctx, asset); err != nil {
			j.log.Error().Err(err).Str("asset", string(asset)).Msg("Forecast training failed")
			failed = append(failed, string(asset))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("forecast training failed for %v", failed)
	}
	return nil
}

// CacheSweepJob drops expired cache entries.
type CacheSweepJob struct {
	cache *cache.Cache
	log   zerolog.Logger
}

// NewCacheSweepJob creates a new cache sweep job
func NewCacheSweepJob(c *cache.Cache, log zerolog.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		cache: c,
		log:   log.With().Str("component", "cache_sweep_job").Logger(),
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string { return "cache_sweep" }

// Run executes the cache sweep job
func (j *CacheSweepJob) Run() error {
	removed := j.cache.Sweep()
	if removed > 0 {
		j.log.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
	return nil
}
