package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/calibration"
)

// calibrationLookbackYears is the training window for scheduled refreshes.
const calibrationLookbackYears = 3

// CalibrationRefresher re-runs the weight search for one asset with the
// configured objective and saves the resulting version. It never activates:
// promotion goes through the gates.
type CalibrationRefresher struct {
	calibrator *calibration.Calibrator
	repo       *calibration.Repository
	cfg        *config.Config
	log        zerolog.Logger
}

// NewCalibrationRefresher creates a new calibration refresher
func NewCalibrationRefresher(calibrator *calibration.Calibrator, repo *calibration.Repository, cfg *config.Config, log zerolog.Logger) *CalibrationRefresher {
	return &CalibrationRefresher{
		calibrator: calibrator,
		repo:       repo,
		cfg:        cfg,
		log:        log.With().Str("component", "calibration_refresher").Logger(),
	}
}

// Refresh runs one calibration for an asset over the rolling lookback window.
func (r *CalibrationRefresher) Refresh(ctx context.Context, asset domain.Asset) error {
	now := domain.Midnight(time.Now().UTC())
	req := calibration.Request{
		Asset:      asset,
		From:       now.AddDate(-calibrationLookbackYears, 0, 0),
		To:         now,
		StepDays:   r.cfg.Calibration.StepDays,
		Horizons:   r.cfg.Horizons,
		Objective:  string(r.cfg.Calibration.Objective),
		Trials:     r.cfg.Calibration.Trials,
		Seed:       r.cfg.Calibration.Seed,
		AsOf:       r.cfg.Calibration.AsOf,
		SumWeights: r.cfg.Calibration.SumWeights,
		MinWeight:  r.cfg.Calibration.MinWeight,
		MaxWeight:  r.cfg.Calibration.MaxWeight,
	}

	version, err := r.calibrator.Run(req)
	if err != nil {
		return fmt.Errorf("calibration refresh for %s: %w", asset, err)
	}
	if err := r.repo.Save(version); err != nil {
		return fmt.Errorf("save refreshed calibration for %s: %w", asset, err)
	}

	r.log.Info().
		Str("asset", string(asset)).
		Str("versionId", version.VersionID).
		Str("objective", version.Objective).
		Msg("Calibration version refreshed")

	return nil
}
