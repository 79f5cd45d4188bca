package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/forecast"
)

// Forecast training window and sampling cadence.
const (
	forecastLookbackYears = 3
	forecastStepDays      = 7
)

// WorldSource assembles the world state at a reference date.
type WorldSource interface {
	Assemble(ctx context.Context, asset domain.Asset, asOf time.Time) (*domain.WorldState, map[domain.Horizon]domain.MacroScore, error)
}

// ForecastPriceLoader fetches the price history used for realized labels.
type ForecastPriceLoader interface {
	LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error)
}

// ModelStore persists and activates trained forecast models.
type ModelStore interface {
	Save(model *forecast.TrainedModel) error
	Activate(versionID string) error
}

// ForecastRefresher rebuilds the training dataset from the assembled world
// states and realized forward returns, retrains the quantile experts and
// activates the new model. Unlike calibration, forecast models are not
// promotion-gated: the newest successfully trained model serves immediately.
type ForecastRefresher struct {
	worlds  WorldSource
	trainer *forecast.Trainer
	store   ModelStore
	prices  ForecastPriceLoader
	cfg     *config.Config
	log     zerolog.Logger
}

// NewForecastRefresher creates a new forecast refresher
func NewForecastRefresher(worlds WorldSource, trainer *forecast.Trainer, store ModelStore, prices ForecastPriceLoader, cfg *config.Config, log zerolog.Logger) *ForecastRefresher {
	return &ForecastRefresher{
		worlds:  worlds,
		trainer: trainer,
		store:   store,
		prices:  prices,
		cfg:     cfg,
		log:     log.With().Str("component", "forecast_refresher").Logger(),
	}
}

// Refresh retrains the forecast model for one asset over the rolling
// lookback window and swaps the active pointer to the new version.
func (r *ForecastRefresher) Refresh(ctx context.Context, asset domain.Asset) error {
	now := domain.Midnight(time.Now().UTC())

	maxHorizon := 0
	for _, h := range r.cfg.Horizons {
		if h.TradingDays() > maxHorizon {
			maxHorizon = h.TradingDays()
		}
	}

	// Labels are realized forward returns, so the last usable sample date
	// must leave room for the longest horizon to resolve.
	start := now.AddDate(-forecastLookbackYears, 0, 0)
	end := now.AddDate(0, 0, -maxHorizon)
	if !end.After(start) {
		return fmt.Errorf("forecast training window empty for %s: %w", asset, domain.ErrInsufficientData)
	}

	lookbackDays := int(now.Sub(start).Hours()/24) + 30
	prices, err := r.prices.LoadAsOf(string(asset), now, lookbackDays)
	if err != nil {
		return fmt.Errorf("load prices for %s: %w", asset, err)
	}

	dataset, err := r.buildDataset(ctx, asset, start, end, prices)
	if err != nil {
		return err
	}

	model, err := r.trainer.Train(forecast.TrainerConfig{
		Asset:      asset,
		Horizons:   r.cfg.Horizons,
		Seed:       uint32(r.cfg.Forecast.Seed),
		Smoothing:  r.cfg.Forecast.Smoothing,
		MinSamples: r.cfg.Forecast.MinSamplesPerExpert,
	}, dataset)
	if err != nil {
		return fmt.Errorf("forecast training for %s: %w", asset, err)
	}

	if err := r.store.Save(model); err != nil {
		return fmt.Errorf("save trained model for %s: %w", asset, err)
	}
	if err := r.store.Activate(model.VersionID); err != nil {
		return fmt.Errorf("activate trained model for %s: %w", asset, err)
	}

	r.log.Info().
		Str("asset", string(asset)).
		Str("versionId", model.VersionID).
		Int("samples", len(dataset)).
		Int("experts", len(model.Experts)).
		Msg("Forecast model retrained and activated")

	return nil
}

// buildDataset walks the window in date order, assembling each world state
// and pairing its features with the returns that followed. Degraded dates
// are skipped; training only needs a representative sample.
func (r *ForecastRefresher) buildDataset(ctx context.Context, asset domain.Asset, start, end time.Time, prices domain.Series) ([]forecast.Sample, error) {
	var dataset []forecast.Sample
	for d := domain.Midnight(start); !d.After(end); d = d.AddDate(0, 0, forecastStepDays) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		world, _, err := r.worlds.Assemble(ctx, asset, d)
		if err != nil || world.MacroRegime == nil {
			continue
		}

		labels := make(map[domain.Horizon]float64, len(r.cfg.Horizons))
		for _, h := range r.cfg.Horizons {
			if ret, ok := realizedReturn(prices, d, h.TradingDays()); ok {
				labels[h] = ret
			}
		}
		if len(labels) == 0 {
			continue
		}

		dataset = append(dataset, forecast.Sample{
			Features: forecast.Features(world),
			Regime:   world.MacroRegime.Regime,
			Labels:   labels,
		})
	}

	if len(dataset) == 0 {
		return nil, fmt.Errorf("no trainable samples for %s: %w", asset, domain.ErrInsufficientData)
	}
	return dataset, nil
}

// realizedReturn is the forward return from a reference date over
// horizonDays calendar days.
func realizedReturn(prices domain.Series, from time.Time, horizonDays int) (float64, bool) {
	base, ok := prices.ValueAt(from)
	if !ok || base.Value <= 0 {
		return 0, false
	}
	target, ok := prices.ValueAt(from.AddDate(0, 0, horizonDays))
	if !ok || target.Value <= 0 || !target.Date.After(base.Date) {
		return 0, false
	}
	return target.Value/base.Value - 1, true
}
