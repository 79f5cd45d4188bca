package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/rolling"
)

// renormalize when mixed weight drifts more than this from 1
const weightDriftTolerance = 0.01

// Predict mixes the per-regime quantile experts by the regime posterior and
// returns calibrated forecasts for every horizon the model carries.
func Predict(model *TrainedModel, asOf time.Time, features []float64, posterior map[domain.MacroRegime]float64) (*domain.ForecastSet, error) {
	if model == nil {
		return nil, fmt.Errorf("no trained model: %w", domain.ErrInsufficientData)
	}
	if len(features) != model.FeatureCount {
		return nil, fmt.Errorf("feature vector has %d entries, model expects %d: %w",
			len(features), model.FeatureCount, domain.ErrValidation)
	}

	weights := mixWeights(model, posterior)
	if len(weights) == 0 {
		return nil, fmt.Errorf("no surviving expert carries posterior mass: %w", domain.ErrInsufficientData)
	}

	set := &domain.ForecastSet{
		Asset:        model.Asset,
		AsOf:         domain.Midnight(asOf),
		Horizons:     make(map[domain.Horizon]domain.HorizonForecast, len(model.Horizons)),
		ModelVersion: model.VersionID,
	}

	for _, horizon := range model.Horizons {
		forecast, err := mixHorizon(model, weights, features, horizon)
		if err != nil {
			return nil, err
		}
		set.Horizons[horizon] = forecast
	}

	return set, nil
}

// mixWeights resolves the posterior into effective expert weights:
// mass on dropped regimes is redistributed proportionally over surviving
// experts, and the total is renormalized when it drifts.
func mixWeights(model *TrainedModel, posterior map[domain.MacroRegime]float64) map[domain.MacroRegime]float64 {
	weights := make(map[domain.MacroRegime]float64)
	var surviving, dropped float64

	for _, regime := range domain.AllMacroRegimes() {
		p := posterior[regime]
		if p <= 0 {
			continue
		}
		if _, ok := model.Experts[regime]; ok {
			weights[regime] = p
			surviving += p
		} else {
			dropped += p
		}
	}

	if len(weights) == 0 {
		// Everything with mass was dropped: lean on the NEUTRAL fallback
		if _, ok := model.Experts[domain.RegimeNeutral]; ok && dropped > 0 {
			return map[domain.MacroRegime]float64{domain.RegimeNeutral: 1}
		}
		return nil
	}

	// Proportional redistribution of dropped mass
	if dropped > 0 && surviving > 0 {
		for regime, p := range weights {
			weights[regime] = p + dropped*(p/surviving)
		}
	}

	var total float64
	for _, p := range weights {
		total += p
	}
	if total > 0 && (total > 1+weightDriftTolerance || total < 1-weightDriftTolerance) {
		for regime, p := range weights {
			weights[regime] = p / total
		}
	}

	return weights
}

// mixHorizon blends the expert quantiles for one horizon and applies the
// calibration steps: bound clamping, monotonic ordering, tail risk.
func mixHorizon(model *TrainedModel, weights map[domain.MacroRegime]float64, features []float64, horizon domain.Horizon) (domain.HorizonForecast, error) {
	mixed := make(map[string]float64, len(quantileOrder))

	for regime, p := range weights {
		expert, ok := model.expertFor(regime)
		if !ok {
			continue
		}
		quantiles, ok := expert[horizon]
		if !ok {
			continue
		}
		for _, q := range quantileOrder {
			mixed[q] += p * quantiles[q].Predict(features)
		}
	}

	bound := horizon.ReturnBound()
	qs := make([]float64, 0, len(quantileOrder))
	for _, q := range quantileOrder {
		v := mixed[q]
		if !rolling.IsFinite(v) {
			return domain.HorizonForecast{}, fmt.Errorf("non-finite %s quantile at %s: %w", q, horizon, domain.ErrValidation)
		}
		qs = append(qs, domain.Clamp(v, -bound, bound))
	}
	sort.Float64s(qs)

	q05, q50, q95 := qs[0], qs[1], qs[2]
	return domain.HorizonForecast{
		Horizon:  horizon,
		Q05:      q05,
		Q50:      q50,
		Q95:      q95,
		Mean:     (q05 + q50 + q95) / 3,
		TailRisk: domain.Clamp((q50-q05)/horizon.RiskBand(), 0, 1),
	}, nil
}
