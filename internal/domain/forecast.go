package domain

import "time"

// HorizonForecast is a calibrated quantile forecast for one horizon.
// Monotonicity q05 <= q50 <= q95 is enforced at construction.
type HorizonForecast struct {
	Horizon  Horizon `json:"horizon"`
	Mean     float64 `json:"mean"`
	Q05      float64 `json:"q05"`
	Q50      float64 `json:"q50"`
	Q95      float64 `json:"q95"`
	TailRisk float64 `json:"tailRisk"` // clip((q50-q05)/riskBand, 0, 1)
}

// ForecastSet bundles the per-horizon forecasts of one asset.
type ForecastSet struct {
	Asset        Asset                       `json:"asset"`
	AsOf         time.Time                   `json:"asOf"`
	Horizons     map[Horizon]HorizonForecast `json:"horizons"`
	ModelVersion string                      `json:"modelVersion"`
}

// ForecastOutcome is the explicit availability variant consumed by the brain.
// When Available is false the brain degrades to its neutral fallback instead
// of failing the decision.
type ForecastOutcome struct {
	Available bool         `json:"available"`
	Reason    string       `json:"reason,omitempty"`
	Forecast  *ForecastSet `json:"forecast,omitempty"`
}

// AvailableForecast wraps a forecast set into an outcome.
func AvailableForecast(f *ForecastSet) ForecastOutcome {
	return ForecastOutcome{Available: true, Forecast: f}
}

// UnavailableForecast records why no forecast could be produced.
func UnavailableForecast(reason string) ForecastOutcome {
	return ForecastOutcome{Available: false, Reason: reason}
}

// At returns the forecast at a horizon, if present and available.
func (o ForecastOutcome) At(h Horizon) (HorizonForecast, bool) {
	if !o.Available || o.Forecast == nil {
		return HorizonForecast{}, false
	}
	f, ok := o.Forecast.Horizons[h]
	return f, ok
}
