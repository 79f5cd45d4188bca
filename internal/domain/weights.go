package domain

import "time"

// SeriesWeight is one macro component of a per-horizon weight set.
type SeriesWeight struct {
	SeriesID string  `json:"seriesId"`
	Weight   float64 `json:"weight"`
	LagDays  int     `json:"lagDays"`
	Sign     float64 `json:"sign"` // expected economic sign, +1 or -1
}

// WeightSet is the calibrated macro weight vector for one horizon.
// Weights sum to the configured target (typically 1.0 +- 0.01).
type WeightSet struct {
	Horizon Horizon        `json:"horizon"`
	Weights []SeriesWeight `json:"weights"`
}

// TotalWeight sums the component weights.
func (w WeightSet) TotalWeight() float64 {
	var sum float64
	for _, sw := range w.Weights {
		sum += sw.Weight
	}
	return sum
}

// CalibrationMetrics are the walk-forward evaluation results of one weight
// set at one horizon.
type CalibrationMetrics struct {
	HitRate float64 `json:"hitRate"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	Samples int     `json:"samples"`
}

// CalibrationVersion is a stored, versioned set of per-horizon weights with
// its evaluation metrics and the baseline it was compared against.
type CalibrationVersion struct {
	VersionID string                         `json:"versionId"`
	Asset     Asset                          `json:"asset"`
	CreatedAt time.Time                      `json:"createdAt"`
	Objective string                         `json:"objective"`
	Seed      int64                          `json:"seed"`
	Source    string                         `json:"source"` // default | tuned | promoted
	Horizons  map[Horizon]WeightSet          `json:"horizons"`
	Metrics   map[Horizon]CalibrationMetrics `json:"metrics"`
	Baseline  map[Horizon]CalibrationMetrics `json:"baseline"`
}
