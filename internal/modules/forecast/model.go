package forecast

import (
	"time"

	"github.com/aristath/macrobrain/internal/domain"
)

// Quantile keys of the per-expert regressions.
const (
	QuantileLow = "q05"
	QuantileMid = "q50"
	QuantileTop = "q95"
)

// quantileTaus maps the stored quantile keys to their pinball targets.
var quantileTaus = map[string]float64{
	QuantileLow: 0.05,
	QuantileMid: 0.50,
	QuantileTop: 0.95,
}

// quantileOrder is the deterministic training/iteration order.
var quantileOrder = []string{QuantileLow, QuantileMid, QuantileTop}

// LinearModel is one linear quantile regression y = w.x + b.
type LinearModel struct {
	Weights []float64 `msgpack:"weights" json:"weights"`
	Bias    float64   `msgpack:"bias" json:"bias"`
}

// Predict evaluates the model on a feature vector.
func (m LinearModel) Predict(features []float64) float64 {
	y := m.Bias
	for i, w := range m.Weights {
		if i < len(features) {
			y += w * features[i]
		}
	}
	return y
}

// ExpertModels maps horizon -> quantile key -> regression for one regime.
type ExpertModels map[domain.Horizon]map[string]LinearModel

// TrainingStats records what the trainer saw per regime.
type TrainingStats struct {
	SamplesPerRegime map[domain.MacroRegime]int `msgpack:"samplesPerRegime" json:"samplesPerRegime"`
	WallTime         time.Duration              `msgpack:"wallTime" json:"wallTime"`
}

// TrainedModel is a versioned, fully deterministic forecaster artifact.
// Identical (dataset, seed, smoothing, hyperparameters) always reproduce
// identical weights.
type TrainedModel struct {
	VersionID    string                               `msgpack:"versionId" json:"versionId"`
	Asset        domain.Asset                         `msgpack:"asset" json:"asset"`
	TrainedAt    time.Time                            `msgpack:"trainedAt" json:"trainedAt"`
	Seed         uint32                               `msgpack:"seed" json:"seed"`
	Smoothing    float64                              `msgpack:"smoothing" json:"smoothing"`
	FeatureCount int                                  `msgpack:"featureCount" json:"featureCount"`
	Horizons     []domain.Horizon                     `msgpack:"horizons" json:"horizons"`
	Experts      map[domain.MacroRegime]ExpertModels  `msgpack:"experts" json:"experts"`
	Dropped      []domain.MacroRegime                 `msgpack:"dropped" json:"dropped"`
	Stats        TrainingStats                        `msgpack:"stats" json:"stats"`
}

// IsDropped reports whether a regime's expert was dropped during training.
func (m *TrainedModel) IsDropped(regime domain.MacroRegime) bool {
	for _, d := range m.Dropped {
		if d == regime {
			return true
		}
	}
	return false
}

// expertFor returns the models backing a regime. Dropped experts fall back
// to the NEUTRAL expert when it survived training.
func (m *TrainedModel) expertFor(regime domain.MacroRegime) (ExpertModels, bool) {
	if expert, ok := m.Experts[regime]; ok {
		return expert, true
	}
	expert, ok := m.Experts[domain.RegimeNeutral]
	return expert, ok
}
