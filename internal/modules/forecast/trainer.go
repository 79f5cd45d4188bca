package forecast

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
)

const (
	defaultEpochs     = 200
	baseLearningRate  = 0.01
	initWeightScale   = 0.001
	l2PenaltyPerUnit  = 0.001
	defaultMinSamples = 60
)

// Sample is one training observation: a feature vector, the regime that was
// dominant when it was observed, and realized forward returns per horizon.
type Sample struct {
	Features []float64
	Regime   domain.MacroRegime
	Labels   map[domain.Horizon]float64
}

// TrainerConfig holds the training hyperparameters.
type TrainerConfig struct {
	Asset      domain.Asset
	Horizons   []domain.Horizon
	Seed       uint32
	Smoothing  float64
	MinSamples int
	Epochs     int
}

// Trainer fits the per-regime quantile experts.
type Trainer struct {
	log zerolog.Logger
}

// NewTrainer creates a new trainer
func NewTrainer(log zerolog.Logger) *Trainer {
	return &Trainer{log: log.With().Str("component", "forecast_trainer").Logger()}
}

// Train fits one expert per regime with enough samples; regimes below the
// sample floor are dropped and recorded. The result is fully determined by
// (dataset, seed, smoothing, hyperparameters).
func (t *Trainer) Train(cfg TrainerConfig, dataset []Sample) (*TrainedModel, error) {
	if len(dataset) == 0 {
		return nil, fmt.Errorf("forecast training: %w", domain.ErrInsufficientData)
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = defaultEpochs
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = domain.AllHorizons()
	}

	started := time.Now()
	featureCount := len(dataset[0].Features)

	byRegime := make(map[domain.MacroRegime][]Sample)
	for _, s := range dataset {
		if len(s.Features) != featureCount {
			return nil, fmt.Errorf("inconsistent feature count %d (expected %d): %w",
				len(s.Features), featureCount, domain.ErrValidation)
		}
		byRegime[s.Regime] = append(byRegime[s.Regime], s)
	}

	model := &TrainedModel{
		Asset:        cfg.Asset,
		TrainedAt:    time.Now().UTC(),
		Seed:         cfg.Seed,
		Smoothing:    cfg.Smoothing,
		FeatureCount: featureCount,
		Horizons:     cfg.Horizons,
		Experts:      make(map[domain.MacroRegime]ExpertModels),
		Stats: TrainingStats{
			SamplesPerRegime: make(map[domain.MacroRegime]int),
		},
	}

	// Regimes are trained in canonical order so the shared RNG stream is
	// consumed identically on every run.
	for _, regime := range domain.AllMacroRegimes() {
		samples := byRegime[regime]
		model.Stats.SamplesPerRegime[regime] = len(samples)

		if len(samples) < cfg.MinSamples {
			model.Dropped = append(model.Dropped, regime)
			t.log.Debug().
				Str("regime", string(regime)).
				Int("samples", len(samples)).
				Int("min", cfg.MinSamples).
				Msg("Expert dropped, too few samples")
			continue
		}

		rng := newXorshift32(cfg.Seed + uint32(regimeSeedOffset(regime)))
		expert := make(ExpertModels, len(cfg.Horizons))
		for _, horizon := range cfg.Horizons {
			quantiles := make(map[string]LinearModel, len(quantileOrder))
			for _, q := range quantileOrder {
				quantiles[q] = trainQuantile(rng, samples, horizon, quantileTaus[q], cfg)
			}
			expert[horizon] = quantiles
		}
		model.Experts[regime] = expert
	}

	if len(model.Experts) == 0 {
		return nil, fmt.Errorf("every expert dropped: %w", domain.ErrInsufficientData)
	}

	model.Stats.WallTime = time.Since(started)
	model.VersionID = domain.InputsHash(struct {
		Asset     domain.Asset                        `json:"asset"`
		Seed      uint32                              `json:"seed"`
		Smoothing float64                             `json:"smoothing"`
		Experts   map[domain.MacroRegime]ExpertModels `json:"experts"`
	}{cfg.Asset, cfg.Seed, cfg.Smoothing, model.Experts})

	t.log.Info().
		Str("asset", string(cfg.Asset)).
		Str("version", model.VersionID).
		Int("experts", len(model.Experts)).
		Int("dropped", len(model.Dropped)).
		Dur("elapsed", model.Stats.WallTime).
		Msg("Forecast model trained")

	return model, nil
}

// regimeSeedOffset decorrelates expert initializations while keeping them
// reproducible.
func regimeSeedOffset(regime domain.MacroRegime) int {
	for i, r := range domain.AllMacroRegimes() {
		if r == regime {
			return i * 7919
		}
	}
	return 0
}

// trainQuantile fits one linear quantile regression with SGD on pinball
// loss. The gradient of the loss wrt the prediction is -tau when the label
// exceeds the prediction, (1-tau) otherwise.
func trainQuantile(rng *xorshift32, samples []Sample, horizon domain.Horizon, tau float64, cfg TrainerConfig) LinearModel {
	featureCount := len(samples[0].Features)

	model := LinearModel{Weights: make([]float64, featureCount)}
	for i := range model.Weights {
		model.Weights[i] = initWeightScale * rng.normal()
	}

	l2 := cfg.Smoothing * l2PenaltyPerUnit

	idx := make([]int, 0, len(samples))
	for i, s := range samples {
		if _, ok := s.Labels[horizon]; ok {
			idx = append(idx, i)
		}
	}

	order := make([]int, len(idx))
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		lr := baseLearningRate / (1 + 0.01*float64(epoch))

		copy(order, idx)
		rng.shuffle(order)

		for _, i := range order {
			s := samples[i]
			y := s.Labels[horizon]
			pred := model.Predict(s.Features)

			grad := 1 - tau
			if y > pred {
				grad = -tau
			}

			for j := range model.Weights {
				model.Weights[j] -= lr * (grad*s.Features[j] + l2*model.Weights[j])
			}
			model.Bias -= lr * grad
		}
	}

	return model
}
