package forecast

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
)

// FeatureCount is the fixed dimensionality of the forecaster input.
// Training datasets and inference must agree on it.
const FeatureCount = 8

// Features flattens a world state into the model input vector. Missing
// members contribute neutral zeros, never NaN.
func Features(world *domain.WorldState) []float64 {
	f := make([]float64, FeatureCount)
	if world == nil {
		return f
	}

	if world.Macro != nil {
		f[0] = world.Macro.Score
		f[1] = world.Macro.Confidence
	}
	if world.Liquidity != nil {
		f[2] = world.Liquidity.Impulse / 3 // normalize to [-1, 1]
	}
	f[3] = float64(world.Guard.Level) / float64(domain.GuardBlock)
	if world.CrossAsset != nil {
		f[4] = world.CrossAsset.ContagionScore
		f[5] = world.CrossAsset.DecoupleScore
	}
	if world.MacroRegime != nil {
		f[6] = world.MacroRegime.Persistence
		f[7] = world.MacroRegime.Stability
	}

	return f
}

// Service resolves the active model and produces forecast outcomes for the
// brain. A missing or failing model degrades to an unavailable outcome.
type Service struct {
	store *Store
	log   zerolog.Logger
}

// NewService creates a new forecast service
func NewService(store *Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "forecast").Logger(),
	}
}

// Forecast predicts from the active model for the world state's asset.
func (s *Service) Forecast(world *domain.WorldState, asOf time.Time) domain.ForecastOutcome {
	model, err := s.store.Active(world.Asset)
	if err != nil {
		s.log.Warn().Str("asset", string(world.Asset)).Err(err).Msg("No active forecast model")
		return domain.UnavailableForecast("no active model: " + err.Error())
	}

	posterior := map[domain.MacroRegime]float64{domain.RegimeNeutral: 1}
	if world.MacroRegime != nil && len(world.MacroRegime.Posterior) > 0 {
		posterior = world.MacroRegime.Posterior
	}

	set, err := Predict(model, asOf, Features(world), posterior)
	if err != nil {
		s.log.Warn().Str("asset", string(world.Asset)).Err(err).Msg("Forecast inference failed")
		return domain.UnavailableForecast("inference failed: " + err.Error())
	}

	return domain.AvailableForecast(set)
}
