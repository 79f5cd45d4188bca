// Package optimizer applies bounded small-delta adjustments on top of the
// policy allocation. It can only nudge, never restructure: every delta is
// clamped and the safety constraints run after scoring.
package optimizer

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/adaptive"
)

// Delta bounds per posture/scenario
const (
	maxDeltaDefensive = 0.08
	maxDeltaTail      = 0.10
)

const cashFloor = 0.05

// ParamSource resolves the active adaptive parameter set for an asset.
type ParamSource interface {
	Active(asset domain.Asset) (adaptive.Params, error)
}

// Engine computes and optionally applies small-delta adjustments.
type Engine struct {
	params ParamSource
	log    zerolog.Logger
}

// NewEngine creates a new optimizer engine
func NewEngine(params ParamSource, log zerolog.Logger) *Engine {
	return &Engine{
		params: params,
		log:    log.With().Str("component", "optimizer").Logger(),
	}
}

// activeCoefficients resolves the scoring weights for an asset, falling back
// to the built-in defaults when no tuned set is active.
func (e *Engine) activeCoefficients(asset domain.Asset) adaptive.OptimizerCoefficients {
	if e.params == nil {
		return adaptive.DefaultParams(asset).Optimizer
	}
	p, err := e.params.Active(asset)
	if err != nil {
		e.log.Warn().Err(err).Str("asset", string(asset)).Msg("Active params unavailable, using defaults")
		return adaptive.DefaultParams(asset).Optimizer
	}
	return p.Optimizer
}

// Optimize scores the risk assets, derives clamped deltas, applies the
// safety constraints and returns the adjusted allocation with per-asset
// rationale. The caller decides whether Final replaces the input.
func (e *Engine) Optimize(current domain.Allocation, posture domain.Posture, scenario domain.Scenario, world *domain.WorldState, fc domain.ForecastOutcome) domain.OptimizerOutput {
	asset := domain.AssetSPX
	if world != nil {
		asset = world.Asset
	}
	coeffs := e.activeCoefficients(asset)
	maxDelta := maxDeltaAllowed(coeffs.MaxDeltaBase, posture, scenario)

	contagion := 0.0
	crossRegime := domain.CrossMixed
	if world != nil && world.CrossAsset != nil {
		contagion = world.CrossAsset.ContagionScore
		crossRegime = world.CrossAsset.Regime
	}

	mean, q05 := 0.0, 0.0
	if f, ok := fc.At(domain.Horizon90D); ok {
		mean, q05 = f.Mean, f.Q05
	}

	output := domain.OptimizerOutput{
		Rationale: make(map[domain.Asset]domain.AssetRationale, 2),
		Deltas:    make(map[domain.Asset]float64, 2),
		MaxDelta:  maxDelta,
	}

	for _, riskAsset := range domain.RiskAssets() {
		r := domain.AssetRationale{
			ExpectedTilt: mean * coeffs.WeightReturn,
			TailPenalty:  math.Abs(q05) * coeffs.WeightTail,
			CorrPenalty:  contagion * coeffs.WeightCorr,
		}
		if posture == domain.PostureDefensive {
			r.GuardPenalty = coeffs.WeightGuard
		}
		r.Score = r.ExpectedTilt - r.TailPenalty - r.CorrPenalty - r.GuardPenalty

		output.Rationale[riskAsset] = r
		output.Deltas[riskAsset] = domain.Clamp(r.Score*coeffs.DeltaGain, -maxDelta, maxDelta)
	}

	applyConstraints(&output, scenario, crossRegime)
	output.Final = e.applyDeltas(current, output.Deltas)

	return output
}

// maxDeltaAllowed is the strictest applicable bound.
func maxDeltaAllowed(base float64, posture domain.Posture, scenario domain.Scenario) float64 {
	max := base
	if posture == domain.PostureDefensive && max > maxDeltaDefensive {
		max = maxDeltaDefensive
	}
	if scenario == domain.ScenarioTail && max > maxDeltaTail {
		max = maxDeltaTail
	}
	return max
}

// applyConstraints runs the ordered safety rules on the computed deltas.
func applyConstraints(output *domain.OptimizerOutput, scenario domain.Scenario, crossRegime domain.CrossAssetRegime) {
	// TAIL only ever reduces risk
	if scenario == domain.ScenarioTail {
		for asset, delta := range output.Deltas {
			if delta > 0 {
				output.Deltas[asset] = 0
			}
		}
	}

	// In synchronized sell-offs BTC never gets a friendlier delta than SPX
	if crossRegime == domain.CrossRiskOffSync {
		if output.Deltas[domain.AssetBTC] > output.Deltas[domain.AssetSPX] {
			output.Deltas[domain.AssetBTC] = output.Deltas[domain.AssetSPX]
		}
	}
}

// applyDeltas produces the final allocation: deltas applied, components
// clamped, cash floor repaired from the larger risk position, then the
// spx+btc+cash sleeve normalized to sum with dxy to 1.
func (e *Engine) applyDeltas(current domain.Allocation, deltas map[domain.Asset]float64) domain.Allocation {
	final := current
	final.SPX = domain.Clamp(current.SPX+deltas[domain.AssetSPX], 0, 1)
	final.BTC = domain.Clamp(current.BTC+deltas[domain.AssetBTC], 0, 1)

	// The optimizer sleeve is {spx, btc, cash}; dxy passes through untouched
	available := 1 - final.DXY
	if available < 0 {
		available = 0
	}

	final.Cash = available - final.SPX - final.BTC
	if final.Cash < cashFloor {
		deficit := cashFloor - final.Cash
		if final.SPX >= final.BTC {
			final.SPX = math.Max(0, final.SPX-deficit)
		} else {
			final.BTC = math.Max(0, final.BTC-deficit)
		}
		final.Cash = available - final.SPX - final.BTC
	}
	if final.Cash < 0 {
		final.Cash = 0
	}

	return final
}
