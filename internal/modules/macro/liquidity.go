package macro

import (
	"math"

	"github.com/aristath/macrobrain/internal/domain"
)

// Liquidity impulse thresholds
const (
	liquidityExpansionThreshold   = 0.75
	liquidityContractionThreshold = -0.75
	impulseClamp                  = 3.0
)

// LiquidityEngine combines the Fed balance-sheet components into a signed
// liquidity impulse.
type LiquidityEngine struct{}

// NewLiquidityEngine creates a new liquidity engine
func NewLiquidityEngine() *LiquidityEngine {
	return &LiquidityEngine{}
}

// Compute derives the liquidity state from the WALCL/RRP/TGA contexts.
// WALCL growth adds liquidity; RRP and TGA growth drain it. Each component
// uses its 4-week z-score with a 13-week fallback. Missing components shrink
// the normalization (impulse = sum * 3 / available).
func (e *LiquidityEngine) Compute(walcl, rrp, tga *domain.SeriesContext) domain.LiquidityState {
	state := domain.LiquidityState{Regime: domain.LiquidityNeutral}

	var sum float64
	if z, ok := componentZ(walcl); ok {
		state.Components.WALCL = &z
		sum += z
		state.Available++
	}
	if z, ok := componentZ(rrp); ok {
		state.Components.RRP = &z
		sum -= z
		state.Available++
	}
	if z, ok := componentZ(tga); ok {
		state.Components.TGA = &z
		sum -= z
		state.Available++
	}

	if state.Available == 0 {
		return state
	}

	state.Impulse = domain.Clamp(sum*3/float64(state.Available), -impulseClamp, impulseClamp)

	switch {
	case state.Impulse > liquidityExpansionThreshold:
		state.Regime = domain.LiquidityExpansion
	case state.Impulse < liquidityContractionThreshold:
		state.Regime = domain.LiquidityContraction
	}

	state.Confidence = 0.6*(float64(state.Available)/3) +
		0.4*math.Min(1, math.Abs(state.Impulse)/2)

	return state
}

// componentZ extracts the preferred z-score of a context, if present.
func componentZ(ctx *domain.SeriesContext) (float64, bool) {
	if ctx == nil {
		return 0, false
	}
	return ctx.PreferredZ()
}
