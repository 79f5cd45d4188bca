// Package policy turns the brain's directives into bounded allocations via
// an ordered cascade. Every step only shrinks risk exposure or leaves it
// unchanged, which is what makes the output monotone in stress.
package policy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
)

// Cascade base sizes and slopes
const (
	spxBase  = 0.50
	spxSlope = 0.20
	spxMax   = 0.80

	btcBase  = 0.49
	btcSlope = 0.20
	btcMax   = 0.70

	dxySignalFactor = 0.6
	dxyMax          = 0.50
)

// Conflict-pattern haircuts. BTC is always cut at least as hard as SPX.
const (
	severeHaircutBTC = 0.50
	severeHaircutSPX = 0.70

	macroBearishThreshold  = -0.30
	macroBearishHaircutBTC = 0.70
	macroBearishHaircutSPX = 0.85

	liquidityDrainImpulse    = -1.5
	liquidityDrainHaircutBTC = 0.75
	liquidityDrainHaircutSPX = 0.90
)

// liquidityMultipliers scales risk sizes per liquidity regime.
var liquidityMultipliers = map[domain.LiquidityRegime]map[domain.Asset]float64{
	domain.LiquidityExpansion:   {domain.AssetSPX: 1.05, domain.AssetBTC: 1.10},
	domain.LiquidityNeutral:     {domain.AssetSPX: 1.00, domain.AssetBTC: 1.00},
	domain.LiquidityContraction: {domain.AssetSPX: 0.90, domain.AssetBTC: 0.80},
}

// Engine runs the allocation cascade.
type Engine struct {
	minCashFloor float64
	log          zerolog.Logger
}

// NewEngine creates a new policy engine
func NewEngine(minCashFloor float64, log zerolog.Logger) *Engine {
	if minCashFloor <= 0 {
		minCashFloor = 0.05
	}
	return &Engine{
		minCashFloor: minCashFloor,
		log:          log.With().Str("component", "policy").Logger(),
	}
}

// Allocate runs the ordered cascade and returns the final allocation with a
// step-by-step audit trail.
func (e *Engine) Allocate(world *domain.WorldState, scenario domain.ScenarioPack, directives domain.Directives, fc domain.ForecastOutcome) (domain.Allocation, []string) {
	var audit []string

	signal := 0.0
	confidence := 0.5
	if world.Macro != nil {
		signal = world.Macro.Score
		confidence = world.Macro.Confidence
	}

	// 1. Cascade sizes from the macro signal
	alloc := domain.Allocation{
		SPX: domain.Clamp(spxBase+spxSlope*signal, 0, spxMax),
		BTC: domain.Clamp(btcBase+btcSlope*signal, 0, btcMax),
		DXY: domain.Clamp(absFloat(signal)*dxySignalFactor, 0, dxyMax),
	}
	audit = append(audit, fmt.Sprintf("cascade sizes from signal %.2f: spx %.3f btc %.3f dxy %.3f",
		signal, alloc.SPX, alloc.BTC, alloc.DXY))

	// Normalize the risk budget to leave room for the cash floor. This runs
	// before any guard or confidence step so the scale depends only on the
	// signal and every later step still only shrinks exposure.
	if sum := alloc.SPX + alloc.BTC + alloc.DXY; sum > 1-e.minCashFloor {
		scale := (1 - e.minCashFloor) / sum
		alloc.SPX *= scale
		alloc.BTC *= scale
		alloc.DXY *= scale
		audit = append(audit, fmt.Sprintf("risk budget normalized x%.3f: spx %.3f btc %.3f dxy %.3f",
			scale, alloc.SPX, alloc.BTC, alloc.DXY))
	}

	// 2. Guard caps; BLOCK zeroes risk and short-circuits the soft steps
	if world.Guard.Level == domain.GuardBlock {
		alloc.SPX, alloc.BTC = 0, 0
		audit = append(audit, "guard BLOCK: risk assets zeroed")
		return e.finish(alloc, directives, audit)
	}
	alloc = applyCaps(alloc, directives.Caps)
	if len(directives.Caps) > 0 {
		audit = append(audit, fmt.Sprintf("guard caps applied: spx %.3f btc %.3f", alloc.SPX, alloc.BTC))
	}

	// Directive haircuts and scales from the brain
	for _, asset := range domain.RiskAssets() {
		factor := 1.0
		if h, ok := directives.Haircuts[asset]; ok {
			factor *= h
		}
		if s, ok := directives.Scales[asset]; ok {
			factor *= s
		}
		if factor != 1.0 {
			setAsset(&alloc, asset, alloc.Get(asset)*factor)
		}
	}
	if len(directives.Haircuts)+len(directives.Scales) > 0 {
		audit = append(audit, fmt.Sprintf("directive haircuts/scales: spx %.3f btc %.3f", alloc.SPX, alloc.BTC))
	}

	// 3. Liquidity multipliers
	if world.Liquidity != nil {
		if mult, ok := liquidityMultipliers[world.Liquidity.Regime]; ok {
			alloc.SPX *= mult[domain.AssetSPX]
			alloc.BTC *= mult[domain.AssetBTC]
			audit = append(audit, fmt.Sprintf("liquidity %s multipliers: spx %.3f btc %.3f",
				world.Liquidity.Regime, alloc.SPX, alloc.BTC))
		}
	}

	// 4. Confidence multiplier on risk assets
	confMult := 0.75 + 0.25*domain.Clamp(confidence, 0, 1)
	alloc.SPX *= confMult
	alloc.BTC *= confMult
	audit = append(audit, fmt.Sprintf("confidence multiplier %.2f: spx %.3f btc %.3f", confMult, alloc.SPX, alloc.BTC))

	// 5. Conflict-pattern haircuts
	if pattern, btcCut, spxCut := detectConflict(world, scenario); pattern != "" {
		alloc.BTC *= btcCut
		alloc.SPX *= spxCut
		audit = append(audit, fmt.Sprintf("conflict %s: btc x%.2f spx x%.2f", pattern, btcCut, spxCut))
	}

	return e.finish(alloc, directives, audit)
}

// finish clamps, re-applies guard caps for monotonicity and derives cash.
func (e *Engine) finish(alloc domain.Allocation, directives domain.Directives, audit []string) (domain.Allocation, []string) {
	alloc.SPX = domain.Clamp(alloc.SPX, 0, 1)
	alloc.BTC = domain.Clamp(alloc.BTC, 0, 1)
	alloc.DXY = domain.Clamp(alloc.DXY, 0, 1)

	alloc = applyCaps(alloc, directives.Caps)

	// Risk sizes were normalized against the cash floor before the soft
	// steps, and every step since only shrinks them, so the remainder is
	// always at least the floor.
	alloc.Cash = domain.Clamp(1-(alloc.SPX+alloc.BTC+alloc.DXY), e.minCashFloor, 1)

	audit = append(audit, fmt.Sprintf("final: spx %.3f btc %.3f dxy %.3f cash %.3f",
		alloc.SPX, alloc.BTC, alloc.DXY, alloc.Cash))
	return alloc, audit
}

// detectConflict returns the first matching conflict pattern and its
// asset-hierarchy haircuts.
func detectConflict(world *domain.WorldState, scenario domain.ScenarioPack) (string, float64, float64) {
	if world.Guard.Level >= domain.GuardCrisis && scenario.Name == domain.ScenarioTail {
		return "SEVERE", severeHaircutBTC, severeHaircutSPX
	}
	if world.Macro != nil && world.Macro.Score < macroBearishThreshold {
		return "MACRO_BEARISH", macroBearishHaircutBTC, macroBearishHaircutSPX
	}
	if world.Liquidity != nil && world.Liquidity.Regime == domain.LiquidityContraction &&
		world.Liquidity.Impulse < liquidityDrainImpulse {
		return "LIQUIDITY_DRAIN", liquidityDrainHaircutBTC, liquidityDrainHaircutSPX
	}
	return "", 1, 1
}

func applyCaps(alloc domain.Allocation, caps map[domain.Asset]float64) domain.Allocation {
	for asset, limit := range caps {
		if alloc.Get(asset) > limit {
			setAsset(&alloc, asset, limit)
		}
	}
	return alloc
}

func setAsset(alloc *domain.Allocation, asset domain.Asset, v float64) {
	switch asset {
	case domain.AssetSPX:
		alloc.SPX = v
	case domain.AssetBTC:
		alloc.BTC = v
	case domain.AssetDXY:
		alloc.DXY = v
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
