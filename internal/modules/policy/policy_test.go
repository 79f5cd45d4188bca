package policy

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/domain"
)

func world(guard domain.GuardLevel, macroScore float64) *domain.WorldState {
	return &domain.WorldState{
		Asset: domain.AssetSPX,
		Guard: domain.GuardState{Level: guard, LevelLabel: guard.String()},
		Macro: &domain.MacroScore{Score: macroScore, Confidence: 0.8},
	}
}

func pack(name domain.Scenario) domain.ScenarioPack {
	return domain.ScenarioPack{Name: name, Confidence: 0.7}
}

func noForecast() domain.ForecastOutcome {
	return domain.UnavailableForecast("not needed")
}

func newEngine() *Engine {
	return NewEngine(0.05, zerolog.Nop())
}

func TestAllocate_PositiveSignalSizesRisk(t *testing.T) {
	alloc, audit := newEngine().Allocate(world(domain.GuardNone, 0.5), pack(domain.ScenarioBase), domain.Directives{}, noForecast())

	assert.Greater(t, alloc.SPX, 0.3)
	assert.Greater(t, alloc.BTC, 0.1)
	// DXY hedge stays proportional to the signal through normalization
	assert.Greater(t, alloc.DXY, 0.0)
	assert.Less(t, alloc.DXY, alloc.SPX)
	assert.NotEmpty(t, audit)
}

func TestAllocate_CalmNeutralSplitsRiskEvenly(t *testing.T) {
	w := world(domain.GuardNone, 0.05)
	w.Macro.Confidence = 0.6
	w.Liquidity = &domain.LiquidityState{Regime: domain.LiquidityNeutral}

	alloc, _ := newEngine().Allocate(w, pack(domain.ScenarioBase), domain.Directives{}, noForecast())

	assert.GreaterOrEqual(t, alloc.SPX, 0.40)
	assert.LessOrEqual(t, alloc.SPX, 0.60)
	assert.GreaterOrEqual(t, alloc.BTC, 0.40)
	assert.LessOrEqual(t, alloc.BTC, 0.60)
	assert.GreaterOrEqual(t, alloc.Cash, 0.05)
	assert.LessOrEqual(t, alloc.Cash, 0.20)
	assert.InDelta(t, 1.0, alloc.SPX+alloc.BTC+alloc.DXY+alloc.Cash, 1e-9)
}

func TestAllocate_ComponentsBounded(t *testing.T) {
	for _, score := range []float64{-1, -0.5, 0, 0.5, 1} {
		alloc, _ := newEngine().Allocate(world(domain.GuardNone, score), pack(domain.ScenarioBase), domain.Directives{}, noForecast())
		for _, v := range []float64{alloc.SPX, alloc.BTC, alloc.DXY, alloc.Cash} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.GreaterOrEqual(t, alloc.Cash, 0.05)
	}
}

func TestAllocate_BlockZerosRiskAndShortCircuits(t *testing.T) {
	directives := domain.Directives{
		Haircuts: map[domain.Asset]float64{domain.AssetBTC: 0.5},
	}
	alloc, audit := newEngine().Allocate(world(domain.GuardBlock, 0.8), pack(domain.ScenarioBase), directives, noForecast())

	assert.Equal(t, 0.0, alloc.SPX)
	assert.Equal(t, 0.0, alloc.BTC)
	blocked := false
	for _, line := range audit {
		if strings.Contains(line, "BLOCK") {
			blocked = true
		}
	}
	assert.True(t, blocked, "expected BLOCK in audit: %v", audit)
	// Cash floor holds even with everything zeroed
	assert.GreaterOrEqual(t, alloc.Cash, 0.05)
}

func TestAllocate_DirectiveCapsApplied(t *testing.T) {
	directives := domain.Directives{
		Caps: map[domain.Asset]float64{domain.AssetSPX: 0.10, domain.AssetBTC: 0.05},
	}
	alloc, _ := newEngine().Allocate(world(domain.GuardNone, 0.9), pack(domain.ScenarioBase), directives, noForecast())

	assert.LessOrEqual(t, alloc.SPX, 0.10)
	assert.LessOrEqual(t, alloc.BTC, 0.05)
}

func TestAllocate_LiquidityContractionShrinksRisk(t *testing.T) {
	neutral := world(domain.GuardNone, 0.4)
	neutral.Liquidity = &domain.LiquidityState{Regime: domain.LiquidityNeutral}
	contracting := world(domain.GuardNone, 0.4)
	contracting.Liquidity = &domain.LiquidityState{Regime: domain.LiquidityContraction, Impulse: -1.0}

	a, _ := newEngine().Allocate(neutral, pack(domain.ScenarioBase), domain.Directives{}, noForecast())
	b, _ := newEngine().Allocate(contracting, pack(domain.ScenarioBase), domain.Directives{}, noForecast())

	assert.Less(t, b.SPX, a.SPX)
	assert.Less(t, b.BTC, a.BTC)
	// BTC shrinks harder than SPX (0.80 vs 0.90 multiplier)
	assert.Less(t, b.BTC/a.BTC, b.SPX/a.SPX)
}

func TestAllocate_SevereConflictCutsBTCHarder(t *testing.T) {
	w := world(domain.GuardCrisis, 0.1)

	base, _ := newEngine().Allocate(world(domain.GuardCrisis, 0.1), pack(domain.ScenarioBase), domain.Directives{}, noForecast())
	severe, _ := newEngine().Allocate(w, pack(domain.ScenarioTail), domain.Directives{}, noForecast())

	require.Greater(t, base.BTC, 0.0)
	assert.Less(t, severe.BTC/base.BTC, severe.SPX/base.SPX)
}

func TestAllocate_MacroBearishConflict(t *testing.T) {
	_, audit := newEngine().Allocate(world(domain.GuardNone, -0.5), pack(domain.ScenarioBase), domain.Directives{}, noForecast())

	found := false
	for _, line := range audit {
		if strings.Contains(line, "MACRO_BEARISH") {
			found = true
		}
	}
	assert.True(t, found, "expected MACRO_BEARISH in audit: %v", audit)
}

func TestAllocate_MonotoneInGuardEscalation(t *testing.T) {
	levels := []domain.GuardLevel{domain.GuardNone, domain.GuardWarn, domain.GuardCrisis, domain.GuardBlock}

	// Directive haircuts mirror what the brain emits per level
	haircuts := map[domain.GuardLevel]domain.Directives{
		domain.GuardNone: {},
		domain.GuardWarn: {Haircuts: map[domain.Asset]float64{
			domain.AssetBTC: 0.85, domain.AssetSPX: 0.90}},
		domain.GuardCrisis: {Haircuts: map[domain.Asset]float64{
			domain.AssetBTC: 0.60, domain.AssetSPX: 0.75}},
		domain.GuardBlock: {Caps: map[domain.Asset]float64{
			domain.AssetBTC: 0.05, domain.AssetSPX: 0.05}},
	}

	prevSPX, prevBTC := 2.0, 2.0
	for _, level := range levels {
		alloc, _ := newEngine().Allocate(world(level, 0.4), pack(domain.ScenarioBase), haircuts[level], noForecast())
		assert.LessOrEqual(t, alloc.SPX, prevSPX, "SPX rose as guard escalated to %s", level)
		assert.LessOrEqual(t, alloc.BTC, prevBTC, "BTC rose as guard escalated to %s", level)
		prevSPX, prevBTC = alloc.SPX, alloc.BTC
	}
}

func TestAllocate_CashFloorEnforced(t *testing.T) {
	// Max out everything: cash would go negative without the floor
	alloc, _ := newEngine().Allocate(world(domain.GuardNone, 1.0), pack(domain.ScenarioBase), domain.Directives{
		Scales: map[domain.Asset]float64{domain.AssetSPX: 1.1, domain.AssetBTC: 1.1},
	}, noForecast())

	assert.GreaterOrEqual(t, alloc.Cash, 0.05)
}

func TestAllocate_MissingMacroDefaultsNeutral(t *testing.T) {
	w := &domain.WorldState{
		Asset: domain.AssetSPX,
		Guard: domain.GuardState{Level: domain.GuardNone, LevelLabel: "NONE"},
	}

	alloc, _ := newEngine().Allocate(w, pack(domain.ScenarioBase), domain.Directives{}, noForecast())
	assert.InDelta(t, 0.0, alloc.DXY, 1e-9)
	assert.Greater(t, alloc.SPX, 0.0)
}
