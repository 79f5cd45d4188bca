package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/domain"
)

func ctxWithZ4(id string, z float64) *domain.SeriesContext {
	return &domain.SeriesContext{SeriesID: id, Z4W: &z}
}

func TestLiquidity_AllComponentsExpansion(t *testing.T) {
	e := NewLiquidityEngine()

	// WALCL growing, RRP and TGA draining down: all three add liquidity
	state := e.Compute(ctxWithZ4("WALCL", 1.0), ctxWithZ4("RRP", -0.5), ctxWithZ4("TGA", -0.5))

	assert.Equal(t, 3, state.Available)
	// (1.0 + 0.5 + 0.5) * 3 / 3 = 2.0
	assert.InDelta(t, 2.0, state.Impulse, 1e-9)
	assert.Equal(t, domain.LiquidityExpansion, state.Regime)
	// 0.6*1 + 0.4*min(1, 2/2) = 1.0
	assert.InDelta(t, 1.0, state.Confidence, 1e-9)
}

func TestLiquidity_Contraction(t *testing.T) {
	e := NewLiquidityEngine()

	state := e.Compute(ctxWithZ4("WALCL", -0.5), ctxWithZ4("RRP", 0.5), ctxWithZ4("TGA", 0.2))

	assert.Equal(t, domain.LiquidityContraction, state.Regime)
	assert.InDelta(t, -1.2, state.Impulse, 1e-9)
}

func TestLiquidity_NeutralBand(t *testing.T) {
	e := NewLiquidityEngine()

	state := e.Compute(ctxWithZ4("WALCL", 0.2), ctxWithZ4("RRP", 0.0), ctxWithZ4("TGA", 0.0))

	assert.Equal(t, domain.LiquidityNeutral, state.Regime)
}

func TestLiquidity_TwoOfThreeNormalization(t *testing.T) {
	e := NewLiquidityEngine()

	// TGA missing: sum * 3 / 2
	state := e.Compute(ctxWithZ4("WALCL", 1.0), ctxWithZ4("RRP", 0.0), nil)

	assert.Equal(t, 2, state.Available)
	assert.InDelta(t, 1.5, state.Impulse, 1e-9)
	assert.Nil(t, state.Components.TGA)
	require.NotNil(t, state.Components.WALCL)
	// 0.6*(2/3) + 0.4*min(1, 1.5/2)
	assert.InDelta(t, 0.6*(2.0/3)+0.4*0.75, state.Confidence, 1e-9)
}

func TestLiquidity_ImpulseClamped(t *testing.T) {
	e := NewLiquidityEngine()

	state := e.Compute(ctxWithZ4("WALCL", 4.0), ctxWithZ4("RRP", -4.0), ctxWithZ4("TGA", -4.0))

	assert.Equal(t, 3.0, state.Impulse)
}

func TestLiquidity_NoComponents(t *testing.T) {
	e := NewLiquidityEngine()

	state := e.Compute(nil, nil, nil)

	assert.Equal(t, 0, state.Available)
	assert.Equal(t, domain.LiquidityNeutral, state.Regime)
	assert.Equal(t, 0.0, state.Confidence)
}

func TestLiquidity_FallbackToZ13(t *testing.T) {
	e := NewLiquidityEngine()
	z13 := 2.0
	ctx := &domain.SeriesContext{SeriesID: "WALCL", Z13W: &z13}

	state := e.Compute(ctx, nil, nil)

	assert.Equal(t, 1, state.Available)
	assert.InDelta(t, 3.0, state.Impulse, 1e-9) // 2.0 * 3 / 1 clamped to 3
}
