package brain

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/domain"
)

func date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeMacro struct {
	score float64
	err   error
	delay time.Duration
}

func (f *fakeMacro) Score(asset domain.Asset, horizon domain.Horizon, asOf time.Time) (domain.MacroScore, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return domain.MacroScore{}, f.err
	}
	return domain.MacroScore{Asset: asset, Horizon: horizon, Score: f.score, Confidence: 0.8}, nil
}

type fakeLiquidity struct {
	state domain.LiquidityState
	err   error
}

func (f *fakeLiquidity) Read(asOf time.Time) (domain.LiquidityState, error) {
	return f.state, f.err
}

type fakeGuard struct {
	state domain.GuardState
}

func (f *fakeGuard) Evaluate(asOf time.Time) domain.GuardState { return f.state }

type fakeCross struct {
	pack domain.CrossAssetPack
	err  error
}

func (f *fakeCross) Build(asOf time.Time) (domain.CrossAssetPack, error) { return f.pack, f.err }

type memHistory struct {
	states []domain.RegimeState
}

func (m *memHistory) Latest(asset domain.Asset, asOf time.Time) (*domain.RegimeState, error) {
	var best *domain.RegimeState
	for i := range m.states {
		s := m.states[i]
		if s.Date.After(asOf) {
			continue
		}
		if best == nil || s.Date.After(best.Date) {
			best = &s
		}
	}
	return best, nil
}

func (m *memHistory) Append(state domain.RegimeState) error {
	m.states = append(m.states, state)
	return nil
}

type fakeRegimeEngine struct{}

func (fakeRegimeEngine) Update(asset domain.Asset, d time.Time, avgScore float64, prev *domain.RegimeState) (domain.RegimeState, error) {
	regime := domain.RegimeNeutral
	if avgScore > 0.3 {
		regime = domain.RegimeEasing
	}
	return domain.RegimeState{
		Asset:  asset,
		Date:   domain.Midnight(d),
		Regime: regime,
		Posterior: map[domain.MacroRegime]float64{
			regime: 1,
		},
		Persistence: 0.75,
		Stability:   1,
	}, nil
}

func guardState(level domain.GuardLevel) domain.GuardState {
	return domain.GuardState{Level: level, LevelLabel: level.String()}
}

func testAssembler(macro MacroSource, liquidity LiquiditySource, guard GuardSource, cross CrossAssetSource, history RegimeHistory) *Assembler {
	return NewAssembler(macro, liquidity, guard, cross, history, fakeRegimeEngine{},
		[]domain.Horizon{domain.Horizon30D, domain.Horizon90D}, time.Second, zerolog.Nop())
}

func TestAssemble_AllSourcesHealthy(t *testing.T) {
	history := &memHistory{}
	a := testAssembler(
		&fakeMacro{score: 0.5},
		&fakeLiquidity{state: domain.LiquidityState{Regime: domain.LiquidityNeutral}},
		&fakeGuard{state: guardState(domain.GuardNone)},
		&fakeCross{pack: domain.CrossAssetPack{Regime: domain.CrossMixed}},
		history,
	)

	world, scores, err := a.Assemble(context.Background(), domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)

	assert.True(t, world.Health.OK)
	assert.Empty(t, world.Health.Missing)
	require.NotNil(t, world.Macro)
	assert.Equal(t, domain.Horizon90D, world.Macro.Horizon)
	assert.Len(t, scores, 2)
	require.NotNil(t, world.MacroRegime)
	assert.Equal(t, domain.RegimeEasing, world.MacroRegime.Regime)
	// Regime observation is appended to the history
	assert.Len(t, history.states, 1)
}

func TestAssemble_MacroFailureDegradesWithoutCancelingSiblings(t *testing.T) {
	a := testAssembler(
		&fakeMacro{err: domain.ErrSeriesUnavailable},
		&fakeLiquidity{state: domain.LiquidityState{Regime: domain.LiquidityExpansion}},
		&fakeGuard{state: guardState(domain.GuardWarn)},
		&fakeCross{pack: domain.CrossAssetPack{Regime: domain.CrossMixed}},
		&memHistory{},
	)

	world, scores, err := a.Assemble(context.Background(), domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)

	assert.False(t, world.Health.OK)
	assert.Contains(t, world.Health.Missing, "macro:30D")
	assert.Contains(t, world.Health.Missing, "macro:90D")
	assert.Contains(t, world.Health.Missing, "regime")
	assert.Empty(t, scores)

	// Siblings still delivered
	require.NotNil(t, world.Liquidity)
	assert.Equal(t, domain.LiquidityExpansion, world.Liquidity.Regime)
	assert.Equal(t, domain.GuardWarn, world.Guard.Level)
	require.NotNil(t, world.CrossAsset)
}

func TestAssemble_SlowFetchTimesOut(t *testing.T) {
	a := NewAssembler(
		&fakeMacro{score: 0.2, delay: 200 * time.Millisecond},
		&fakeLiquidity{state: domain.LiquidityState{}},
		&fakeGuard{state: guardState(domain.GuardNone)},
		&fakeCross{pack: domain.CrossAssetPack{}},
		&memHistory{}, fakeRegimeEngine{},
		[]domain.Horizon{domain.Horizon90D}, 20*time.Millisecond, zerolog.Nop())

	world, _, err := a.Assemble(context.Background(), domain.AssetBTC, date("2024-06-28"))
	require.NoError(t, err)

	assert.False(t, world.Health.OK)
	assert.Contains(t, world.Health.Missing, "macro:90D")
	assert.Nil(t, world.Macro)

	// Even after the abandoned fetch finishes, its result must never have
	// been committed into the assembled world
	time.Sleep(250 * time.Millisecond)
	assert.Nil(t, world.Macro)
}

func TestAssemble_AbandonedFetchNeverCommits(t *testing.T) {
	a := NewAssembler(
		&fakeMacro{score: 0.2},
		&fakeLiquidity{state: domain.LiquidityState{Regime: domain.LiquidityExpansion}},
		&fakeGuard{state: guardState(domain.GuardNone)},
		&slowCross{pack: domain.CrossAssetPack{Regime: domain.CrossRiskOnSync}, delay: 150 * time.Millisecond},
		&memHistory{}, fakeRegimeEngine{},
		[]domain.Horizon{domain.Horizon90D}, 20*time.Millisecond, zerolog.Nop())

	world, _, err := a.Assemble(context.Background(), domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)
	assert.Contains(t, world.Health.Missing, "crossasset")
	assert.Nil(t, world.CrossAsset)

	// Let the abandoned goroutine run to completion, then re-check
	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, world.CrossAsset)
}

type slowCross struct {
	pack  domain.CrossAssetPack
	delay time.Duration
}

func (s *slowCross) Build(asOf time.Time) (domain.CrossAssetPack, error) {
	time.Sleep(s.delay)
	return s.pack, nil
}

type captureRegimeEngine struct {
	prev *domain.RegimeState
}

func (c *captureRegimeEngine) Update(asset domain.Asset, d time.Time, avgScore float64, prev *domain.RegimeState) (domain.RegimeState, error) {
	c.prev = prev
	return fakeRegimeEngine{}.Update(asset, d, avgScore, prev)
}

func TestAssemble_RegimePriorBoundedByAsOf(t *testing.T) {
	history := &memHistory{states: []domain.RegimeState{{
		Asset:     domain.AssetSPX,
		Date:      date("2024-06-01"),
		Regime:    domain.RegimeStress,
		Posterior: map[domain.MacroRegime]float64{domain.RegimeStress: 1},
	}}}
	engine := &captureRegimeEngine{}

	a := NewAssembler(
		&fakeMacro{score: 0.1},
		&fakeLiquidity{state: domain.LiquidityState{}},
		&fakeGuard{state: guardState(domain.GuardNone)},
		&fakeCross{pack: domain.CrossAssetPack{}},
		history, engine,
		[]domain.Horizon{domain.Horizon90D}, time.Second, zerolog.Nop())

	// Replaying a date before the stored observation must start from no prior
	_, _, err := a.Assemble(context.Background(), domain.AssetSPX, date("2024-01-01"))
	require.NoError(t, err)
	assert.Nil(t, engine.prev)

	// At a later date the stored observation is the prior again
	_, _, err = a.Assemble(context.Background(), domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)
	require.NotNil(t, engine.prev)
	assert.Equal(t, domain.RegimeStress, engine.prev.Regime)
}

func TestAssemble_CrossAssetFailureIsIsolated(t *testing.T) {
	a := testAssembler(
		&fakeMacro{score: 0.1},
		&fakeLiquidity{state: domain.LiquidityState{}},
		&fakeGuard{state: guardState(domain.GuardNone)},
		&fakeCross{err: domain.ErrSeriesUnavailable},
		&memHistory{},
	)

	world, _, err := a.Assemble(context.Background(), domain.AssetSPX, date("2024-06-28"))
	require.NoError(t, err)

	assert.Contains(t, world.Health.Missing, "crossasset")
	assert.Nil(t, world.CrossAsset)
	require.NotNil(t, world.MacroRegime)
}
