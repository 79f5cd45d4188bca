package simulation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/domain"
)

// fakePipeline produces deterministic decisions keyed by reference date.
type fakePipeline struct {
	scenarioAt  func(asOf time.Time) domain.Scenario
	meanAt      func(asOf time.Time) float64
	failOn      map[string]error
	nanOn       map[string]bool
	unavailable bool
}

func (f *fakePipeline) Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error) {
	key := domain.DateKey(asOf)
	if err, ok := f.failOn[key]; ok {
		return nil, err
	}

	alloc := domain.Allocation{SPX: 0.45, BTC: 0.15, DXY: 0.05, Cash: 0.35}
	if f.nanOn[key] {
		alloc.SPX = math.NaN()
	}

	scenario := domain.ScenarioBase
	if f.scenarioAt != nil {
		scenario = f.scenarioAt(asOf)
	}
	mean := 0.02
	if f.meanAt != nil {
		mean = f.meanAt(asOf)
	}

	fc := domain.UnavailableForecast("no model")
	if !f.unavailable {
		fc = domain.AvailableForecast(&domain.ForecastSet{
			Asset: asset,
			Horizons: map[domain.Horizon]domain.HorizonForecast{
				domain.Horizon90D: {Horizon: domain.Horizon90D, Mean: mean},
			},
		})
	}

	return &domain.Decision{
		Asset:       asset,
		AsOf:        domain.Midnight(asOf),
		Scenario:    domain.ScenarioPack{Name: scenario},
		Allocations: alloc,
		Forecast:    fc,
	}, nil
}

// fakePrices serves a synthetic daily price path regardless of asOf.
type fakePrices struct {
	series domain.Series
}

func (f *fakePrices) LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error) {
	if f.series.Len() == 0 {
		return domain.Series{}, domain.ErrSeriesUnavailable
	}
	return f.series, nil
}

// trendPrices builds daily prices drifting up with a small deterministic
// wobble so step returns are positive but not constant.
func trendPrices(start time.Time, days int, daily float64) domain.Series {
	s := domain.Series{ID: "SPX", Frequency: domain.FrequencyDaily}
	price := 4000.0
	for i := 0; i < days; i++ {
		s.Points = append(s.Points, domain.Point{Date: start.AddDate(0, 0, i), Value: price})
		price *= 1 + daily + 0.0002*math.Sin(float64(i)/7)
	}
	return s
}

func testRequest() domain.SimulationRequest {
	start, _ := domain.ParseDate("2023-01-01")
	end, _ := domain.ParseDate("2023-12-31")
	return domain.SimulationRequest{
		Asset:    domain.AssetSPX,
		Start:    start,
		End:      end,
		StepDays: 14,
		Horizons: []domain.Horizon{domain.Horizon30D, domain.Horizon90D},
	}
}

func testEngine(p Pipeline) *Engine {
	start, _ := domain.ParseDate("2022-12-01")
	return NewEngine(p, &fakePrices{series: trendPrices(start, 600, 0.0005)}, zerolog.Nop())
}

func TestRun_SampleCountMatchesStepping(t *testing.T) {
	report, err := testEngine(&fakePipeline{}).Run(context.Background(), testRequest())
	require.NoError(t, err)

	// 2023-01-01 .. 2023-12-31 stepped by 14 days
	assert.Equal(t, 27, len(report.Samples)+report.Skipped)
	assert.Equal(t, 0, report.Skipped)
}

func TestRun_BullishBrainMatchesBaselineInUptrend(t *testing.T) {
	report, err := testEngine(&fakePipeline{meanAt: func(time.Time) float64 { return 0.03 }}).
		Run(context.Background(), testRequest())
	require.NoError(t, err)

	for _, h := range []domain.Horizon{domain.Horizon30D, domain.Horizon90D} {
		d := report.HorizonDeltas[h]
		require.Greater(t, d.Samples, 0)
		// Everything is up in a pure uptrend, so both hit 100%
		assert.InDelta(t, 1.0, d.BrainHitRate, 1e-9)
		assert.InDelta(t, 1.0, d.BaselineHitRate, 1e-9)
		assert.InDelta(t, 0.0, d.DeltaPP, 1e-9)
	}
}

func TestRun_BearishBrainLosesToBaselineInUptrend(t *testing.T) {
	report, err := testEngine(&fakePipeline{meanAt: func(time.Time) float64 { return -0.03 }}).
		Run(context.Background(), testRequest())
	require.NoError(t, err)

	d := report.HorizonDeltas[domain.Horizon30D]
	assert.InDelta(t, 0.0, d.BrainHitRate, 1e-9)
	assert.InDelta(t, -100.0, d.DeltaPP, 1e-9)
}

func TestRun_FlipRateCountsScenarioTransitions(t *testing.T) {
	// Alternate BASE/RISK every step: every consecutive pair flips
	p := &fakePipeline{scenarioAt: func(asOf time.Time) domain.Scenario {
		if (asOf.YearDay()/14)%2 == 0 {
			return domain.ScenarioBase
		}
		return domain.ScenarioRisk
	}}
	report, err := testEngine(p).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Greater(t, report.FlipRatePerYear, 20.0)
}

func TestRun_StableScenarioHasZeroFlips(t *testing.T) {
	report, err := testEngine(&fakePipeline{}).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 0.0, report.FlipRatePerYear)
	assert.Equal(t, domain.ScenarioBase, report.DominantScenario)
}

func TestRun_OverrideIntensityIsAllocationDistance(t *testing.T) {
	report, err := testEngine(&fakePipeline{}).Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotEmpty(t, report.Samples)

	// |0.45-0.60| + |0.15-0.25| + |0.05-0| + |0.35-0.15| = 0.50
	assert.InDelta(t, 0.50, report.Samples[0].OverrideIntensity, 1e-9)
	assert.InDelta(t, 0.50, report.AvgOverride, 1e-9)
	assert.InDelta(t, 0.50, report.MaxOverride, 1e-9)
	// Constant overrides mean zero variance and full stability
	assert.InDelta(t, 1.0, report.Stability, 1e-9)
}

func TestRun_PipelineErrorsAreSkippedNotFatal(t *testing.T) {
	p := &fakePipeline{failOn: map[string]error{
		"2023-01-15": errors.New("series unavailable"),
		"2023-03-12": errors.New("series unavailable"),
	}}
	report, err := testEngine(p).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, report.Errors, 2)
	assert.False(t, report.NaNDetected)
}

func TestRun_NaNAllocationIsRecorded(t *testing.T) {
	p := &fakePipeline{nanOn: map[string]bool{"2023-01-29": true}}
	report, err := testEngine(p).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, report.NaNDetected)
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_FallbacksCounted(t *testing.T) {
	report, err := testEngine(&fakePipeline{unavailable: true}).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, len(report.Samples), report.Fallbacks)
}

func TestRun_PositiveDriftYieldsPositiveSharpe(t *testing.T) {
	report, err := testEngine(&fakePipeline{}).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Greater(t, report.SharpeProxy, 0.0)
	assert.GreaterOrEqual(t, report.MaxDrawdown, 0.0)
	assert.Less(t, report.MaxDrawdown, 0.05)
}

// orderPipeline records the sequence of reference dates it was asked about.
type orderPipeline struct {
	inner fakePipeline
	seen  []time.Time
}

func (o *orderPipeline) Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error) {
	o.seen = append(o.seen, asOf)
	return o.inner.Decide(ctx, asset, asOf, posture)
}

func TestRun_StepsEvaluateInDateOrder(t *testing.T) {
	p := &orderPipeline{}
	_, err := testEngine(p).Run(context.Background(), testRequest())
	require.NoError(t, err)

	// Each decision extends state later steps depend on, so the walk must
	// visit dates strictly forward with no overlap
	require.NotEmpty(t, p.seen)
	for i := 1; i < len(p.seen); i++ {
		assert.True(t, p.seen[i].After(p.seen[i-1]),
			"step %d at %s not after %s", i, domain.DateKey(p.seen[i]), domain.DateKey(p.seen[i-1]))
	}
}

func TestRun_InvalidWindowRejected(t *testing.T) {
	req := testRequest()
	req.End = req.Start
	_, err := testEngine(&fakePipeline{}).Run(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRun_MissingPricesFailTheRun(t *testing.T) {
	engine := NewEngine(&fakePipeline{}, &fakePrices{}, zerolog.Nop())
	_, err := engine.Run(context.Background(), testRequest())
	assert.Error(t, err)
}
