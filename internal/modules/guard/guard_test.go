package guard

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
)

func date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeLoader struct {
	series map[string]domain.Series
}

func (f *fakeLoader) LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error) {
	s, ok := f.series[id]
	if !ok {
		return domain.Series{}, domain.ErrSeriesUnavailable
	}
	return s, nil
}

// flatSeries builds n daily points at a constant level.
func flatSeries(id string, n int, level float64) domain.Series {
	s := domain.Series{ID: id, Frequency: domain.FrequencyDaily}
	start := date("2024-01-01")
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, domain.Point{Date: start.AddDate(0, 0, i), Value: level})
	}
	return s
}

func stressLoader(hyOAS, vix float64) *fakeLoader {
	return &fakeLoader{series: map[string]domain.Series{
		marketdata.SeriesHYOAS: flatSeries(marketdata.SeriesHYOAS, 300, hyOAS),
		marketdata.SeriesVIX:   flatSeries(marketdata.SeriesVIX, 60, vix),
	}}
}

func TestEvaluate_CalmMarketsReadNone(t *testing.T) {
	e := NewEngine(stressLoader(3.2, 13), zerolog.Nop())

	state := e.Evaluate(date("2024-06-28"))
	assert.Equal(t, domain.GuardNone, state.Level)
	assert.Equal(t, "NONE", state.LevelLabel)
	require.NotNil(t, state.VIX)
	assert.InDelta(t, 13.0, *state.VIX, 1e-9)
}

func TestEvaluate_ElevatedStressWarns(t *testing.T) {
	e := NewEngine(stressLoader(8, 40), zerolog.Nop())

	state := e.Evaluate(date("2024-06-28"))
	assert.Equal(t, domain.GuardWarn, state.Level)
}

func TestEvaluate_PanicEscalatesToCrisisOrWorse(t *testing.T) {
	e := NewEngine(stressLoader(11, 65), zerolog.Nop())

	state := e.Evaluate(date("2024-06-28"))
	assert.GreaterOrEqual(t, state.Level, domain.GuardCrisis)
}

func TestEvaluate_MonotoneInStress(t *testing.T) {
	dates := date("2024-06-28")
	readings := [][2]float64{
		{3, 12}, {5, 20}, {7, 30}, {9, 45}, {11, 60},
	}

	prev := domain.GuardNone
	for _, r := range readings {
		state := NewEngine(stressLoader(r[0], r[1]), zerolog.Nop()).Evaluate(dates)
		assert.GreaterOrEqual(t, state.Level, prev,
			"guard softened as stress rose (hyOAS=%.1f vix=%.1f)", r[0], r[1])
		prev = state.Level
	}
}

func TestEvaluate_MissingVIXDegradesToCredit(t *testing.T) {
	loader := &fakeLoader{series: map[string]domain.Series{
		marketdata.SeriesHYOAS: flatSeries(marketdata.SeriesHYOAS, 300, 11),
	}}
	e := NewEngine(loader, zerolog.Nop())

	state := e.Evaluate(date("2024-06-28"))
	assert.Nil(t, state.VIX)
	require.NotNil(t, state.CreditComposite)
	// Credit alone still escalates after renormalization
	assert.GreaterOrEqual(t, state.Level, domain.GuardWarn)
}

func TestEvaluate_NoDataReadsNone(t *testing.T) {
	e := NewEngine(&fakeLoader{series: map[string]domain.Series{}}, zerolog.Nop())

	state := e.Evaluate(date("2024-06-28"))
	assert.Equal(t, domain.GuardNone, state.Level)
	assert.Nil(t, state.CreditComposite)
	assert.Nil(t, state.VIX)
}

func TestLevelFor_Thresholds(t *testing.T) {
	assert.Equal(t, domain.GuardNone, levelFor(0.34))
	assert.Equal(t, domain.GuardWarn, levelFor(0.35))
	assert.Equal(t, domain.GuardCrisis, levelFor(0.60))
	assert.Equal(t, domain.GuardBlock, levelFor(0.85))
	assert.Equal(t, domain.GuardBlock, levelFor(1.0))
}
