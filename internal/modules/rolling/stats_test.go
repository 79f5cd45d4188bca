package rolling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearson_PerfectCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6}
	ys := []float64{2, 4, 6, 8, 10, 12}

	r, ok := Pearson(xs, ys)
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)
}

func TestPearson_PerfectAntiCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{5, 4, 3, 2, 1}

	r, ok := Pearson(xs, ys)
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-9)
}

func TestPearson_ZeroVarianceReturnsZeroNotNaN(t *testing.T) {
	xs := []float64{3, 3, 3, 3, 3}
	ys := []float64{1, 2, 3, 4, 5}

	r, ok := Pearson(xs, ys)
	require.True(t, ok)
	assert.Equal(t, 0.0, r)
	assert.False(t, math.IsNaN(r))
}

func TestPearson_TooFewSamples(t *testing.T) {
	_, ok := Pearson([]float64{1, 2, 3}, []float64{1, 2, 3})
	assert.False(t, ok)
}

func TestPearson_LengthMismatch(t *testing.T) {
	_, ok := Pearson([]float64{1, 2, 3, 4, 5}, []float64{1, 2, 3, 4})
	assert.False(t, ok)
}

func TestZScore_RequiresMinSamples(t *testing.T) {
	history := make([]float64, MinZScoreSamples-1)
	_, ok := ZScore(1.0, history)
	assert.False(t, ok)
}

func TestZScore_Standardizes(t *testing.T) {
	// History alternating 0/2: mean 1, sample std just above 1
	history := make([]float64, 30)
	for i := range history {
		history[i] = float64((i % 2) * 2)
	}

	z, ok := ZScore(1.0, history)
	require.True(t, ok)
	assert.InDelta(t, 0.0, z, 1e-9)

	z, ok = ZScore(3.0, history)
	require.True(t, ok)
	assert.Greater(t, z, 1.5)
}

func TestZScore_ZeroVariance(t *testing.T) {
	history := make([]float64, 30)
	for i := range history {
		history[i] = 5.0
	}

	_, ok := ZScore(6.0, history)
	assert.False(t, ok)
}

func TestDeltas(t *testing.T) {
	xs := []float64{1, 2, 4, 7, 11}

	deltas := Deltas(xs, 2)
	assert.Equal(t, []float64{3, 5, 7}, deltas)

	assert.Nil(t, Deltas(xs, 5))
	assert.Nil(t, Deltas(xs, 0))
}

func TestFiveYearSummary(t *testing.T) {
	xs := make([]float64, 60)
	for i := range xs {
		xs[i] = float64(i)
	}

	s, ok := FiveYearSummary(xs)
	require.True(t, ok)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 59.0, s.Max)
	assert.InDelta(t, 29.5, s.Mean, 1e-9)
	assert.Greater(t, s.Std, 0.0)

	_, ok = FiveYearSummary(xs[:51])
	assert.False(t, ok)
}

func TestLogReturns(t *testing.T) {
	rets := LogReturns([]float64{100, 110, 99})
	require.Len(t, rets, 2)
	assert.InDelta(t, math.Log(1.1), rets[0], 1e-9)
	assert.InDelta(t, math.Log(0.9), rets[1], 1e-9)
}

func TestLogReturns_SkipsNonPositive(t *testing.T) {
	rets := LogReturns([]float64{100, 0, 110})
	assert.Empty(t, rets)
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(1, -2, 0))
	assert.False(t, IsFinite(1, math.NaN()))
	assert.False(t, IsFinite(math.Inf(1)))
}

func TestTail(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	assert.Equal(t, []float64{3, 4}, Tail(xs, 2))
	assert.Equal(t, xs, Tail(xs, 10))
	assert.Nil(t, Tail(xs, 0))
}
