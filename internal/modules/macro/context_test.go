package macro

import (
	"testing"
	"time"

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

// weeklySeries builds n weekly Friday points ending at end.
func weeklySeries(id string, end time.Time, n int, value func(i int) float64) domain.Series {
	s := domain.Series{ID: id, Frequency: domain.FrequencyWeekly}
	start := end.AddDate(0, 0, -7*(n-1))
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, domain.Point{
			Date:  start.AddDate(0, 0, 7*i),
			Value: value(i),
		})
	}
	return s
}

func TestNormalizeWeekly_DailyTakesLastOfWeek(t *testing.T) {
	s := domain.Series{
		ID:        "SPX",
		Frequency: domain.FrequencyDaily,
		Points: []domain.Point{
			{Date: date("2024-06-24"), Value: 1}, // Monday
			{Date: date("2024-06-26"), Value: 2}, // Wednesday
			{Date: date("2024-06-28"), Value: 3}, // Friday
			{Date: date("2024-07-01"), Value: 4}, // Next Monday
		},
	}

	weekly := NormalizeWeekly(s)
	require.Len(t, weekly, 2)
	assert.Equal(t, date("2024-06-28"), weekly[0].Date)
	assert.Equal(t, 3.0, weekly[0].Value)
	assert.Equal(t, date("2024-07-05"), weekly[1].Date)
	assert.Equal(t, 4.0, weekly[1].Value)
}

func TestNormalizeWeekly_SaturdayBelongsToNextWeek(t *testing.T) {
	s := domain.Series{
		ID:        "BTC",
		Frequency: domain.FrequencyDaily,
		Points: []domain.Point{
			{Date: date("2024-06-28"), Value: 1}, // Friday
			{Date: date("2024-06-29"), Value: 2}, // Saturday
		},
	}

	weekly := NormalizeWeekly(s)
	require.Len(t, weekly, 2)
	assert.Equal(t, date("2024-06-28"), weekly[0].Date)
	assert.Equal(t, date("2024-07-05"), weekly[1].Date)
}

func TestContextBuilder_DeltasAndSummary(t *testing.T) {
	end := date("2024-06-28") // Friday
	// Linear ramp: every week +1
	s := weeklySeries("CPI", end, 300, func(i int) float64 { return float64(i) })

	b := NewContextBuilder()
	ctx, err := b.Build(s, end)
	require.NoError(t, err)

	assert.Equal(t, 299.0, ctx.Current)
	require.NotNil(t, ctx.Delta4W)
	assert.Equal(t, 4.0, *ctx.Delta4W)
	require.NotNil(t, ctx.Delta13W)
	assert.Equal(t, 13.0, *ctx.Delta13W)
	require.NotNil(t, ctx.Delta26W)
	assert.Equal(t, 26.0, *ctx.Delta26W)

	// Constant deltas mean zero variance: z axes stay nil, never NaN
	assert.Nil(t, ctx.Z4W)

	require.NotNil(t, ctx.Mean5Y)
	require.NotNil(t, ctx.Max5Y)
	assert.Equal(t, 299.0, *ctx.Max5Y)
}

func TestContextBuilder_ShortSeriesHasNilAxes(t *testing.T) {
	end := date("2024-06-28")
	s := weeklySeries("RRP", end, 10, func(i int) float64 { return float64(i) })

	b := NewContextBuilder()
	ctx, err := b.Build(s, end)
	require.NoError(t, err)

	require.NotNil(t, ctx.Delta4W)
	assert.Nil(t, ctx.Z4W)
	assert.Nil(t, ctx.Delta26W)
	assert.Nil(t, ctx.Mean5Y)
}

func TestContextBuilder_EmptySeries(t *testing.T) {
	b := NewContextBuilder()
	_, err := b.Build(domain.Series{ID: "TGA"}, date("2024-06-28"))
	assert.ErrorIs(t, err, domain.ErrSeriesUnavailable)
}

func TestContextBuilder_ZClamped(t *testing.T) {
	end := date("2024-06-28")
	// Mostly flat noise with a violent final jump
	s := weeklySeries("WALCL", end, 100, func(i int) float64 {
		if i == 99 {
			return 1000
		}
		return float64(i%2) * 0.1
	})

	b := NewContextBuilder()
	ctx, err := b.Build(s, end)
	require.NoError(t, err)

	require.NotNil(t, ctx.Z4W)
	assert.Equal(t, 4.0, *ctx.Z4W)
}
