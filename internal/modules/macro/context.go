// Package macro builds the macro side of the world state: per-series
// contexts, the liquidity impulse and the aggregate macro score.
package macro

import (
	"time"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/rolling"
)

const (
	// fiveYearWeeks is the rolling window for z-scores and summary stats
	fiveYearWeeks = 260
	// zClamp bounds context z-scores
	zClamp = 4.0
)

// ContextBuilder turns an as-of filtered series into a SeriesContext.
type ContextBuilder struct{}

// NewContextBuilder creates a new context builder
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{}
}

// Build normalizes the series to weekly-as-of Friday and computes the
// 4/13/26-week deltas, their 5-year z-scores and the 5-year summary.
// Axes without enough samples stay nil.
func (b *ContextBuilder) Build(s domain.Series, asOf time.Time) (domain.SeriesContext, error) {
	weekly := NormalizeWeekly(s)
	if len(weekly) == 0 {
		return domain.SeriesContext{}, domain.ErrSeriesUnavailable
	}

	values := make([]float64, len(weekly))
	for i, p := range weekly {
		values[i] = p.Value
	}

	ctx := domain.SeriesContext{
		SeriesID: s.ID,
		AsOf:     domain.Midnight(asOf),
		Current:  values[len(values)-1],
	}

	ctx.Delta4W, ctx.Z4W = deltaAxis(values, 4)
	ctx.Delta13W, ctx.Z13W = deltaAxis(values, 13)
	ctx.Delta26W, ctx.Z26W = deltaAxis(values, 26)

	if summary, ok := rolling.FiveYearSummary(rolling.Tail(values, fiveYearWeeks)); ok {
		ctx.Mean5Y = &summary.Mean
		ctx.Std5Y = &summary.Std
		ctx.Min5Y = &summary.Min
		ctx.Max5Y = &summary.Max
	}

	return ctx, nil
}

// deltaAxis computes the current delta at the given weekly lag and its
// z-score against the 5-year delta distribution.
func deltaAxis(values []float64, lagWeeks int) (*float64, *float64) {
	deltas := rolling.Deltas(values, lagWeeks)
	if len(deltas) == 0 {
		return nil, nil
	}

	current := deltas[len(deltas)-1]
	delta := current

	var zPtr *float64
	history := rolling.Tail(deltas, fiveYearWeeks)
	if z, ok := rolling.ZScore(current, history); ok {
		clamped := domain.Clamp(z, -zClamp, zClamp)
		zPtr = &clamped
	}

	return &delta, zPtr
}

// NormalizeWeekly converts a series to weekly-as-of Friday observations.
// Weekly and monthly series keep their points (re-dated to the containing
// week's Friday); daily series take the last value of each week.
func NormalizeWeekly(s domain.Series) []domain.Point {
	if len(s.Points) == 0 {
		return nil
	}

	weekly := make([]domain.Point, 0, len(s.Points)/5+1)
	var currentFriday time.Time

	for _, p := range s.Points {
		friday := weekFriday(p.Date)
		if !friday.Equal(currentFriday) {
			weekly = append(weekly, domain.Point{Date: friday, Value: p.Value})
			currentFriday = friday
		} else {
			// Same week: keep the last observation
			weekly[len(weekly)-1].Value = p.Value
		}
	}

	return weekly
}

// weekFriday returns the Friday of the week containing t (weeks run
// Saturday through Friday so a Friday maps to itself).
func weekFriday(t time.Time) time.Time {
	t = domain.Midnight(t)
	offset := (int(time.Friday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}
