package domain

import "time"

// Point is a single dated observation of a series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a finite ordered sequence of observations with strictly
// increasing dates. Gaps are real gaps; nothing is silently interpolated.
type Series struct {
	ID        string    `json:"id"`
	Frequency Frequency `json:"frequency"`
	Points    []Point   `json:"points"`
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Points) }

// Last returns the most recent observation, if any.
func (s Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Values returns the raw value slice in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// ValueAt returns the last observation dated on or before t.
func (s Series) ValueAt(t time.Time) (Point, bool) {
	t = Midnight(t)
	for i := len(s.Points) - 1; i >= 0; i-- {
		if !s.Points[i].Date.After(t) {
			return s.Points[i], true
		}
	}
	return Point{}, false
}

// SeriesContext summarizes one series at a reference date. Optional axes are
// nil when the minimum sample rules are not met - never NaN.
type SeriesContext struct {
	SeriesID string    `json:"seriesId"`
	AsOf     time.Time `json:"asOf"`
	Current  float64   `json:"current"`

	// Weekly deltas over 4/13/26 weeks
	Delta4W  *float64 `json:"delta4w"`
	Delta13W *float64 `json:"delta13w"`
	Delta26W *float64 `json:"delta26w"`

	// 5-year rolling z-scores of those deltas, clamped to [-4, +4]
	Z4W  *float64 `json:"z4w"`
	Z13W *float64 `json:"z13w"`
	Z26W *float64 `json:"z26w"`

	// 5-year summary statistics (>= 52 weekly points required)
	Mean5Y *float64 `json:"mean5y"`
	Std5Y  *float64 `json:"std5y"`
	Min5Y  *float64 `json:"min5y"`
	Max5Y  *float64 `json:"max5y"`
}

// PreferredZ returns the 4-week z-score, falling back to 13-week when the
// short axis has too few samples.
func (c SeriesContext) PreferredZ() (float64, bool) {
	if c.Z4W != nil {
		return *c.Z4W, true
	}
	if c.Z13W != nil {
		return *c.Z13W, true
	}
	return 0, false
}
