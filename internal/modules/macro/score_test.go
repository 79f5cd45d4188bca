package macro

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/domain"
)

// fakeLoader serves canned series keyed by id.
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

// fakeWeights returns a fixed calibration version.
type fakeWeights struct {
	version *domain.CalibrationVersion
}

func (f *fakeWeights) ActiveVersion(asset domain.Asset) (*domain.CalibrationVersion, error) {
	return f.version, nil
}

// trendSeries ramps up sharply in the final weeks so the latest z is positive.
func trendSeries(id string, end time.Time) domain.Series {
	return weeklySeries(id, end, 300, func(i int) float64 {
		base := float64(i%3) * 0.1
		if i >= 296 {
			base += float64(i-295) * 5
		}
		return base
	})
}

func testVersion(weights []domain.SeriesWeight) *domain.CalibrationVersion {
	return &domain.CalibrationVersion{
		VersionID: "test",
		Asset:     domain.AssetSPX,
		Horizons: map[domain.Horizon]domain.WeightSet{
			domain.Horizon90D: {Horizon: domain.Horizon90D, Weights: weights},
		},
	}
}

func TestScore_PositivePressure(t *testing.T) {
	asOf := date("2024-06-28")
	loader := &fakeLoader{series: map[string]domain.Series{
		"M2": trendSeries("M2", asOf),
	}}
	weights := &fakeWeights{version: testVersion([]domain.SeriesWeight{
		{SeriesID: "M2", Weight: 1.0, LagDays: 0, Sign: +1},
	})}

	e := NewScoreEngine(loader, weights, zerolog.Nop())
	score, err := e.Score(domain.AssetSPX, domain.Horizon90D, asOf)
	require.NoError(t, err)

	assert.Greater(t, score.Score, 0.0)
	assert.LessOrEqual(t, score.Score, 1.0)
	require.Len(t, score.Components, 1)
	assert.Empty(t, score.Missing)
}

func TestScore_SignInversion(t *testing.T) {
	asOf := date("2024-06-28")
	loader := &fakeLoader{series: map[string]domain.Series{
		"CPI": trendSeries("CPI", asOf),
	}}
	weights := &fakeWeights{version: testVersion([]domain.SeriesWeight{
		{SeriesID: "CPI", Weight: 1.0, LagDays: 0, Sign: -1},
	})}

	e := NewScoreEngine(loader, weights, zerolog.Nop())
	score, err := e.Score(domain.AssetSPX, domain.Horizon90D, asOf)
	require.NoError(t, err)

	assert.Less(t, score.Score, 0.0)
}

func TestScore_MissingSeriesSkippedAndRenormalized(t *testing.T) {
	asOf := date("2024-06-28")
	loader := &fakeLoader{series: map[string]domain.Series{
		"M2": trendSeries("M2", asOf),
	}}
	weights := &fakeWeights{version: testVersion([]domain.SeriesWeight{
		{SeriesID: "M2", Weight: 0.6, LagDays: 0, Sign: +1},
		{SeriesID: "GONE", Weight: 0.4, LagDays: 0, Sign: +1},
	})}

	e := NewScoreEngine(loader, weights, zerolog.Nop())
	score, err := e.Score(domain.AssetSPX, domain.Horizon90D, asOf)
	require.NoError(t, err)

	assert.Equal(t, []string{"GONE"}, score.Missing)
	assert.InDelta(t, 0.4, score.SkippedWeight, 1e-9)
	assert.Greater(t, score.Score, 0.0)
}

func TestScore_MajorityMissingForcesLowConfidence(t *testing.T) {
	asOf := date("2024-06-28")
	loader := &fakeLoader{series: map[string]domain.Series{
		"M2": trendSeries("M2", asOf),
	}}
	weights := &fakeWeights{version: testVersion([]domain.SeriesWeight{
		{SeriesID: "M2", Weight: 0.3, LagDays: 0, Sign: +1},
		{SeriesID: "GONE1", Weight: 0.4, LagDays: 0, Sign: +1},
		{SeriesID: "GONE2", Weight: 0.3, LagDays: 0, Sign: +1},
	})}

	e := NewScoreEngine(loader, weights, zerolog.Nop())
	score, err := e.Score(domain.AssetSPX, domain.Horizon90D, asOf)
	require.NoError(t, err)

	assert.LessOrEqual(t, score.Confidence, domain.ConfidenceFromLabel("LOW"))
}

func TestScore_MissingHorizonFails(t *testing.T) {
	weights := &fakeWeights{version: testVersion(nil)}
	e := NewScoreEngine(&fakeLoader{}, weights, zerolog.Nop())

	_, err := e.Score(domain.AssetSPX, domain.Horizon365D, date("2024-06-28"))
	assert.ErrorIs(t, err, domain.ErrInsufficientCalibration)
}

func TestScore_AllMissingZeroConfidence(t *testing.T) {
	weights := &fakeWeights{version: testVersion([]domain.SeriesWeight{
		{SeriesID: "GONE", Weight: 1.0, LagDays: 0, Sign: +1},
	})}
	e := NewScoreEngine(&fakeLoader{series: map[string]domain.Series{}}, weights, zerolog.Nop())

	score, err := e.Score(domain.AssetSPX, domain.Horizon90D, date("2024-06-28"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Confidence)
	assert.Equal(t, 0.0, score.Score)
}
