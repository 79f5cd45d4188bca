package di

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/macrobrain/internal/config"
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/forecast"
)

// fakeWorlds assembles deterministic world states whose macro score wobbles
// with the date so the feature vectors are not degenerate.
type fakeWorlds struct{}

func (fakeWorlds) Assemble(ctx context.Context, asset domain.Asset, asOf time.Time) (*domain.WorldState, map[domain.Horizon]domain.MacroScore, error) {
	score := 0.3 * math.Sin(float64(asOf.YearDay())/20)
	return &domain.WorldState{
		Asset: asset,
		AsOf:  domain.Midnight(asOf),
		Macro: &domain.MacroScore{Asset: asset, Score: score, Confidence: 0.8},
		MacroRegime: &domain.RegimeState{
			Asset:  asset,
			Date:   domain.Midnight(asOf),
			Regime: domain.RegimeNeutral,
			Posterior: map[domain.MacroRegime]float64{
				domain.RegimeNeutral: 1,
			},
			Persistence: 0.75,
			Stability:   1,
		},
		Health: domain.Health{OK: true},
	}, nil, nil
}

type fakePriceSource struct {
	series domain.Series
}

func (f *fakePriceSource) LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error) {
	if f.series.Len() == 0 {
		return domain.Series{}, domain.ErrSeriesUnavailable
	}
	return f.series, nil
}

type recordingStore struct {
	saved     []*forecast.TrainedModel
	activated []string
}

func (r *recordingStore) Save(model *forecast.TrainedModel) error {
	r.saved = append(r.saved, model)
	return nil
}

func (r *recordingStore) Activate(versionID string) error {
	r.activated = append(r.activated, versionID)
	return nil
}

func driftingPrices(years int) domain.Series {
	s := domain.Series{ID: "SPX", Frequency: domain.FrequencyDaily}
	start := time.Now().UTC().AddDate(-years, 0, -60)
	days := years*366 + 120
	price := 4000.0
	for i := 0; i < days; i++ {
		s.Points = append(s.Points, domain.Point{Date: start.AddDate(0, 0, i), Value: price})
		price *= 1 + 0.0004 + 0.0003*math.Sin(float64(i)/11)
	}
	return s
}

func refresherConfig() *config.Config {
	return &config.Config{
		Horizons: []domain.Horizon{domain.Horizon30D},
		Forecast: config.ForecastConfig{
			MinSamplesPerExpert: 10,
			Smoothing:           0.25,
			Seed:                42,
		},
	}
}

func TestForecastRefresher_TrainsSavesAndActivates(t *testing.T) {
	store := &recordingStore{}
	r := NewForecastRefresher(fakeWorlds{}, forecast.NewTrainer(zerolog.Nop()), store,
		&fakePriceSource{series: driftingPrices(3)}, refresherConfig(), zerolog.Nop())

	require.NoError(t, r.Refresh(context.Background(), domain.AssetSPX))

	require.Len(t, store.saved, 1)
	model := store.saved[0]
	assert.Equal(t, domain.AssetSPX, model.Asset)
	assert.Equal(t, forecast.FeatureCount, model.FeatureCount)
	assert.NotEmpty(t, model.Experts)

	// The freshly trained version is the one activated
	require.Len(t, store.activated, 1)
	assert.Equal(t, model.VersionID, store.activated[0])
}

func TestForecastRefresher_MissingPricesFail(t *testing.T) {
	store := &recordingStore{}
	r := NewForecastRefresher(fakeWorlds{}, forecast.NewTrainer(zerolog.Nop()), store,
		&fakePriceSource{}, refresherConfig(), zerolog.Nop())

	err := r.Refresh(context.Background(), domain.AssetSPX)
	assert.Error(t, err)
	assert.Empty(t, store.saved)
	assert.Empty(t, store.activated)
}

func TestForecastRefresher_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &recordingStore{}
	r := NewForecastRefresher(fakeWorlds{}, forecast.NewTrainer(zerolog.Nop()), store,
		&fakePriceSource{series: driftingPrices(3)}, refresherConfig(), zerolog.Nop())

	err := r.Refresh(ctx, domain.AssetSPX)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.saved)
}
