package calibration

import (
	"time"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
)

// LagGrid is the discrete lag search space in days.
var LagGrid = []int{10, 30, 60, 90, 120, 180}

// ExpectedSign returns the economic prior sign of a series for risk assets.
// Positive means rising values support risk; negative means they pressure it.
func ExpectedSign(seriesID string) float64 {
	switch seriesID {
	case marketdata.SeriesM2, marketdata.SeriesWALCL, marketdata.SeriesT10Y2Y:
		return +1
	default:
		// CPI, UNRATE, DFF, HY_OAS, VIX, RRP, TGA all pressure risk when rising
		return -1
	}
}

// defaultBasket is the candidate series basket per asset.
func defaultBasket(asset domain.Asset) []string {
	switch asset {
	case domain.AssetDXY:
		return []string{
			marketdata.SeriesDFF,
			marketdata.SeriesCPI,
			marketdata.SeriesM2,
			marketdata.SeriesT10Y2Y,
		}
	default:
		return []string{
			marketdata.SeriesCPI,
			marketdata.SeriesUNRATE,
			marketdata.SeriesM2,
			marketdata.SeriesDFF,
			marketdata.SeriesHYOAS,
			marketdata.SeriesT10Y2Y,
		}
	}
}

// defaultSign flips the risk-asset priors for the dollar, which gains from
// tightening.
func defaultSign(asset domain.Asset, seriesID string) float64 {
	sign := ExpectedSign(seriesID)
	if asset == domain.AssetDXY {
		return -sign
	}
	return sign
}

// DefaultVersion builds the uncalibrated V1 baseline weight set for an
// asset: equal weights over the default basket at a 30-day lag.
func DefaultVersion(asset domain.Asset, horizons []domain.Horizon) *domain.CalibrationVersion {
	basket := defaultBasket(asset)
	weight := 1.0 / float64(len(basket))

	sets := make(map[domain.Horizon]domain.WeightSet, len(horizons))
	for _, h := range horizons {
		weights := make([]domain.SeriesWeight, 0, len(basket))
		for _, id := range basket {
			weights = append(weights, domain.SeriesWeight{
				SeriesID: id,
				Weight:   weight,
				LagDays:  30,
				Sign:     defaultSign(asset, id),
			})
		}
		sets[h] = domain.WeightSet{Horizon: h, Weights: weights}
	}

	version := &domain.CalibrationVersion{
		Asset:     asset,
		CreatedAt: time.Time{}, // stamped on save
		Objective: "NONE",
		Source:    "default",
		Horizons:  sets,
		Metrics:   map[domain.Horizon]domain.CalibrationMetrics{},
		Baseline:  map[domain.Horizon]domain.CalibrationMetrics{},
	}
	version.VersionID = VersionID(version)
	return version
}

// VersionID derives the deterministic content id of a version: identical
// weights and search parameters always hash to the same id, timestamps are
// excluded.
func VersionID(v *domain.CalibrationVersion) string {
	return domain.InputsHash(struct {
		Asset     domain.Asset                         `json:"asset"`
		Objective string                               `json:"objective"`
		Seed      int64                                `json:"seed"`
		Horizons  map[domain.Horizon]domain.WeightSet  `json:"horizons"`
	}{v.Asset, v.Objective, v.Seed, v.Horizons})
}
