package marketdata

import (
	"fmt"
	"time"

	"github.com/aristath/macrobrain/internal/domain"
)

// Well-known series ids. Prices use the asset name directly.
const (
	SeriesWALCL  = "WALCL"   // Fed balance sheet, weekly
	SeriesRRP    = "RRP"     // Reverse repo, weekly
	SeriesTGA    = "TGA"     // Treasury general account, weekly
	SeriesCPI    = "CPI"     // CPI YoY, monthly
	SeriesUNRATE = "UNRATE"  // Unemployment rate, monthly
	SeriesM2     = "M2"      // M2 money stock, monthly
	SeriesDFF    = "DFF"     // Fed funds effective rate, daily
	SeriesVIX    = "VIX"     // CBOE volatility index, daily
	SeriesHYOAS  = "HY_OAS"  // High-yield option-adjusted spread, daily
	SeriesT10Y2Y = "T10Y2Y"  // 2s10s slope, daily
)

// PublicationLagDays returns the static publication lag for a series.
// Monthly macro prints arrive about a month late, weekly Fed data a week
// late, daily market prices immediately.
func PublicationLagDays(id string) int {
	switch id {
	case SeriesCPI, SeriesUNRATE, SeriesM2:
		return 30
	case SeriesWALCL, SeriesRRP, SeriesTGA:
		return 7
	default:
		return 0
	}
}

// FilterAsOf drops observations not yet published at the reference date:
// only points dated on or before asOf minus the series' publication lag
// survive. Returns ErrSeriesUnavailable when nothing survives.
func FilterAsOf(s domain.Series, asOf time.Time) (domain.Series, error) {
	cutoff := domain.Midnight(asOf).AddDate(0, 0, -PublicationLagDays(s.ID))

	filtered := domain.Series{ID: s.ID, Frequency: s.Frequency}
	for _, p := range s.Points {
		if p.Date.After(cutoff) {
			break // points are date-ordered
		}
		filtered.Points = append(filtered.Points, p)
	}

	if len(filtered.Points) == 0 {
		return domain.Series{}, fmt.Errorf("%s at %s: %w", s.ID, domain.DateKey(asOf), domain.ErrSeriesUnavailable)
	}

	return filtered, nil
}

// Loader is the point-in-time access contract the engines consume.
type Loader interface {
	// LoadAsOf returns the series observations publishable at asOf,
	// looking back over the given window in days.
	LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error)
}

// Service implements Loader on top of the repository, applying the as-of
// filter on every read.
type Service struct {
	repo *SeriesRepository
}

// NewService creates a new market data service
func NewService(repo *SeriesRepository) *Service {
	return &Service{repo: repo}
}

// LoadAsOf loads and as-of filters a series.
func (s *Service) LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error) {
	from := domain.Midnight(asOf).AddDate(0, 0, -lookbackDays)
	raw, err := s.repo.LoadSeries(id, from, domain.Midnight(asOf))
	if err != nil {
		return domain.Series{}, err
	}
	return FilterAsOf(raw, asOf)
}
