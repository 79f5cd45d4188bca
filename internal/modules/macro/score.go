package macro

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/rolling"
)

// WeightProvider supplies the active calibrated weight set for an asset.
type WeightProvider interface {
	ActiveVersion(asset domain.Asset) (*domain.CalibrationVersion, error)
}

// ScoreEngine aggregates lagged macro pressures into a signed score.
type ScoreEngine struct {
	loader  marketdata.Loader
	weights WeightProvider
	log     zerolog.Logger
}

// NewScoreEngine creates a new macro score engine
func NewScoreEngine(loader marketdata.Loader, weights WeightProvider, log zerolog.Logger) *ScoreEngine {
	return &ScoreEngine{
		loader:  loader,
		weights: weights,
		log:     log.With().Str("component", "macro_score").Logger(),
	}
}

// Score computes the macro score for (asset, horizon) at the reference date.
// Missing series are skipped and renormalized; when more than half the total
// weight is missing the confidence is forced LOW.
func (e *ScoreEngine) Score(asset domain.Asset, horizon domain.Horizon, asOf time.Time) (domain.MacroScore, error) {
	version, err := e.weights.ActiveVersion(asset)
	if err != nil {
		return domain.MacroScore{}, fmt.Errorf("no active calibration for %s: %w", asset, err)
	}

	set, ok := version.Horizons[horizon]
	if !ok {
		return domain.MacroScore{}, fmt.Errorf("horizon %s missing from calibration %s: %w",
			horizon, version.VersionID, domain.ErrInsufficientCalibration)
	}

	score := domain.MacroScore{Asset: asset, Horizon: horizon}
	totalWeight := set.TotalWeight()

	var sum float64
	var usedWeight float64
	var fresh, total int

	for _, sw := range set.Weights {
		total++
		pressure, isFresh, err := e.componentPressure(sw, asOf)
		if err != nil {
			if errors.Is(err, domain.ErrSeriesUnavailable) || errors.Is(err, domain.ErrInsufficientData) {
				score.Missing = append(score.Missing, sw.SeriesID)
				score.SkippedWeight += sw.Weight
				continue
			}
			return domain.MacroScore{}, err
		}

		if isFresh {
			fresh++
		}
		usedWeight += sw.Weight
		sum += pressure
		score.Components = append(score.Components, domain.ComponentContribution{
			SeriesID: sw.SeriesID,
			Weight:   sw.Weight,
			LagDays:  sw.LagDays,
			Pressure: pressure,
		})
	}

	if usedWeight <= 0 {
		score.Confidence = 0
		return score, nil
	}

	// Renormalize for the skipped weight so partial data keeps the scale
	sum *= totalWeight / usedWeight
	score.Score = domain.Clamp(sum, -1, 1)

	freshRatio := float64(fresh) / float64(total)
	score.Confidence = domain.Clamp(0.5*freshRatio+0.5*math.Min(1, math.Abs(score.Score)*2), 0, 1)

	if score.SkippedWeight > 0.5*totalWeight {
		// Degraded read: cap at the LOW band
		score.Confidence = math.Min(score.Confidence, domain.ConfidenceFromLabel("LOW"))
	}

	return score, nil
}

// componentPressure computes sign * z * weight for one series at its lag.
func (e *ScoreEngine) componentPressure(sw domain.SeriesWeight, asOf time.Time) (float64, bool, error) {
	lookupDate := domain.Midnight(asOf).AddDate(0, 0, -sw.LagDays)

	// Load enough history behind the lag for the 5-year z window
	series, err := e.loader.LoadAsOf(sw.SeriesID, asOf, sw.LagDays+fiveYearWeeks*7)
	if err != nil {
		return 0, false, err
	}

	weekly := NormalizeWeekly(series)

	// Truncate to observations at or before the lagged lookup date
	var idx = -1
	for i, p := range weekly {
		if p.Date.After(lookupDate) {
			break
		}
		idx = i
	}
	if idx < 0 {
		return 0, false, domain.ErrSeriesUnavailable
	}

	values := make([]float64, idx+1)
	for i := 0; i <= idx; i++ {
		values[i] = weekly[i].Value
	}

	z, ok := rolling.ZScore(values[len(values)-1], rolling.Tail(values, fiveYearWeeks))
	if !ok {
		return 0, false, domain.ErrInsufficientData
	}
	z = domain.Clamp(z, -zClamp, zClamp)

	isFresh := lookupDate.Sub(weekly[idx].Date) <= freshnessWindow(series.Frequency)

	return sw.Sign * z * sw.Weight, isFresh, nil
}

// freshnessWindow is how far behind the lagged lookup date an observation
// may lie and still count as fresh.
func freshnessWindow(freq domain.Frequency) time.Duration {
	switch freq {
	case domain.FrequencyMonthly:
		return 45 * 24 * time.Hour
	case domain.FrequencyWeekly:
		return 14 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}
