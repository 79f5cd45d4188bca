// Package guard implements the crisis guard: a monotone severity level
// derived from credit stress and equity volatility.
package guard

import (
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/rolling"
)

// Severity thresholds on the combined stress score in [0, 1].
const (
	warnThreshold   = 0.35
	crisisThreshold = 0.60
	blockThreshold  = 0.85
)

const (
	// VIX is smoothed over a trading week to ignore one-day spikes.
	vixSmoothingPeriod = 5
	// Composite weighting: credit leads, volatility confirms.
	creditWeight = 0.6
	vixWeight    = 0.4

	lookbackDays = 3 * 365
)

// Reference bands for normalizing raw readings into [0, 1] stress space.
const (
	hyOASCalm   = 3.0  // percent, tight spreads
	hyOASPanic  = 10.0 // percent, GFC-grade spreads
	vixCalm     = 12.0
	vixPanic    = 60.0
	creditZCalm = 0.0
	creditZHot  = 3.0
)

// Engine evaluates the guard at a reference date.
type Engine struct {
	loader marketdata.Loader
	log    zerolog.Logger
}

// NewEngine creates a new guard engine
func NewEngine(loader marketdata.Loader, log zerolog.Logger) *Engine {
	return &Engine{
		loader: loader,
		log:    log.With().Str("component", "guard").Logger(),
	}
}

// Evaluate computes the guard level at asOf. A missing series drops its
// component instead of failing; with no components at all the guard reads
// NONE with nil diagnostics.
func (e *Engine) Evaluate(asOf time.Time) domain.GuardState {
	var components []float64
	state := domain.GuardState{}

	if credit, ok := e.creditStress(asOf); ok {
		state.CreditComposite = &credit
		components = append(components, credit*creditWeight)
	}
	if vix, stress, ok := e.vixStress(asOf); ok {
		state.VIX = &vix
		components = append(components, stress*vixWeight)
	}

	score := 0.0
	if len(components) > 0 {
		// Renormalize by the weight actually present so a single live
		// component can still escalate the guard
		usedWeight := 0.0
		if state.CreditComposite != nil {
			usedWeight += creditWeight
		}
		if state.VIX != nil {
			usedWeight += vixWeight
		}
		for _, c := range components {
			score += c
		}
		score /= usedWeight
	}

	state.Level = levelFor(score)
	state.LevelLabel = state.Level.String()

	if state.Level >= domain.GuardCrisis {
		e.log.Warn().
			Str("level", state.LevelLabel).
			Float64("score", score).
			Msg("Crisis guard escalated")
	}

	return state
}

// creditStress blends the HY OAS level band with its trailing z-score.
// Returns the composite in [0, 1].
func (e *Engine) creditStress(asOf time.Time) (float64, bool) {
	s, err := e.loader.LoadAsOf(marketdata.SeriesHYOAS, asOf, lookbackDays)
	if err != nil || s.Len() == 0 {
		return 0, false
	}

	values := s.Values()
	current := values[len(values)-1]

	levelStress := domain.Clamp((current-hyOASCalm)/(hyOASPanic-hyOASCalm), 0, 1)

	zStress := 0.0
	if z, ok := rolling.ZScore(current, rolling.Tail(values, 260)); ok {
		zStress = domain.Clamp((z-creditZCalm)/(creditZHot-creditZCalm), 0, 1)
	}

	return domain.Clamp(0.5*levelStress+0.5*zStress, 0, 1), true
}

// vixStress returns the smoothed VIX and its normalized stress reading.
func (e *Engine) vixStress(asOf time.Time) (float64, float64, bool) {
	s, err := e.loader.LoadAsOf(marketdata.SeriesVIX, asOf, 120)
	if err != nil || s.Len() < vixSmoothingPeriod {
		return 0, 0, false
	}

	smoothed := talib.Sma(s.Values(), vixSmoothingPeriod)
	current := smoothed[len(smoothed)-1]
	if !rolling.IsFinite(current) {
		return 0, 0, false
	}

	stress := domain.Clamp((current-vixCalm)/(vixPanic-vixCalm), 0, 1)
	return current, stress, true
}

// levelFor maps the combined score onto the ordered severity scale. The
// mapping is monotone: a higher score never yields a softer level.
func levelFor(score float64) domain.GuardLevel {
	switch {
	case score >= blockThreshold:
		return domain.GuardBlock
	case score >= crisisThreshold:
		return domain.GuardCrisis
	case score >= warnThreshold:
		return domain.GuardWarn
	default:
		return domain.GuardNone
	}
}
