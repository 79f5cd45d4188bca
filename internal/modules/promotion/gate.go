// Package promotion decides whether a newly calibrated version may replace
// the active one, based on walk-forward evidence.
package promotion

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
)

// Acceptance thresholds. All gates must pass for a promote recommendation.
const (
	minDeltaAnyPP      = 2.0  // at least one horizon improves by 2pp
	maxDegradationPP   = -1.0 // no horizon degrades by more than 1pp
	maxFlipRatePerYear = 6.0
	maxOverrideBase    = 0.35 // BASE / RISK dominant scenario
	maxOverrideTail    = 0.60
	maxFreshness       = 7 * 24 * time.Hour
)

// Gate names as they appear in verdict.gates.
const (
	gateDeltaHitRateAny = "deltaHitRateAny"
	gateNoDegradation   = "noDegradation"
	gateBrainFlipRate   = "brainFlipRate"
	gateMaxOverride     = "maxOverrideIntensity"
	gateDataFreshness   = "dataFreshness"
	gateZeroFallbacks   = "zeroFallbacks"
)

// Gate evaluates simulation reports against the acceptance thresholds.
type Gate struct {
	log zerolog.Logger
}

// NewGate creates a new promotion gate
func NewGate(log zerolog.Logger) *Gate {
	return &Gate{log: log.With().Str("component", "promotion").Logger()}
}

// Evaluate checks every gate and derives the recommendation. Metric gates
// failing means reject; only operational gates (freshness, fallbacks)
// failing means review.
func (g *Gate) Evaluate(report *domain.SimulationReport, lastCalibration, now time.Time) domain.PromotionVerdict {
	verdict := domain.PromotionVerdict{Gates: make(map[string]bool, 6)}

	anyImproved := false
	noDegradation := true
	for h, d := range report.HorizonDeltas {
		if d.Samples == 0 {
			continue
		}
		if d.DeltaPP >= minDeltaAnyPP {
			anyImproved = true
		}
		if d.DeltaPP < maxDegradationPP {
			noDegradation = false
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("hit rate degraded %.1fpp at %s", d.DeltaPP, h))
		}
	}
	verdict.Gates[gateDeltaHitRateAny] = anyImproved
	if !anyImproved {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("no horizon improved by %.0fpp", minDeltaAnyPP))
	}
	verdict.Gates[gateNoDegradation] = noDegradation

	verdict.Gates[gateBrainFlipRate] = report.FlipRatePerYear <= maxFlipRatePerYear
	if !verdict.Gates[gateBrainFlipRate] {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("flip rate %.1f/yr exceeds %.0f", report.FlipRatePerYear, maxFlipRatePerYear))
	}

	overrideLimit := overrideLimitFor(report.DominantScenario)
	verdict.Gates[gateMaxOverride] = report.MaxOverride <= overrideLimit
	if !verdict.Gates[gateMaxOverride] {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("max override %.2f exceeds %.2f for %s",
				report.MaxOverride, overrideLimit, report.DominantScenario))
	}

	fresh := !lastCalibration.IsZero() && now.Sub(lastCalibration) <= maxFreshness
	verdict.Gates[gateDataFreshness] = fresh
	if !fresh {
		verdict.Reasons = append(verdict.Reasons, "calibration older than 7 days")
	}

	verdict.Gates[gateZeroFallbacks] = report.Fallbacks == 0 && !report.NaNDetected
	if !verdict.Gates[gateZeroFallbacks] {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("%d fallbacks, nanDetected=%v", report.Fallbacks, report.NaNDetected))
	}

	verdict.Ready = allPass(verdict.Gates)
	verdict.Recommendation = recommend(verdict.Gates)

	g.log.Info().
		Str("recommendation", verdict.Recommendation).
		Bool("ready", verdict.Ready).
		Strs("reasons", verdict.Reasons).
		Msg("Promotion gate evaluated")

	return verdict
}

// overrideLimitFor returns the override intensity threshold for the
// dominant scenario of the evaluation window.
func overrideLimitFor(scenario domain.Scenario) float64 {
	if scenario == domain.ScenarioTail {
		return maxOverrideTail
	}
	return maxOverrideBase
}

func allPass(gates map[string]bool) bool {
	for _, ok := range gates {
		if !ok {
			return false
		}
	}
	return true
}

// recommend maps gate outcomes to a recommendation. Metric gates failing is
// a reject; only operational gates failing warrants human review.
func recommend(gates map[string]bool) string {
	if allPass(gates) {
		return "promote"
	}
	metricGates := []string{gateDeltaHitRateAny, gateNoDegradation, gateBrainFlipRate, gateMaxOverride}
	for _, name := range metricGates {
		if !gates[name] {
			return "reject"
		}
	}
	return "review"
}
