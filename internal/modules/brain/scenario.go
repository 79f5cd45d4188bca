package brain

import (
	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/adaptive"
)

// deriveScenario synthesizes the BASE/RISK/TAIL posterior from forecast tail
// risk, the regime posterior and the guard. With no forecast it degrades to
// a guard-driven neutral fallback instead of failing. Thresholds come from
// the asset's active adaptive parameter set.
func deriveScenario(world *domain.WorldState, fc domain.ForecastOutcome, th adaptive.BrainThresholds) domain.ScenarioPack {
	tail90 := 0.0
	if f, ok := fc.At(domain.Horizon90D); ok {
		tail90 = f.TailRisk
	}

	stressProb := 0.0
	if world.MacroRegime != nil {
		stressProb = world.MacroRegime.Posterior[domain.RegimeStress]
	}
	switch world.Guard.Level {
	case domain.GuardWarn:
		stressProb += 0.10
	case domain.GuardCrisis:
		stressProb += 0.20
	case domain.GuardBlock:
		stressProb += 0.30
	}
	if world.Liquidity != nil && world.Liquidity.Regime == domain.LiquidityContraction {
		stressProb += 0.10
	}
	if stressProb > th.StressProbCap {
		stressProb = th.StressProbCap
	}

	name := domain.ScenarioBase
	switch {
	case fc.Available && (tail90 >= th.TailRiskEnter ||
		(world.Guard.Level >= domain.GuardCrisis && tail90 >= th.TailRiskCrisis)):
		name = domain.ScenarioTail
	case stressProb >= th.StressProbEnter:
		name = domain.ScenarioRisk
	}

	// Raw masses, normalized to sum exactly to 1
	rawTail := tail90
	if name == domain.ScenarioTail && rawTail < th.TailRiskEnter {
		rawTail = th.TailRiskEnter
	}
	rawRisk := stressProb
	rawBase := 1 - rawTail - rawRisk
	if rawBase < 0.05 {
		rawBase = 0.05
	}

	total := rawBase + rawRisk + rawTail
	probs := map[domain.Scenario]float64{
		domain.ScenarioBase: rawBase / total,
		domain.ScenarioRisk: rawRisk / total,
		domain.ScenarioTail: rawTail / total,
	}

	confidence := 0.4
	if fc.Available {
		confidence += 0.3
	}
	if world.Health.OK {
		confidence += 0.3
	} else {
		confidence += 0.3 * healthRatio(world.Health)
	}

	return domain.ScenarioPack{
		Name:          name,
		Probabilities: probs,
		Confidence:    domain.Clamp(confidence, 0, 1),
	}
}

// healthRatio shrinks confidence by the share of degraded fetches.
func healthRatio(h domain.Health) float64 {
	if len(h.Missing) == 0 {
		return 1
	}
	// Roughly seven fetches feed a world state
	return domain.Clamp(1-float64(len(h.Missing))/7, 0, 1)
}
