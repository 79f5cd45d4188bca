package brain

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/macrobrain/internal/domain"
)

// Flip-condition narration thresholds; mirror the adaptive defaults
// (TailRiskEnter, StressProbEnter, TailRiskCrisis).
const (
	tailRiskThreshold      = 0.25
	stressProbThreshold    = 0.35
	tailRiskGuardThreshold = 0.15
)

// buildEvidence assembles the human-readable explanation: a headline, the
// ranked drivers, detected conflicts and the conditions that would flip the
// scenario.
func buildEvidence(world *domain.WorldState, scenario domain.ScenarioPack, fc domain.ForecastOutcome) domain.Evidence {
	ev := domain.Evidence{
		Headline: fmt.Sprintf("%s: %s scenario, guard %s",
			world.Asset, scenario.Name, world.Guard.LevelLabel),
	}

	ev.Drivers = rankDrivers(world, fc)
	ev.Conflicts = detectConflicts(world, scenario)
	ev.WhatWouldFlip = flipConditions(world, scenario)

	return ev
}

func rankDrivers(world *domain.WorldState, fc domain.ForecastOutcome) []domain.Driver {
	var drivers []domain.Driver

	if world.Macro != nil {
		drivers = append(drivers, domain.Driver{
			Name:   "macro_score",
			Impact: world.Macro.Score,
			Detail: fmt.Sprintf("weighted macro pressure %.2f (confidence %.2f)", world.Macro.Score, world.Macro.Confidence),
		})
	}
	if world.Liquidity != nil {
		drivers = append(drivers, domain.Driver{
			Name:   "liquidity",
			Impact: world.Liquidity.Impulse / 3,
			Detail: fmt.Sprintf("%s impulse %.2f", world.Liquidity.Regime, world.Liquidity.Impulse),
		})
	}
	if world.Guard.Level > domain.GuardNone {
		drivers = append(drivers, domain.Driver{
			Name:   "guard",
			Impact: -float64(world.Guard.Level) / float64(domain.GuardBlock),
			Detail: fmt.Sprintf("crisis guard at %s", world.Guard.LevelLabel),
		})
	}
	if world.CrossAsset != nil {
		drivers = append(drivers, domain.Driver{
			Name:   "contagion",
			Impact: -world.CrossAsset.ContagionScore,
			Detail: fmt.Sprintf("%s with contagion %.2f", world.CrossAsset.Regime, world.CrossAsset.ContagionScore),
		})
	}
	if f, ok := fc.At(domain.Horizon90D); ok {
		drivers = append(drivers, domain.Driver{
			Name:   "tail_risk",
			Impact: -f.TailRisk,
			Detail: fmt.Sprintf("90D tail risk %.2f, mean %.2f", f.TailRisk, f.Mean),
		})
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Impact) > math.Abs(drivers[j].Impact)
	})
	return drivers
}

func detectConflicts(world *domain.WorldState, scenario domain.ScenarioPack) []string {
	var conflicts []string

	if world.Macro != nil && world.Macro.Score > 0.2 && world.Guard.Level >= domain.GuardWarn {
		conflicts = append(conflicts, "macro constructive while credit stress is elevated")
	}
	if world.Liquidity != nil && world.Liquidity.Regime == domain.LiquidityExpansion &&
		scenario.Name != domain.ScenarioBase {
		conflicts = append(conflicts, "liquidity expanding against a stressed scenario")
	}
	if world.CrossAsset != nil && world.CrossAsset.Regime == domain.CrossRiskOnSync &&
		scenario.Name == domain.ScenarioTail {
		conflicts = append(conflicts, "risk-on correlation structure during a tail scenario")
	}

	return conflicts
}

func flipConditions(world *domain.WorldState, scenario domain.ScenarioPack) []string {
	switch scenario.Name {
	case domain.ScenarioBase:
		return []string{
			fmt.Sprintf("90D tail risk above %.2f would flip to TAIL", tailRiskThreshold),
			fmt.Sprintf("stress probability above %.2f would flip to RISK", stressProbThreshold),
		}
	case domain.ScenarioRisk:
		flips := []string{
			fmt.Sprintf("stress probability below %.2f would restore BASE", stressProbThreshold),
		}
		if world.Guard.Level > domain.GuardNone {
			flips = append(flips, "guard de-escalation to NONE would lower stress probability")
		}
		return flips
	default:
		return []string{
			fmt.Sprintf("90D tail risk below %.2f with guard below CRISIS would de-escalate", tailRiskGuardThreshold),
		}
	}
}
