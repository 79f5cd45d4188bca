package brain

import (
	"fmt"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/adaptive"
)

// Guard-driven caps and haircuts
const (
	blockCap = 0.05

	crisisHaircutBTC = 0.60
	crisisHaircutSPX = 0.75
	warnHaircutBTC   = 0.85
	warnHaircutSPX   = 0.90
)

// Scenario adjustments
const (
	tailHaircutBTC = 0.70
	tailHaircutSPX = 0.80
	riskHaircutBTC = 0.85
	riskHaircutSPX = 0.90

	bullExtensionScale = 1.05
	dampeningMeanMax   = 0.01
	dampeningScale     = 0.95
)

// Cross-asset overrides
const (
	riskOffSyncHaircutMax = 0.85
	flightToQualityScale  = 0.95
	decoupledScale        = 0.92
	riskOnSyncScale       = 1.05
	riskOnSyncScaleCap    = 1.10
)

// buildDirectives applies the fixed precedence ladder: guard first (BLOCK
// short-circuits everything), then scenario adjustments, then cross-asset
// overrides. Returns the directives and whether tail amplification fired.
func buildDirectives(world *domain.WorldState, scenario domain.ScenarioPack, fc domain.ForecastOutcome, th adaptive.BrainThresholds) (domain.Directives, bool) {
	d := domain.Directives{
		Caps:     map[domain.Asset]float64{},
		Haircuts: map[domain.Asset]float64{},
		Scales:   map[domain.Asset]float64{},
		RiskMode: domain.RiskModeNeutral,
	}

	switch world.Guard.Level {
	case domain.GuardBlock:
		for _, asset := range domain.RiskAssets() {
			d.Caps[asset] = blockCap
		}
		d.RiskMode = domain.RiskModeOff
		d.Warnings = append(d.Warnings, "GUARD BLOCK: risk exposure capped")
		return d, false

	case domain.GuardCrisis:
		d.Haircuts[domain.AssetBTC] = crisisHaircutBTC
		d.Haircuts[domain.AssetSPX] = crisisHaircutSPX
		d.RiskMode = domain.RiskModeOff
		d.Warnings = append(d.Warnings, "GUARD CRISIS: risk haircuts applied")

	case domain.GuardWarn:
		d.Haircuts[domain.AssetBTC] = warnHaircutBTC
		d.Haircuts[domain.AssetSPX] = warnHaircutSPX
	}

	tailAmplified := applyScenario(&d, world, scenario, fc, th)
	applyCrossAsset(&d, world, scenario, tailAmplified)

	if d.RiskMode == domain.RiskModeNeutral && scenario.Name == domain.ScenarioBase &&
		world.Macro != nil && world.Macro.Score > 0.2 {
		d.RiskMode = domain.RiskModeOn
	}

	return d, tailAmplified
}

func applyScenario(d *domain.Directives, world *domain.WorldState, scenario domain.ScenarioPack, fc domain.ForecastOutcome, th adaptive.BrainThresholds) bool {
	switch scenario.Name {
	case domain.ScenarioTail:
		mulHaircut(d, domain.AssetBTC, tailHaircutBTC)
		mulHaircut(d, domain.AssetSPX, tailHaircutSPX)
		d.RiskMode = domain.RiskModeOff
		d.Warnings = append(d.Warnings, "tail amplification active")
		return true

	case domain.ScenarioRisk:
		mulHaircut(d, domain.AssetBTC, riskHaircutBTC)
		mulHaircut(d, domain.AssetSPX, riskHaircutSPX)

	case domain.ScenarioBase:
		f, ok := fc.At(domain.Horizon90D)
		if !ok {
			break
		}
		switch {
		case f.Mean >= th.BullExtensionMin && world.Guard.Level == domain.GuardNone:
			mulScale(d, domain.AssetBTC, bullExtensionScale)
			mulScale(d, domain.AssetSPX, bullExtensionScale)
		case f.Mean < dampeningMeanMax && f.Mean > -dampeningMeanMax:
			mulScale(d, domain.AssetBTC, dampeningScale)
			mulScale(d, domain.AssetSPX, dampeningScale)
		}
	}
	return false
}

func applyCrossAsset(d *domain.Directives, world *domain.WorldState, scenario domain.ScenarioPack, tailAmplified bool) {
	if world.CrossAsset == nil {
		return
	}

	switch world.CrossAsset.Regime {
	case domain.CrossRiskOffSync:
		if current, ok := d.Haircuts[domain.AssetBTC]; !ok || current > riskOffSyncHaircutMax {
			d.Haircuts[domain.AssetBTC] = riskOffSyncHaircutMax
		}
		d.Warnings = append(d.Warnings, "risk assets selling off in sync")

	case domain.CrossFlightToQuality:
		if current, ok := d.Scales[domain.AssetSPX]; !ok || current > flightToQualityScale {
			d.Scales[domain.AssetSPX] = flightToQualityScale
		}

	case domain.CrossDecoupled:
		mulScale(d, domain.AssetBTC, decoupledScale)
		mulScale(d, domain.AssetSPX, decoupledScale)

	case domain.CrossRiskOnSync:
		// Only extends risk in a clean BASE read
		if scenario.Name == domain.ScenarioBase && !tailAmplified {
			for _, asset := range domain.RiskAssets() {
				scaled := scaleOf(d, asset) * riskOnSyncScale
				if scaled > riskOnSyncScaleCap {
					scaled = riskOnSyncScaleCap
				}
				d.Scales[asset] = scaled
			}
		}
	}

	if world.CrossAsset.ContagionScore > 0.7 {
		d.Warnings = append(d.Warnings,
			fmt.Sprintf("contagion score %.2f: correlations offer no shelter", world.CrossAsset.ContagionScore))
	}
}

func mulHaircut(d *domain.Directives, asset domain.Asset, factor float64) {
	if current, ok := d.Haircuts[asset]; ok {
		d.Haircuts[asset] = current * factor
		return
	}
	d.Haircuts[asset] = factor
}

func mulScale(d *domain.Directives, asset domain.Asset, factor float64) {
	d.Scales[asset] = scaleOf(d, asset) * factor
}

func scaleOf(d *domain.Directives, asset domain.Asset) float64 {
	if current, ok := d.Scales[asset]; ok {
		return current
	}
	return 1
}
