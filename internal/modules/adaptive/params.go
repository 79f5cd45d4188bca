// Package adaptive manages the tunable parameter sets of the decision
// pipeline: brain thresholds, optimizer coefficients, meta-risk coefficients
// and promotion gates. The active set is a singleton per asset; every change
// is appended to an immutable history.
package adaptive

import (
	"github.com/aristath/macrobrain/internal/domain"
)

// Source records where a parameter set came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceTuned    Source = "tuned"
	SourcePromoted Source = "promoted"
)

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	return s == SourceDefault || s == SourceTuned || s == SourcePromoted
}

// BrainThresholds are the scenario-derivation knobs.
type BrainThresholds struct {
	TailRiskEnter    float64 `msgpack:"tailRiskEnter" json:"tailRiskEnter"`
	TailRiskCrisis   float64 `msgpack:"tailRiskCrisis" json:"tailRiskCrisis"`
	StressProbEnter  float64 `msgpack:"stressProbEnter" json:"stressProbEnter"`
	StressProbCap    float64 `msgpack:"stressProbCap" json:"stressProbCap"`
	BullExtensionMin float64 `msgpack:"bullExtensionMin" json:"bullExtensionMin"`
}

// OptimizerCoefficients are the small-delta scoring weights.
type OptimizerCoefficients struct {
	WeightReturn float64 `msgpack:"weightReturn" json:"weightReturn"`
	WeightTail   float64 `msgpack:"weightTail" json:"weightTail"`
	WeightCorr   float64 `msgpack:"weightCorr" json:"weightCorr"`
	WeightGuard  float64 `msgpack:"weightGuard" json:"weightGuard"`
	DeltaGain    float64 `msgpack:"deltaGain" json:"deltaGain"`
	MaxDeltaBase float64 `msgpack:"maxDeltaBase" json:"maxDeltaBase"`
}

// MetaRiskCoefficients scale the policy cascade.
type MetaRiskCoefficients struct {
	ConfidenceFloor float64 `msgpack:"confidenceFloor" json:"confidenceFloor"`
	MinCashFloor    float64 `msgpack:"minCashFloor" json:"minCashFloor"`
	ContractionBTC  float64 `msgpack:"contractionBtc" json:"contractionBtc"`
	ContractionSPX  float64 `msgpack:"contractionSpx" json:"contractionSpx"`
}

// GateThresholds are the promotion acceptance knobs.
type GateThresholds struct {
	MinDeltaAnyPP      float64 `msgpack:"minDeltaAnyPp" json:"minDeltaAnyPP"`
	MaxDegradationPP   float64 `msgpack:"maxDegradationPp" json:"maxDegradationPP"`
	MaxFlipRatePerYear float64 `msgpack:"maxFlipRatePerYear" json:"maxFlipRatePerYear"`
	MaxOverrideBase    float64 `msgpack:"maxOverrideBase" json:"maxOverrideBase"`
	MaxOverrideTail    float64 `msgpack:"maxOverrideTail" json:"maxOverrideTail"`
}

// Params is one versioned adaptive parameter set.
type Params struct {
	VersionID string                `msgpack:"versionId" json:"versionId"`
	Asset     domain.Asset          `msgpack:"asset" json:"asset"`
	Source    Source                `msgpack:"source" json:"source"`
	Brain     BrainThresholds       `msgpack:"brain" json:"brain"`
	Optimizer OptimizerCoefficients `msgpack:"optimizer" json:"optimizer"`
	MetaRisk  MetaRiskCoefficients  `msgpack:"metaRisk" json:"metaRisk"`
	Gates     GateThresholds        `msgpack:"gates" json:"gates"`
}

// DefaultParams returns the built-in parameter set for an asset. The
// version id is a content hash, so identical defaults always share an id.
func DefaultParams(asset domain.Asset) Params {
	p := Params{
		Asset:  asset,
		Source: SourceDefault,
		Brain: BrainThresholds{
			TailRiskEnter:    0.25,
			TailRiskCrisis:   0.15,
			StressProbEnter:  0.35,
			StressProbCap:    0.70,
			BullExtensionMin: 0.05,
		},
		Optimizer: OptimizerCoefficients{
			WeightReturn: 1.0,
			WeightTail:   0.5,
			WeightCorr:   0.3,
			WeightGuard:  0.05,
			DeltaGain:    2.0,
			MaxDeltaBase: 0.15,
		},
		MetaRisk: MetaRiskCoefficients{
			ConfidenceFloor: 0.5,
			MinCashFloor:    0.05,
			ContractionBTC:  0.80,
			ContractionSPX:  0.90,
		},
		Gates: GateThresholds{
			MinDeltaAnyPP:      2.0,
			MaxDegradationPP:   -1.0,
			MaxFlipRatePerYear: 6.0,
			MaxOverrideBase:    0.35,
			MaxOverrideTail:    0.60,
		},
	}
	p.VersionID = hashParams(p)
	return p
}

// hashParams fingerprints everything except the version id itself.
func hashParams(p Params) string {
	p.VersionID = ""
	return domain.InputsHash(p)
}
