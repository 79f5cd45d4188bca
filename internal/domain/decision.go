package domain

import "time"

// Scenario is the brain's synthesized posterior label.
type Scenario string

const (
	ScenarioBase Scenario = "BASE"
	ScenarioRisk Scenario = "RISK"
	ScenarioTail Scenario = "TAIL"
)

// ScenarioPack carries the scenario posterior. Probabilities sum to 1.
type ScenarioPack struct {
	Name          Scenario             `json:"name"`
	Probabilities map[Scenario]float64 `json:"probabilities"`
	Confidence    float64              `json:"confidence"`
}

// GuardLevel is the ordered crisis-guard severity. Higher is stricter.
type GuardLevel int

const (
	GuardNone GuardLevel = iota
	GuardWarn
	GuardCrisis
	GuardBlock
)

// String returns the API label for the level.
func (g GuardLevel) String() string {
	switch g {
	case GuardWarn:
		return "WARN"
	case GuardCrisis:
		return "CRISIS"
	case GuardBlock:
		return "BLOCK"
	default:
		return "NONE"
	}
}

// GuardState is the crisis guard read with its diagnostics. Nil diagnostics
// mean the underlying series was unavailable.
type GuardState struct {
	Level           GuardLevel `json:"-"`
	LevelLabel      string     `json:"level"`
	CreditComposite *float64   `json:"creditComposite"`
	VIX             *float64   `json:"vix"`
}

// RiskMode is the brain's posture directive.
type RiskMode string

const (
	RiskModeOn      RiskMode = "RISK_ON"
	RiskModeNeutral RiskMode = "NEUTRAL"
	RiskModeOff     RiskMode = "RISK_OFF"
	RiskModeCrisis  RiskMode = "CRISIS"
)

// Directives are the bounded modifiers the brain emits for the policy layer.
type Directives struct {
	Caps     map[Asset]float64 `json:"caps,omitempty"`     // hard max size per asset
	Haircuts map[Asset]float64 `json:"haircuts,omitempty"` // multiplicative factor in [0,1]
	Scales   map[Asset]float64 `json:"scales,omitempty"`   // size scale, may exceed 1 in BASE
	RiskMode RiskMode          `json:"riskMode"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Allocation is the bounded final allocation vector. Every component is in
// [0, 1]; cash respects the configured floor.
type Allocation struct {
	SPX  float64 `json:"spx"`
	BTC  float64 `json:"btc"`
	DXY  float64 `json:"dxy"`
	Cash float64 `json:"cash"`
}

// Get returns the component for an asset.
func (a Allocation) Get(asset Asset) float64 {
	switch asset {
	case AssetSPX:
		return a.SPX
	case AssetBTC:
		return a.BTC
	case AssetDXY:
		return a.DXY
	default:
		return 0
	}
}

// OptimizerMode controls whether computed deltas are applied.
type OptimizerMode string

const (
	OptimizerOff     OptimizerMode = "off"
	OptimizerPreview OptimizerMode = "preview"
	OptimizerOn      OptimizerMode = "on"
)

// Posture is the caller-declared risk appetite for the optimizer.
type Posture string

const (
	PostureOffensive Posture = "OFFENSIVE"
	PostureNeutral   Posture = "NEUTRAL"
	PostureDefensive Posture = "DEFENSIVE"
)

// AssetRationale decomposes the optimizer score for one asset.
type AssetRationale struct {
	ExpectedTilt float64 `json:"expectedTilt"`
	TailPenalty  float64 `json:"tailPenalty"`
	CorrPenalty  float64 `json:"corrPenalty"`
	GuardPenalty float64 `json:"guardPenalty"`
	Score        float64 `json:"score"`
}

// OptimizerOutput is the small-delta wrapper result.
type OptimizerOutput struct {
	Mode      OptimizerMode            `json:"mode"`
	Rationale map[Asset]AssetRationale `json:"rationale"`
	Deltas    map[Asset]float64        `json:"deltas"`
	Final     Allocation               `json:"final"`
	Applied   bool                     `json:"applied"`
	MaxDelta  float64                  `json:"maxDeltaAllowed"`
}

// Health is the per-decision degradation report.
type Health struct {
	OK       bool     `json:"ok"`
	Missing  []string `json:"missing,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// WorldState is the assembled macro/liquidity/guard/cross-asset picture at a
// reference date. Nil members were unavailable and appear in Health.Missing.
type WorldState struct {
	Asset       Asset           `json:"asset"`
	AsOf        time.Time       `json:"asOf"`
	Macro       *MacroScore     `json:"macro"`
	Liquidity   *LiquidityState `json:"liquidity"`
	Guard       GuardState      `json:"guard"`
	CrossAsset  *CrossAssetPack `json:"crossAsset"`
	MacroRegime *RegimeState    `json:"macroRegime"`
	Health      Health          `json:"health"`
}

// Driver is one ranked evidence item behind a decision.
type Driver struct {
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
	Detail string  `json:"detail"`
}

// Evidence explains a decision: headline, ranked drivers, detected conflicts
// and the conditions that would flip the scenario.
type Evidence struct {
	Headline      string   `json:"headline"`
	Drivers       []Driver `json:"drivers"`
	Conflicts     []string `json:"conflicts,omitempty"`
	WhatWouldFlip []string `json:"whatWouldFlip,omitempty"`
}

// Decision is the final assembled output of one pipeline run.
type Decision struct {
	Asset       Asset            `json:"asset"`
	AsOf        time.Time        `json:"asOf"`
	World       WorldState       `json:"world"`
	Forecast    ForecastOutcome  `json:"forecast"`
	Scenario    ScenarioPack     `json:"scenario"`
	Directives  Directives       `json:"directives"`
	Allocations Allocation       `json:"allocations"`
	PolicyAudit []string         `json:"policyAudit,omitempty"`
	Optimizer   *OptimizerOutput `json:"optimizer,omitempty"`
	Evidence    Evidence         `json:"evidence"`
	InputsHash  string           `json:"inputsHash"`
	Health      Health           `json:"health"`
}
