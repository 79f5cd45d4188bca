package domain

import "time"

// SimulationRequest configures a walk-forward run.
type SimulationRequest struct {
	Asset    Asset     `json:"asset"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	StepDays int       `json:"stepDays"`
	Horizons []Horizon `json:"horizons"`
}

// SimulationSample is one stepped reference date of a walk-forward run.
type SimulationSample struct {
	AsOf              time.Time           `json:"asOf"`
	Scenario          Scenario            `json:"scenario"`
	BrainOn           Allocation          `json:"brainOn"`
	BrainOff          Allocation          `json:"brainOff"`
	OverrideIntensity float64             `json:"overrideIntensity"`
	Forward           map[Horizon]float64 `json:"forward"` // realized forward returns
	Prediction        float64             `json:"prediction"`
}

// HorizonDelta compares directional hit rates against the always-long
// baseline at one horizon, in percentage points.
type HorizonDelta struct {
	BrainHitRate    float64 `json:"brainHitRate"`
	BaselineHitRate float64 `json:"baselineHitRate"`
	DeltaPP         float64 `json:"deltaPP"`
	Samples         int     `json:"samples"`
}

// SimulationReport aggregates a walk-forward run.
type SimulationReport struct {
	RunID            string                   `json:"runId"`
	Asset            Asset                    `json:"asset"`
	Start            time.Time                `json:"start"`
	End              time.Time                `json:"end"`
	StepDays         int                      `json:"stepDays"`
	Samples          []SimulationSample       `json:"samples"`
	Skipped          int                      `json:"skipped"`
	Errors           []string                 `json:"errors,omitempty"`
	HorizonDeltas    map[Horizon]HorizonDelta `json:"horizonDeltas"`
	FlipRatePerYear  float64                  `json:"flipRatePerYear"`
	AvgOverride      float64                  `json:"avgOverrideIntensity"`
	MaxOverride      float64                  `json:"maxOverrideIntensity"`
	Stability        float64                  `json:"stabilityScore"`
	MaxDrawdown      float64                  `json:"maxDrawdown"`
	SharpeProxy      float64                  `json:"sharpeProxy"`
	DominantScenario Scenario                 `json:"dominantScenario"`
	Fallbacks        int                      `json:"fallbacks"`
	NaNDetected      bool                     `json:"nanDetected"`
	GeneratedAt      time.Time                `json:"generatedAt"`
}

// RunKind labels the origin of a tuning run.
type RunKind string

const (
	RunKindSimulation  RunKind = "simulation"
	RunKindStress      RunKind = "stress"
	RunKindCalibration RunKind = "calibration"
)

// RunStatus is the lifecycle state of a tuning run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// TuningRun is a persisted simulation/stress/calibration run with its report.
type TuningRun struct {
	RunID     string    `json:"runId"`
	Kind      RunKind   `json:"kind"`
	Status    RunStatus `json:"status"`
	Report    []byte    `json:"report,omitempty"` // JSON, nil while running
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PromotionVerdict is the gate evaluation of a candidate version.
type PromotionVerdict struct {
	Gates          map[string]bool `json:"gates"`
	Ready          bool            `json:"ready"`
	Recommendation string          `json:"recommendation"` // promote | review | reject
	Reasons        []string        `json:"reasons,omitempty"`
}
