package brain

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/adaptive"
)

// ForecastSource produces the forecast outcome for an assembled world state.
type ForecastSource interface {
	Forecast(world *domain.WorldState, asOf time.Time) domain.ForecastOutcome
}

// Allocator runs the policy cascade.
type Allocator interface {
	Allocate(world *domain.WorldState, scenario domain.ScenarioPack, directives domain.Directives, fc domain.ForecastOutcome) (domain.Allocation, []string)
}

// Optimizer runs the small-delta wrapper over the policy output.
type Optimizer interface {
	Optimize(current domain.Allocation, posture domain.Posture, scenario domain.Scenario, world *domain.WorldState, fc domain.ForecastOutcome) domain.OptimizerOutput
}

// DecisionSink persists finished decisions.
type DecisionSink interface {
	Save(decision *domain.Decision) error
}

// ParamSource resolves the active adaptive parameter set for an asset.
type ParamSource interface {
	Active(asset domain.Asset) (adaptive.Params, error)
}

// Orchestrator runs the full decision pipeline for one asset at one date.
type Orchestrator struct {
	assembler *Assembler
	forecasts ForecastSource
	allocator Allocator
	optimizer Optimizer
	sink      DecisionSink
	params    ParamSource
	mode      domain.OptimizerMode
	log       zerolog.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	assembler *Assembler,
	forecasts ForecastSource,
	allocator Allocator,
	optimizer Optimizer,
	sink DecisionSink,
	params ParamSource,
	mode domain.OptimizerMode,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		assembler: assembler,
		forecasts: forecasts,
		allocator: allocator,
		optimizer: optimizer,
		sink:      sink,
		params:    params,
		mode:      mode,
		log:       log.With().Str("component", "brain").Logger(),
	}
}

// activeThresholds resolves the brain thresholds for an asset, falling back
// to the built-in defaults when no tuned set is active.
func (o *Orchestrator) activeThresholds(asset domain.Asset) adaptive.BrainThresholds {
	if o.params == nil {
		return adaptive.DefaultParams(asset).Brain
	}
	p, err := o.params.Active(asset)
	if err != nil {
		o.log.Warn().Err(err).Str("asset", string(asset)).Msg("Active params unavailable, using defaults")
		return adaptive.DefaultParams(asset).Brain
	}
	return p.Brain
}

// Decide assembles the world, derives scenario and directives, allocates,
// optionally optimizes, and persists the decision.
func (o *Orchestrator) Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error) {
	world, _, err := o.assembler.Assemble(ctx, asset, asOf)
	if err != nil {
		return nil, err
	}

	fc := o.forecasts.Forecast(world, asOf)
	thresholds := o.activeThresholds(asset)
	scenario := deriveScenario(world, fc, thresholds)
	directives, _ := buildDirectives(world, scenario, fc, thresholds)
	allocation, audit := o.allocator.Allocate(world, scenario, directives, fc)

	decision := &domain.Decision{
		Asset:       asset,
		AsOf:        domain.Midnight(asOf),
		World:       *world,
		Forecast:    fc,
		Scenario:    scenario,
		Directives:  directives,
		Allocations: allocation,
		PolicyAudit: audit,
		Health:      world.Health,
	}

	if o.mode != domain.OptimizerOff && o.optimizer != nil {
		output := o.optimizer.Optimize(allocation, posture, scenario.Name, world, fc)
		output.Mode = o.mode
		if o.mode == domain.OptimizerOn {
			decision.Allocations = output.Final
			output.Applied = true
		}
		decision.Optimizer = &output
	}

	decision.Evidence = buildEvidence(world, scenario, fc)
	decision.InputsHash = hashInputs(decision)

	if o.sink != nil {
		if err := o.sink.Save(decision); err != nil {
			o.log.Error().Err(err).Msg("Failed to persist decision")
		}
	}

	o.log.Info().
		Str("asset", string(asset)).
		Str("asOf", domain.DateKey(asOf)).
		Str("scenario", string(scenario.Name)).
		Str("guard", world.Guard.LevelLabel).
		Float64("spx", decision.Allocations.SPX).
		Float64("btc", decision.Allocations.BTC).
		Float64("cash", decision.Allocations.Cash).
		Msg("Decision complete")

	return decision, nil
}

// hashInputs derives the deterministic fingerprint of everything that fed
// the decision. Timestamps other than the as-of date are excluded so replays
// reproduce the hash.
func hashInputs(d *domain.Decision) string {
	var macroScore, tail90 float64
	if d.World.Macro != nil {
		macroScore = d.World.Macro.Score
	}
	if f, ok := d.Forecast.At(domain.Horizon90D); ok {
		tail90 = f.TailRisk
	}

	var modelVersion string
	if d.Forecast.Available && d.Forecast.Forecast != nil {
		modelVersion = d.Forecast.Forecast.ModelVersion
	}

	return domain.InputsHash(struct {
		Asset        domain.Asset    `json:"asset"`
		AsOf         string          `json:"asOf"`
		MacroScore   float64         `json:"macroScore"`
		GuardLevel   string          `json:"guardLevel"`
		Scenario     domain.Scenario `json:"scenario"`
		Tail90       float64         `json:"tail90"`
		ModelVersion string          `json:"modelVersion"`
		Allocation   domain.Allocation `json:"allocation"`
	}{d.Asset, domain.DateKey(d.AsOf), macroScore, d.World.Guard.LevelLabel,
		d.Scenario.Name, tail90, modelVersion, d.Allocations})
}
