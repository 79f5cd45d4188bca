package stress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/macrobrain/internal/domain"
)

// Loader is the series access point the shock layer wraps.
type Loader interface {
	LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error)
}

// Pipeline runs one full decision.
type Pipeline interface {
	Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error)
}

// PipelineFactory builds a pipeline on top of a (possibly shocked) loader.
// The decision components themselves stay unchanged; only their data source
// differs.
type PipelineFactory func(loader Loader) Pipeline

// RunStore persists stress runs.
type RunStore interface {
	Create(runID string, kind domain.RunKind) error
	Complete(runID string, report any) error
	Fail(runID string, cause error) error
}

// Result summarizes one preset replay.
type Result struct {
	RunID       string            `json:"runId"`
	Preset      string            `json:"preset"`
	Description string            `json:"description"`
	Asset       domain.Asset      `json:"asset"`
	AsOf        time.Time         `json:"asOf"`
	Scenario    domain.Scenario   `json:"scenario"`
	GuardLevel  string            `json:"guardLevel"`
	Allocations domain.Allocation `json:"allocations"`
	Decision    *domain.Decision  `json:"decision"`
}

// Runner replays presets through the pipeline.
type Runner struct {
	base    Loader
	factory PipelineFactory
	store   RunStore
	log     zerolog.Logger
}

// NewRunner creates a new stress runner
func NewRunner(base Loader, factory PipelineFactory, store RunStore, log zerolog.Logger) *Runner {
	return &Runner{
		base:    base,
		factory: factory,
		store:   store,
		log:     log.With().Str("component", "stress").Logger(),
	}
}

// Run replays one preset for an asset at a reference date and persists the
// result under a fresh run id.
func (r *Runner) Run(ctx context.Context, preset Preset, asset domain.Asset, asOf time.Time) (*Result, error) {
	runID := uuid.New().String()
	if r.store != nil {
		if err := r.store.Create(runID, domain.RunKindStress); err != nil {
			return nil, err
		}
	}

	pipeline := r.factory(&shockedLoader{base: r.base, preset: preset})
	decision, err := pipeline.Decide(ctx, asset, asOf, domain.PostureNeutral)
	if err != nil {
		if r.store != nil {
			_ = r.store.Fail(runID, err)
		}
		return nil, fmt.Errorf("replay preset %s: %w", preset.Name, err)
	}

	result := &Result{
		RunID:       runID,
		Preset:      preset.Name,
		Description: preset.Description,
		Asset:       asset,
		AsOf:        domain.Midnight(asOf),
		Scenario:    decision.Scenario.Name,
		GuardLevel:  decision.World.Guard.LevelLabel,
		Allocations: decision.Allocations,
		Decision:    decision,
	}

	if r.store != nil {
		if err := r.store.Complete(runID, result); err != nil {
			return nil, err
		}
	}

	r.log.Info().
		Str("preset", preset.Name).
		Str("runId", runID).
		Str("scenario", string(result.Scenario)).
		Str("guard", result.GuardLevel).
		Msg("Stress replay complete")

	return result, nil
}

// shockedLoader applies the preset's shocks to series served by the base
// loader. Series not named by any shock pass through untouched.
type shockedLoader struct {
	base   Loader
	preset Preset
}

func (l *shockedLoader) LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error) {
	s, err := l.base.LoadAsOf(id, asOf, lookbackDays)
	if err != nil {
		return s, err
	}
	for _, shock := range l.preset.Shocks {
		if shock.Series == id {
			s = applyShock(s, shock)
		}
	}
	return s, nil
}

// applyShock rewrites the trailing observations of a series. The returned
// series is a copy; the base loader's data is never mutated.
func applyShock(s domain.Series, shock Shock) domain.Series {
	days := shock.Days
	if days <= 0 {
		days = defaultShockDays
	}
	start := len(s.Points) - days
	if start < 0 {
		start = 0
	}

	out := s
	out.Points = make([]domain.Point, len(s.Points))
	copy(out.Points, s.Points)

	for i := start; i < len(out.Points); i++ {
		switch shock.Mode {
		case ShockSet:
			out.Points[i].Value = shock.Value
		case ShockScale:
			out.Points[i].Value *= shock.Value
		case ShockAdd:
			out.Points[i].Value += shock.Value
		}
	}
	return out
}
