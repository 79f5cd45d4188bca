// Package brain orchestrates a decision: it assembles the world state from
// the upstream engines, derives the scenario and directives, and hands the
// result to the policy and optimizer layers.
package brain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/macrobrain/internal/domain"
)

// MacroSource produces the weighted macro score for one (asset, horizon).
type MacroSource interface {
	Score(asset domain.Asset, horizon domain.Horizon, asOf time.Time) (domain.MacroScore, error)
}

// LiquiditySource produces the liquidity impulse read.
type LiquiditySource interface {
	Read(asOf time.Time) (domain.LiquidityState, error)
}

// GuardSource produces the crisis guard read.
type GuardSource interface {
	Evaluate(asOf time.Time) domain.GuardState
}

// CrossAssetSource produces the cross-asset correlation regime.
type CrossAssetSource interface {
	Build(asOf time.Time) (domain.CrossAssetPack, error)
}

// RegimeHistory re-hydrates and extends the persisted Markov timeline. The
// prior lookup is bounded by the as-of date so replays never see the future.
type RegimeHistory interface {
	Latest(asset domain.Asset, asOf time.Time) (*domain.RegimeState, error)
	Append(state domain.RegimeState) error
}

// RegimeUpdater performs one Bayesian regime step.
type RegimeUpdater interface {
	Update(asset domain.Asset, date time.Time, avgScore float64, prev *domain.RegimeState) (domain.RegimeState, error)
}

// Assembler builds the world state with parallel fetches. A failed or timed
// out fetch leaves its member nil and records it in Health.Missing; it never
// cancels the sibling fetches.
type Assembler struct {
	macro         MacroSource
	liquidity     LiquiditySource
	guard         GuardSource
	cross         CrossAssetSource
	regimeHistory RegimeHistory
	regimeEngine  RegimeUpdater
	horizons      []domain.Horizon
	fetchTimeout  time.Duration
	log           zerolog.Logger
}

// NewAssembler creates a new world-state assembler
func NewAssembler(
	macro MacroSource,
	liquidity LiquiditySource,
	guard GuardSource,
	cross CrossAssetSource,
	regimeHistory RegimeHistory,
	regimeEngine RegimeUpdater,
	horizons []domain.Horizon,
	fetchTimeout time.Duration,
	log zerolog.Logger,
) *Assembler {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	if len(horizons) == 0 {
		horizons = domain.AllHorizons()
	}
	return &Assembler{
		macro:         macro,
		liquidity:     liquidity,
		guard:         guard,
		cross:         cross,
		regimeHistory: regimeHistory,
		regimeEngine:  regimeEngine,
		horizons:      horizons,
		fetchTimeout:  fetchTimeout,
		log:           log.With().Str("component", "brain_assembler").Logger(),
	}
}

// Assemble fetches every world-state member in parallel, waits for all, then
// runs the sequential regime update. It also returns the per-horizon macro
// scores for downstream consumers.
func (a *Assembler) Assemble(ctx context.Context, asset domain.Asset, asOf time.Time) (*domain.WorldState, map[domain.Horizon]domain.MacroScore, error) {
	world := &domain.WorldState{
		Asset: asset,
		AsOf:  domain.Midnight(asOf),
	}

	scores := make(map[domain.Horizon]domain.MacroScore, len(a.horizons))
	var scoresMu sync.Mutex
	var missing []string

	type fetchResult struct {
		name string
		err  error
	}
	results := make(chan fetchResult, len(a.horizons)+3)

	var g errgroup.Group
	for _, horizon := range a.horizons {
		horizon := horizon
		g.Go(func() error {
			name := fmt.Sprintf("macro:%s", horizon)
			err := a.withTimeout(ctx, func() (func(), error) {
				score, err := a.macro.Score(asset, horizon, asOf)
				if err != nil {
					return nil, err
				}
				return func() {
					scoresMu.Lock()
					scores[horizon] = score
					scoresMu.Unlock()
				}, nil
			})
			results <- fetchResult{name, err}
			return nil
		})
	}

	g.Go(func() error {
		err := a.withTimeout(ctx, func() (func(), error) {
			state, err := a.liquidity.Read(asOf)
			if err != nil {
				return nil, err
			}
			return func() { world.Liquidity = &state }, nil
		})
		results <- fetchResult{"liquidity", err}
		return nil
	})

	g.Go(func() error {
		err := a.withTimeout(ctx, func() (func(), error) {
			state := a.guard.Evaluate(asOf)
			return func() { world.Guard = state }, nil
		})
		results <- fetchResult{"guard", err}
		return nil
	})

	g.Go(func() error {
		err := a.withTimeout(ctx, func() (func(), error) {
			pack, err := a.cross.Build(asOf)
			if err != nil {
				return nil, err
			}
			return func() { world.CrossAsset = &pack }, nil
		})
		results <- fetchResult{"crossasset", err}
		return nil
	})

	_ = g.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			a.log.Warn().Str("fetch", r.name).Err(r.err).Msg("World-state fetch degraded")
			missing = append(missing, r.name)
		}
	}

	// The primary horizon's score is the world's headline macro read
	if score, ok := scores[domain.Horizon90D]; ok {
		world.Macro = &score
	} else {
		for _, h := range a.horizons {
			if score, ok := scores[h]; ok {
				world.Macro = &score
				break
			}
		}
	}

	// Sequential regime step: needs the averaged macro score
	if len(scores) > 0 {
		if err := a.updateRegime(world, scores); err != nil {
			a.log.Warn().Err(err).Msg("Regime update degraded")
			missing = append(missing, "regime")
		}
	} else {
		missing = append(missing, "regime")
	}

	world.Health = domain.Health{OK: len(missing) == 0, Missing: missing}
	return world, scores, nil
}

// withTimeout runs a synchronous fetch with a deadline. The fetch itself is
// not cancellable, so it returns a commit closure instead of writing shared
// state directly; the closure runs only when the fetch beats the deadline.
// An abandoned fetch therefore can never touch the world state.
func (a *Assembler) withTimeout(ctx context.Context, fn func() (func(), error)) error {
	type fetchOutcome struct {
		commit func()
		err    error
	}
	done := make(chan fetchOutcome, 1)
	go func() {
		commit, err := fn()
		done <- fetchOutcome{commit, err}
	}()

	timer := time.NewTimer(a.fetchTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return out.err
		}
		if out.commit != nil {
			out.commit()
		}
		return nil
	case <-timer.C:
		return domain.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Assembler) updateRegime(world *domain.WorldState, scores map[domain.Horizon]domain.MacroScore) error {
	var sum float64
	var n int
	for _, score := range scores {
		sum += score.Score
		n++
	}
	avg := sum / float64(n)

	prev, err := a.regimeHistory.Latest(world.Asset, world.AsOf)
	if err != nil {
		return err
	}

	state, err := a.regimeEngine.Update(world.Asset, world.AsOf, avg, prev)
	if err != nil {
		return err
	}

	if err := a.regimeHistory.Append(state); err != nil {
		return err
	}

	world.MacroRegime = &state
	return nil
}
