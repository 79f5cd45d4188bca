// Package regime implements the discrete-state macro regime engine: a
// five-state Markov model updated with a Gaussian likelihood over the macro
// score, with hysteresis tracking over the persisted history.
package regime

import (
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/macrobrain/internal/domain"
)

// transitionMatrix rows follow domain.AllMacroRegimes() order:
// EASING, TIGHTENING, STRESS, NEUTRAL, NEUTRAL_MIXED. Rows sum to 1.
var transitionMatrix = [5][5]float64{
	{0.75, 0.05, 0.02, 0.12, 0.06}, // EASING
	{0.03, 0.72, 0.10, 0.10, 0.05}, // TIGHTENING
	{0.08, 0.15, 0.55, 0.12, 0.10}, // STRESS
	{0.15, 0.15, 0.08, 0.50, 0.12}, // NEUTRAL
	{0.12, 0.12, 0.11, 0.25, 0.40}, // NEUTRAL_MIXED
}

// expectation is the Gaussian score profile of a regime.
type expectation struct {
	mu    float64
	sigma float64
}

var expectations = map[domain.MacroRegime]expectation{
	domain.RegimeEasing:       {mu: 0.5, sigma: 0.3},
	domain.RegimeTightening:   {mu: -0.5, sigma: 0.3},
	domain.RegimeStress:       {mu: -0.8, sigma: 0.25},
	domain.RegimeNeutral:      {mu: 0.0, sigma: 0.25},
	domain.RegimeNeutralMixed: {mu: 0.0, sigma: 0.5},
}

const (
	hintPersistenceMax = 0.5
	hintMinProbability = 0.1
	maxChangesTracked  = 5
)

func regimeIndex(r domain.MacroRegime) int {
	for i, candidate := range domain.AllMacroRegimes() {
		if candidate == r {
			return i
		}
	}
	return 3 // NEUTRAL
}

// Persistence returns the self-transition probability of a regime.
func Persistence(r domain.MacroRegime) float64 {
	i := regimeIndex(r)
	return transitionMatrix[i][i]
}

// History is the persisted regime timeline the engine needs for hysteresis.
type History interface {
	Recent(asset domain.Asset, since time.Time) ([]domain.RegimeState, error)
}

// Engine updates the Markov posterior one observation at a time.
type Engine struct {
	history History
	log     zerolog.Logger
}

// NewEngine creates a new regime engine
func NewEngine(history History, log zerolog.Logger) *Engine {
	return &Engine{
		history: history,
		log:     log.With().Str("component", "regime_engine").Logger(),
	}
}

// Update performs one Bayesian posterior step for an asset at a date given
// the average macro score in [-1, 1]. prev may be nil on the first ever
// observation, in which case the prior is uniform.
func (e *Engine) Update(asset domain.Asset, date time.Time, avgScore float64, prev *domain.RegimeState) (domain.RegimeState, error) {
	regimes := domain.AllMacroRegimes()

	prior := make(map[domain.MacroRegime]float64, len(regimes))
	if prev == nil || len(prev.Posterior) == 0 {
		for _, r := range regimes {
			prior[r] = 1.0 / float64(len(regimes))
		}
	} else {
		for _, r := range regimes {
			prior[r] = prev.Posterior[r]
		}
		// The dominant regime's prior is its self-transition probability,
		// which is what gives the chain its stickiness.
		prior[prev.Regime] = Persistence(prev.Regime)
	}

	posterior := make(map[domain.MacroRegime]float64, len(regimes))
	var total float64
	for _, r := range regimes {
		exp := expectations[r]
		likelihood := distuv.Normal{Mu: exp.mu, Sigma: exp.sigma}.Prob(avgScore)
		posterior[r] = prior[r] * likelihood
		total += posterior[r]
	}

	if total <= 0 {
		// Score far outside every profile: fall back to the prior alone
		total = 0
		for _, r := range regimes {
			posterior[r] = prior[r]
			total += posterior[r]
		}
	}
	for _, r := range regimes {
		posterior[r] /= total
	}

	dominant := regimes[0]
	for _, r := range regimes[1:] {
		if posterior[r] > posterior[dominant] {
			dominant = r
		}
	}

	state := domain.RegimeState{
		Asset:       asset,
		Date:        domain.Midnight(date),
		Regime:      dominant,
		Posterior:   posterior,
		Persistence: Persistence(dominant),
	}

	if hint, ok := transitionHint(dominant); ok {
		state.TransitionHint = &hint
	}

	changes, err := e.recentChanges(asset, date, dominant, prev)
	if err != nil {
		return domain.RegimeState{}, err
	}
	state.Changes30D = changes
	state.Stability = stability(changes)

	return state, nil
}

// transitionHint names the most likely next regime when the current one is
// not sticky enough to trust.
func transitionHint(current domain.MacroRegime) (domain.MacroRegime, bool) {
	i := regimeIndex(current)
	if transitionMatrix[i][i] >= hintPersistenceMax {
		return "", false
	}

	regimes := domain.AllMacroRegimes()
	best, bestProb := -1, 0.0
	for j := range regimes {
		if j == i {
			continue
		}
		if transitionMatrix[i][j] > bestProb {
			best, bestProb = j, transitionMatrix[i][j]
		}
	}
	if best < 0 || bestProb <= hintMinProbability {
		return "", false
	}
	return regimes[best], true
}

// recentChanges counts regime flips over the trailing 30 days, including the
// flip the current update itself would introduce.
func (e *Engine) recentChanges(asset domain.Asset, date time.Time, dominant domain.MacroRegime, prev *domain.RegimeState) (int, error) {
	states, err := e.history.Recent(asset, date.AddDate(0, 0, -30))
	if err != nil {
		return 0, err
	}

	changes := 0
	for i := 1; i < len(states); i++ {
		if states[i].Regime != states[i-1].Regime {
			changes++
		}
	}
	if prev != nil && prev.Regime != dominant {
		changes++
	}
	return changes, nil
}

func stability(changes30d int) float64 {
	s := 1 - float64(changes30d)/float64(maxChangesTracked)
	if s < 0 {
		return 0
	}
	return s
}
