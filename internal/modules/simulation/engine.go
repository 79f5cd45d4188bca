// Package simulation runs the decision pipeline walk-forward over stepped
// reference dates and compares it against an always-long baseline.
package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/macrobrain/internal/domain"
)

const defaultStepDays = 14

// brainOffAllocation is the static always-long baseline the brain output is
// compared against. It never changes during a run.
var brainOffAllocation = domain.Allocation{SPX: 0.60, BTC: 0.25, DXY: 0, Cash: 0.15}

// Baseline returns the always-long brain-off allocation used for
// comparisons.
func Baseline() domain.Allocation {
	return brainOffAllocation
}

// Pipeline runs one full decision at a reference date.
type Pipeline interface {
	Decide(ctx context.Context, asset domain.Asset, asOf time.Time, posture domain.Posture) (*domain.Decision, error)
}

// PriceLoader fetches price history for realized forward returns.
type PriceLoader interface {
	LoadAsOf(id string, asOf time.Time, lookbackDays int) (domain.Series, error)
}

// Engine executes walk-forward runs.
type Engine struct {
	pipeline Pipeline
	prices   PriceLoader
	log      zerolog.Logger
}

// NewEngine creates a new simulation engine
func NewEngine(pipeline Pipeline, prices PriceLoader, log zerolog.Logger) *Engine {
	return &Engine{
		pipeline: pipeline,
		prices:   prices,
		log:      log.With().Str("component", "simulation").Logger(),
	}
}

type stepResult struct {
	sample  *domain.SimulationSample
	errText string
	nan     bool
	fallbck bool
}

// Run walks the pipeline over [Start, End] stepped by StepDays. Per-step
// errors are accumulated into the report instead of failing the run.
func (e *Engine) Run(ctx context.Context, req domain.SimulationRequest) (*domain.SimulationReport, error) {
	if req.StepDays <= 0 {
		req.StepDays = defaultStepDays
	}
	if len(req.Horizons) == 0 {
		req.Horizons = []domain.Horizon{domain.Horizon30D, domain.Horizon90D}
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: simulation window end %s not after start %s",
			domain.ErrValidation, domain.DateKey(req.End), domain.DateKey(req.Start))
	}

	maxHorizon := 0
	for _, h := range req.Horizons {
		if !h.Valid() {
			return nil, fmt.Errorf("%w: unknown horizon %s", domain.ErrValidation, h)
		}
		if h.TradingDays() > maxHorizon {
			maxHorizon = h.TradingDays()
		}
	}

	// One price fetch covers the whole run including forward windows.
	windowDays := int(req.End.Sub(req.Start).Hours()/24) + maxHorizon + 60
	prices, err := e.prices.LoadAsOf(string(req.Asset), req.End.AddDate(0, 0, maxHorizon+30), windowDays)
	if err != nil {
		return nil, fmt.Errorf("load prices for %s: %w", req.Asset, err)
	}

	dates := steppedDates(req.Start, req.End, req.StepDays)
	results := make([]stepResult, len(dates))

	// Steps run strictly in date order: each decision extends the regime
	// history that later steps build on, so the walk must be sequential to
	// stay deterministic and as-of correct.
	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = e.evaluateStep(ctx, req, date, prices)
	}

	report := e.aggregate(req, dates, results)
	e.log.Info().
		Str("asset", string(req.Asset)).
		Int("samples", len(report.Samples)).
		Int("skipped", report.Skipped).
		Float64("flipRatePerYear", report.FlipRatePerYear).
		Bool("nanDetected", report.NaNDetected).
		Msg("Walk-forward run complete")

	return report, nil
}

// evaluateStep runs one pipeline decision and records the sample.
func (e *Engine) evaluateStep(ctx context.Context, req domain.SimulationRequest, date time.Time, prices domain.Series) stepResult {
	decision, err := e.pipeline.Decide(ctx, req.Asset, date, domain.PostureNeutral)
	if err != nil {
		return stepResult{errText: fmt.Sprintf("%s: %v", domain.DateKey(date), err)}
	}

	alloc := decision.Allocations
	for _, v := range []float64{alloc.SPX, alloc.BTC, alloc.DXY, alloc.Cash} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return stepResult{
				errText: fmt.Sprintf("%s: %v in allocation", domain.DateKey(date), domain.ErrValidation),
				nan:     true,
			}
		}
	}

	sample := &domain.SimulationSample{
		AsOf:              domain.Midnight(date),
		Scenario:          decision.Scenario.Name,
		BrainOn:           alloc,
		BrainOff:          brainOffAllocation,
		OverrideIntensity: overrideIntensity(alloc, brainOffAllocation),
		Forward:           make(map[domain.Horizon]float64, len(req.Horizons)),
		Prediction:        directionOf(decision),
	}

	for _, h := range req.Horizons {
		if r, ok := forwardReturn(prices, date, h.TradingDays()); ok {
			sample.Forward[h] = r
		}
	}

	return stepResult{sample: sample, fallbck: !decision.Forecast.Available}
}

// aggregate folds the per-step results into the final report.
func (e *Engine) aggregate(req domain.SimulationRequest, dates []time.Time, results []stepResult) *domain.SimulationReport {
	report := &domain.SimulationReport{
		Asset:         req.Asset,
		Start:         domain.Midnight(req.Start),
		End:           domain.Midnight(req.End),
		StepDays:      req.StepDays,
		HorizonDeltas: make(map[domain.Horizon]domain.HorizonDelta, len(req.Horizons)),
		GeneratedAt:   time.Now().UTC(),
	}

	var overrides []float64
	for _, r := range results {
		if r.nan {
			report.NaNDetected = true
		}
		if r.errText != "" {
			report.Errors = append(report.Errors, r.errText)
			report.Skipped++
			continue
		}
		if r.fallbck {
			report.Fallbacks++
		}
		report.Samples = append(report.Samples, *r.sample)
		overrides = append(overrides, r.sample.OverrideIntensity)
	}

	for _, h := range req.Horizons {
		report.HorizonDeltas[h] = hitRateDelta(report.Samples, h)
	}

	years := req.End.Sub(req.Start).Hours() / 24 / 365.25
	if years > 0 {
		report.FlipRatePerYear = float64(scenarioFlips(report.Samples)) / years
	}

	if len(overrides) > 0 {
		report.AvgOverride = stat.Mean(overrides, nil)
		for _, v := range overrides {
			if v > report.MaxOverride {
				report.MaxOverride = v
			}
		}
		report.Stability = math.Max(0, 1-math.Sqrt(variance(overrides))*10)
	}

	report.MaxDrawdown, report.SharpeProxy = portfolioStats(report.Samples, req.StepDays)
	report.DominantScenario = dominantScenario(report.Samples)

	return report
}

// directionOf extracts the brain's directional prediction: forecast mean at
// the primary horizon when available, otherwise the macro score sign,
// otherwise long.
func directionOf(d *domain.Decision) float64 {
	if f, ok := d.Forecast.At(domain.Horizon90D); ok && f.Mean != 0 {
		return sign(f.Mean)
	}
	if d.World.Macro != nil && d.World.Macro.Score != 0 {
		return sign(d.World.Macro.Score)
	}
	return 1
}

// hitRateDelta computes directional hit rates at one horizon. The baseline
// always predicts +1.
func hitRateDelta(samples []domain.SimulationSample, h domain.Horizon) domain.HorizonDelta {
	var brainHits, baseHits, n int
	for _, s := range samples {
		fwd, ok := s.Forward[h]
		if !ok {
			continue
		}
		n++
		if sign(fwd) == s.Prediction {
			brainHits++
		}
		if fwd >= 0 {
			baseHits++
		}
	}
	if n == 0 {
		return domain.HorizonDelta{}
	}
	d := domain.HorizonDelta{
		BrainHitRate:    float64(brainHits) / float64(n),
		BaselineHitRate: float64(baseHits) / float64(n),
		Samples:         n,
	}
	d.DeltaPP = (d.BrainHitRate - d.BaselineHitRate) * 100
	return d
}

// scenarioFlips counts transitions between consecutive samples.
func scenarioFlips(samples []domain.SimulationSample) int {
	flips := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Scenario != samples[i-1].Scenario {
			flips++
		}
	}
	return flips
}

// portfolioStats builds a simplified equity curve from the shortest available
// forward horizon, scaled to the step length, and derives max drawdown and a
// Sharpe proxy from the step returns.
func portfolioStats(samples []domain.SimulationSample, stepDays int) (maxDrawdown, sharpe float64) {
	var steps []float64
	for _, s := range samples {
		h, ok := shortestHorizon(s.Forward)
		if !ok {
			continue
		}
		// risk-weighted step pnl; cash and dxy treated as flat
		scale := float64(stepDays) / float64(h.TradingDays())
		steps = append(steps, (s.BrainOn.SPX+s.BrainOn.BTC)*s.Forward[h]*scale)
	}
	if len(steps) == 0 {
		return 0, 0
	}

	equity, peak := 1.0, 1.0
	for _, r := range steps {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	mean := stat.Mean(steps, nil)
	sd := math.Sqrt(variance(steps))
	if sd > 0 {
		sharpe = mean / sd * math.Sqrt(365.25/float64(stepDays))
	}
	return maxDrawdown, sharpe
}

func shortestHorizon(forward map[domain.Horizon]float64) (domain.Horizon, bool) {
	for _, h := range domain.AllHorizons() {
		if _, ok := forward[h]; ok {
			return h, true
		}
	}
	return "", false
}

func dominantScenario(samples []domain.SimulationSample) domain.Scenario {
	counts := map[domain.Scenario]int{}
	for _, s := range samples {
		counts[s.Scenario]++
	}
	best, bestCount := domain.ScenarioBase, 0
	for _, sc := range []domain.Scenario{domain.ScenarioBase, domain.ScenarioRisk, domain.ScenarioTail} {
		if counts[sc] > bestCount {
			best, bestCount = sc, counts[sc]
		}
	}
	return best
}

// overrideIntensity is the total allocation distance between brain-on and
// the baseline.
func overrideIntensity(on, off domain.Allocation) float64 {
	return math.Abs(on.SPX-off.SPX) + math.Abs(on.BTC-off.BTC) +
		math.Abs(on.DXY-off.DXY) + math.Abs(on.Cash-off.Cash)
}

// forwardReturn computes the realized return from the reference date over
// horizonDays calendar days.
func forwardReturn(prices domain.Series, from time.Time, horizonDays int) (float64, bool) {
	base, ok := prices.ValueAt(from)
	if !ok || base.Value <= 0 {
		return 0, false
	}
	target, ok := prices.ValueAt(from.AddDate(0, 0, horizonDays))
	if !ok || target.Value <= 0 {
		return 0, false
	}
	// The forward point must actually lie beyond the base observation,
	// otherwise the horizon runs off the end of the series.
	if !target.Date.After(base.Date) {
		return 0, false
	}
	return target.Value/base.Value - 1, true
}

func steppedDates(start, end time.Time, stepDays int) []time.Time {
	var dates []time.Time
	for d := domain.Midnight(start); !d.After(domain.Midnight(end)); d = d.AddDate(0, 0, stepDays) {
		dates = append(dates, d)
	}
	return dates
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.Variance(xs, nil)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
