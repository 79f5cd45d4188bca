package calibration

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/macro"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/rolling"
)

// Objective names mirror the configuration enum.
const (
	ObjectiveHitRate = "HIT_RATE"
	ObjectiveMAE     = "MAE"
	ObjectiveRMSE    = "RMSE"
)

// Request describes one calibration run.
type Request struct {
	Asset     domain.Asset
	From      time.Time
	To        time.Time
	StepDays  int
	Horizons  []domain.Horizon
	Objective string
	Trials    int
	Seed      int64
	AsOf      bool // apply publication lags during evaluation

	// Weight constraints
	SumWeights float64
	MinWeight  float64
	MaxWeight  float64

	// SeriesIDs overrides the default candidate basket when non-empty
	SeriesIDs []string
}

// Calibrator runs the randomized per-horizon weight search.
type Calibrator struct {
	loader marketdata.Loader
	log    zerolog.Logger
}

// NewCalibrator creates a new calibrator
func NewCalibrator(loader marketdata.Loader, log zerolog.Logger) *Calibrator {
	return &Calibrator{
		loader: loader,
		log:    log.With().Str("component", "calibrator").Logger(),
	}
}

// weeklyDataset is the immutable evaluation snapshot shared by all workers.
type weeklyDataset struct {
	series map[string]seriesTrack
	prices seriesTrack
	asOf   bool
}

// seriesTrack is one weekly-normalized series with parallel date/value slices
// ordered ascending.
type seriesTrack struct {
	id     string
	dates  []time.Time
	values []float64
}

// indexAt returns the index of the last observation dated on or before t.
func (tr seriesTrack) indexAt(t time.Time) int {
	// sort.Search finds the first index with date > t
	i := sort.Search(len(tr.dates), func(i int) bool { return tr.dates[i].After(t) })
	return i - 1
}

// zAt standardizes the observation at the lookup date against its trailing
// five-year distribution.
func (tr seriesTrack) zAt(t time.Time) (float64, bool) {
	idx := tr.indexAt(t)
	if idx < 0 {
		return 0, false
	}
	window := tr.values[:idx+1]
	z, ok := rolling.ZScore(tr.values[idx], rolling.Tail(window, 260))
	if !ok {
		return 0, false
	}
	return domain.Clamp(z, -4, 4), true
}

// forwardReturn computes the realized return from t over horizonDays.
func (tr seriesTrack) forwardReturn(t time.Time, horizonDays int) (float64, bool) {
	startIdx := tr.indexAt(t)
	endIdx := tr.indexAt(t.AddDate(0, 0, horizonDays))
	if startIdx < 0 || endIdx <= startIdx {
		return 0, false
	}
	p0, p1 := tr.values[startIdx], tr.values[endIdx]
	if p0 <= 0 {
		return 0, false
	}
	return p1/p0 - 1, true
}

// Run executes the calibration and returns the resulting version. The result
// is deterministic for a given (dataset, seed, request).
func (c *Calibrator) Run(req Request) (*domain.CalibrationVersion, error) {
	if req.StepDays <= 0 {
		req.StepDays = 7
	}
	if req.Trials <= 0 {
		req.Trials = 500
	}
	if req.SumWeights == 0 {
		req.SumWeights = 1.0
	}
	if req.MaxWeight == 0 {
		req.MaxWeight = 0.40
	}
	if len(req.SeriesIDs) == 0 {
		req.SeriesIDs = defaultBasket(req.Asset)
	}
	if len(req.Horizons) == 0 {
		req.Horizons = domain.AllHorizons()
	}

	started := time.Now()

	ds, err := c.buildDataset(req)
	if err != nil {
		return nil, err
	}

	version := &domain.CalibrationVersion{
		Asset:     req.Asset,
		Objective: req.Objective,
		Seed:      req.Seed,
		Source:    "tuned",
		Horizons:  make(map[domain.Horizon]domain.WeightSet, len(req.Horizons)),
		Metrics:   make(map[domain.Horizon]domain.CalibrationMetrics, len(req.Horizons)),
		Baseline:  make(map[domain.Horizon]domain.CalibrationMetrics, len(req.Horizons)),
	}

	baseline := DefaultVersion(req.Asset, req.Horizons)

	for _, horizon := range req.Horizons {
		best, metrics, err := c.searchHorizon(req, ds, horizon)
		if err != nil {
			return nil, fmt.Errorf("horizon %s: %w", horizon, err)
		}
		version.Horizons[horizon] = best
		version.Metrics[horizon] = metrics

		if base, ok := baseline.Horizons[horizon]; ok {
			baseMetrics, _ := evaluate(ds, base.Weights, horizon, req)
			version.Baseline[horizon] = baseMetrics
		}
	}

	version.VersionID = VersionID(version)

	c.log.Info().
		Str("asset", string(req.Asset)).
		Str("version", version.VersionID).
		Dur("elapsed", time.Since(started)).
		Int("trials", req.Trials).
		Msg("Calibration complete")

	return version, nil
}

// buildDataset loads and weekly-normalizes every candidate series plus the
// target price series, once, up front. Workers share it immutably.
func (c *Calibrator) buildDataset(req Request) (*weeklyDataset, error) {
	// History needed: evaluation window + max lag + five years of z context
	lookbackDays := int(req.To.Sub(req.From).Hours()/24) + 180 + 260*7

	ds := &weeklyDataset{
		series: make(map[string]seriesTrack, len(req.SeriesIDs)),
		asOf:   req.AsOf,
	}

	for _, id := range req.SeriesIDs {
		s, err := c.loader.LoadAsOf(id, req.To, lookbackDays)
		if err != nil {
			c.log.Warn().Str("series", id).Err(err).Msg("Series unavailable for calibration, skipping")
			continue
		}
		ds.series[id] = newTrack(id, macro.NormalizeWeekly(s))
	}

	if len(ds.series) == 0 {
		return nil, fmt.Errorf("calibration dataset: %w", domain.ErrInsufficientData)
	}

	// Target prices include the forward window past To
	prices, err := c.loader.LoadAsOf(string(req.Asset), req.To.AddDate(0, 0, 400), lookbackDays+400)
	if err != nil {
		return nil, fmt.Errorf("target prices for %s: %w", req.Asset, err)
	}
	track := seriesTrack{id: string(req.Asset)}
	for _, p := range prices.Points {
		track.dates = append(track.dates, p.Date)
		track.values = append(track.values, p.Value)
	}
	ds.prices = track

	return ds, nil
}

func newTrack(id string, points []domain.Point) seriesTrack {
	tr := seriesTrack{id: id}
	for _, p := range points {
		tr.dates = append(tr.dates, p.Date)
		tr.values = append(tr.values, p.Value)
	}
	return tr
}

// searchHorizon runs the randomized search for a single horizon. The RNG is
// re-seeded with seed + horizonDays so horizons stay decorrelated but
// reproducible.
func (c *Calibrator) searchHorizon(req Request, ds *weeklyDataset, horizon domain.Horizon) (domain.WeightSet, domain.CalibrationMetrics, error) {
	ids := availableSeries(ds, req.SeriesIDs)
	if len(ids) == 0 {
		return domain.WeightSet{}, domain.CalibrationMetrics{}, domain.ErrInsufficientData
	}

	rng := NewLCG(req.Seed + int64(horizon.TradingDays()))

	// Generate all candidates sequentially first so parallel evaluation
	// cannot perturb the random stream.
	candidates := make([][]domain.SeriesWeight, req.Trials)
	for i := range candidates {
		candidates[i] = sampleCandidate(rng, req, ids)
	}

	scores := make([]float64, req.Trials)
	metrics := make([]domain.CalibrationMetrics, req.Trials)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range candidates {
		i := i
		g.Go(func() error {
			m, ok := evaluate(ds, candidates[i], horizon, req)
			if !ok {
				scores[i] = math.Inf(-1)
				return nil
			}
			metrics[i] = m
			scores[i] = objectiveScore(req.Objective, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.WeightSet{}, domain.CalibrationMetrics{}, err
	}

	// Argmax with lowest-index tie break keeps the result deterministic
	best := 0
	for i := 1; i < req.Trials; i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}

	if math.IsInf(scores[best], -1) {
		return domain.WeightSet{}, domain.CalibrationMetrics{}, fmt.Errorf("no evaluable candidate: %w", domain.ErrInsufficientData)
	}

	return domain.WeightSet{Horizon: horizon, Weights: candidates[best]}, metrics[best], nil
}

// availableSeries filters the requested basket down to series present in the
// dataset, preserving request order for determinism.
func availableSeries(ds *weeklyDataset, requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if _, ok := ds.series[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// sampleCandidate draws a Dirichlet-like weight vector over the basket and a
// lag per series from the discrete grid, honoring the weight constraints.
func sampleCandidate(rng *LCG, req Request, ids []string) []domain.SeriesWeight {
	raw := make([]float64, len(ids))
	var sum float64
	for i := range raw {
		// Exponential(1) draws normalized below give a flat Dirichlet
		raw[i] = -math.Log(1 - rng.Float64())
		sum += raw[i]
	}

	values := make([]float64, len(ids))
	for i := range values {
		values[i] = raw[i] / sum * req.SumWeights
	}
	redistributeBounded(values, req.SumWeights, req.MinWeight, req.MaxWeight)

	weights := make([]domain.SeriesWeight, len(ids))
	for i, id := range ids {
		weights[i] = domain.SeriesWeight{
			SeriesID: id,
			Weight:   values[i],
			LagDays:  LagGrid[rng.Intn(len(LagGrid))],
			Sign:     defaultSign(req.Asset, id),
		}
	}

	return weights
}

// redistributeBounded clamps each entry into [min, max], then spreads the
// remaining deficit or surplus across the entries in proportion to their
// headroom (or slack), so every weight stays inside its bounds and the sum
// hits the target whenever the bounds leave room for it.
func redistributeBounded(values []float64, target, min, max float64) {
	if max <= 0 {
		max = target
	}
	var sum float64
	for i, v := range values {
		values[i] = domain.Clamp(v, min, max)
		sum += values[i]
	}

	diff := target - sum
	if math.Abs(diff) < 1e-12 {
		return
	}

	var room float64
	for _, v := range values {
		if diff > 0 {
			room += max - v
		} else {
			room += v - min
		}
	}
	if room <= 0 {
		return
	}

	if diff > 0 {
		frac := math.Min(1, diff/room)
		for i := range values {
			values[i] += (max - values[i]) * frac
		}
	} else {
		frac := math.Min(1, -diff/room)
		for i := range values {
			values[i] -= (values[i] - min) * frac
		}
	}
}

// evaluate walks the sample dates and measures a candidate against realized
// forward returns. Returns ok=false when no sample could be scored.
func evaluate(ds *weeklyDataset, weights []domain.SeriesWeight, horizon domain.Horizon, req Request) (domain.CalibrationMetrics, bool) {
	horizonDays := horizon.TradingDays()

	var hits, samples int
	var absErr, sqErr float64

	for t := domain.Midnight(req.From); !t.After(req.To); t = t.AddDate(0, 0, req.StepDays) {
		signal, ok := signalAt(ds, weights, t)
		if !ok {
			continue
		}

		ret, ok := ds.prices.forwardReturn(t, horizonDays)
		if !ok {
			continue
		}

		if !rolling.IsFinite(signal, ret) {
			continue
		}

		samples++
		if (signal > 0) == (ret > 0) {
			hits++
		}
		diff := signal - ret
		absErr += math.Abs(diff)
		sqErr += diff * diff
	}

	if samples == 0 {
		return domain.CalibrationMetrics{}, false
	}

	return domain.CalibrationMetrics{
		HitRate: float64(hits) / float64(samples),
		MAE:     absErr / float64(samples),
		RMSE:    math.Sqrt(sqErr / float64(samples)),
		Samples: samples,
	}, true
}

// signalAt computes the weighted lagged-z signal at a sample date. In as-of
// mode the lookup cannot see past the publication cutoff.
func signalAt(ds *weeklyDataset, weights []domain.SeriesWeight, t time.Time) (float64, bool) {
	var sum float64
	var used bool

	for _, sw := range weights {
		track, ok := ds.series[sw.SeriesID]
		if !ok {
			continue
		}

		lookup := t.AddDate(0, 0, -sw.LagDays)
		if ds.asOf {
			cutoff := t.AddDate(0, 0, -marketdata.PublicationLagDays(sw.SeriesID))
			if cutoff.Before(lookup) {
				lookup = cutoff
			}
		}

		z, ok := track.zAt(lookup)
		if !ok {
			continue
		}

		sum += sw.Sign * z * sw.Weight
		used = true
	}

	return sum, used
}

// objectiveScore maps metrics onto a maximization score.
func objectiveScore(objective string, m domain.CalibrationMetrics) float64 {
	switch objective {
	case ObjectiveMAE:
		return -m.MAE
	case ObjectiveRMSE:
		return -m.RMSE
	default:
		return m.HitRate
	}
}
