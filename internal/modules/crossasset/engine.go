// Package crossasset classifies the correlation structure across the asset
// universe into a regime label with contagion and decoupling diagnostics.
package crossasset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/macrobrain/internal/domain"
	"github.com/aristath/macrobrain/internal/modules/marketdata"
	"github.com/aristath/macrobrain/internal/modules/rolling"
)

// Windows are the rolling correlation windows in trading days.
var Windows = []int{20, 60, 120}

// primaryWindow drives regime selection; the others feed consistency and
// stability diagnostics.
const primaryWindow = 60

const (
	syncCorrMin       = 0.35
	dollarJoinMin     = 0.10
	dollarInverseMax  = -0.15
	goldHedgeMax      = -0.10
	decoupleCorrMax   = 0.15
	decoupleScoreMin  = 0.3
	priceLookbackDays = 400
)

// Engine computes the cross-asset regime read at a reference date.
type Engine struct {
	loader marketdata.Loader
	log    zerolog.Logger
}

// NewEngine creates a new cross-asset engine
func NewEngine(loader marketdata.Loader, log zerolog.Logger) *Engine {
	return &Engine{
		loader: loader,
		log:    log.With().Str("component", "crossasset").Logger(),
	}
}

// Build loads close prices up to asOf, aligns log returns on common dates
// and classifies the regime. Missing assets degrade the read instead of
// failing it.
func (e *Engine) Build(asOf time.Time) (domain.CrossAssetPack, error) {
	pack := domain.CrossAssetPack{AsOf: domain.Midnight(asOf)}

	returns := make(map[domain.Asset]map[string]float64)
	for _, asset := range domain.UniverseAssets() {
		s, err := e.loader.LoadAsOf(string(asset), asOf, priceLookbackDays)
		if err != nil {
			e.log.Warn().Str("asset", string(asset)).Err(err).Msg("Price series unavailable for cross-asset read")
			pack.Missing = append(pack.Missing, string(asset))
			continue
		}
		returns[asset] = returnsByDate(s)
	}

	if len(returns) < 2 {
		pack.Regime = domain.CrossMixed
		pack.Confidence = 0
		pack.DecoupleScore = 1
		pack.Rationale = []string{"insufficient asset coverage for correlation structure"}
		return pack, nil
	}

	dates := commonDates(returns)

	for _, w := range Windows {
		pack.Windows = append(pack.Windows, windowCorrelations(returns, dates, w))
	}

	classify(&pack)
	return pack, nil
}

// returnsByDate maps date keys to single-period log returns.
func returnsByDate(s domain.Series) map[string]float64 {
	out := make(map[string]float64, s.Len())
	for i := 1; i < len(s.Points); i++ {
		prev, cur := s.Points[i-1].Value, s.Points[i].Value
		if prev <= 0 || cur <= 0 {
			continue
		}
		out[domain.DateKey(s.Points[i].Date)] = math.Log(cur / prev)
	}
	return out
}

// commonDates returns the dates on which every available asset has a return,
// ascending.
func commonDates(returns map[domain.Asset]map[string]float64) []string {
	var dates []string
	for date := range firstMap(returns) {
		shared := true
		for _, byDate := range returns {
			if _, ok := byDate[date]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}

func firstMap(returns map[domain.Asset]map[string]float64) map[string]float64 {
	for _, byDate := range returns {
		return byDate
	}
	return nil
}

// windowCorrelations computes the six pair correlations over the trailing
// window of common dates.
func windowCorrelations(returns map[domain.Asset]map[string]float64, dates []string, window int) domain.WindowCorrelations {
	tail := dates
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}

	wc := domain.WindowCorrelations{
		Window:     window,
		Samples:    len(tail),
		Sufficient: len(tail)*2 >= window,
		Pairs:      make(map[string]float64),
	}

	universe := domain.UniverseAssets()
	for i := 0; i < len(universe); i++ {
		for j := i + 1; j < len(universe); j++ {
			a, b := universe[i], universe[j]
			ra, okA := returns[a]
			rb, okB := returns[b]
			if !okA || !okB {
				continue
			}

			xs := make([]float64, 0, len(tail))
			ys := make([]float64, 0, len(tail))
			for _, d := range tail {
				xs = append(xs, ra[d])
				ys = append(ys, rb[d])
			}

			corr, ok := rolling.Pearson(xs, ys)
			if !ok {
				continue
			}
			wc.Pairs[domain.PairKey(a, b)] = corr
		}
	}

	return wc
}

// classify fills the regime label, confidence, rationale and diagnostics on
// an assembled pack.
func classify(pack *domain.CrossAssetPack) {
	pack.DecoupleScore = decoupleScore(*pack)
	pack.SignFlipCount = signFlipCount(*pack)
	pack.CorrStability = corrStability(*pack)
	pack.ContagionScore = contagionScore(*pack)

	regime, rationale, strength := selectRegime(*pack, primaryWindow)
	pack.Regime = regime
	pack.Rationale = rationale
	pack.Confidence = confidence(*pack, strength)
}

// selectRegime applies the priority rules on one window. strength counts how
// decisively the winning rule's thresholds were exceeded.
func selectRegime(pack domain.CrossAssetPack, window int) (domain.CrossAssetRegime, []string, int) {
	corr := func(a, b domain.Asset) (float64, bool) { return pack.CorrAt(window, a, b) }

	btcSpx, okRisk := corr(domain.AssetBTC, domain.AssetSPX)
	dxySpx, okDxySpx := corr(domain.AssetDXY, domain.AssetSPX)
	dxyBtc, okDxyBtc := corr(domain.AssetDXY, domain.AssetBTC)
	goldSpx, okGoldSpx := corr(domain.AssetGOLD, domain.AssetSPX)
	goldBtc, okGoldBtc := corr(domain.AssetGOLD, domain.AssetBTC)
	dxyGold, okDxyGold := corr(domain.AssetDXY, domain.AssetGOLD)

	if !okRisk {
		return domain.CrossMixed, []string{fmt.Sprintf("btc/spx correlation unavailable in %dd window", window)}, 0
	}

	// Risk assets moving together with the dollar joining the move means
	// everything is being sold or bought at once.
	if btcSpx >= syncCorrMin &&
		((okDxyBtc && dxyBtc >= dollarJoinMin) || (okDxySpx && dxySpx >= dollarJoinMin)) {
		return domain.CrossRiskOffSync, []string{
			fmt.Sprintf("btc/spx corr %.2f with dollar co-moving", btcSpx),
		}, 2
	}

	if btcSpx >= syncCorrMin && okDxySpx && dxySpx <= dollarInverseMax && okGoldSpx && goldSpx <= 0 {
		return domain.CrossRiskOnSync, []string{
			fmt.Sprintf("btc/spx corr %.2f, dollar inverse %.2f, gold flat-to-negative", btcSpx, dxySpx),
		}, 3
	}

	if okGoldBtc && goldBtc <= goldHedgeMax && okGoldSpx && goldSpx <= goldHedgeMax &&
		okDxyGold && dxyGold <= goldHedgeMax {
		return domain.CrossFlightToQuality, []string{
			fmt.Sprintf("gold hedging risk assets (%.2f vs btc, %.2f vs spx)", goldBtc, goldSpx),
		}, 3
	}

	if btcSpx <= decoupleCorrMax && pack.DecoupleScore >= decoupleScoreMin {
		return domain.CrossDecoupled, []string{
			fmt.Sprintf("btc/spx corr %.2f with decouple score %.2f", btcSpx, pack.DecoupleScore),
		}, 2
	}

	return domain.CrossMixed, []string{"no dominant correlation structure"}, 0
}

// decoupleScore is 1 minus the absolute mean pairwise correlation in the
// primary window: 1 means no shared structure at all.
func decoupleScore(pack domain.CrossAssetPack) float64 {
	for _, w := range pack.Windows {
		if w.Window != primaryWindow || !w.Sufficient || len(w.Pairs) == 0 {
			continue
		}
		var sum float64
		for _, corr := range w.Pairs {
			sum += corr
		}
		return domain.Clamp(1-math.Abs(sum/float64(len(w.Pairs))), 0, 1)
	}
	return 1
}

// signFlipCount counts pairs whose correlation sign flips between adjacent
// windows.
func signFlipCount(pack domain.CrossAssetPack) int {
	flips := 0
	for i := 1; i < len(pack.Windows); i++ {
		prev, cur := pack.Windows[i-1], pack.Windows[i]
		if !prev.Sufficient || !cur.Sufficient {
			continue
		}
		for key, corr := range cur.Pairs {
			before, ok := prev.Pairs[key]
			if !ok {
				continue
			}
			if (before > 0) != (corr > 0) {
				flips++
			}
		}
	}
	return flips
}

// corrStability is the mean per-pair variance of correlations across windows.
// Low values mean the structure agrees at every horizon.
func corrStability(pack domain.CrossAssetPack) float64 {
	byPair := make(map[string][]float64)
	for _, w := range pack.Windows {
		if !w.Sufficient {
			continue
		}
		for key, corr := range w.Pairs {
			byPair[key] = append(byPair[key], corr)
		}
	}

	var sum float64
	var pairs int
	for _, corrs := range byPair {
		if len(corrs) < 2 {
			continue
		}
		sum += stat.Variance(corrs, nil)
		pairs++
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

// contagionScore is the mean absolute correlation of pairs touching a risk
// asset in the primary window.
func contagionScore(pack domain.CrossAssetPack) float64 {
	riskPairs := map[string]bool{}
	for _, risk := range domain.RiskAssets() {
		for _, other := range domain.UniverseAssets() {
			if other == risk {
				continue
			}
			riskPairs[domain.PairKey(risk, other)] = true
			riskPairs[domain.PairKey(other, risk)] = true
		}
	}

	for _, w := range pack.Windows {
		if w.Window != primaryWindow || !w.Sufficient {
			continue
		}
		var sum float64
		var n int
		for key, corr := range w.Pairs {
			if riskPairs[key] {
				sum += math.Abs(corr)
				n++
			}
		}
		if n > 0 {
			return sum / float64(n)
		}
	}
	return 0
}

// confidence blends rule strength with cross-window consistency.
func confidence(pack domain.CrossAssetPack, strength int) float64 {
	c := 0.3 + 0.15*float64(strength)

	// Consistency bonus when every sufficient window picks the same regime
	consistent := true
	counted := 0
	for _, w := range pack.Windows {
		if !w.Sufficient {
			continue
		}
		counted++
		regime, _, _ := selectRegime(pack, w.Window)
		if regime != pack.Regime {
			consistent = false
		}
	}
	if counted >= 2 && consistent {
		c += 0.2
	}

	// Penalize unstable structure
	c -= domain.Clamp(pack.CorrStability*2, 0, 0.2)
	c -= 0.05 * float64(len(pack.Missing))

	return domain.Clamp(c, 0, 1)
}
