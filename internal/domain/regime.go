package domain

import "time"

// MacroRegime is a discrete macro policy state.
type MacroRegime string

const (
	RegimeEasing       MacroRegime = "EASING"
	RegimeTightening   MacroRegime = "TIGHTENING"
	RegimeStress       MacroRegime = "STRESS"
	RegimeNeutral      MacroRegime = "NEUTRAL"
	RegimeNeutralMixed MacroRegime = "NEUTRAL_MIXED"
)

// AllMacroRegimes returns the regimes in transition-matrix row order.
func AllMacroRegimes() []MacroRegime {
	return []MacroRegime{RegimeEasing, RegimeTightening, RegimeStress, RegimeNeutral, RegimeNeutralMixed}
}

// RegimeState is one Markov posterior observation for an (asset, date).
// History is append-only; (asset, date) is unique.
type RegimeState struct {
	Asset       Asset                   `json:"asset"`
	Date        time.Time               `json:"date"`
	Regime      MacroRegime             `json:"regime"`
	Posterior   map[MacroRegime]float64 `json:"posterior"`
	Persistence float64                 `json:"persistence"` // self-transition probability of the dominant regime
	// TransitionHint names the most likely next regime when persistence < 0.5.
	TransitionHint *MacroRegime `json:"transitionHint,omitempty"`
	Changes30D     int          `json:"changes30d"`
	Stability      float64      `json:"stability"` // max(0, 1 - changes30d/5)
}

// CrossAssetRegime labels the correlation structure across the universe.
type CrossAssetRegime string

const (
	CrossRiskOnSync      CrossAssetRegime = "RISK_ON_SYNC"
	CrossRiskOffSync     CrossAssetRegime = "RISK_OFF_SYNC"
	CrossFlightToQuality CrossAssetRegime = "FLIGHT_TO_QUALITY"
	CrossDecoupled       CrossAssetRegime = "DECOUPLED"
	CrossMixed           CrossAssetRegime = "MIXED"
)

// PairKey builds the canonical correlation map key for an asset pair.
func PairKey(a, b Asset) string {
	return string(a) + "/" + string(b)
}

// WindowCorrelations holds the six pair correlations for one rolling window.
type WindowCorrelations struct {
	Window     int                `json:"window"`
	Samples    int                `json:"samples"`
	Sufficient bool               `json:"sufficient"` // samples >= 0.5 * window
	Pairs      map[string]float64 `json:"pairs"`
}

// CrossAssetPack is the full cross-asset regime read at a reference date.
type CrossAssetPack struct {
	AsOf           time.Time            `json:"asOf"`
	Windows        []WindowCorrelations `json:"windows"`
	Regime         CrossAssetRegime     `json:"regime"`
	Confidence     float64              `json:"confidence"`
	Rationale      []string             `json:"rationale"`
	ContagionScore float64              `json:"contagionScore"`
	DecoupleScore  float64              `json:"decoupleScore"`
	SignFlipCount  int                  `json:"signFlipCount"`
	CorrStability  float64              `json:"corrStability"`
	Missing        []string             `json:"missing,omitempty"`
}

// CorrAt returns the correlation for a pair in the given window, trying both
// key orders.
func (p CrossAssetPack) CorrAt(window int, a, b Asset) (float64, bool) {
	for _, w := range p.Windows {
		if w.Window != window || !w.Sufficient {
			continue
		}
		if v, ok := w.Pairs[PairKey(a, b)]; ok {
			return v, true
		}
		if v, ok := w.Pairs[PairKey(b, a)]; ok {
			return v, true
		}
	}
	return 0, false
}
