package domain

// ComponentContribution is one series' signed contribution to a macro score.
type ComponentContribution struct {
	SeriesID string  `json:"seriesId"`
	Weight   float64 `json:"weight"`
	LagDays  int     `json:"lagDays"`
	Pressure float64 `json:"pressure"` // signed sigma*z*w term
}

// MacroScore is the weighted aggregate macro signal for one (asset, horizon).
type MacroScore struct {
	Asset      Asset                   `json:"asset"`
	Horizon    Horizon                 `json:"horizon"`
	Score      float64                 `json:"score"`      // signed, in [-1, +1]
	Confidence float64                 `json:"confidence"` // [0, 1]
	Components []ComponentContribution `json:"components"`
	Missing    []string                `json:"missing,omitempty"`
	// SkippedWeight is the total weight of series that could not be scored,
	// before renormalization.
	SkippedWeight float64 `json:"skippedWeight"`
}

// LiquidityRegime classifies the net Fed liquidity impulse.
type LiquidityRegime string

const (
	LiquidityExpansion   LiquidityRegime = "EXPANSION"
	LiquidityNeutral     LiquidityRegime = "NEUTRAL"
	LiquidityContraction LiquidityRegime = "CONTRACTION"
)

// LiquidityComponents decomposes the impulse into its inputs. A nil entry
// means the component series was unavailable at the reference date.
type LiquidityComponents struct {
	WALCL *float64 `json:"walcl"`
	RRP   *float64 `json:"rrp"`
	TGA   *float64 `json:"tga"`
}

// LiquidityState is the combined liquidity read at a reference date.
type LiquidityState struct {
	Impulse    float64             `json:"impulse"` // [-3, +3]
	Regime     LiquidityRegime     `json:"regime"`
	Confidence float64             `json:"confidence"` // [0, 1]
	Components LiquidityComponents `json:"components"`
	Available  int                 `json:"available"` // count of usable components
}
