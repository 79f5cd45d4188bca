// Package domain holds the shared value types of the decision engine.
// The package is pure: no infrastructure dependencies, no I/O.
package domain

import "time"

// Asset identifies a tradeable or context asset.
type Asset string

const (
	AssetDXY  Asset = "DXY"
	AssetSPX  Asset = "SPX"
	AssetBTC  Asset = "BTC"
	AssetGOLD Asset = "GOLD" // cross-asset context only, never allocated
)

// RiskAssets returns the assets the policy may allocate risk to.
func RiskAssets() []Asset {
	return []Asset{AssetSPX, AssetBTC}
}

// UniverseAssets returns all assets used for cross-asset context.
func UniverseAssets() []Asset {
	return []Asset{AssetBTC, AssetSPX, AssetDXY, AssetGOLD}
}

// Horizon is a forward return window in trading days.
type Horizon string

const (
	Horizon30D  Horizon = "30D"
	Horizon90D  Horizon = "90D"
	Horizon180D Horizon = "180D"
	Horizon365D Horizon = "365D"
)

// AllHorizons returns the supported horizons in ascending order.
func AllHorizons() []Horizon {
	return []Horizon{Horizon30D, Horizon90D, Horizon180D, Horizon365D}
}

// TradingDays returns the horizon length in trading days.
func (h Horizon) TradingDays() int {
	switch h {
	case Horizon30D:
		return 30
	case Horizon90D:
		return 90
	case Horizon180D:
		return 180
	case Horizon365D:
		return 365
	default:
		return 0
	}
}

// ReturnBound returns the symmetric clamp applied to quantile forecasts at
// this horizon. Forecasts outside the bound are treated as numeric noise.
func (h Horizon) ReturnBound() float64 {
	switch h {
	case Horizon30D:
		return 0.30
	case Horizon90D:
		return 0.60
	case Horizon180D:
		return 1.00
	case Horizon365D:
		return 2.00
	default:
		return 0.30
	}
}

// RiskBand returns the normalization band for tail risk at this horizon.
func (h Horizon) RiskBand() float64 {
	switch h {
	case Horizon30D:
		return 0.04
	case Horizon90D:
		return 0.08
	case Horizon180D:
		return 0.12
	case Horizon365D:
		return 0.18
	default:
		return 0.04
	}
}

// Valid reports whether h is a supported horizon.
func (h Horizon) Valid() bool {
	return h.TradingDays() > 0
}

// Frequency is the native sampling frequency of a series.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// DateKey formats a date as the canonical YYYY-MM-DD key used across the
// store and all pipelines.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseDate parses a canonical YYYY-MM-DD key into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// Midnight truncates a time to UTC midnight. All date-keyed pipelines
// normalize through this before comparing.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ConfidenceFromLabel maps the legacy string confidence labels onto the
// numeric [0,1] scale used internally.
func ConfidenceFromLabel(label string) float64 {
	switch label {
	case "LOW":
		return 0.3
	case "MEDIUM":
		return 0.6
	case "HIGH":
		return 0.9
	default:
		return 0.0
	}
}

// ConfidenceLabel maps a numeric confidence back to the coarse label used in
// API payloads.
func ConfidenceLabel(c float64) string {
	switch {
	case c >= 0.75:
		return "HIGH"
	case c >= 0.45:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
