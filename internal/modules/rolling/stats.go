// Package rolling provides pure windowed statistics for the decision engine.
// Every function returns an explicit ok flag instead of NaN when its minimum
// sample rule is not met.
package rolling

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// MinCorrelationSamples - Pearson correlation needs at least this many pairs
	MinCorrelationSamples = 5
	// MinZScoreSamples - z-scores need at least this many historical deltas
	MinZScoreSamples = 20
	// MinFiveYearSamples - 5-year summary stats need at least a year of weekly points
	MinFiveYearSamples = 52

	// zeroVarianceEps guards correlation and z-score denominators
	zeroVarianceEps = 1e-12
)

// Mean returns the arithmetic mean.
func Mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return stat.Mean(xs, nil), true
}

// StdDev returns the sample standard deviation.
func StdDev(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	return stat.StdDev(xs, nil), true
}

// Deltas returns xs[i] - xs[i-lag] for every index where the lagged value
// exists. The result is empty when the series is shorter than the lag.
func Deltas(xs []float64, lag int) []float64 {
	if lag <= 0 || len(xs) <= lag {
		return nil
	}
	out := make([]float64, 0, len(xs)-lag)
	for i := lag; i < len(xs); i++ {
		out = append(out, xs[i]-xs[i-lag])
	}
	return out
}

// ZScore standardizes current against the history distribution. Requires at
// least MinZScoreSamples points and non-degenerate variance.
func ZScore(current float64, history []float64) (float64, bool) {
	if len(history) < MinZScoreSamples {
		return 0, false
	}
	mean := stat.Mean(history, nil)
	std := stat.StdDev(history, nil)
	if std < zeroVarianceEps {
		return 0, false
	}
	return (current - mean) / std, true
}

// Pearson computes the Pearson correlation of two equal-length samples.
// Zero-variance inputs yield 0, never NaN. Requires MinCorrelationSamples.
func Pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n != len(ys) || n < MinCorrelationSamples {
		return 0, false
	}

	meanX := stat.Mean(xs, nil)
	meanY := stat.Mean(ys, nil)

	var num, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		num += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	denom := math.Sqrt(varX * varY)
	if denom < zeroVarianceEps {
		return 0, true
	}
	return num / denom, true
}

// Summary holds windowed min/max/mean/std statistics.
type Summary struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// FiveYearSummary computes the summary over a (weekly) window. Requires at
// least MinFiveYearSamples points.
func FiveYearSummary(xs []float64) (Summary, bool) {
	if len(xs) < MinFiveYearSamples {
		return Summary{}, false
	}

	min, max := xs[0], xs[0]
	for _, v := range xs[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return Summary{
		Mean: stat.Mean(xs, nil),
		Std:  stat.StdDev(xs, nil),
		Min:  min,
		Max:  max,
	}, true
}

// LogReturns converts a price path to log returns. Non-positive prices break
// the chain and the affected return is skipped.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// Tail returns the last n elements of xs (or all of xs when shorter).
func Tail(xs []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// IsFinite reports whether every value is finite. Numeric routines use this
// to reject contract violations before they propagate.
func IsFinite(xs ...float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
