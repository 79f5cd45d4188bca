// Package calibration optimizes per-horizon macro weight vectors on a
// walk-forward dataset and stores them as versioned weight sets.
package calibration

// LCG is a deterministic linear congruential generator. The calibrator never
// uses math/rand so that identical seeds give identical searches on every
// platform.
type LCG struct {
	state uint64
}

// NewLCG seeds a generator. A zero seed is replaced so the stream never
// collapses to zero.
func NewLCG(seed int64) *LCG {
	if seed == 0 {
		return &LCG{state: 0x9E3779B97F4A7C15}
	}
	return &LCG{state: uint64(seed)}
}

// Uint64 advances the generator (Knuth MMIX constants).
func (r *LCG) Uint64() uint64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state
}

// Float64 returns a uniform value in [0, 1).
func (r *LCG) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Intn returns a uniform value in [0, n).
func (r *LCG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}
