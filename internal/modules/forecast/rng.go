// Package forecast implements the quantile mixture-of-experts forecaster:
// per-regime linear quantile regressions trained with pinball loss and mixed
// at inference by the regime posterior.
package forecast

import "math"

// xorshift32 is the deterministic generator used for weight initialization
// and epoch shuffling. math/rand is avoided so trained weights are
// bit-identical across platforms for a given seed.
type xorshift32 struct {
	state uint32
}

func newXorshift32(seed uint32) *xorshift32 {
	if seed == 0 {
		seed = 0x6D2B79F5
	}
	return &xorshift32{state: seed}
}

func (r *xorshift32) next() uint32 {
	r.state ^= r.state << 13
	r.state ^= r.state >> 17
	r.state ^= r.state << 5
	return r.state
}

// float64 returns a uniform value in (0, 1].
func (r *xorshift32) float64() float64 {
	return float64(r.next()) / float64(math.MaxUint32)
}

// normal draws a standard normal via Box-Muller.
func (r *xorshift32) normal() float64 {
	u1 := r.float64()
	u2 := r.float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// shuffle performs a Fisher-Yates pass over the index slice.
func (r *xorshift32) shuffle(idx []int) {
	for i := len(idx) - 1; i > 0; i-- {
		j := int(r.next() % uint32(i+1))
		idx[i], idx[j] = idx[j], idx[i]
	}
}
