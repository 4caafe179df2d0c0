// Package walk implements the bounded random walk that drives every
// simulated sensor.
package walk

import (
	"math"
	"math/rand/v2"
)

// Step perturbs current by a value drawn uniformly from [-maxDelta, maxDelta]
// and clamps the result to [min, max]. A walk sitting on a bound stays there
// while the draws keep pushing outward.
func Step(rng *rand.Rand, current, min, max, maxDelta float64) float64 {
	if maxDelta <= 0 {
		return Clamp(current, min, max)
	}
	delta := (2*rng.Float64() - 1) * maxDelta
	return Clamp(current+delta, min, max)
}

// Precision is the number of decimal places readings are reported with.
const Precision = 2

// Clamp limits v to [min, max].
func Clamp(v, min, max float64) float64 {
	return math.Min(math.Max(v, min), max)
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// NewSource returns a deterministic generator for seeded runs.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewUnseededSource returns a generator seeded from the runtime's entropy.
func NewUnseededSource() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
