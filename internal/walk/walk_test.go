package walk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepStaysInRange(t *testing.T) {
	rng := NewSource(7)
	v := 30.0
	for i := 0; i < 10_000; i++ {
		next := Step(rng, v, 20, 100, 0.8)
		assert.GreaterOrEqual(t, next, 20.0)
		assert.LessOrEqual(t, next, 100.0)
		assert.LessOrEqual(t, next-v, 0.8+1e-9)
		assert.GreaterOrEqual(t, next-v, -0.8-1e-9)
		v = next
	}
}

func TestStepSaturatesAtBound(t *testing.T) {
	rng := NewSource(1)
	// with a delta far larger than the range every step lands on a bound or inside it
	for i := 0; i < 1000; i++ {
		next := Step(rng, 3.0, 0.1, 3.0, 50)
		assert.GreaterOrEqual(t, next, 0.1)
		assert.LessOrEqual(t, next, 3.0)
	}
}

func TestStepZeroDelta(t *testing.T) {
	rng := NewSource(1)
	assert.Equal(t, 42.0, Step(rng, 42, 20, 100, 0))
	assert.Equal(t, 100.0, Step(rng, 120, 20, 100, 0))
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a, b := NewSource(42), NewSource(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, Step(a, 50, 0, 100, 5), Step(b, 50, 0, 100, 5))
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 30.13, Round(30.126, 2))
	assert.Equal(t, 0.5, Round(0.499999, 2))
	assert.Equal(t, 80.0, Round(80.001, 2))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(-3, 5, 250))
	assert.Equal(t, 250.0, Clamp(300, 5, 250))
	assert.Equal(t, 17.5, Clamp(17.5, 5, 250))
}
