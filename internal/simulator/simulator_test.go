package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/sensorsim/internal/fault"
	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/registry"
)

const base = int64(1_700_000_000_000)

func newTestSimulator(seed uint64) *Simulator {
	return New(sl.Discard(), registry.Default(), Options{Seed: seed, BaseTimestampMs: base})
}

func TestRunReferenceScenario(t *testing.T) {
	reg := registry.Default()
	readings, err := newTestSimulator(42).Run(context.Background(), 200, 1000)
	require.NoError(t, err)
	require.Len(t, readings, 600)

	for i, r := range readings {
		step := i/3 + 1
		assert.Equal(t, step, r.LocalID)
		assert.Equal(t, base+int64(step)*1000, r.TimestampMs)
		assert.Equal(t, i%3+1, r.SensorID, "sensor-minor order")

		def, ok := reg.Lookup(r.SensorID)
		require.True(t, ok)
		assert.GreaterOrEqual(t, r.Value, def.Min)
		assert.LessOrEqual(t, r.Value, def.Max)
	}

	var first, second bool
	for _, r := range readings {
		if r.SensorID != registry.SensorTemperature || r.Value <= 80 {
			continue
		}
		if r.LocalID > 50 && r.LocalID < 70 {
			first = true
		}
		if r.LocalID > 150 && r.LocalID < 170 {
			second = true
		}
	}
	assert.True(t, first, "critical temperature expected in (50,70)")
	assert.True(t, second, "critical temperature expected in (150,170)")
}

func TestEveryWindowStepBreachesCritical(t *testing.T) {
	reg := registry.Default()
	for _, seed := range []uint64{1, 2, 3, 42, 1234} {
		readings, err := newTestSimulator(seed).Run(context.Background(), 200, 1000)
		require.NoError(t, err)

		for _, r := range readings {
			def, _ := reg.Lookup(r.SensorID)
			if _, in := fault.Active(def, r.LocalID); in {
				assert.True(t, def.Breaches(r.Value), "seed %d sensor %d step %d value %.2f", seed, r.SensorID, r.LocalID, r.Value)
			}
		}
	}
}

func TestValuesHaveTwoDecimals(t *testing.T) {
	readings, err := newTestSimulator(9).Run(context.Background(), 50, 1000)
	require.NoError(t, err)
	for _, r := range readings {
		assert.InDelta(t, r.Value, float64(int64(r.Value*100+0.5))/100, 1e-9)
	}
}

func TestSeededRunsAreIdentical(t *testing.T) {
	a, err := newTestSimulator(42).Run(context.Background(), 200, 500)
	require.NoError(t, err)
	b, err := newTestSimulator(42).Run(context.Background(), 200, 500)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := newTestSimulator(43).Run(context.Background(), 200, 500)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRerunReproduces(t *testing.T) {
	sim := newTestSimulator(5)
	a, err := sim.Run(context.Background(), 20, 1000)
	require.NoError(t, err)
	b, err := sim.Run(context.Background(), 20, 1000)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnseededRunSatisfiesInvariants(t *testing.T) {
	reg := registry.Default()
	sim := New(sl.Discard(), reg, Options{Unseeded: true})
	readings, err := sim.Run(context.Background(), 120, 1000)
	require.NoError(t, err)
	require.Len(t, readings, 360)

	for _, r := range readings {
		def, _ := reg.Lookup(r.SensorID)
		assert.GreaterOrEqual(t, r.Value, def.Min)
		assert.LessOrEqual(t, r.Value, def.Max)
		if _, in := fault.Active(def, r.LocalID); in {
			assert.True(t, def.Breaches(r.Value))
		}
	}
	assert.Equal(t, sim.BaseTimestampMs()+1000, readings[0].TimestampMs)
}

func TestResolveBase(t *testing.T) {
	assert.Equal(t, base, Options{BaseTimestampMs: base}.ResolveBase())
	assert.Equal(t, DefaultBaseTimestampMs, Options{Seed: 42}.ResolveBase())

	before := time.Now().UnixMilli()
	assert.GreaterOrEqual(t, Options{Unseeded: true}.ResolveBase(), before)
	assert.GreaterOrEqual(t, Options{Seed: 42, BaseTimestampMs: BaseNow}.ResolveBase(), before)
}

func TestSeededRunWithoutBaseIsReproducible(t *testing.T) {
	a, err := New(sl.Discard(), registry.Default(), Options{Seed: 42}).Run(context.Background(), 5, 1000)
	require.NoError(t, err)
	b, err := New(sl.Discard(), registry.Default(), Options{Seed: 42}).Run(context.Background(), 5, 1000)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, DefaultBaseTimestampMs+1000, a[0].TimestampMs)
}

func TestZeroSteps(t *testing.T) {
	readings, err := newTestSimulator(1).Run(context.Background(), 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestInvalidParameters(t *testing.T) {
	sim := newTestSimulator(1)

	_, err := sim.Run(context.Background(), -1, 1000)
	assert.ErrorIs(t, err, ErrInvalidRun)

	_, err = sim.Run(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func TestStreamDeliversWholeSteps(t *testing.T) {
	var injected []int
	steps := 0
	err := newTestSimulator(3).Stream(context.Background(), 100, 1000, func(res StepResult) error {
		steps++
		assert.Equal(t, steps, res.Point.Step)
		assert.Len(t, res.Readings, 3)
		injected = append(injected, res.Injected...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100, steps)

	counts := map[int]int{}
	for _, id := range injected {
		counts[id]++
	}
	// temperature (50,70) covers 51..69, vibration (90,110) covers 91..99 within 100 steps
	assert.Equal(t, 19, counts[registry.SensorTemperature])
	assert.Equal(t, 9, counts[registry.SensorVibration])
	assert.Zero(t, counts[registry.SensorDistance])
}

func TestStreamStopsBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []StepResult
	err := newTestSimulator(3).Stream(ctx, 100, 1000, func(res StepResult) error {
		got = append(got, res)
		if res.Point.Step == 10 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 10)
	for _, res := range got {
		assert.Len(t, res.Readings, 3)
	}
}

func TestStreamPropagatesCallbackError(t *testing.T) {
	boom := errors.New("disk full")
	err := newTestSimulator(3).Stream(context.Background(), 10, 1000, func(res StepResult) error {
		if res.Point.Step == 4 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRealtimePacing(t *testing.T) {
	sim := New(sl.Discard(), registry.Default(), Options{Seed: 1, BaseTimestampMs: base, Realtime: true})
	readings, err := sim.Run(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Len(t, readings, 9)
}

func TestCustomRegistry(t *testing.T) {
	reg, err := registry.New([]model.SensorDefinition{
		{
			ID: 10, Min: 5, Max: 250, Alert: 40, Critical: 30, Inverted: true, Initial: 200, MaxDelta: 2,
			Windows: []model.FaultWindow{{From: 5, To: 15, Offset: 10}},
		},
	})
	require.NoError(t, err)

	readings, err := New(sl.Discard(), reg, Options{Seed: 8, BaseTimestampMs: base}).Run(context.Background(), 30, 100)
	require.NoError(t, err)
	require.Len(t, readings, 30)

	for _, r := range readings {
		if r.LocalID > 5 && r.LocalID < 15 {
			assert.Less(t, r.Value, 30.0, "step %d", r.LocalID)
		}
	}
}
