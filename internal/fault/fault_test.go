package fault

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speedwagon-io/sensorsim/internal/model"
)

var temperature = model.SensorDefinition{
	ID: 1, Min: 20, Max: 100, Alert: 60, Critical: 80, Initial: 30, MaxDelta: 0.8,
	Windows: []model.FaultWindow{{From: 50, To: 70, Offset: 3}, {From: 150, To: 170, Offset: 3}},
}

func TestMaybeInjectOutsideWindow(t *testing.T) {
	for _, step := range []int{1, 50, 70, 100, 150, 170} {
		v, st, injected := MaybeInject(temperature, step, 31.5, model.SensorState{Current: 31})
		assert.False(t, injected, "step %d", step)
		assert.Equal(t, 31.5, v)
		assert.Equal(t, 31.5, st.Current)
	}
}

func TestMaybeInjectBreachesCritical(t *testing.T) {
	for step := 51; step < 70; step++ {
		v, st, injected := MaybeInject(temperature, step, 30, model.SensorState{Current: 30})
		assert.True(t, injected)
		assert.Greater(t, v, temperature.Critical, "step %d", step)
		assert.Equal(t, v, st.Current)
	}
}

func TestMaybeInjectAccumulatesOffset(t *testing.T) {
	v, _, injected := MaybeInject(temperature, 60, 85, model.SensorState{Current: 85})
	assert.True(t, injected)
	assert.Equal(t, 88.0, v)
}

func TestMaybeInjectClampsToMax(t *testing.T) {
	v, st, _ := MaybeInject(temperature, 160, 99.5, model.SensorState{Current: 99.5})
	assert.Equal(t, 100.0, v)
	assert.Equal(t, 100.0, st.Current)
}

func TestMaybeInjectInverted(t *testing.T) {
	level := model.SensorDefinition{
		ID: 3, Min: 5, Max: 250, Alert: 20, Critical: 15, Inverted: true,
		Windows: []model.FaultWindow{{From: 10, To: 20, Offset: 5, Margin: 2}},
	}

	v, _, injected := MaybeInject(level, 11, 150, model.SensorState{Current: 150})
	assert.True(t, injected)
	assert.Equal(t, 13.0, v)
	assert.True(t, level.Breaches(v))

	v, _, _ = MaybeInject(level, 12, 16, model.SensorState{Current: 16})
	assert.Equal(t, 11.0, v)

	v, _, _ = MaybeInject(level, 13, 6, model.SensorState{Current: 6})
	assert.Equal(t, 5.0, v, "clamped to range floor")
}

func TestMaybeInjectRoundingKeepsBreach(t *testing.T) {
	def := model.SensorDefinition{
		ID: 9, Min: 0, Max: 10, Critical: 5,
		Windows: []model.FaultWindow{{From: 0, To: 5, Offset: 0.001}},
	}
	// 5.0035 breaches before rounding but reports as 5.00
	v, _, _ := MaybeInject(def, 1, 5.0025, model.SensorState{})
	assert.Greater(t, v, 5.0)
}

func TestActive(t *testing.T) {
	w, ok := Active(temperature, 155)
	assert.True(t, ok)
	assert.Equal(t, 150, w.From)

	_, ok = Active(temperature, 100)
	assert.False(t, ok)
}
