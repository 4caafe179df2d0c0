// Package fault overrides the walk inside configured step windows so that
// every run contains critical readings.
package fault

import (
	"math"

	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/walk"
)

// MinMargin is the smallest distance from the critical threshold that
// survives rounding to the reporting precision.
const MinMargin = 0.01

// Active returns the window covering step, if any. Windows of one sensor
// never overlap, so at most one matches.
func Active(def model.SensorDefinition, step int) (model.FaultWindow, bool) {
	for _, w := range def.Windows {
		if w.Contains(step) {
			return w, true
		}
	}
	return model.FaultWindow{}, false
}

// MaybeInject applies the window offset covering step to the walked value.
// The offset is carried in the returned state so the elevated level persists
// into the next step. Inside a window the reported value is always beyond
// the critical threshold; outside one the walked value passes through.
func MaybeInject(def model.SensorDefinition, step int, walked float64, state model.SensorState) (float64, model.SensorState, bool) {
	w, ok := Active(def, step)
	if !ok {
		state.Current = walked
		return walked, state, false
	}

	margin := math.Max(w.Margin, MinMargin)
	if w.Margin == 0 {
		margin = math.Max(w.Offset, MinMargin)
	}

	v := walked
	if def.Inverted {
		v -= w.Offset
		if !def.Breaches(walk.Round(v, walk.Precision)) {
			v = def.Critical - margin
		}
	} else {
		v += w.Offset
		if !def.Breaches(walk.Round(v, walk.Precision)) {
			v = def.Critical + margin
		}
	}

	v = walk.Round(walk.Clamp(v, def.Min, def.Max), walk.Precision)
	state.Current = v
	return v, state, true
}
