package pipeline

import (
	"errors"
	"fmt"

	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/registry"
)

var ErrMismatch = errors.New("readings do not match registry")

// Verify checks a decoded output against the registry that produced it and
// returns the number of steps found. intervalMs of zero infers the interval
// from the first two steps.
func Verify(readings []model.Reading, reg *registry.Registry, intervalMs int64) (int, error) {
	sensors := reg.Sensors()
	if len(sensors) == 0 {
		return 0, fmt.Errorf("%w: empty registry", ErrMismatch)
	}
	if len(readings)%len(sensors) != 0 {
		return 0, fmt.Errorf("%w: %d rows is not a multiple of %d sensors", ErrMismatch, len(readings), len(sensors))
	}

	steps := len(readings) / len(sensors)
	if intervalMs == 0 && steps > 1 {
		intervalMs = readings[len(sensors)].TimestampMs - readings[0].TimestampMs
	}
	if steps > 1 && intervalMs <= 0 {
		return 0, fmt.Errorf("%w: timestamps do not increase", ErrMismatch)
	}

	for k, r := range readings {
		step := k/len(sensors) + 1
		def := sensors[k%len(sensors)]

		if r.LocalID != step {
			return 0, fmt.Errorf("%w: row %d has id_local %d, want %d", ErrMismatch, k+1, r.LocalID, step)
		}
		if r.SensorID != def.ID {
			return 0, fmt.Errorf("%w: row %d has sensor %d, want %d", ErrMismatch, k+1, r.SensorID, def.ID)
		}
		if r.Value < def.Min || r.Value > def.Max {
			return 0, fmt.Errorf("%w: step %d sensor %d value %.2f outside [%g, %g]",
				ErrMismatch, step, def.ID, r.Value, def.Min, def.Max)
		}

		first := readings[(step-1)*len(sensors)]
		if r.TimestampMs != first.TimestampMs {
			return 0, fmt.Errorf("%w: step %d mixes timestamps", ErrMismatch, step)
		}
		if step > 1 && k%len(sensors) == 0 {
			prev := readings[k-len(sensors)]
			if r.TimestampMs-prev.TimestampMs != intervalMs {
				return 0, fmt.Errorf("%w: step %d is %d ms after the previous step, want %d",
					ErrMismatch, step, r.TimestampMs-prev.TimestampMs, intervalMs)
			}
		}

		for _, w := range def.Windows {
			if w.Contains(step) && !def.Breaches(r.Value) {
				return 0, fmt.Errorf("%w: step %d sensor %d value %.2f does not breach critical %g inside window (%d, %d)",
					ErrMismatch, step, def.ID, r.Value, def.Critical, w.From, w.To)
			}
		}
	}

	return steps, nil
}
