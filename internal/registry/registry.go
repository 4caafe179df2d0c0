// Package registry holds the static table of simulated sensors.
package registry

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/speedwagon-io/sensorsim/internal/fault"
	"github.com/speedwagon-io/sensorsim/internal/model"
)

var ErrInvalidRegistry = errors.New("invalid sensor registry")

// Registry is read-only after New returns.
type Registry struct {
	sensors []model.SensorDefinition
	index   map[int]int
}

type File struct {
	Sensors []model.SensorDefinition `yaml:"sensors"`
}

func New(defs []model.SensorDefinition) (*Registry, error) {
	r := &Registry{
		sensors: make([]model.SensorDefinition, 0, len(defs)),
		index:   make(map[int]int, len(defs)),
	}

	for _, d := range defs {
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate sensor id %d", ErrInvalidRegistry, d.ID)
		}
		if err := validate(d); err != nil {
			return nil, fmt.Errorf("%w: sensor %d: %v", ErrInvalidRegistry, d.ID, err)
		}

		d.Windows = append([]model.FaultWindow(nil), d.Windows...)
		r.index[d.ID] = len(r.sensors)
		r.sensors = append(r.sensors, d)
	}

	return r, nil
}

func validate(d model.SensorDefinition) error {
	if d.Min >= d.Max {
		return fmt.Errorf("min %.2f must be below max %.2f", d.Min, d.Max)
	}
	if d.Initial < d.Min || d.Initial > d.Max {
		return fmt.Errorf("initial value %.2f outside [%.2f, %.2f]", d.Initial, d.Min, d.Max)
	}
	if d.MaxDelta < 0 {
		return fmt.Errorf("max_delta must not be negative")
	}
	if len(d.Windows) == 0 {
		return nil
	}

	if d.Inverted && d.Critical-fault.MinMargin < d.Min {
		return fmt.Errorf("critical %.2f leaves no room below it in [%.2f, %.2f]", d.Critical, d.Min, d.Max)
	}
	if !d.Inverted && d.Critical+fault.MinMargin > d.Max {
		return fmt.Errorf("critical %.2f leaves no room above it in [%.2f, %.2f]", d.Critical, d.Min, d.Max)
	}

	for i, w := range d.Windows {
		if w.From >= w.To {
			return fmt.Errorf("fault window (%d,%d) is empty", w.From, w.To)
		}
		if w.Offset <= 0 {
			return fmt.Errorf("fault window (%d,%d) needs a positive offset", w.From, w.To)
		}
		if w.Margin < 0 {
			return fmt.Errorf("fault window (%d,%d) has a negative margin", w.From, w.To)
		}
		for _, o := range d.Windows[:i] {
			if w.Overlaps(o) {
				return fmt.Errorf("fault windows (%d,%d) and (%d,%d) overlap", o.From, o.To, w.From, w.To)
			}
		}
	}
	return nil
}

func (r *Registry) Lookup(id int) (model.SensorDefinition, bool) {
	i, ok := r.index[id]
	if !ok {
		return model.SensorDefinition{}, false
	}
	return r.sensors[i], true
}

// Sensors returns the definitions in registry order. Callers get a copy.
func (r *Registry) Sensors() []model.SensorDefinition {
	out := make([]model.SensorDefinition, len(r.sensors))
	copy(out, r.sensors)
	return out
}

func (r *Registry) Len() int {
	return len(r.sensors)
}

func (r *Registry) Classify(id int, v float64) (model.Level, bool) {
	d, ok := r.Lookup(id)
	if !ok {
		return "", false
	}
	return d.Classify(v), true
}

func Load(path string) (*Registry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sensor registry file: %w", err)
	}

	var f File
	if err := cleanenv.ReadConfig(path, &f); err != nil {
		return nil, fmt.Errorf("failed to read sensor registry: %w", err)
	}
	if len(f.Sensors) == 0 {
		return nil, fmt.Errorf("%w: %s declares no sensors", ErrInvalidRegistry, path)
	}

	return New(f.Sensors)
}

// FromPath loads path, or returns the reference registry when path is empty.
func FromPath(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
