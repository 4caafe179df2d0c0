package model

// FaultWindow forces a sensor beyond its critical threshold for every step
// strictly between From and To.
type FaultWindow struct {
	From   int     `yaml:"from" json:"from"`
	To     int     `yaml:"to" json:"to"`
	Offset float64 `yaml:"offset" json:"offset"`
	Margin float64 `yaml:"margin,omitempty" json:"margin,omitempty"`
}

func (w FaultWindow) Contains(step int) bool {
	return step > w.From && step < w.To
}

func (w FaultWindow) Overlaps(o FaultWindow) bool {
	// open intervals (a,b) and (c,d) share an integer step when max(a,c)+1 < min(b,d)
	lo, hi := w.From, w.To
	if o.From > lo {
		lo = o.From
	}
	if o.To < hi {
		hi = o.To
	}
	return lo+1 < hi
}

type SensorDefinition struct {
	ID        int           `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	Unit      string        `yaml:"unit,omitempty" json:"unit,omitempty"`
	Min       float64       `yaml:"min" json:"min"`
	Max       float64       `yaml:"max" json:"max"`
	Alert     float64       `yaml:"alert" json:"alert"`
	AlertHigh float64       `yaml:"alert_high,omitempty" json:"alert_high,omitempty"`
	Critical  float64       `yaml:"critical" json:"critical"`
	Inverted  bool          `yaml:"inverted,omitempty" json:"inverted,omitempty"`
	Initial   float64       `yaml:"initial" json:"initial"`
	MaxDelta  float64       `yaml:"max_delta" json:"max_delta"`
	Windows   []FaultWindow `yaml:"fault_windows,omitempty" json:"fault_windows,omitempty"`
}

// Breaches reports whether v is beyond the critical threshold, on the side
// the sensor considers dangerous.
func (d SensorDefinition) Breaches(v float64) bool {
	if d.Inverted {
		return v < d.Critical
	}
	return v > d.Critical
}

// Classify mirrors the firmware's alert logic. Output is never constrained by it.
func (d SensorDefinition) Classify(v float64) Level {
	if d.Inverted {
		if v < d.Critical {
			return LevelCritical
		}
		if v < d.Alert || (d.AlertHigh > 0 && v > d.AlertHigh) {
			return LevelAlert
		}
		return LevelNormal
	}

	if v > d.Critical {
		return LevelCritical
	}
	if v > d.Alert {
		return LevelAlert
	}
	return LevelNormal
}

type Level string

const (
	LevelNormal   Level = "NORMAL"
	LevelAlert    Level = "ALERTA"
	LevelCritical Level = "CRITICO"
)

var Levels = []Level{LevelNormal, LevelAlert, LevelCritical}
