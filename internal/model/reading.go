package model

type Reading struct {
	LocalID     int     `json:"id_local" msgpack:"id_local"`
	TimestampMs int64   `json:"data_hora_ms" msgpack:"data_hora_ms"`
	SensorID    int     `json:"id_sensor" msgpack:"id_sensor"`
	Value       float64 `json:"valor" msgpack:"valor"`
}

type TimePoint struct {
	Step        int
	TimestampMs int64
}

func NewTimePoint(step int, baseMs, intervalMs int64) TimePoint {
	return TimePoint{
		Step:        step,
		TimestampMs: baseMs + int64(step)*intervalMs,
	}
}

// SensorState is the running value of one sensor for the lifetime of a run.
type SensorState struct {
	Current float64
}
