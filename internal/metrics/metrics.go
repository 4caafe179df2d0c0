package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedwagon-io/sensorsim/internal/model"
)

type Metrics struct {
	steps       prometheus.Counter
	readings    *prometheus.CounterVec
	injections  *prometheus.CounterVec
	levels      *prometheus.CounterVec
	sinkErrors  *prometheus.CounterVec
	sinkLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorsim_steps_total",
			Help: "Time steps simulated.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_readings_total",
			Help: "Readings generated per sensor.",
		}, []string{"sensor"}),
		injections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_fault_injections_total",
			Help: "Readings overridden by a fault window.",
		}, []string{"sensor"}),
		levels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_alert_levels_total",
			Help: "Readings per sensor and alert level.",
		}, []string{"sensor", "level"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_sink_errors_total",
			Help: "Failed batch writes per sink.",
		}, []string{"sink"}),
		sinkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorsim_sink_write_seconds",
			Help:    "Time to hand one step batch to a sink.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"sink"}),
	}

	reg.MustRegister(m.steps, m.readings, m.injections, m.levels, m.sinkErrors, m.sinkLatency)
	return m
}

// The methods below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveStep(readings []model.Reading, injected []int) {
	if m == nil {
		return
	}
	m.steps.Inc()
	for _, r := range readings {
		m.readings.WithLabelValues(strconv.Itoa(r.SensorID)).Inc()
	}
	for _, id := range injected {
		m.injections.WithLabelValues(strconv.Itoa(id)).Inc()
	}
}

func (m *Metrics) ObserveLevel(sensorID int, level model.Level) {
	if m == nil {
		return
	}
	m.levels.WithLabelValues(strconv.Itoa(sensorID), string(level)).Inc()
}

func (m *Metrics) ObserveSinkWrite(sink string, seconds float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sinkErrors.WithLabelValues(sink).Inc()
		return
	}
	m.sinkLatency.WithLabelValues(sink).Observe(seconds)
}
