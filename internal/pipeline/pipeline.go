// Package pipeline drives one generation run from the simulator into every
// configured sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
	"github.com/speedwagon-io/sensorsim/internal/metrics"
	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/registry"
	"github.com/speedwagon-io/sensorsim/internal/simulator"
	"github.com/speedwagon-io/sensorsim/internal/sink"
)

type Source interface {
	Stream(ctx context.Context, numSteps int, intervalMs int64, fn func(simulator.StepResult) error) error
	BaseTimestampMs() int64
}

type Summary struct {
	RunID           string
	Steps           int
	Rows            int
	BaseTimestampMs int64
	Levels          map[int]map[model.Level]int
	Injections      map[int]int
}

// LevelCounts flattens Levels for serialization.
func (s *Summary) LevelCounts() map[int]map[string]int {
	out := make(map[int]map[string]int, len(s.Levels))
	for id, levels := range s.Levels {
		out[id] = make(map[string]int, len(levels))
		for l, n := range levels {
			out[id][string(l)] = n
		}
	}
	return out
}

type Pipeline struct {
	log      *slog.Logger
	runID    string
	registry *registry.Registry
	source   Source
	sinks    []sink.Sink
	metrics  *metrics.Metrics
}

func New(
	log *slog.Logger,
	runID string,
	reg *registry.Registry,
	source Source,
	sinks []sink.Sink,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		log:      log.With(slog.String("run_id", runID)),
		runID:    runID,
		registry: reg,
		source:   source,
		sinks:    sinks,
		metrics:  m,
	}
}

// Run generates numSteps steps. On any failure every sink is aborted and
// the error returned; on success sinks are committed in order, and a failed
// commit aborts the sinks after it.
func (p *Pipeline) Run(ctx context.Context, numSteps int, intervalMs int64) (*Summary, error) {
	summary := &Summary{
		RunID:      p.runID,
		Levels:     make(map[int]map[model.Level]int, p.registry.Len()),
		Injections: make(map[int]int),
	}
	for _, d := range p.registry.Sensors() {
		summary.Levels[d.ID] = make(map[model.Level]int, len(model.Levels))
	}

	p.log.Info("starting run",
		slog.Int("steps", numSteps),
		slog.Int64("interval_ms", intervalMs),
		slog.Int("sensors", p.registry.Len()),
		slog.Int("sinks", len(p.sinks)),
	)

	err := p.source.Stream(ctx, numSteps, intervalMs, func(res simulator.StepResult) error {
		batch := model.NewBatch(p.runID, res.Point, res.Readings)

		for _, s := range p.sinks {
			start := time.Now()
			err := s.Write(ctx, batch)
			p.metrics.ObserveSinkWrite(s.Name(), time.Since(start).Seconds(), err)
			if err != nil {
				return fmt.Errorf("sink %s failed at step %d: %w", s.Name(), res.Point.Step, err)
			}
		}

		p.metrics.ObserveStep(res.Readings, res.Injected)
		for _, r := range res.Readings {
			if level, ok := p.registry.Classify(r.SensorID, r.Value); ok {
				summary.Levels[r.SensorID][level]++
				p.metrics.ObserveLevel(r.SensorID, level)
			}
		}
		for _, id := range res.Injected {
			summary.Injections[id]++
		}

		summary.Steps++
		summary.Rows += len(res.Readings)
		return nil
	})
	summary.BaseTimestampMs = p.source.BaseTimestampMs()

	if err != nil {
		p.abort(p.sinks)
		if errors.Is(err, context.Canceled) {
			p.log.Warn("run cancelled", slog.Int("completed_steps", summary.Steps))
		}
		return summary, err
	}

	for i, s := range p.sinks {
		if err := s.Commit(ctx); err != nil {
			p.abort(p.sinks[i+1:])
			return summary, fmt.Errorf("failed to commit sink %s: %w", s.Name(), err)
		}
	}

	p.log.Info("run finished",
		slog.Int("steps", summary.Steps),
		slog.Int("rows", summary.Rows),
	)
	for id, levels := range summary.Levels {
		p.log.Info("sensor summary",
			slog.Int("sensor_id", id),
			slog.Int("normal", levels[model.LevelNormal]),
			slog.Int("alert", levels[model.LevelAlert]),
			slog.Int("critical", levels[model.LevelCritical]),
			slog.Int("injected", summary.Injections[id]),
		)
	}

	return summary, nil
}

func (p *Pipeline) abort(sinks []sink.Sink) {
	for _, s := range sinks {
		if err := s.Abort(); err != nil {
			p.log.Error("failed to abort sink", slog.String("sink", s.Name()), sl.Err(err))
		}
	}
}
