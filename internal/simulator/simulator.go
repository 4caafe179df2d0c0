// Package simulator evolves every registered sensor over discrete time steps.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/speedwagon-io/sensorsim/internal/fault"
	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/registry"
	"github.com/speedwagon-io/sensorsim/internal/walk"
)

var ErrInvalidRun = errors.New("invalid run parameters")

// DefaultBaseTimestampMs anchors seeded runs that set no base:
// 2023-11-14T22:13:20Z.
const DefaultBaseTimestampMs int64 = 1_700_000_000_000

// BaseNow requests the wall clock at run start as the base timestamp.
const BaseNow int64 = -1

type Options struct {
	Seed     uint64
	Unseeded bool
	// BaseTimestampMs anchors step 0. Zero resolves to DefaultBaseTimestampMs
	// for seeded runs and to the wall clock for unseeded ones; BaseNow always
	// uses the wall clock.
	BaseTimestampMs int64
	// Realtime paces steps one interval apart instead of as fast as possible.
	Realtime bool
}

// StepResult is everything produced by one step. Readings is complete:
// one entry per registered sensor, in registry order.
type StepResult struct {
	Point    model.TimePoint
	Readings []model.Reading
	Injected []int
}

// Simulator owns the per-sensor state of a run. A Simulator is not safe for
// concurrent use; create one per goroutine.
type Simulator struct {
	log     *slog.Logger
	sensors []model.SensorDefinition
	opts    Options

	rng    *rand.Rand
	state  []model.SensorState
	baseMs int64
}

func New(log *slog.Logger, reg *registry.Registry, opts Options) *Simulator {
	return &Simulator{
		log:     log,
		sensors: reg.Sensors(),
		opts:    opts,
	}
}

// reset rewinds state so that a seeded simulator reproduces its output on
// every run.
func (s *Simulator) reset() {
	if s.opts.Unseeded {
		s.rng = walk.NewUnseededSource()
	} else {
		s.rng = walk.NewSource(s.opts.Seed)
	}

	s.state = make([]model.SensorState, len(s.sensors))
	for i, d := range s.sensors {
		s.state[i] = model.SensorState{Current: d.Initial}
	}

	s.baseMs = s.opts.ResolveBase()
}

// ResolveBase returns the base timestamp a run with these options starts from.
func (o Options) ResolveBase() int64 {
	switch {
	case o.BaseTimestampMs > 0:
		return o.BaseTimestampMs
	case o.BaseTimestampMs == 0 && !o.Unseeded:
		return DefaultBaseTimestampMs
	default:
		return time.Now().UnixMilli()
	}
}

func (s *Simulator) BaseTimestampMs() int64 {
	return s.baseMs
}

func (s *Simulator) step(i int, intervalMs int64) StepResult {
	tp := model.NewTimePoint(i, s.baseMs, intervalMs)
	res := StepResult{
		Point:    tp,
		Readings: make([]model.Reading, 0, len(s.sensors)),
	}

	for idx, d := range s.sensors {
		walked := walk.Step(s.rng, s.state[idx].Current, d.Min, d.Max, d.MaxDelta)

		v, next, injected := fault.MaybeInject(d, i, walked, s.state[idx])
		if injected {
			res.Injected = append(res.Injected, d.ID)
		}

		v = walk.Round(v, walk.Precision)
		next.Current = v
		s.state[idx] = next

		res.Readings = append(res.Readings, model.Reading{
			LocalID:     i,
			TimestampMs: tp.TimestampMs,
			SensorID:    d.ID,
			Value:       v,
		})
	}

	return res
}

// Stream runs steps 1..numSteps and hands each complete step to fn.
// Cancellation is honoured between steps, never inside one.
func (s *Simulator) Stream(ctx context.Context, numSteps int, intervalMs int64, fn func(StepResult) error) error {
	if numSteps < 0 {
		return fmt.Errorf("%w: negative step count %d", ErrInvalidRun, numSteps)
	}
	if intervalMs <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %dms", ErrInvalidRun, intervalMs)
	}

	s.reset()

	s.log.Debug("simulation started",
		slog.Int("steps", numSteps),
		slog.Int64("interval_ms", intervalMs),
		slog.Int64("base_timestamp_ms", s.baseMs),
		slog.Int("sensors", len(s.sensors)),
	)

	var tick <-chan time.Time
	if s.opts.Realtime && numSteps > 1 {
		ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 1; i <= numSteps; i++ {
		if tick != nil && i > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(s.step(i, intervalMs)); err != nil {
			return err
		}
	}

	return nil
}

// Run collects every reading of a run in memory.
func (s *Simulator) Run(ctx context.Context, numSteps int, intervalMs int64) ([]model.Reading, error) {
	readings := make([]model.Reading, 0, max(numSteps, 0)*len(s.sensors))
	err := s.Stream(ctx, numSteps, intervalMs, func(res StepResult) error {
		readings = append(readings, res.Readings...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}
