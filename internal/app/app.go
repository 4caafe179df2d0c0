// Package app assembles a run from configuration: registry, simulator,
// sinks, store, metrics and the manifest sidecar.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedwagon-io/sensorsim/internal/config"
	"github.com/speedwagon-io/sensorsim/internal/health"
	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
	"github.com/speedwagon-io/sensorsim/internal/manifest"
	"github.com/speedwagon-io/sensorsim/internal/metrics"
	"github.com/speedwagon-io/sensorsim/internal/pipeline"
	"github.com/speedwagon-io/sensorsim/internal/registry"
	"github.com/speedwagon-io/sensorsim/internal/serializer"
	"github.com/speedwagon-io/sensorsim/internal/simulator"
	"github.com/speedwagon-io/sensorsim/internal/sink"
	"github.com/speedwagon-io/sensorsim/internal/store"
)

type App struct {
	log      *slog.Logger
	cfg      *config.Config
	dryRun   bool
	registry *registry.Registry
	delim    rune

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics
	store        *store.SQLiteStore
	health       *health.Server
}

func New(log *slog.Logger, cfg *config.Config, dryRun bool) (*App, error) {
	reg, err := registry.FromPath(cfg.SensorsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sensor registry: %w", err)
	}

	delim, err := serializer.ParseDelimiter(cfg.Output.Delimiter)
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()

	a := &App{
		log:          log,
		cfg:          cfg,
		dryRun:       dryRun,
		registry:     reg,
		delim:        delim,
		promRegistry: promRegistry,
		metrics:      metrics.New(promRegistry),
	}

	if cfg.Store.Enabled && !dryRun {
		a.store, err = store.NewSQLiteStore(log, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		log.Info("store enabled", slog.String("path", cfg.Store.Path))

		if err := a.store.Cleanup(context.Background(), cfg.Store.MaxAge); err != nil {
			log.Warn("failed to clean up old runs", sl.Err(err))
		}
	}

	if cfg.Health.Enabled {
		a.health = health.NewServer(log, cfg.Health.Address, promRegistry)
		if a.store != nil {
			a.health.AddChecker(health.NewStoreHealthChecker(a.store.Count, cfg.Store.MaxRows))
		}
	}

	return a, nil
}

func (a *App) Gatherer() prometheus.Gatherer {
	return a.promRegistry
}

// Health returns the health server, or nil when it is disabled.
func (a *App) Health() *health.Server {
	return a.health
}

func (a *App) Store() *store.SQLiteStore {
	return a.store
}

// Run performs one generation run and writes the manifest next to the
// output file.
func (a *App) Run(ctx context.Context) (*pipeline.Summary, error) {
	simCfg := a.cfg.Simulation
	runID := uuid.NewString()

	opts := simulator.Options{
		Seed:            simCfg.Seed,
		Unseeded:        simCfg.Unseeded,
		BaseTimestampMs: simCfg.BaseTimestampMs,
		Realtime:        simCfg.Realtime,
	}
	// resolved once so the store and the simulator agree on it
	baseMs := opts.ResolveBase()
	opts.BaseTimestampMs = baseMs

	sim := simulator.New(a.log, a.registry, opts)

	sinks, err := a.buildSinks(ctx, store.Run{
		ID:              runID,
		Seed:            simCfg.Seed,
		Seeded:          !simCfg.Unseeded,
		Steps:           simCfg.Steps,
		IntervalMs:      simCfg.IntervalMs(),
		BaseTimestampMs: baseMs,
		StartedAt:       time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if a.health != nil {
		for _, s := range sinks {
			a.health.AddChecker(health.NewSinkHealthChecker(s.Name(), s.Health))
		}
		a.health.SetReady(true)
		defer a.health.SetReady(false)
	}

	p := pipeline.New(a.log, runID, a.registry, sim, sinks, a.metrics)
	summary, err := p.Run(ctx, simCfg.Steps, simCfg.IntervalMs())
	if err != nil {
		return summary, err
	}

	if a.dryRun {
		return summary, nil
	}

	path := manifest.PathFor(a.cfg.Output.Path)
	if a.cfg.Output.SkipManifest {
		// a sidecar from an earlier run no longer describes the output
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return summary, fmt.Errorf("failed to remove stale manifest: %w", err)
		}
		return summary, nil
	}

	m := &manifest.Manifest{
		RunID:           runID,
		GeneratedAt:     time.Now().UTC(),
		Output:          a.cfg.Output.Path,
		Delimiter:       string(a.delim),
		Steps:           summary.Steps,
		IntervalMs:      simCfg.IntervalMs(),
		BaseTimestampMs: summary.BaseTimestampMs,
		Rows:            summary.Rows,
		Levels:          summary.LevelCounts(),
		Sensors:         a.registry.Sensors(),
	}
	if !simCfg.Unseeded {
		seed := simCfg.Seed
		m.Seed = &seed
	}

	if err := manifest.Write(path, m); err != nil {
		return summary, fmt.Errorf("failed to write manifest: %w", err)
	}
	a.log.Debug("manifest written", slog.String("path", path))

	return summary, nil
}

// buildSinks opens every configured destination. Sinks opened before a
// failure are aborted. The file sink is opened first, so an unwritable
// destination fails fast, but placed last: the pipeline commits in order
// and the output file must only appear once every other sink has committed.
func (a *App) buildSinks(ctx context.Context, run store.Run) (sinks []sink.Sink, err error) {
	if a.dryRun {
		a.log.Info("dry-run mode: batches will be logged instead of written")
		return []sink.Sink{sink.NewLogSink(a.log)}, nil
	}

	fs, err := sink.NewFileSink(a.log, a.cfg.Output.Path, a.delim)
	if err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	defer func() {
		if err != nil {
			_ = fs.Abort()
			for _, s := range sinks {
				_ = s.Abort()
			}
			sinks = nil
		}
	}()

	if a.store != nil {
		rs, err := a.store.RunSink(ctx, run)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, rs)
	}

	if a.cfg.HTTP.Enabled {
		hs, err := sink.NewHTTPSink(a.log, &a.cfg.HTTP)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, hs)
	}

	if a.cfg.Kafka.Enabled {
		ks, err := sink.NewKafkaSink(a.log, &a.cfg.Kafka)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, ks)
	}

	if a.cfg.MQTT.Enabled {
		ms, err := sink.NewMQTTSink(a.log, &a.cfg.MQTT)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, ms)
	}

	return append(sinks, fs), nil
}

func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
