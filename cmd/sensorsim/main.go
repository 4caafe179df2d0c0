package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speedwagon-io/sensorsim/internal/app"
	"github.com/speedwagon-io/sensorsim/internal/config"
	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
	"github.com/speedwagon-io/sensorsim/internal/manifest"
	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/pipeline"
	"github.com/speedwagon-io/sensorsim/internal/registry"
	"github.com/speedwagon-io/sensorsim/internal/serializer"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log batches instead of writing them")
	verifyPath := flag.String("verify", "", "check an existing output file against the sensor registry and exit")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	if *verifyPath != "" {
		if err := verify(log, cfg, *verifyPath); err != nil {
			log.Error("verification failed", slog.String("path", *verifyPath), sl.Err(err))
			os.Exit(1)
		}
		return
	}

	log.Info("starting sensor simulator",
		slog.String("env", cfg.Env),
		slog.Int("steps", cfg.Simulation.Steps),
		slog.Duration("interval", cfg.Simulation.Interval),
		slog.String("output", cfg.Output.Path),
		slog.Bool("dry_run", *dryRun),
	)

	a, err := app.New(log, cfg, *dryRun)
	if err != nil {
		log.Error("failed to initialize", sl.Err(err))
		os.Exit(1)
	}

	healthServer := a.Health()
	if healthServer != nil {
		if err := healthServer.Start(); err != nil {
			log.Error("failed to start health server", sl.Err(err))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	summary, runErr := a.Run(ctx)
	cancel()

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := healthServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop health server", sl.Err(err))
		}
		shutdownCancel()
	}

	if err := a.Close(); err != nil {
		log.Error("failed to close", sl.Err(err))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn("run interrupted, no output written")
		} else {
			log.Error("run failed", sl.Err(runErr))
		}
		os.Exit(1)
	}

	log.Info("simulator stopped",
		slog.String("run_id", summary.RunID),
		slog.Int("rows", summary.Rows),
	)
}

// verify checks path against the manifest next to it when that manifest
// describes the file, and otherwise against the configured registry with the
// step interval inferred from the file.
func verify(log *slog.Logger, cfg *config.Config, path string) error {
	m, err := manifest.Read(manifest.PathFor(path))
	switch {
	case err == nil:
		readings, decodeErr := decodeFile(path, m.Delimiter)
		if decodeErr == nil && m.Rows == len(readings) && m.Steps*len(m.Sensors) == len(readings) {
			reg, err := registry.New(m.Sensors)
			if err != nil {
				return err
			}
			log.Debug("using manifest", slog.String("run_id", m.RunID))
			return check(log, path, readings, reg, m.IntervalMs)
		}
		log.Warn("manifest does not describe the output, ignoring it",
			slog.String("run_id", m.RunID),
			slog.Int("manifest_rows", m.Rows),
		)
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	reg, err := registry.FromPath(cfg.SensorsPath)
	if err != nil {
		return err
	}
	readings, err := decodeFile(path, cfg.Output.Delimiter)
	if err != nil {
		return err
	}
	return check(log, path, readings, reg, 0)
}

func decodeFile(path, delimiter string) ([]model.Reading, error) {
	delim, err := serializer.ParseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return serializer.Decode(f, delim)
}

func check(log *slog.Logger, path string, readings []model.Reading, reg *registry.Registry, intervalMs int64) error {
	steps, err := pipeline.Verify(readings, reg, intervalMs)
	if err != nil {
		return err
	}

	log.Info("output verified",
		slog.String("path", path),
		slog.Int("steps", steps),
		slog.Int("rows", len(readings)),
	)
	return nil
}
