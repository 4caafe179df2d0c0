// Package sink delivers step batches to their destinations. Every sink sees
// whole batches in step order; a run either commits all sinks or aborts them.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/speedwagon-io/sensorsim/internal/model"
	"github.com/speedwagon-io/sensorsim/internal/serializer"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, batch *model.Batch) error
	// Commit finalizes a successful run.
	Commit(ctx context.Context) error
	// Abort releases resources after a failed run without publishing
	// anything that was not already delivered.
	Abort() error
	Health(ctx context.Context) error
}

// FileSink streams readings into the delimited output file. The file
// becomes visible under its final name only on Commit.
type FileSink struct {
	log  *slog.Logger
	file *serializer.AtomicFile
	enc  *serializer.Encoder
}

func NewFileSink(log *slog.Logger, path string, delim rune) (*FileSink, error) {
	file, err := serializer.CreateAtomic(path)
	if err != nil {
		return nil, err
	}

	enc, err := serializer.NewEncoder(file, delim)
	if err != nil {
		_ = file.Abort()
		return nil, err
	}
	if err := enc.WriteHeader(); err != nil {
		_ = file.Abort()
		return nil, err
	}

	return &FileSink{log: log, file: file, enc: enc}, nil
}

func (s *FileSink) Name() string {
	return "file"
}

func (s *FileSink) Write(ctx context.Context, batch *model.Batch) error {
	return s.enc.WriteReadings(batch.Readings)
}

func (s *FileSink) Commit(ctx context.Context) error {
	if err := s.enc.Flush(); err != nil {
		_ = s.file.Abort()
		return err
	}
	if err := s.file.Commit(); err != nil {
		return err
	}

	s.log.Info("output file written",
		slog.String("path", s.file.Path()),
		slog.Int("rows", s.enc.Rows()),
	)
	return nil
}

func (s *FileSink) Abort() error {
	return s.file.Abort()
}

func (s *FileSink) Health(ctx context.Context) error {
	return nil
}

func (s *FileSink) Rows() int {
	return s.enc.Rows()
}

// LogSink logs batches instead of delivering them (for dry runs)
type LogSink struct {
	log     *slog.Logger
	batches int
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Write(ctx context.Context, batch *model.Batch) error {
	data, err := json.Marshal(batch.Readings)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	s.log.Info("BATCH",
		slog.String("run_id", batch.RunID),
		slog.Int("step", batch.Step),
		slog.Int64("timestamp_ms", batch.TimestampMs),
		slog.Int("readings", len(batch.Readings)),
		slog.String("payload", string(data)),
	)
	s.batches++

	return nil
}

func (s *LogSink) Commit(ctx context.Context) error {
	s.log.Info("dry run finished", slog.Int("batches", s.batches))
	return nil
}

func (s *LogSink) Abort() error {
	return nil
}

func (s *LogSink) Health(ctx context.Context) error {
	return nil
}
