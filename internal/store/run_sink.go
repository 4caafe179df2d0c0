package store

import (
	"context"
	"fmt"

	"github.com/speedwagon-io/sensorsim/internal/model"
)

// RunSink adapts a store to the pipeline's sink contract for one run.
type RunSink struct {
	store *SQLiteStore
	runID string
}

func (s *SQLiteStore) RunSink(ctx context.Context, run Run) (*RunSink, error) {
	if err := s.BeginRun(ctx, run); err != nil {
		return nil, err
	}
	return &RunSink{store: s, runID: run.ID}, nil
}

func (r *RunSink) Name() string {
	return "sqlite"
}

func (r *RunSink) Write(ctx context.Context, batch *model.Batch) error {
	if batch.RunID != r.runID {
		return fmt.Errorf("batch for run %s written to run %s", batch.RunID, r.runID)
	}
	return r.store.WriteBatch(ctx, batch)
}

func (r *RunSink) Commit(ctx context.Context) error {
	return r.store.FinishRun(ctx, r.runID, StatusCompleted)
}

func (r *RunSink) Abort() error {
	return r.store.FinishRun(context.Background(), r.runID, StatusFailed)
}

func (r *RunSink) Health(ctx context.Context) error {
	return r.store.db.PingContext(ctx)
}
