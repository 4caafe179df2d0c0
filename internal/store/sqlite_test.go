package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
	"github.com/speedwagon-io/sensorsim/internal/model"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(sl.Discard(), filepath.Join(t.TempDir(), "nested", "sensorsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, startedAt time.Time) Run {
	return Run{
		ID:              id,
		Seed:            1<<63 + 5,
		Seeded:          true,
		Steps:           2,
		IntervalMs:      1000,
		BaseTimestampMs: 1_700_000_000_000,
		StartedAt:       startedAt,
	}
}

func batch(runID string, step int) *model.Batch {
	ts := int64(1_700_000_000_000 + step*1000)
	return model.NewBatch(runID, model.TimePoint{Step: step, TimestampMs: ts}, []model.Reading{
		{LocalID: step, TimestampMs: ts, SensorID: 1, Value: 31.2},
		{LocalID: step, TimestampMs: ts, SensorID: 2, Value: 0.6},
		{LocalID: step, TimestampMs: ts, SensorID: 3, Value: 149.5},
	})
}

func TestRunSinkCommit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rs, err := s.RunSink(ctx, testRun("run-a", time.Now()))
	require.NoError(t, err)

	require.NoError(t, rs.Write(ctx, batch("run-a", 1)))
	require.NoError(t, rs.Write(ctx, batch("run-a", 2)))
	require.NoError(t, rs.Commit(ctx))
	require.NoError(t, rs.Health(ctx))

	run, err := s.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 6, run.Rows)
	assert.Equal(t, uint64(1<<63+5), run.Seed)
	assert.True(t, run.Seeded)

	readings, err := s.Readings(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, readings, 6)
	assert.Equal(t, []int{1, 2, 3}, []int{readings[3].SensorID, readings[4].SensorID, readings[5].SensorID})
	assert.Equal(t, 2, readings[5].LocalID)
	assert.Equal(t, 149.5, readings[5].Value)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestRunSinkAbortDiscardsReadings(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rs, err := s.RunSink(ctx, testRun("run-b", time.Now()))
	require.NoError(t, err)
	require.NoError(t, rs.Write(ctx, batch("run-b", 1)))
	require.NoError(t, rs.Abort())

	run, err := s.GetRun(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Zero(t, run.Rows)

	readings, err := s.Readings(ctx, "run-b")
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestRunSinkRejectsForeignBatch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rs, err := s.RunSink(ctx, testRun("run-c", time.Now()))
	require.NoError(t, err)
	assert.Error(t, rs.Write(ctx, batch("other", 1)))
}

func TestWriteBatchDuplicateStepIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(ctx, testRun("run-d", time.Now())))

	require.NoError(t, s.WriteBatch(ctx, batch("run-d", 1)))
	assert.Error(t, s.WriteBatch(ctx, batch("run-d", 1)))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.BeginRun(ctx, testRun("old", time.Now().Add(-48*time.Hour))))
	require.NoError(t, s.WriteBatch(ctx, batch("old", 1)))
	require.NoError(t, s.BeginRun(ctx, testRun("new", time.Now())))
	require.NoError(t, s.WriteBatch(ctx, batch("new", 1)))

	require.NoError(t, s.Cleanup(ctx, 24*time.Hour))

	_, err := s.GetRun(ctx, "old")
	assert.Error(t, err)
	_, err = s.GetRun(ctx, "new")
	assert.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestFinishUnknownRun(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.FinishRun(context.Background(), "ghost", StatusCompleted))
}
