package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/sensorsim/internal/model"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Run struct {
	ID              string
	Seed            uint64
	Seeded          bool
	Steps           int
	IntervalMs      int64
	BaseTimestampMs int64
	Status          string
	Rows            int
	StartedAt       time.Time
}

// SQLiteStore mirrors generated runs into a local database so they can be
// queried without re-reading the delimited files.
type SQLiteStore struct {
	log *slog.Logger
	db  *sql.DB
}

func NewSQLiteStore(log *slog.Logger, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{
		log: log,
		db:  db,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seed TEXT NOT NULL,
			seeded INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			interval_ms INTEGER NOT NULL,
			base_timestamp_ms INTEGER NOT NULL,
			status TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS readings (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			local_id INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			sensor_id INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, local_id, sensor_id)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) BeginRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO runs (id, seed, seeded, steps, interval_ms, base_timestamp_ms, status, row_count, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		strconv.FormatUint(run.Seed, 10),
		run.Seeded,
		run.Steps,
		run.IntervalMs,
		run.BaseTimestampMs,
		StatusRunning,
		run.StartedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	s.log.Debug("run registered in store", slog.String("run_id", run.ID))
	return nil
}

// WriteBatch inserts one step in a single transaction, so a step is either
// fully stored or absent.
func (s *SQLiteStore) WriteBatch(ctx context.Context, batch *model.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (run_id, local_id, timestamp_ms, sensor_id, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch.Readings {
		if _, err := stmt.ExecContext(ctx, batch.RunID, r.LocalID, r.TimestampMs, r.SensorID, r.Value); err != nil {
			return fmt.Errorf("failed to insert reading %d/%d: %w", r.LocalID, r.SensorID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE runs SET row_count = row_count + ? WHERE id = ?", len(batch.Readings), batch.RunID); err != nil {
		return fmt.Errorf("failed to update run rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FinishRun records the final status. Failed runs lose their readings.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if status == StatusFailed {
		if _, err := tx.ExecContext(ctx, "DELETE FROM readings WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to discard readings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE runs SET row_count = 0 WHERE id = ?", runID); err != nil {
			return fmt.Errorf("failed to reset run rows: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, "UPDATE runs SET status = ? WHERE id = ?", status, runID)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown run %s", runID)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run                Run
		seed, startedAtStr string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, seed, seeded, steps, interval_ms, base_timestamp_ms, status, row_count, started_at
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &seed, &run.Seeded, &run.Steps, &run.IntervalMs, &run.BaseTimestampMs, &run.Status, &run.Rows, &startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}

	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339, startedAtStr); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	return &run, nil
}

// Readings returns a run's readings in output order.
func (s *SQLiteStore) Readings(ctx context.Context, runID string) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.local_id, r.timestamp_ms, r.sensor_id, r.value
		FROM readings r
		WHERE r.run_id = ?
		ORDER BY r.local_id ASC, r.rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		if err := rows.Scan(&r.LocalID, &r.TimestampMs, &r.SensorID, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// Cleanup drops runs started before now-maxAge along with their readings.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old runs: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.log.Info("cleaned up old runs", slog.Int64("deleted", deleted))
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&count)
	return count, err
}
