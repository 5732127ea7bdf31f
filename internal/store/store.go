// Package store handles SQLite persistence of composite run history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/lifelapse/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			range_label TEXT NOT NULL,
			include_camera INTEGER NOT NULL,
			threads INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			shape_policy TEXT NOT NULL,
			target_width INTEGER NOT NULL,
			target_height INTEGER NOT NULL,
			discovered INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_dates (
			run_id TEXT NOT NULL,
			date TEXT NOT NULL,
			discovered INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			PRIMARY KEY (run_id, date)
		);`,
		`CREATE TABLE IF NOT EXISTS run_outputs (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_run_dates_date ON run_dates(date);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a finished run with its per-date counts and returns its ID.
// A new UUID is assigned when rec.ID is empty.
func (s *Store) InsertRun(ctx context.Context, rec model.RunRecord, dates []model.DateCount) (id string, err error) {
	id = rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, range_label, include_camera, threads, batch_size, shape_policy, target_width, target_height, discovered, succeeded, failed, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		rec.StartedAt.Format(time.RFC3339Nano),
		rec.EndedAt.Format(time.RFC3339Nano),
		rec.RangeLabel,
		rec.IncludeCamera,
		rec.Threads,
		rec.BatchSize,
		string(rec.ShapePolicy),
		rec.Target.Width,
		rec.Target.Height,
		rec.Discovered,
		rec.Succeeded,
		rec.Failed,
		string(rec.Status),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if err = insertRows(ctx, tx,
		`INSERT INTO run_dates (run_id, date, discovered, succeeded) VALUES (?, ?, ?, ?)`,
		len(dates), func(i int) []any {
			return []any{id, dates[i].Date, dates[i].Discovered, dates[i].Succeeded}
		}); err != nil {
		return "", fmt.Errorf("insert run dates: %w", err)
	}
	if err = insertRows(ctx, tx,
		`INSERT INTO run_outputs (run_id, position, path) VALUES (?, ?, ?)`,
		len(rec.OutputPaths), func(i int) []any {
			return []any{id, i, rec.OutputPaths[i]}
		}); err != nil {
		return "", fmt.Errorf("insert run outputs: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, args func(int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}

// ListRuns returns run summaries filtered by cfg, oldest first. Last keeps
// only the most recent runs.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	limit := -1
	if cfg.Last > 0 {
		limit = cfg.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, started_at, ended_at, range_label, discovered, succeeded, status FROM (
		SELECT * FROM runs
		WHERE %s
		ORDER BY ended_at DESC
		LIMIT ?
	) ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var startedAt, endedAt, status string
		if err := rows.Scan(&sum.ID, &startedAt, &endedAt, &sum.RangeLabel, &sum.Discovered, &sum.Succeeded, &status); err != nil {
			return nil, err
		}
		started, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, err
		}
		ended, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		sum.EndedAt = ended
		sum.DurationMs = ended.Sub(started).Milliseconds()
		sum.Status = model.RunStatus(status)
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun loads the full record of one run.
func (s *Store) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	var rec model.RunRecord
	var startedAt, endedAt, policy, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, range_label, include_camera, threads, batch_size, shape_policy, target_width, target_height, discovered, succeeded, failed, status
		 FROM runs WHERE id = ?`, id).
		Scan(&rec.ID, &startedAt, &endedAt, &rec.RangeLabel, &rec.IncludeCamera, &rec.Threads, &rec.BatchSize,
			&policy, &rec.Target.Width, &rec.Target.Height, &rec.Discovered, &rec.Succeeded, &rec.Failed, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return rec, err
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return rec, err
	}
	if rec.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return rec, err
	}
	rec.ShapePolicy = model.ShapePolicy(policy)
	rec.Status = model.RunStatus(status)

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM run_outputs WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return rec, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return rec, err
		}
		rec.OutputPaths = append(rec.OutputPaths, path)
	}
	return rec, rows.Err()
}

// ListDateAggregates sums per-date counts across the given runs.
func (s *Store) ListDateAggregates(ctx context.Context, runIDs []string) ([]model.DateAggregate, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(runIDs))
	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT date, SUM(discovered) AS discovered, SUM(succeeded) AS succeeded
		FROM run_dates
		WHERE run_id IN (%s)
		GROUP BY date
		ORDER BY date`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.DateAggregate
	for rows.Next() {
		var agg model.DateAggregate
		if err := rows.Scan(&agg.Date, &agg.Discovered, &agg.Succeeded); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
