package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLConfig selects and tunes the database.
type SQLConfig struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string
}

// OpenDB opens the configured database and applies pool settings.
func OpenDB(ctx context.Context, cfg SQLConfig) (*sql.DB, error) {
	driver := "postgres"
	if cfg.Driver == "sqlite" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" && cfg.JournalMode != "" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+cfg.JournalMode); err != nil {
			db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL,
		reason TEXT NOT NULL DEFAULT '',
		insight TEXT NOT NULL DEFAULT '',
		results INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS stage_results (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		job_name TEXT NOT NULL,
		job_run_id TEXT NOT NULL DEFAULT '',
		table_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		required BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs (started_at)`,
}

// SQLStore persists run metadata in SQLite or Postgres.
type SQLStore struct {
	db DB
}

// NewSQLStore creates the tables if needed and returns a store.
func NewSQLStore(ctx context.Context, db DB) (*SQLStore, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate run log: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Append(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO stage_results (run_id, seq, stage, job_name, job_run_id, table_name, status, required, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID, rec.Seq, rec.Stage, rec.JobName, rec.JobRunID, rec.TableName,
		rec.Status, rec.Required, rec.Error, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert stage result: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, runID string) ([]Record, error) {
	query := `
		SELECT run_id, seq, stage, job_name, job_run_id, table_name, status, required, error, recorded_at
		FROM stage_results WHERE run_id = $1 ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Stage, &rec.JobName, &rec.JobRunID,
			&rec.TableName, &rec.Status, &rec.Required, &rec.Error, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveRun inserts or replaces the run summary.
func (s *SQLStore) SaveRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO pipeline_runs (run_id, status, started_at, completed_at, reason, insight, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			reason = excluded.reason,
			insight = excluded.insight,
			results = excluded.results
	`
	var completed interface{}
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		run.RunID, run.Status, run.StartedAt.UTC(), completed, run.Reason, run.Insight, run.Results,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	query := `
		SELECT run_id, status, started_at, completed_at, reason, insight, results
		FROM pipeline_runs WHERE run_id = $1
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, status, started_at, completed_at, reason, insight, results
		FROM pipeline_runs ORDER BY started_at DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var completed sql.NullTime
	if err := row.Scan(&run.RunID, &run.Status, &run.StartedAt, &completed, &run.Reason, &run.Insight, &run.Results); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

var _ Store = (*SQLStore)(nil)
