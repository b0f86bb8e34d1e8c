// Package runlog persists pipeline run metadata: one record per stage result
// plus a summary per run.
package runlog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates an unknown run.
var ErrNotFound = errors.New("run not found")

// Record is the persisted form of one stage result.
type Record struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Stage     string    `json:"stage"`
	JobName   string    `json:"job_name"`
	JobRunID  string    `json:"job_run_id"`
	TableName string    `json:"table_name"`
	Status    string    `json:"status"`
	Required  bool      `json:"required"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is the persisted summary of one pipeline run.
type Run struct {
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Insight     string     `json:"insight,omitempty"`
	Results     int        `json:"results"`
}

// Store persists run metadata. Records are append-only per run.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, runID string) ([]Record, error)
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

const notApplicable = "NA"

func orNA(s string) string {
	if s == "" {
		return notApplicable
	}
	return s
}
