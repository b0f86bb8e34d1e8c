package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// QueryRequest is one interactive query submission.
type QueryRequest struct {
	SQL            string
	Database       string
	OutputLocation string
}

// ResultSet holds query output with column labels in result order.
type ResultSet struct {
	Columns []string
	Rows    []map[string]string
}

// QueryService runs interactive queries.
type QueryService interface {
	StartQuery(ctx context.Context, req QueryRequest) (queryID string, err error)
	QueryState(ctx context.Context, queryID string) (Status, error)
	QueryResults(ctx context.Context, queryID string) (*ResultSet, error)
}

// QueryExecutor submits a query, waits for it and fetches the rows.
type QueryExecutor struct {
	svc            QueryService
	database       string
	outputLocation string
	timing         Timing
	logger         *observability.Logger
}

// NewQueryExecutor creates a query executor. Zero timing defaults to a one-second cadence.
func NewQueryExecutor(svc QueryService, database, outputLocation string, timing Timing, logger *observability.Logger) *QueryExecutor {
	if timing.Interval <= 0 {
		timing.Interval = time.Second
	}
	if timing.Timeout <= 0 {
		timing.Timeout = 2 * time.Minute
	}
	return &QueryExecutor{
		svc:            svc,
		database:       database,
		outputLocation: outputLocation,
		timing:         timing,
		logger:         loggerOrNop(logger).WithComponent("query"),
	}
}

func (q *QueryExecutor) Kind() Kind { return KindQuery }

// Start submits sql; the handle's UnitID and RunID are both the query id.
func (q *QueryExecutor) Start(ctx context.Context, sql string) (Handle, error) {
	id, err := q.svc.StartQuery(ctx, QueryRequest{SQL: sql, Database: q.database, OutputLocation: q.outputLocation})
	if err != nil {
		return Handle{}, &StartError{Kind: KindQuery, UnitID: "query", Err: err}
	}
	q.logger.Debug().Str("query_id", id).Str("database", q.database).Msg("Submitted query")
	return Handle{Kind: KindQuery, UnitID: id, RunID: id, StartedAt: time.Now().UTC()}, nil
}

func (q *QueryExecutor) AwaitTerminal(ctx context.Context, h Handle) (TerminalStatus, error) {
	return await(ctx, q.logger, h, q.timing, func(ctx context.Context) (Status, error) {
		return q.svc.QueryState(ctx, h.RunID)
	})
}

// Execute runs sql to completion and returns its rows.
func (q *QueryExecutor) Execute(ctx context.Context, sql string) (*ResultSet, error) {
	h, err := q.Start(ctx, sql)
	if err != nil {
		return nil, err
	}
	status, err := q.AwaitTerminal(ctx, h)
	if err != nil {
		return nil, err
	}
	if status != StatusSucceeded {
		return nil, fmt.Errorf("query %s ended %s", h.RunID, status)
	}
	rs, err := q.svc.QueryResults(ctx, h.RunID)
	if err != nil {
		return nil, fmt.Errorf("fetch results %s: %w", h.RunID, err)
	}
	q.logger.Info().Str("query_id", h.RunID).Int("rows", len(rs.Rows)).Dur("elapsed", time.Since(h.StartedAt)).Msg("Query completed")
	return rs, nil
}

var _ Unit = (*QueryExecutor)(nil)
