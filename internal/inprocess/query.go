package inprocess

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

// SQLiteQueries runs interactive queries against a SQLite database and
// doubles as the loader for crawled gold tables.
type SQLiteQueries struct {
	db   *sql.DB
	runs *tracker

	mu      sync.Mutex
	results map[string]*adapter.ResultSet
}

// NewSQLiteQueries wraps db.
func NewSQLiteQueries(db *sql.DB) *SQLiteQueries {
	return &SQLiteQueries{db: db, runs: newTracker(), results: map[string]*adapter.ResultSet{}}
}

// StartQuery executes the query before returning; the id then reports the outcome.
func (q *SQLiteQueries) StartQuery(ctx context.Context, req adapter.QueryRequest) (string, error) {
	id := q.runs.start()
	rs, err := q.run(ctx, req.SQL)
	if err != nil {
		q.runs.finish(id, adapter.Status{Phase: adapter.PhaseFailed, Reason: err.Error()})
		return id, nil
	}
	q.mu.Lock()
	q.results[id] = rs
	q.mu.Unlock()
	q.runs.finish(id, adapter.Status{Phase: adapter.PhaseSucceeded})
	return id, nil
}

// QueryState implements adapter.QueryService.
func (q *SQLiteQueries) QueryState(ctx context.Context, id string) (adapter.Status, error) {
	st, ok := q.runs.state(id)
	if !ok {
		return adapter.Status{}, fmt.Errorf("query %s not found", id)
	}
	return st, nil
}

// QueryResults returns and forgets the rows of a finished query.
func (q *SQLiteQueries) QueryResults(ctx context.Context, id string) (*adapter.ResultSet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rs, ok := q.results[id]
	if !ok {
		return nil, fmt.Errorf("no results for query %s", id)
	}
	delete(q.results, id)
	return rs, nil
}

func (q *SQLiteQueries) run(ctx context.Context, query string) (*adapter.ResultSet, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &adapter.ResultSet{Columns: cols, Rows: []map[string]string{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = text(vals[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

// text renders a scanned value the way the managed query service does: NULL
// becomes the empty string.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// LoadTable replaces table name with the contents of t.
func (q *SQLiteQueries) LoadTable(ctx context.Context, name string, t *refine.Table) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if len(t.Columns) == 0 {
		return tx.Commit()
	}

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			args[i] = r[c]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var (
	_ adapter.QueryService = (*SQLiteQueries)(nil)
	_ TableLoader          = (*SQLiteQueries)(nil)
)
