package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
)

// AthenaAPI is the subset of the Athena client used here.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// AthenaQueries runs interactive SQL through Athena.
type AthenaQueries struct {
	api     AthenaAPI
	maxRows int
}

// NewAthenaQueries creates a query service. maxRows caps fetched rows; zero means 1000.
func NewAthenaQueries(api AthenaAPI, maxRows int) *AthenaQueries {
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &AthenaQueries{api: api, maxRows: maxRows}
}

func (a *AthenaQueries) StartQuery(ctx context.Context, req adapter.QueryRequest) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(req.SQL),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{Database: aws.String(req.Database)},
	}
	if req.OutputLocation != "" {
		in.ResultConfiguration = &athenatypes.ResultConfiguration{OutputLocation: aws.String(req.OutputLocation)}
	}
	out, err := a.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("athena start query: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

func (a *AthenaQueries) QueryState(ctx context.Context, id string) (adapter.Status, error) {
	out, err := a.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
	if err != nil {
		return adapter.Status{}, fmt.Errorf("athena get query execution: %w", err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return adapter.Status{Phase: adapter.PhasePending}, nil
	}
	st := out.QueryExecution.Status
	reason := aws.ToString(st.StateChangeReason)
	switch st.State {
	case athenatypes.QueryExecutionStateSucceeded:
		return adapter.Status{Phase: adapter.PhaseSucceeded}, nil
	case athenatypes.QueryExecutionStateFailed:
		return adapter.Status{Phase: adapter.PhaseFailed, Reason: reason}, nil
	case athenatypes.QueryExecutionStateCancelled:
		return adapter.Status{Phase: adapter.PhaseCancelled, Reason: reason}, nil
	case athenatypes.QueryExecutionStateQueued:
		return adapter.Status{Phase: adapter.PhasePending}, nil
	default:
		return adapter.Status{Phase: adapter.PhaseRunning}, nil
	}
}

// QueryResults pages through the result set. The first row of the first page
// repeats the column labels and is skipped.
func (a *AthenaQueries) QueryResults(ctx context.Context, id string) (*adapter.ResultSet, error) {
	rs := &adapter.ResultSet{}
	var token *string
	first := true

	for {
		out, err := a.api.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(id),
			NextToken:        token,
		})
		if err != nil {
			return nil, fmt.Errorf("athena get query results: %w", err)
		}
		if out.ResultSet == nil {
			break
		}

		if first && out.ResultSet.ResultSetMetadata != nil {
			for _, col := range out.ResultSet.ResultSetMetadata.ColumnInfo {
				label := aws.ToString(col.Label)
				if label == "" {
					label = aws.ToString(col.Name)
				}
				rs.Columns = append(rs.Columns, label)
			}
		}

		rows := out.ResultSet.Rows
		if first && len(rows) > 0 {
			rows = rows[1:]
		}
		first = false

		for _, row := range rows {
			m := make(map[string]string, len(rs.Columns))
			for i, datum := range row.Data {
				if i < len(rs.Columns) {
					m[rs.Columns[i]] = aws.ToString(datum.VarCharValue)
				}
			}
			rs.Rows = append(rs.Rows, m)
			if len(rs.Rows) >= a.maxRows {
				return rs, nil
			}
		}

		if out.NextToken == nil {
			break
		}
		token = out.NextToken
	}
	return rs, nil
}

var _ adapter.QueryService = (*AthenaQueries)(nil)
