package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/appflow"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
)

// AppFlowAPI is the subset of the AppFlow client used here.
type AppFlowAPI interface {
	StartFlow(ctx context.Context, in *appflow.StartFlowInput, optFns ...func(*appflow.Options)) (*appflow.StartFlowOutput, error)
	DescribeFlowExecutionRecords(ctx context.Context, in *appflow.DescribeFlowExecutionRecordsInput, optFns ...func(*appflow.Options)) (*appflow.DescribeFlowExecutionRecordsOutput, error)
}

// AppFlows triggers on-demand AppFlow flows.
type AppFlows struct {
	api AppFlowAPI
}

// NewAppFlows creates a flow service.
func NewAppFlows(api AppFlowAPI) *AppFlows {
	return &AppFlows{api: api}
}

func (a *AppFlows) StartFlow(ctx context.Context, name string) (string, error) {
	out, err := a.api.StartFlow(ctx, &appflow.StartFlowInput{FlowName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("appflow start flow: %w", err)
	}
	return aws.ToString(out.ExecutionId), nil
}

// FlowState scans recent execution records for executionID. A record that
// has not been published yet counts as pending.
func (a *AppFlows) FlowState(ctx context.Context, name, executionID string) (adapter.Status, error) {
	var token *string
	for page := 0; page < 5; page++ {
		out, err := a.api.DescribeFlowExecutionRecords(ctx, &appflow.DescribeFlowExecutionRecordsInput{
			FlowName:   aws.String(name),
			MaxResults: aws.Int32(20),
			NextToken:  token,
		})
		if err != nil {
			return adapter.Status{}, fmt.Errorf("appflow describe executions: %w", err)
		}

		for _, rec := range out.FlowExecutions {
			if aws.ToString(rec.ExecutionId) != executionID {
				continue
			}
			var reason string
			if rec.ExecutionResult != nil && rec.ExecutionResult.ErrorInfo != nil {
				reason = aws.ToString(rec.ExecutionResult.ErrorInfo.ExecutionMessage)
			}
			return adapter.Status{Phase: appFlowPhase(string(rec.ExecutionStatus)), Reason: reason}, nil
		}

		if out.NextToken == nil {
			break
		}
		token = out.NextToken
	}
	return adapter.Status{Phase: adapter.PhasePending}, nil
}

func appFlowPhase(status string) adapter.Phase {
	switch status {
	case "Successful":
		return adapter.PhaseSucceeded
	case "Error":
		return adapter.PhaseFailed
	case "Canceled", "CancelStarted":
		return adapter.PhaseCancelled
	default:
		return adapter.PhaseRunning
	}
}

var _ adapter.FlowService = (*AppFlows)(nil)
