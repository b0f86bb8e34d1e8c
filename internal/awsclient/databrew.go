package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/databrew"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
)

// DataBrewAPI is the subset of the DataBrew client used here.
type DataBrewAPI interface {
	StartJobRun(ctx context.Context, in *databrew.StartJobRunInput, optFns ...func(*databrew.Options)) (*databrew.StartJobRunOutput, error)
	DescribeJobRun(ctx context.Context, in *databrew.DescribeJobRunInput, optFns ...func(*databrew.Options)) (*databrew.DescribeJobRunOutput, error)
}

// DataBrewJobs runs DataBrew recipe jobs.
type DataBrewJobs struct {
	api DataBrewAPI
}

// NewDataBrewJobs creates a job service backed by DataBrew.
func NewDataBrewJobs(api DataBrewAPI) *DataBrewJobs {
	return &DataBrewJobs{api: api}
}

func (d *DataBrewJobs) StartJob(ctx context.Context, name string) (string, error) {
	out, err := d.api.StartJobRun(ctx, &databrew.StartJobRunInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("databrew start job run: %w", err)
	}
	return aws.ToString(out.RunId), nil
}

func (d *DataBrewJobs) JobState(ctx context.Context, name, runID string) (adapter.Status, error) {
	out, err := d.api.DescribeJobRun(ctx, &databrew.DescribeJobRunInput{
		Name:  aws.String(name),
		RunId: aws.String(runID),
	})
	if err != nil {
		return adapter.Status{}, fmt.Errorf("databrew describe job run: %w", err)
	}

	var phase adapter.Phase
	switch string(out.State) {
	case "SUCCEEDED":
		phase = adapter.PhaseSucceeded
	case "FAILED", "TIMEOUT":
		phase = adapter.PhaseFailed
	case "STOPPED":
		phase = adapter.PhaseCancelled
	default:
		phase = adapter.PhaseRunning
	}
	return adapter.Status{Phase: phase, Reason: aws.ToString(out.ErrorMessage)}, nil
}

var _ adapter.JobService = (*DataBrewJobs)(nil)
