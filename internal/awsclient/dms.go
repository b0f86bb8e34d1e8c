package awsclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	dms "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice"
	dmstypes "github.com/aws/aws-sdk-go-v2/service/databasemigrationservice/types"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
)

// DMSAPI is the subset of the Database Migration Service client used here.
type DMSAPI interface {
	StartReplicationTask(ctx context.Context, in *dms.StartReplicationTaskInput, optFns ...func(*dms.Options)) (*dms.StartReplicationTaskOutput, error)
	DescribeReplicationTasks(ctx context.Context, in *dms.DescribeReplicationTasksInput, optFns ...func(*dms.Options)) (*dms.DescribeReplicationTasksOutput, error)
}

// DMSTasks runs DMS replication tasks identified by ARN.
type DMSTasks struct {
	api DMSAPI
}

// NewDMSTasks creates a replication service.
func NewDMSTasks(api DMSAPI) *DMSTasks {
	return &DMSTasks{api: api}
}

func (d *DMSTasks) StartTask(ctx context.Context, ref string, mode adapter.ReplicationMode) error {
	_, err := d.api.StartReplicationTask(ctx, &dms.StartReplicationTaskInput{
		ReplicationTaskArn:       aws.String(ref),
		StartReplicationTaskType: dmstypes.StartReplicationTaskTypeValue(mode),
	})
	if err != nil {
		return fmt.Errorf("dms start replication task: %w", err)
	}
	return nil
}

func (d *DMSTasks) TaskState(ctx context.Context, ref string) (adapter.Status, error) {
	out, err := d.api.DescribeReplicationTasks(ctx, &dms.DescribeReplicationTasksInput{
		Filters: []dmstypes.Filter{{
			Name:   aws.String("replication-task-arn"),
			Values: []string{ref},
		}},
	})
	if err != nil {
		return adapter.Status{}, fmt.Errorf("dms describe replication tasks: %w", err)
	}
	if len(out.ReplicationTasks) == 0 {
		return adapter.Status{}, fmt.Errorf("replication task %s not found", ref)
	}
	task := out.ReplicationTasks[0]
	return dmsStatus(aws.ToString(task.Status), aws.ToString(task.StopReason), aws.ToString(task.LastFailureMessage)), nil
}

// dmsStatus maps DMS task status strings. A full-load task ends "stopped"
// with a FINISHED stop reason on success.
func dmsStatus(status, stopReason, failure string) adapter.Status {
	switch status {
	case "failed":
		return adapter.Status{Phase: adapter.PhaseFailed, Reason: failure}
	case "stopped":
		if strings.Contains(strings.ToUpper(stopReason), "FINISHED") {
			return adapter.Status{Phase: adapter.PhaseSucceeded}
		}
		return adapter.Status{Phase: adapter.PhaseCancelled, Reason: stopReason}
	case "ready", "creating", "modifying", "moving":
		return adapter.Status{Phase: adapter.PhasePending}
	default:
		return adapter.Status{Phase: adapter.PhaseRunning}
	}
}

var _ adapter.ReplicationService = (*DMSTasks)(nil)
