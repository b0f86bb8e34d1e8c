package adapter

import (
	"context"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// ReplicationMode selects how a replication task starts.
type ReplicationMode string

const (
	// ReplicationReload reloads the target from scratch.
	ReplicationReload ReplicationMode = "reload-target"
	ReplicationResume ReplicationMode = "resume-processing"
	ReplicationStart  ReplicationMode = "start-replication"
)

// ReplicationService starts replication tasks and reports their state.
type ReplicationService interface {
	StartTask(ctx context.Context, ref string, mode ReplicationMode) error
	TaskState(ctx context.Context, ref string) (Status, error)
}

// ReplicationTask adapts a ReplicationService to Unit.
type ReplicationTask struct {
	svc    ReplicationService
	mode   ReplicationMode
	timing Timing
	logger *observability.Logger
}

// NewReplicationTask creates a replication adapter. An empty mode reloads the target.
func NewReplicationTask(svc ReplicationService, mode ReplicationMode, timing Timing, logger *observability.Logger) *ReplicationTask {
	if mode == "" {
		mode = ReplicationReload
	}
	return &ReplicationTask{svc: svc, mode: mode, timing: timing.orDefault(), logger: loggerOrNop(logger).WithComponent("replication")}
}

func (r *ReplicationTask) Kind() Kind { return KindReplication }

func (r *ReplicationTask) Start(ctx context.Context, ref string) (Handle, error) {
	if err := r.svc.StartTask(ctx, ref, r.mode); err != nil {
		return Handle{}, &StartError{Kind: KindReplication, UnitID: ref, Err: err}
	}
	r.logger.Info().Str("task", ref).Str("mode", string(r.mode)).Msg("Started replication task")
	return Handle{Kind: KindReplication, UnitID: ref, RunID: ref, StartedAt: time.Now().UTC()}, nil
}

func (r *ReplicationTask) AwaitTerminal(ctx context.Context, h Handle) (TerminalStatus, error) {
	return await(ctx, r.logger, h, r.timing, func(ctx context.Context) (Status, error) {
		return r.svc.TaskState(ctx, h.UnitID)
	})
}

var _ Unit = (*ReplicationTask)(nil)
