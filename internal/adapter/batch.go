package adapter

import (
	"context"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// JobService starts batch jobs and reports their run state.
type JobService interface {
	StartJob(ctx context.Context, name string) (runID string, err error)
	JobState(ctx context.Context, name, runID string) (Status, error)
}

// BatchJob adapts a JobService (Glue or DataBrew) to Unit.
type BatchJob struct {
	svc    JobService
	timing Timing
	logger *observability.Logger
}

// NewBatchJob creates a batch job adapter.
func NewBatchJob(svc JobService, timing Timing, logger *observability.Logger) *BatchJob {
	return &BatchJob{svc: svc, timing: timing.orDefault(), logger: loggerOrNop(logger).WithComponent("batch_job")}
}

func (b *BatchJob) Kind() Kind { return KindBatchJob }

func (b *BatchJob) Start(ctx context.Context, name string) (Handle, error) {
	runID, err := b.svc.StartJob(ctx, name)
	if err != nil {
		return Handle{}, &StartError{Kind: KindBatchJob, UnitID: name, Err: err}
	}
	b.logger.Info().Str("job", name).Str("run_id", runID).Msg("Started batch job")
	return Handle{Kind: KindBatchJob, UnitID: name, RunID: runID, StartedAt: time.Now().UTC()}, nil
}

func (b *BatchJob) AwaitTerminal(ctx context.Context, h Handle) (TerminalStatus, error) {
	return await(ctx, b.logger, h, b.timing, func(ctx context.Context) (Status, error) {
		return b.svc.JobState(ctx, h.UnitID, h.RunID)
	})
}

var _ Unit = (*BatchJob)(nil)
