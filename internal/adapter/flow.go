package adapter

import (
	"context"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// FlowService triggers connector flows and reports execution state.
type FlowService interface {
	StartFlow(ctx context.Context, name string) (executionID string, err error)
	FlowState(ctx context.Context, name, executionID string) (Status, error)
}

// FlowConnector adapts a FlowService to Unit.
type FlowConnector struct {
	svc    FlowService
	timing Timing
	logger *observability.Logger
}

// NewFlowConnector creates a flow connector adapter.
func NewFlowConnector(svc FlowService, timing Timing, logger *observability.Logger) *FlowConnector {
	return &FlowConnector{svc: svc, timing: timing.orDefault(), logger: loggerOrNop(logger).WithComponent("flow")}
}

func (f *FlowConnector) Kind() Kind { return KindFlow }

func (f *FlowConnector) Start(ctx context.Context, name string) (Handle, error) {
	execID, err := f.svc.StartFlow(ctx, name)
	if err != nil {
		return Handle{}, &StartError{Kind: KindFlow, UnitID: name, Err: err}
	}
	f.logger.Info().Str("flow", name).Str("execution_id", execID).Msg("Started flow")
	return Handle{Kind: KindFlow, UnitID: name, RunID: execID, StartedAt: time.Now().UTC()}, nil
}

func (f *FlowConnector) AwaitTerminal(ctx context.Context, h Handle) (TerminalStatus, error) {
	return await(ctx, f.logger, h, f.timing, func(ctx context.Context) (Status, error) {
		return f.svc.FlowState(ctx, h.UnitID, h.RunID)
	})
}

var _ Unit = (*FlowConnector)(nil)
