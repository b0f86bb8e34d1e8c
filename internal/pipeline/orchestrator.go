// Package pipeline sequences the medallion ETL stages over external units of
// work and records the outcome of every unit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/notify"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/secrets"
)

// DataCheck reports whether the bronze layer holds anything to transform.
type DataCheck func(ctx context.Context) (bool, error)

// Deps wires the orchestrator to its collaborators. Units maps each stage to
// the adapter that drives it; Secrets, RunLog and Hook are required.
type Deps struct {
	Units   map[Stage]adapter.Unit
	Secrets secrets.Store
	RunLog  runlog.Store
	Hook    notify.Hook
	Logger  *observability.Logger

	// BronzeCheck, when set, is consulted before the transform stage.
	BronzeCheck DataCheck
	// Insight, when set, summarizes each finished run.
	Insight       llm.Model
	InsightPrompt string
	// OnResult, when set, observes every recorded StageResult in Seq order.
	OnResult func(StageResult)

	Now   func() time.Time
	NewID func() string
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	deps   Deps
	logger *observability.Logger
}

// NewOrchestrator validates deps and returns an Orchestrator.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Secrets == nil {
		return nil, errors.New("pipeline: secrets store is required")
	}
	if deps.RunLog == nil {
		return nil, errors.New("pipeline: run log is required")
	}
	if deps.Hook == nil {
		return nil, errors.New("pipeline: fallback hook is required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.New().String() }
	}
	return &Orchestrator{deps: deps, logger: deps.Logger.WithComponent("orchestrator")}, nil
}

// runState is the mutable side of a run while it executes.
type runState struct {
	mu     sync.Mutex
	run    *PipelineRun
	logger *observability.Logger
}

// Run executes one pipeline run end to end. Unit failures never surface as an
// error: they are recorded on the returned run. The error is non-nil only when
// ctx ends before the run completes, in which case the run is still returned
// with status failed.
func (o *Orchestrator) Run(ctx context.Context, cfg StageConfig) (*PipelineRun, error) {
	run := &PipelineRun{
		RunID:     o.deps.NewID(),
		StartedAt: o.deps.Now(),
		Status:    RunPending,
		Results:   []StageResult{},
	}
	ctx = observability.ContextWithRunID(ctx, run.RunID)
	st := &runState{run: run, logger: o.logger.WithRun(run.RunID)}

	st.logger.Info().Int("stages", len(cfg.Stages)).Msg("Pipeline run started")
	o.saveRun(ctx, st)

	if err := o.checkSecrets(ctx, cfg.RequiredSecrets); err != nil {
		st.logger.Error().Err(err).Msg("Credential precheck failed")
		o.fallback(ctx, st, notify.Diagnostic{Reason: err.Error()})
		return o.finish(ctx, st, RunFailed, err.Error()), nil
	}

	run.Status = RunRunning
	o.saveRun(ctx, st)

	requiredFailed := false
	for _, spec := range ordered(cfg.Stages) {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, st, RunFailed, "cancelled"), err
		}

		if spec.Stage != StageCatalog && requiredFailed && cfg.AbortOnRequiredFailure {
			st.logger.Warn().Str("stage", string(spec.Stage)).Msg("Skipping stage after required failure")
			continue
		}
		if spec.Stage == StageTransform && !o.bronzeReady(ctx, st) {
			continue
		}

		if failed := o.runStage(ctx, st, spec, cfg.BestEffortConcurrency); failed && spec.Required {
			requiredFailed = true
		}
	}

	if err := ctx.Err(); err != nil {
		return o.finish(ctx, st, RunFailed, "cancelled"), err
	}

	status, reason := RunSucceeded, ""
	if failed := run.Failed(); len(failed) > 0 {
		status = RunFailed
		names := make([]string, 0, len(failed))
		for _, f := range failed {
			names = append(names, f.UnitID)
		}
		reason = "required units failed: " + strings.Join(names, ", ")
	}
	o.summarize(ctx, st)
	return o.finish(ctx, st, status, reason), nil
}

func (o *Orchestrator) checkSecrets(ctx context.Context, refs []SecretRef) error {
	if len(refs) == 0 {
		return nil
	}
	srefs := make([]secrets.Ref, 0, len(refs))
	for _, r := range refs {
		srefs = append(srefs, secrets.Ref{Name: r.Name, Ref: r.Ref})
	}
	_, missing, err := secrets.Resolve(ctx, o.deps.Secrets, srefs)
	if err != nil {
		return &ConfigurationError{Missing: missing, Err: err}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

func (o *Orchestrator) bronzeReady(ctx context.Context, st *runState) bool {
	if o.deps.BronzeCheck == nil {
		return true
	}
	ok, err := o.deps.BronzeCheck(ctx)
	if err != nil {
		st.logger.Warn().Err(err).Msg("Bronze precheck failed, running transform anyway")
		return true
	}
	if !ok {
		st.logger.Info().Msg("Bronze layer is empty, skipping transform stage")
	}
	return ok
}

// runStage executes every unit of spec and reports whether any failed.
// Required stages run their units one at a time; best-effort stages may
// overlap up to concurrency units.
func (o *Orchestrator) runStage(ctx context.Context, st *runState, spec StageSpec, concurrency int) bool {
	logger := st.logger.WithStage(string(spec.Stage))
	if len(spec.Units) == 0 {
		logger.Debug().Msg("No units configured")
		return false
	}

	unit, ok := o.deps.Units[spec.Stage]
	if !ok {
		logger.Error().Msg("No adapter configured for stage")
		failed := false
		for _, u := range spec.Units {
			res := o.record(ctx, st, spec, u, adapter.Handle{}, ResultFailed, "no adapter configured for stage "+string(spec.Stage))
			failed = failed || res.Status != ResultSucceeded
		}
		return failed
	}

	logger.Info().Int("units", len(spec.Units)).Bool("required", spec.Required).Msg("Stage started")

	if spec.Required || concurrency <= 1 {
		failed := false
		for _, u := range spec.Units {
			if ctx.Err() != nil {
				break
			}
			if !o.runUnit(ctx, st, logger, unit, spec, u) {
				failed = true
			}
		}
		return failed
	}

	var (
		mu     sync.Mutex
		failed bool
	)
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, u := range spec.Units {
		g.Go(func() error {
			if !o.runUnit(ctx, st, logger, unit, spec, u) {
				mu.Lock()
				failed = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// runUnit starts and awaits one unit and records the outcome.
func (o *Orchestrator) runUnit(ctx context.Context, st *runState, logger *observability.Logger, unit adapter.Unit, spec StageSpec, u Unit) bool {
	h, err := unit.Start(ctx, u.ID)
	if err != nil {
		logger.Error().Err(err).Str("unit", u.ID).Msg("Unit failed to start")
		o.record(ctx, st, spec, u, h, ResultFailed, err.Error())
		return false
	}
	if h.Conflict {
		logger.Info().Str("unit", u.ID).Msg("Unit already running, awaiting existing run")
	}

	status, err := unit.AwaitTerminal(ctx, h)
	if ctx.Err() != nil {
		// The external unit keeps running; only our watch ended.
		o.record(ctx, st, spec, u, h, ResultStarted, ctx.Err().Error())
		return false
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	res := o.record(ctx, st, spec, u, h, resultStatus(status), msg)
	logger.Info().
		Str("unit", u.ID).
		Str("external_run_id", h.RunID).
		Str("status", string(res.Status)).
		Msg("Unit finished")
	return res.Status == ResultSucceeded
}

func resultStatus(s adapter.TerminalStatus) ResultStatus {
	switch s {
	case adapter.StatusSucceeded:
		return ResultSucceeded
	case adapter.StatusCancelled:
		return ResultCancelled
	default:
		return ResultFailed
	}
}

// record appends a result, persists it and raises the fallback for
// required failures.
func (o *Orchestrator) record(ctx context.Context, st *runState, spec StageSpec, u Unit, h adapter.Handle, status ResultStatus, errMsg string) StageResult {
	st.mu.Lock()
	res := StageResult{
		Seq:           len(st.run.Results) + 1,
		Stage:         spec.Stage,
		UnitID:        u.ID,
		ExternalRunID: h.RunID,
		Status:        status,
		Timestamp:     o.deps.Now(),
		TableName:     u.Table,
		Error:         errMsg,
		Required:      spec.Required,
	}
	st.run.Results = append(st.run.Results, res)
	if o.deps.OnResult != nil {
		o.deps.OnResult(res)
	}
	st.mu.Unlock()

	rec := runlog.Record{
		RunID:     st.run.RunID,
		Seq:       res.Seq,
		Stage:     string(res.Stage),
		JobName:   res.UnitID,
		JobRunID:  res.ExternalRunID,
		TableName: res.TableName,
		Status:    string(res.Status),
		Required:  res.Required,
		Error:     res.Error,
		Timestamp: res.Timestamp,
	}
	if err := o.deps.RunLog.Append(context.WithoutCancel(ctx), rec); err != nil {
		st.logger.Warn().Err(err).Str("unit", u.ID).Msg("Failed to persist stage result")
	}

	if spec.Required && status != ResultSucceeded && status != ResultStarted {
		reason := errMsg
		if reason == "" {
			reason = string(status)
		}
		o.fallback(ctx, st, notify.Diagnostic{
			Stage:    string(spec.Stage),
			Unit:     u.ID,
			JobRunID: h.RunID,
			Reason:   reason,
		})
	}
	return res
}

func (o *Orchestrator) fallback(ctx context.Context, st *runState, d notify.Diagnostic) {
	d.RunID = st.run.RunID
	d.Timestamp = o.deps.Now()
	if err := o.deps.Hook.Fallback(context.WithoutCancel(ctx), d); err != nil {
		st.logger.Warn().Err(err).Str("unit", d.Unit).Msg("Fallback hook failed")
	}
}

// summarize asks the insight model for a short summary of the run.
func (o *Orchestrator) summarize(ctx context.Context, st *runState) {
	if o.deps.Insight == nil {
		return
	}
	prompt := o.deps.InsightPrompt
	if prompt == "" {
		prompt = defaultInsightPrompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	for _, r := range st.run.Results {
		fmt.Fprintf(&b, "- %s %s: %s", r.Stage, r.UnitID, r.Status)
		if r.Error != "" {
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
		b.WriteString("\n")
	}

	out, err := o.deps.Insight.Invoke(ctx, b.String())
	if err != nil {
		st.logger.Warn().Err(err).Msg("Run insight failed")
		return
	}
	st.run.Insight = strings.TrimSpace(out)
}

const defaultInsightPrompt = "Summarize this ETL pipeline run in two sentences for an operator. Call out any failed units."

func (o *Orchestrator) finish(ctx context.Context, st *runState, status RunStatus, reason string) *PipelineRun {
	completed := o.deps.Now()
	st.run.Status = status
	st.run.Reason = reason
	st.run.CompletedAt = &completed
	o.saveRun(ctx, st)

	st.logger.Info().
		Str("status", string(status)).
		Str("reason", reason).
		Int("results", len(st.run.Results)).
		Dur("duration", completed.Sub(st.run.StartedAt)).
		Msg("Pipeline run finished")
	return st.run
}

func (o *Orchestrator) saveRun(ctx context.Context, st *runState) {
	run := st.run
	err := o.deps.RunLog.SaveRun(context.WithoutCancel(ctx), runlog.Run{
		RunID:       run.RunID,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Reason:      run.Reason,
		Insight:     run.Insight,
		Results:     len(run.Results),
	})
	if err != nil {
		st.logger.Warn().Err(err).Msg("Failed to persist run summary")
	}
}

// ordered returns stages in StageOrder regardless of input order.
func ordered(stages []StageSpec) []StageSpec {
	out := make([]StageSpec, 0, len(stages))
	for _, name := range StageOrder {
		for _, s := range stages {
			if s.Stage == name {
				out = append(out, s)
			}
		}
	}
	return out
}
