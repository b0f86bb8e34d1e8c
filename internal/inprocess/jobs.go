package inprocess

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

// JoinMapFunc supplies the join map at job start.
type JoinMapFunc func(ctx context.Context) (refine.JoinMap, error)

// RefineJobs runs the refinement engine as a batch job. Every job name runs
// the same refinement over the configured sources.
type RefineJobs struct {
	engine  *refine.Engine
	sources []string
	joins   JoinMapFunc
	logger  *observability.Logger
	runs    *tracker

	// base detaches job runs from the caller's context.
	base context.Context
}

// NewRefineJobs creates a job service backed by engine.
func NewRefineJobs(engine *refine.Engine, sources []string, joins JoinMapFunc, logger *observability.Logger) *RefineJobs {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RefineJobs{
		engine:  engine,
		sources: sources,
		joins:   joins,
		logger:  logger.WithComponent("refine_jobs"),
		runs:    newTracker(),
		base:    context.Background(),
	}
}

// StartJob launches a refinement in the background and returns its run id.
func (j *RefineJobs) StartJob(ctx context.Context, name string) (string, error) {
	var joins refine.JoinMap
	if j.joins != nil {
		m, err := j.joins(ctx)
		if err != nil {
			// Joins are optional; refinement proceeds without them.
			j.logger.Warn().Err(err).Str("job", name).Msg("Join map unavailable")
		} else {
			joins = m
		}
	}

	id := j.runs.start()
	go j.run(name, id, joins)
	return id, nil
}

func (j *RefineJobs) run(name, id string, joins refine.JoinMap) {
	logger := j.logger.With().Str("job", name).Str("job_run_id", id).Logger()
	sum, err := j.engine.RefineAll(j.base, j.sources, joins)
	if err != nil {
		logger.Error().Err(err).Msg("Refinement aborted")
		j.runs.finish(id, adapter.Status{Phase: adapter.PhaseFailed, Reason: err.Error()})
		return
	}

	if len(sum.Partitions) == 0 && len(sum.Errors) > 0 {
		j.runs.finish(id, adapter.Status{Phase: adapter.PhaseFailed, Reason: summarizeErrors(sum.Errors)})
		return
	}
	if len(sum.Errors) > 0 {
		logger.Warn().Str("errors", summarizeErrors(sum.Errors)).Msg("Some sources were skipped")
	}
	logger.Info().Int("sources", len(sum.Partitions)).Msg("Refinement finished")
	j.runs.finish(id, adapter.Status{Phase: adapter.PhaseSucceeded})
}

// JobState implements adapter.JobService.
func (j *RefineJobs) JobState(ctx context.Context, name, runID string) (adapter.Status, error) {
	st, ok := j.runs.state(runID)
	if !ok {
		return adapter.Status{}, fmt.Errorf("job %s run %s not found", name, runID)
	}
	return st, nil
}

func summarizeErrors(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+errs[k])
	}
	return strings.Join(parts, "; ")
}

var _ adapter.JobService = (*RefineJobs)(nil)
