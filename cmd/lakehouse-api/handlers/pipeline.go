package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
)

// PipelineHandler triggers pipeline runs and serves run history.
type PipelineHandler struct {
	logger *observability.Logger
	runner Runner
	stages func() pipeline.StageConfig
	runs   runlog.Store
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(logger *observability.Logger, runner Runner, stages func() pipeline.StageConfig, runs runlog.Store) *PipelineHandler {
	return &PipelineHandler{
		logger: logger,
		runner: runner,
		stages: stages,
		runs:   runs,
	}
}

// RunResponseDTO is returned for a finished run.
type RunResponseDTO struct {
	Status string                `json:"status"`
	Result *pipeline.PipelineRun `json:"result"`
}

// RunDetailDTO is a persisted run with its stage records.
type RunDetailDTO struct {
	Run     *runlog.Run     `json:"run"`
	Records []runlog.Record `json:"records"`
}

// ETL handles POST /api/etl.
func (h *PipelineHandler) ETL(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, RunResponseDTO{Status: string(run.Status), Result: run})
}

// run executes the pipeline and writes a 500 when no run came back.
func (h *PipelineHandler) run(w http.ResponseWriter, r *http.Request) (*pipeline.PipelineRun, bool) {
	run, err := h.runner.Run(r.Context(), h.stages())
	if run == nil {
		h.logger.Error().Err(err).Msg("Pipeline run failed to start")
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		writeError(w, http.StatusInternalServerError, "pipeline run failed", detail)
		return nil, false
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("Pipeline run interrupted")
	}
	return run, true
}

// ListRuns handles GET /api/runs.
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("List runs failed")
		writeError(w, http.StatusInternalServerError, "list runs failed", err.Error())
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /api/runs/{runID}.
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, runlog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found", runID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get run failed", err.Error())
		return
	}

	records, err := h.runs.List(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list records failed", err.Error())
		return
	}
	if records == nil {
		records = []runlog.Record{}
	}
	writeJSON(w, http.StatusOK, RunDetailDTO{Run: run, Records: records})
}
