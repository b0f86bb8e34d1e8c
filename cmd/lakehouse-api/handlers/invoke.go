package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// InvokeHandler is the single-entry front end: one body selects either a
// pipeline run or a question.
type InvokeHandler struct {
	logger   *observability.Logger
	pipeline *PipelineHandler
	query    *QueryHandler
}

// NewInvokeHandler creates a new invoke handler.
func NewInvokeHandler(logger *observability.Logger, pipeline *PipelineHandler, query *QueryHandler) *InvokeHandler {
	return &InvokeHandler{logger: logger, pipeline: pipeline, query: query}
}

// InvokeRequestDTO is the body of POST /invoke.
type InvokeRequestDTO struct {
	Action      string `json:"action"`
	UserMessage string `json:"user_message"`
}

// Invoke handles POST /invoke.
func (h *InvokeHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reply": "Invalid request body"})
		return
	}

	switch {
	case req.Action == "etl":
		run, ok := h.pipeline.run(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, RunResponseDTO{Status: string(run.Status), Result: run})

	case req.Action == "query" && strings.TrimSpace(req.UserMessage) != "":
		ans, ok := h.query.ask(w, r, req.UserMessage)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toQueryResponse(ans))

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"reply": "Invalid action or missing user_message"})
	}
}
