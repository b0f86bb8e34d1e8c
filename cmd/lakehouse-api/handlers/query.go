package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/assistant"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// QueryHandler answers analytics questions.
type QueryHandler struct {
	logger *observability.Logger
	asker  Asker
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(logger *observability.Logger, asker Asker) *QueryHandler {
	return &QueryHandler{logger: logger, asker: asker}
}

// QueryRequestDTO is the body of POST /api/query.
type QueryRequestDTO struct {
	UserMessage string `json:"user_message"`
}

// Query handles POST /api/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	ans, ok := h.ask(w, r, req.UserMessage)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toQueryResponse(ans))
}

func (h *QueryHandler) ask(w http.ResponseWriter, r *http.Request, question string) (*assistant.Answer, bool) {
	ans, err := h.asker.Ask(r.Context(), question)
	if errors.Is(err, assistant.ErrEmptyQuestion) {
		writeError(w, http.StatusBadRequest, "user_message is required", "")
		return nil, false
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Query failed")
		writeError(w, http.StatusInternalServerError, "query failed", err.Error())
		return nil, false
	}
	return ans, true
}
