// Package handlers provides HTTP handlers for the lakehouse agent API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/assistant"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
)

// Runner executes pipeline runs.
type Runner interface {
	Run(ctx context.Context, cfg pipeline.StageConfig) (*pipeline.PipelineRun, error)
}

// Asker answers analytics questions.
type Asker interface {
	Ask(ctx context.Context, question string) (*assistant.Answer, error)
}

// QueryResponseDTO is the body returned for a question.
type QueryResponseDTO struct {
	Reply string              `json:"reply"`
	Data  []map[string]string `json:"data"`
	SQL   string              `json:"sql,omitempty"`
	Error string              `json:"error,omitempty"`
}

func toQueryResponse(ans *assistant.Answer) QueryResponseDTO {
	return QueryResponseDTO{Reply: ans.Reply, Data: ans.Data, SQL: ans.SQL, Error: ans.Error}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
