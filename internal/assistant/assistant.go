// Package assistant answers analytics questions end to end: translate the
// question, run the generated SQL and deduplicate the rows.
package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/results"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/translate"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("missing user_message")

// Translator produces a structured response for a question.
type Translator interface {
	Translate(ctx context.Context, question string) translate.Response
}

// Executor runs SQL against the gold layer.
type Executor interface {
	Execute(ctx context.Context, sql string) (*adapter.ResultSet, error)
}

// Answer is returned to the caller.
type Answer struct {
	Action translate.Action    `json:"action"`
	Reply  string              `json:"reply"`
	SQL    string              `json:"sql,omitempty"`
	Data   []map[string]string `json:"data"`
	// Error is set when the generated query could not be run.
	Error string `json:"error,omitempty"`
}

// Service wires translation, execution and deduplication.
type Service struct {
	translator Translator
	executor   Executor
	keys       []string
	logger     *observability.Logger
}

// NewService creates a Service. Empty keys fall back to results.DefaultKeys.
func NewService(translator Translator, executor Executor, keys []string, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		translator: translator,
		executor:   executor,
		keys:       keys,
		logger:     logger.WithComponent("assistant"),
	}
}

// Ask answers question. Query failures leave Data empty and set Error; the
// model reply is still returned.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	resp := s.translator.Translate(ctx, question)
	ans := &Answer{Action: resp.Action, Reply: resp.Reply, SQL: resp.SQL, Data: []map[string]string{}}
	if resp.Action != translate.ActionQuery || resp.SQL == "" || s.executor == nil {
		return ans, nil
	}

	rs, err := s.executor.Execute(ctx, resp.SQL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.WithContext(ctx).Error().Err(err).Str("sql", resp.SQL).Msg("Generated query failed")
		ans.Error = err.Error()
		return ans, nil
	}
	ans.Data = results.Dedupe(rs.Rows, s.keys)
	return ans, nil
}
