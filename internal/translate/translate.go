// Package translate turns natural-language questions into SQL by priming a
// language model with the table schema and the most similar examples.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/embedding"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/fewshot"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// Action tells the caller what to do with a Response.
type Action string

const (
	ActionChat  Action = "chat"
	ActionQuery Action = "query"
)

// Response is the structured model answer.
type Response struct {
	Action Action `json:"action"`
	SQL    string `json:"sql"`
	Reply  string `json:"reply"`
}

// SystemInstruction is prepended to every prompt.
const SystemInstruction = `You are an analytics assistant. Only respond in JSON:
{
  "action": "chat" | "query",
  "sql": "<Athena SQL query, optional>",
  "reply": "<Human-readable response>"
}`

const outputFormat = `{
    "action": "query",
    "sql": "<SQL query based on question>",
    "reply": "<Optional human-readable text>"
}`

// Config configures a Translator.
type Config struct {
	Schema string
	TopK   int
}

// Translator answers questions with one model call.
type Translator struct {
	embedder embedding.Embedder
	index    *fewshot.Index
	model    llm.Model
	cfg      Config
	logger   *observability.Logger
}

// New creates a Translator.
func New(embedder embedding.Embedder, index *fewshot.Index, model llm.Model, cfg Config, logger *observability.Logger) *Translator {
	if cfg.TopK <= 0 {
		cfg.TopK = 2
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Translator{
		embedder: embedder,
		index:    index,
		model:    model,
		cfg:      cfg,
		logger:   logger.WithComponent("translator"),
	}
}

// Translate never fails: model errors and unparseable output degrade to a
// chat response carrying the error or the raw text.
func (t *Translator) Translate(ctx context.Context, question string) Response {
	logger := t.logger.WithContext(ctx)
	examples := t.retrieve(ctx, question)

	prompt, err := BuildPrompt(t.cfg.Schema, examples, question)
	if err != nil {
		return Response{Action: ActionChat, Reply: fmt.Sprintf("Error calling LLM: %v", err)}
	}

	text, err := t.model.Invoke(ctx, prompt)
	if err != nil {
		logger.Error().Err(err).Msg("Model invocation failed")
		return Response{Action: ActionChat, Reply: fmt.Sprintf("Error calling LLM: %v", err)}
	}

	resp, ok := Parse(text)
	if !ok {
		logger.Warn().Int("length", len(text)).Msg("Model output is not a structured response")
		return Response{Action: ActionChat, Reply: text}
	}
	logger.Debug().Str("action", string(resp.Action)).Int("examples", len(examples)).Msg("Question translated")
	return resp
}

// retrieve returns the nearest examples. Retrieval failures only cost the
// prompt its examples.
func (t *Translator) retrieve(ctx context.Context, question string) []fewshot.Example {
	if t.index == nil || t.embedder == nil || t.index.Len() == 0 {
		return nil
	}
	vec, err := t.embedder.EmbedSingle(ctx, question)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Question embedding failed, continuing without examples")
		return nil
	}
	matches := t.index.Nearest(vec, t.cfg.TopK)
	out := make([]fewshot.Example, len(matches))
	for i, m := range matches {
		out[i] = m.Example
	}
	return out
}

// BuildPrompt assembles the instruction, schema, examples and question.
func BuildPrompt(schema string, examples []fewshot.Example, question string) (string, error) {
	if examples == nil {
		examples = []fewshot.Example{}
	}
	ex, err := json.Marshal(examples)
	if err != nil {
		return "", fmt.Errorf("encode examples: %w", err)
	}

	var b strings.Builder
	b.WriteString(SystemInstruction)
	b.WriteString("\n\nTable schema:\n")
	b.WriteString(strings.TrimSpace(schema))
	b.WriteString("\n\nFew-shot examples:\n")
	b.Write(ex)
	b.WriteString("\n\nUser question: ")
	b.WriteString(question)
	b.WriteString("\n\nOutput format:\n")
	b.WriteString(outputFormat)
	b.WriteString("\n")
	return b.String(), nil
}

// Parse extracts a Response from model text. It accepts bare JSON, fenced
// JSON and JSON surrounded by prose. A query action without SQL becomes chat.
func Parse(text string) (Response, bool) {
	candidate := extractJSON(text)
	if candidate == "" {
		return Response{}, false
	}

	var raw struct {
		Action *string `json:"action"`
		SQL    string  `json:"sql"`
		Reply  string  `json:"reply"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil || raw.Action == nil {
		return Response{}, false
	}

	resp := Response{
		Action: Action(strings.ToLower(strings.TrimSpace(*raw.Action))),
		SQL:    strings.TrimSpace(raw.SQL),
		Reply:  raw.Reply,
	}
	switch {
	case resp.Action == ActionQuery && resp.SQL == "":
		resp.Action = ActionChat
	case resp.Action != ActionQuery && resp.Action != ActionChat:
		if resp.SQL != "" {
			resp.Action = ActionQuery
		} else {
			resp.Action = ActionChat
		}
	}
	if resp.Action == ActionChat {
		resp.SQL = ""
	}
	return resp, true
}

func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
