// Package fewshot holds the example corpus used to prime query translation
// and retrieves the examples closest to a question.
package fewshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/embedding"
)

const questionField = "example_input_question"

// Example pairs a sample question with the answer fields it should produce.
type Example struct {
	Question string
	Payload  map[string]string
}

// MarshalJSON flattens the example into one object with the question first.
func (e Example) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	q, _ := json.Marshal(e.Question)
	buf.WriteString(`"` + questionField + `":`)
	buf.Write(q)

	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(e.Payload[k])
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat form produced by MarshalJSON.
func (e *Example) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q, ok := raw[questionField].(string)
	if !ok || q == "" {
		return fmt.Errorf("example is missing %q", questionField)
	}
	e.Question = q
	e.Payload = make(map[string]string, len(raw)-1)
	for k, v := range raw {
		if k == questionField {
			continue
		}
		if s, ok := v.(string); ok {
			e.Payload[k] = s
		} else {
			b, _ := json.Marshal(v)
			e.Payload[k] = string(b)
		}
	}
	return nil
}

// DefaultExamples is the built-in corpus.
func DefaultExamples() []Example {
	return []Example{
		{Question: "What are the top 5 selling phones?", Payload: map[string]string{"brand": "Apple", "model": "iPhone 14", "profit": "100"}},
		{Question: "Which laptops have highest profit?", Payload: map[string]string{"brand": "Dell", "model": "XPS 13", "profit": "300"}},
		{Question: "Most profitable smartphones?", Payload: map[string]string{"brand": "Samsung", "model": "Galaxy S23", "profit": "150"}},
		{Question: "Top rated laptops?", Payload: map[string]string{"brand": "HP", "model": "Spectre x360", "profit": "300"}},
	}
}

// LoadFile reads a JSON array of examples.
func LoadFile(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	var out []Example
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse examples %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, errors.New("example corpus is empty")
	}
	return out, nil
}

// Match is one retrieved example with its similarity.
type Match struct {
	Example Example
	Score   float64
}

// Index is an immutable set of embedded examples. It is safe for concurrent use.
type Index struct {
	examples []Example
	vectors  [][]float32
}

// NewIndex pairs examples with precomputed vectors.
func NewIndex(examples []Example, vectors [][]float32) (*Index, error) {
	if len(examples) != len(vectors) {
		return nil, fmt.Errorf("got %d examples but %d vectors", len(examples), len(vectors))
	}
	return &Index{
		examples: append([]Example(nil), examples...),
		vectors:  append([][]float32(nil), vectors...),
	}, nil
}

// Build embeds every example question and returns the index.
func Build(ctx context.Context, embedder embedding.Embedder, examples []Example) (*Index, error) {
	texts := make([]string, len(examples))
	for i, ex := range examples {
		texts[i] = ex.Question
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed examples: %w", err)
	}
	return NewIndex(examples, vectors)
}

// Len returns the corpus size.
func (ix *Index) Len() int { return len(ix.examples) }

// Examples returns a copy of the corpus in insertion order.
func (ix *Index) Examples() []Example {
	return append([]Example(nil), ix.examples...)
}

// Nearest returns up to k examples by descending cosine similarity to query.
// Ties keep insertion order. A zero query vector matches nothing.
func (ix *Index) Nearest(query []float32, k int) []Match {
	if k <= 0 || norm(query) == 0 {
		return nil
	}
	matches := make([]Match, len(ix.examples))
	for i, ex := range ix.examples {
		matches[i] = Match{Example: ex, Score: Cosine(query, ix.vectors[i])}
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// Cosine returns the cosine similarity of a and b, or 0 when either norm is 0.
// Extra dimensions of the longer vector are ignored.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
