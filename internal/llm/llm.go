// Package llm provides language model clients for query translation and run insights.
package llm

import (
	"context"
	"errors"
	"sync"
)

// Model turns a prompt into generated text.
type Model interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Invoke calls f.
func (f ModelFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrNoResponse is returned when the model produced no text.
var ErrNoResponse = errors.New("model returned no content")

// MockModel replays canned replies in order and records prompts.
type MockModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

// NewMockModel creates a mock that returns replies in order, repeating the last one.
func NewMockModel(replies ...string) *MockModel {
	return &MockModel{replies: replies}
}

// WithError makes every Invoke fail with err.
func (m *MockModel) WithError(err error) *MockModel {
	m.err = err
	return m
}

// Invoke returns the next canned reply.
func (m *MockModel) Invoke(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", ErrNoResponse
	}
	i := len(m.prompts) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return m.replies[i], nil
}

// Prompts returns the prompts received so far.
func (m *MockModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

var (
	_ Model = (*MockModel)(nil)
	_ Model = ModelFunc(nil)
)
