package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// MockClient produces deterministic bag-of-words embeddings. Texts that share
// words land close together, which is enough for local runs and tests.
type MockClient struct {
	dimension int
}

// NewMockClient creates a mock client.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 256
	}
	return &MockClient{dimension: dimension}
}

// Embed hashes each lower-cased word into a bucket and normalizes.
func (c *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, c.dimension)
		for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			v[int(h.Sum32())%c.dimension]++
		}
		out[i] = Normalize(v)
	}
	return out, nil
}

// EmbedSingle generates a mock embedding for a single text.
func (c *MockClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Model returns the mock model name.
func (c *MockClient) Model() string { return "mock-embedding-model" }

// Dimension returns the embedding dimension.
func (c *MockClient) Dimension() int { return c.dimension }

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}

var _ Embedder = (*MockClient)(nil)
