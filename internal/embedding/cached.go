package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/cache"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// CachedEmbedder memoizes single-text embeddings in a cache.Client.
// Cache failures are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner  Embedder
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps inner with a cache.
func NewCachedEmbedder(inner Embedder, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.EmbeddingKey(e.inner.Model(), hex.EncodeToString(sum[:16]))
}

// EmbedSingle returns the cached vector for text or computes and stores it.
func (e *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var v []float32
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		e.logger.Warn().Err(err).Msg("Embedding cache read failed")
	}

	v, err := e.inner.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(v); err == nil {
		if err := e.cache.Set(ctx, key, raw, e.ttl); err != nil {
			e.logger.Warn().Err(err).Msg("Embedding cache write failed")
		}
	}
	return v, nil
}

// Embed embeds each text through EmbedSingle so every entry is cached.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Model returns the wrapped model name.
func (e *CachedEmbedder) Model() string { return e.inner.Model() }

// Dimension returns the wrapped dimension.
func (e *CachedEmbedder) Dimension() int { return e.inner.Dimension() }

var _ Embedder = (*CachedEmbedder)(nil)
