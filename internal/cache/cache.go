// Package cache provides key/value caching and pub/sub for the lakehouse agent.
// The query path caches question embeddings here, and fallback diagnostics
// are published on a channel.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPrefix removes every key starting with prefix and reports how many went.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// PubSub publishes JSON-encodable messages and streams raw payloads back.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Key joins key components with colons.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// EmbeddingKey scopes an embedding cache entry to its model.
func EmbeddingKey(model, digest string) string {
	return Key("emb", model, digest)
}
