// Package secrets resolves connector credentials before a pipeline run.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned when a secret does not exist or is empty.
var ErrNotFound = errors.New("secret not found")

// Store fetches a secret document by reference.
type Store interface {
	GetSecret(ctx context.Context, ref string) (map[string]any, error)
}

// Ref names one required credential.
type Ref struct {
	Name string
	Ref  string
}

// Resolve fetches every ref. Missing secrets are collected by name; any other
// failure aborts and is returned.
func Resolve(ctx context.Context, store Store, refs []Ref) (map[string]map[string]any, []string, error) {
	found := make(map[string]map[string]any, len(refs))
	var missing []string
	for _, r := range refs {
		doc, err := store.GetSecret(ctx, r.Ref)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				missing = append(missing, r.Name)
				continue
			}
			return nil, nil, fmt.Errorf("resolve secret %s: %w", r.Name, err)
		}
		found[r.Name] = doc
	}
	return found, missing, nil
}

// ParseDocument decodes a JSON object secret. Non-JSON strings become {"value": s}.
func ParseDocument(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNotFound
	}
	if strings.HasPrefix(s, "{") {
		var doc map[string]any
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("decode secret: %w", err)
		}
		if len(doc) == 0 {
			return nil, ErrNotFound
		}
		return doc, nil
	}
	return map[string]any{"value": s}, nil
}

// EnvStore reads secrets from environment variables named SECRET_<REF>, where
// the ref is upper-cased and every non-alphanumeric rune becomes an underscore.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore creates a store over the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// EnvName returns the variable EnvStore reads for ref.
func EnvName(ref string) string {
	var b strings.Builder
	b.WriteString("SECRET_")
	for _, r := range strings.ToUpper(ref) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// GetSecret implements Store.
func (s *EnvStore) GetSecret(ctx context.Context, ref string) (map[string]any, error) {
	v, ok := s.lookup(EnvName(ref))
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return ParseDocument(v)
}

// StaticStore serves secrets from memory.
type StaticStore map[string]map[string]any

// GetSecret implements Store.
func (s StaticStore) GetSecret(ctx context.Context, ref string) (map[string]any, error) {
	doc, ok := s[ref]
	if !ok || len(doc) == 0 {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return doc, nil
}

var (
	_ Store = (*EnvStore)(nil)
	_ Store = StaticStore(nil)
)
