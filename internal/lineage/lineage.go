// Package lineage keeps an append-only trail of what the pipeline produced:
// refined and joined silver partitions and cataloged layers.
package lineage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
)

// Action is what happened to a resource.
type Action string

const (
	ActionRefined   Action = "refined"
	ActionJoined    Action = "joined"
	ActionFailed    Action = "failed"
	ActionCataloged Action = "cataloged"
)

// Event is one lineage entry.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Action     Action         `json:"action"`
	Resource   string         `json:"resource"`
	Location   string         `json:"location,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Store persists batches of events.
type Store interface {
	SaveEvents(ctx context.Context, events []Event) error
}

// ObjectStore writes each batch as one JSON Lines object, grouped by day:
//
//	<prefix>date=<yyyy-mm-dd>/<unix_nanos>_<batch_id>.jsonl
type ObjectStore struct {
	store  objectstore.Store
	bucket string
	prefix string
}

// NewObjectStore creates an object-store-backed lineage store.
func NewObjectStore(store objectstore.Store, bucket, prefix string) *ObjectStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectStore{store: store, bucket: bucket, prefix: prefix}
}

func (s *ObjectStore) dayPrefix(day time.Time) string {
	return fmt.Sprintf("%sdate=%s/", s.prefix, day.UTC().Format("2006-01-02"))
}

// SaveEvents writes events under the day of the first event.
func (s *ObjectStore) SaveEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode lineage event: %w", err)
		}
	}
	first := events[0].OccurredAt
	key := fmt.Sprintf("%s%019d_%s.jsonl", s.dayPrefix(first), first.UnixNano(), uuid.NewString())
	if err := s.store.Put(ctx, s.bucket, key, buf.Bytes()); err != nil {
		return fmt.Errorf("put lineage batch: %w", err)
	}
	return nil
}

// Events returns every event recorded on day, oldest first.
func (s *ObjectStore) Events(ctx context.Context, day time.Time) ([]Event, error) {
	keys, err := s.store.List(ctx, s.bucket, s.dayPrefix(day))
	if err != nil {
		return nil, fmt.Errorf("list lineage: %w", err)
	}

	var events []Event
	for _, key := range keys {
		data, err := s.store.Get(ctx, s.bucket, key)
		if err != nil {
			return nil, fmt.Errorf("get lineage batch %s: %w", key, err)
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			if len(bytes.TrimSpace(sc.Bytes())) == 0 {
				continue
			}
			var e Event
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				return nil, fmt.Errorf("decode lineage batch %s: %w", key, err)
			}
			events = append(events, e)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read lineage batch %s: %w", key, err)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })
	return events, nil
}

// Purge deletes every day strictly before cutoff and returns the number of
// batches removed. With dryRun nothing is deleted.
func (s *ObjectStore) Purge(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	keys, err := s.store.List(ctx, s.bucket, s.prefix+"date=")
	if err != nil {
		return 0, fmt.Errorf("list lineage: %w", err)
	}

	limit := cutoff.UTC().Format("2006-01-02")
	n := 0
	for _, key := range keys {
		day, _, ok := strings.Cut(strings.TrimPrefix(key, s.prefix+"date="), "/")
		if !ok || day >= limit {
			continue
		}
		n++
		if dryRun {
			continue
		}
		if err := s.store.Delete(ctx, s.bucket, key); err != nil {
			return n - 1, fmt.Errorf("delete lineage batch %s: %w", key, err)
		}
	}
	return n, nil
}
