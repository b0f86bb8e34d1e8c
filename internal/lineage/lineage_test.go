package lineage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

type memoryStore struct {
	mu      sync.Mutex
	batches [][]Event
}

func (m *memoryStore) SaveEvents(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Event(nil), events...))
	return nil
}

func (m *memoryStore) events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func TestWriterFlushesOnStop(t *testing.T) {
	store := &memoryStore{}
	w := NewWriter(store, Config{BufferSize: 10, FlushInterval: time.Hour}, nil)

	w.RecordSource("rds", &refine.DatasetPartition{
		Source:     "rds",
		IngestDate: "2025-03-01",
		Location:   "silver/rds/ingest_date=2025-03-01/part-0.parquet",
		Rows:       2,
	}, nil)
	w.RecordJoin("rds", &refine.JoinOutcome{With: "hubspot", Location: "silver/joined/rds_hubspot/part-0.parquet", Rows: 2})
	w.RecordSource("bigquery", nil, errors.New("unreadable"))
	require.NoError(t, w.Stop())

	events := store.events()
	require.Len(t, events, 3)
	assert.Equal(t, ActionRefined, events[0].Action)
	assert.Equal(t, "rds", events[0].Resource)
	assert.Equal(t, 2, events[0].Payload["rows"])
	assert.Equal(t, ActionJoined, events[1].Action)
	assert.Equal(t, "rds_hubspot", events[1].Resource)
	assert.Equal(t, ActionFailed, events[2].Action)
	assert.Equal(t, "unreadable", events[2].Payload["error"])
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.OccurredAt.IsZero())
	}
}

func TestWriterSkipsSkippedJoin(t *testing.T) {
	store := &memoryStore{}
	w := NewWriter(store, DefaultConfig(), nil)

	w.RecordJoin("rds", &refine.JoinOutcome{With: "hubspot", Skipped: true})
	w.RecordJoin("rds", nil)
	require.NoError(t, w.Stop())

	assert.Empty(t, store.events())
}

func TestWriterRecordsOnlyCatalogSuccess(t *testing.T) {
	store := &memoryStore{}
	w := NewWriter(store, DefaultConfig(), nil)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w.RecordResult(pipeline.StageResult{Stage: pipeline.StageTransform, Status: pipeline.ResultSucceeded})
	w.RecordResult(pipeline.StageResult{Stage: pipeline.StageCatalog, UnitID: "silver-crawler-dev", Status: pipeline.ResultFailed})
	w.RecordResult(pipeline.StageResult{
		Stage: pipeline.StageCatalog, UnitID: "gold-crawler-dev", TableName: "gold",
		Status: pipeline.ResultSucceeded, Timestamp: ts,
	})
	require.NoError(t, w.Stop())

	events := store.events()
	require.Len(t, events, 1)
	assert.Equal(t, ActionCataloged, events[0].Action)
	assert.Equal(t, "gold", events[0].Resource)
	assert.Equal(t, ts, events[0].OccurredAt)
}

func TestWriterAfterStopWritesSynchronously(t *testing.T) {
	store := &memoryStore{}
	w := NewWriter(store, DefaultConfig(), nil)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	w.Record(Event{Action: ActionRefined, Resource: "late"})
	require.Len(t, store.events(), 1)
}

func TestWriterKeepsEventsRacingStop(t *testing.T) {
	store := &memoryStore{}
	w := NewWriter(store, Config{BufferSize: 8, FlushInterval: time.Hour}, nil)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				w.Record(Event{Action: ActionRefined, Resource: "rds"})
			}
		}()
	}
	require.NoError(t, w.Stop())
	wg.Wait()

	assert.Len(t, store.events(), writers*perWriter)
}

func TestObjectStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	local, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	s := NewObjectStore(local, "meta", "meta-data/lineage")

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveEvents(ctx, []Event{
		{Action: ActionRefined, Resource: "b", OccurredAt: day.Add(2 * time.Hour)},
		{Action: ActionRefined, Resource: "a", OccurredAt: day.Add(time.Hour)},
	}))
	require.NoError(t, s.SaveEvents(ctx, []Event{{Action: ActionCataloged, Resource: "gold", OccurredAt: day.Add(3 * time.Hour)}}))
	require.NoError(t, s.SaveEvents(ctx, nil))
	require.NoError(t, s.SaveEvents(ctx, []Event{{Action: ActionRefined, Resource: "next", OccurredAt: day.AddDate(0, 0, 1)}}))

	events, err := s.Events(ctx, day)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"a", "b", "gold"}, []string{events[0].Resource, events[1].Resource, events[2].Resource})

	keys, err := local.List(ctx, "meta", "meta-data/lineage/date=2025-03-01/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestObjectStorePurge(t *testing.T) {
	ctx := context.Background()
	local, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	s := NewObjectStore(local, "meta", "meta-data/lineage/")

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, d := range []int{-3, -2, -1, 0} {
		require.NoError(t, s.SaveEvents(ctx, []Event{{Action: ActionRefined, Resource: "rds", OccurredAt: day.AddDate(0, 0, d)}}))
	}

	n, err := s.Purge(ctx, day.AddDate(0, 0, -1), true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	keys, err := local.List(ctx, "meta", "meta-data/lineage/")
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	n, err = s.Purge(ctx, day.AddDate(0, 0, -1), false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	keys, err = local.List(ctx, "meta", "meta-data/lineage/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
