package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
)

// exerciseStore runs the shared contract against any Store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveRun(ctx, Run{RunID: "run-1", Status: "running", StartedAt: started}))
	require.NoError(t, store.Append(ctx, Record{
		RunID: "run-1", Seq: 1, Stage: "extract-connectors", JobName: "hubspot-flow",
		JobRunID: "exec-1", Status: "succeeded", Required: true, Timestamp: started.Add(time.Minute),
	}))
	require.NoError(t, store.Append(ctx, Record{
		RunID: "run-1", Seq: 2, Stage: "catalog", JobName: "gold-crawler-dev",
		Status: "failed", Error: "denied", Timestamp: started.Add(2 * time.Minute),
	}))

	completed := started.Add(3 * time.Minute)
	require.NoError(t, store.SaveRun(ctx, Run{RunID: "run-1", Status: "succeeded", StartedAt: started, CompletedAt: &completed, Results: 2}))
	require.NoError(t, store.SaveRun(ctx, Run{RunID: "run-2", Status: "failed", StartedAt: started.Add(time.Hour), Reason: "Missing credentials"}))

	recs, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "hubspot-flow", recs[0].JobName)
	assert.True(t, recs[0].Required)
	assert.Equal(t, "denied", recs[1].Error)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.True(t, completed.Equal(*run.CompletedAt))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Nil(t, runs[0].CompletedAt)

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestObjectStore(t *testing.T) {
	local, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, NewObjectStore(local, "meta", "meta-data/logs"))
}

func TestObjectStoreRecordKey(t *testing.T) {
	s := NewObjectStore(nil, "meta", "meta-data/logs/")
	key := s.RecordKey(Record{RunID: "r1", Seq: 3, Stage: "transform", JobName: "silver-gold", JobRunID: "jr_9", TableName: ""})
	assert.Equal(t, "meta-data/logs/r1/0003_transform_silver-gold_jr_9_NA.json", key)

	key = s.RecordKey(Record{RunID: "r1", Seq: 7, Stage: "catalog", JobName: "gold-crawler", TableName: "gold"})
	assert.Equal(t, "meta-data/logs/r1/0007_catalog_gold-crawler_NA_gold.json", key)
}

func TestSQLStoreSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(ctx, SQLConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLStore(ctx, db)
	require.NoError(t, err)
	exerciseStore(t, store)
}
