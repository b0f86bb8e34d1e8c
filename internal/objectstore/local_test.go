package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "bronze", "hubspot/a.json", []byte(`{"id":1}`)))
	require.NoError(t, store.Put(ctx, "bronze", "hubspot/nested/b.json", []byte(`{"id":2}`)))
	require.NoError(t, store.Put(ctx, "bronze", "rds/c.csv", []byte("id\n1\n")))

	data, err := store.Get(ctx, "bronze", "hubspot/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(data))

	keys, err := store.List(ctx, "bronze", "hubspot/")
	require.NoError(t, err)
	assert.Equal(t, []string{"hubspot/a.json", "hubspot/nested/b.json"}, keys)

	_, err = store.Get(ctx, "bronze", "missing.json")
	assert.True(t, IsNotFound(err))
}

func TestListMissingBucket(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	keys, err := store.List(context.Background(), "nope", "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeletePrefixAndHasData(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	has, err := HasData(ctx, store, "bronze", "")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Put(ctx, "silver", "hubspot/ingest_date=2024-01-01/part-0.parquet", []byte("x")))
	require.NoError(t, store.Put(ctx, "silver", "hubspot/ingest_date=2024-01-02/part-0.parquet", []byte("y")))

	n, err := DeletePrefix(ctx, store, "silver", "hubspot/ingest_date=2024-01-01/")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err = HasData(ctx, store, "silver", "hubspot/")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "joined/hubspot_rds/ingest_date=2024-01-01", JoinKey("joined/", "/hubspot_rds/", "", "ingest_date=2024-01-01"))
}
