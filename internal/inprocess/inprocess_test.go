package inprocess

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

var fastTiming = adapter.Timing{Interval: 10 * time.Millisecond, Timeout: 5 * time.Second}

func newStore(t *testing.T) objectstore.Store {
	t.Helper()
	s, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRefineJobs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Put(ctx, "bronze", "rds/a.csv", []byte("id,name\n1, x \n1,x\n")))

	engine := refine.NewEngine(store, refine.Options{BronzeBucket: "bronze", SilverBucket: "silver"}, nil)
	jobs := NewRefineJobs(engine, []string{"rds"}, nil, nil)

	unit := adapter.NewBatchJob(jobs, fastTiming, nil)
	h, err := unit.Start(ctx, "bronze-to-silver")
	require.NoError(t, err)
	status, err := unit.AwaitTerminal(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusSucceeded, status)

	ok, err := objectstore.HasData(ctx, store, "silver", "rds/")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefineJobsAllSourcesFail(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Put(ctx, "bronze", "rds/a.bin", []byte("a,b\n1\n")))

	engine := refine.NewEngine(store, refine.Options{BronzeBucket: "bronze", SilverBucket: "silver"}, nil)
	unit := adapter.NewBatchJob(NewRefineJobs(engine, []string{"rds"}, nil, nil), fastTiming, nil)

	h, err := unit.Start(ctx, "job")
	require.NoError(t, err)
	status, err := unit.AwaitTerminal(ctx, h)
	assert.Equal(t, adapter.StatusFailed, status)
	assert.ErrorContains(t, err, "rds")
}

func TestRefineJobsUnknownRun(t *testing.T) {
	jobs := NewRefineJobs(nil, nil, nil, nil)
	_, err := jobs.JobState(context.Background(), "job", "missing")
	assert.Error(t, err)
}

func TestCatalogLoadsGoldIntoSQLite(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Put(ctx, "gold", "gold/part-0.json", []byte(`{"brand":"Dell","model":"XPS 13","profit":300}
{"brand":"Apple","model":"iPhone 14","profit":100}
{"brand":"Dell","model":"XPS 13","profit":300}
`)))
	require.NoError(t, store.Put(ctx, "silver", "rds/ingest_date=2025-03-01/part-0.parquet", []byte("x")))

	queries := NewSQLiteQueries(openSQLite(t))
	catalog := NewCatalog(store, map[string]string{"bronze": "bronze", "silver": "silver", "gold": "gold"}, queries, nil)
	crawler := adapter.NewCrawler(catalog, fastTiming, nil)

	for _, name := range []string{"bronze-crawler-dev", "silver-crawler-dev", "gold-crawler-dev"} {
		h, err := crawler.Start(ctx, name)
		require.NoError(t, err)
		status, err := crawler.AwaitTerminal(ctx, h)
		require.NoError(t, err, name)
		assert.Equal(t, adapter.StatusSucceeded, status)
	}
	assert.Empty(t, catalog.Tables("bronze-crawler-dev"))
	assert.Equal(t, []string{"rds"}, catalog.Tables("silver-crawler-dev"))
	assert.Equal(t, []string{"gold"}, catalog.Tables("gold-crawler-dev"))

	exec := adapter.NewQueryExecutor(queries, "gold_db", "", fastTiming, nil)
	rs, err := exec.Execute(ctx, "SELECT brand, model, profit FROM gold ORDER BY profit DESC")
	require.NoError(t, err)
	assert.Equal(t, []string{"brand", "model", "profit"}, rs.Columns)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, map[string]string{"brand": "Dell", "model": "XPS 13", "profit": "300"}, rs.Rows[0])

	_, err = exec.Execute(ctx, "SELECT nope FROM missing")
	assert.Error(t, err)
}

func TestCatalogUnknownLayer(t *testing.T) {
	catalog := NewCatalog(newStore(t), map[string]string{"gold": "gold"}, nil, nil)
	require.NoError(t, catalog.StartCrawl(context.Background(), "platinum-crawler"))
	st, err := catalog.CrawlState(context.Background(), "platinum-crawler")
	require.NoError(t, err)
	assert.Equal(t, adapter.PhaseFailed, st.Phase)
}

func TestText(t *testing.T) {
	assert.Equal(t, "", text(nil))
	assert.Equal(t, "abc", text([]byte("abc")))
	assert.Equal(t, "42", text(int64(42)))
	assert.Equal(t, "2.5", text(2.5))
}
