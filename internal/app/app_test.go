package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/config"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/lineage"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/translate"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.LocalRoot = filepath.Join(dir, "lake")
	cfg.Pipeline.Backend = "local"
	cfg.Pipeline.PollInterval = 10 * time.Millisecond
	cfg.Pipeline.TransformJobs = []string{"bronze-to-silver"}
	cfg.Refine.Sources = []string{"rds"}
	cfg.Query.Engine = "sqlite"
	cfg.Query.SQLitePath = filepath.Join(dir, "gold.db")
	cfg.Query.PollInterval = 10 * time.Millisecond
	cfg.LLM.Provider = "mock"
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 64
	return cfg
}

func newLocalApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNewReturnsInitErrors(t *testing.T) {
	cfg := localConfig(t)
	cfg.FewShot.Path = filepath.Join(t.TempDir(), "missing.json")

	closed := false
	trackClose := func(a *App) {
		a.onClose(func() error {
			closed = true
			return nil
		})
	}

	var (
		a   *App
		err error
	)
	require.NotPanics(t, func() {
		a, err = New(context.Background(), cfg, nil, trackClose)
	})
	assert.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, closed, "components opened before the failure must be closed")
}

func TestLocalPipelineAndQuery(t *testing.T) {
	ctx := context.Background()
	var observed []pipeline.StageResult
	var refined []string
	a := newLocalApp(t, localConfig(t),
		WithResultObserver(func(r pipeline.StageResult) { observed = append(observed, r) }),
		WithSourceObserver(func(src string, _ *refine.DatasetPartition, err error) {
			if err == nil {
				refined = append(refined, src)
			}
		}))
	require.NotNil(t, a.Catalog)
	assert.Equal(t, 4, a.Index.Len())

	require.NoError(t, a.Store.Put(ctx, "bronze", "rds/customers.csv", []byte("id,name\n1,Ann\n1,Ann\n2,Bob\n")))
	require.NoError(t, a.Store.Put(ctx, "gold", "gold/part-0.csv",
		[]byte("brand,model,profit\nApple,iPhone 14,100\nApple,iPhone 14,100\nDell,XPS 13,300\n")))

	run, err := a.Orchestrator.Run(ctx, a.StageConfig())
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunSucceeded, run.Status)
	require.Len(t, run.Results, 4)
	for _, r := range run.Results {
		assert.Equal(t, pipeline.ResultSucceeded, r.Status, "%s %s", r.Stage, r.UnitID)
	}
	assert.Equal(t, []string{"gold"}, a.Catalog.Tables("gold-crawler-dev"))
	assert.Len(t, observed, 4)
	assert.Equal(t, []string{"rds"}, refined)

	stored, err := a.RunLog.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.RunSucceeded), stored.Status)

	require.NoError(t, a.Lineage.Stop())
	events, err := lineage.NewObjectStore(a.Store, a.Config.Storage.MetaBucket, a.Config.Lineage.Prefix).
		Events(ctx, time.Now())
	require.NoError(t, err)
	var actions []lineage.Action
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, lineage.ActionRefined)
	assert.Contains(t, actions, lineage.ActionCataloged)

	answer, err := a.Assistant.Ask(ctx, "Show me the most profitable phones")
	require.NoError(t, err)
	assert.Equal(t, translate.ActionQuery, answer.Action)
	assert.Empty(t, answer.Error)
	assert.Len(t, answer.Data, 2)
}

func TestLocalPipelineSkipsTransformWithoutBronze(t *testing.T) {
	a := newLocalApp(t, localConfig(t))

	run, err := a.Orchestrator.Run(context.Background(), a.StageConfig())
	require.NoError(t, err)
	for _, r := range run.Results {
		assert.NotEqual(t, pipeline.StageTransform, r.Stage)
	}
}

func TestLocalBackendFailsExtractionUnits(t *testing.T) {
	cfg := localConfig(t)
	cfg.Pipeline.Connectors = []string{"hubspot-flow"}
	a := newLocalApp(t, cfg)

	run, err := a.Orchestrator.Run(context.Background(), a.StageConfig())
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunFailed, run.Status)
	require.NotEmpty(t, run.Results)
	assert.Equal(t, pipeline.StageExtractConnectors, run.Results[0].Stage)
	assert.Equal(t, pipeline.ResultFailed, run.Results[0].Status)
}

func TestJoinMap(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t)
	cfg.Refine.JoinMap = map[string]config.JoinSpec{
		"hubspot": {JoinWith: "rds", LeftKey: "crm_id", RightKey: "customer_id"},
	}
	a := newLocalApp(t, cfg)

	m, err := a.JoinMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, refine.JoinSpec{JoinWith: "rds", LeftKey: "crm_id", RightKey: "customer_id"}, m["hubspot"])

	require.NoError(t, a.Store.Put(ctx, cfg.Storage.MetaBucket, "config/join_map.json",
		[]byte(`{"bigquery":{"join_with":"rds","left_key":"id","right_key":"id"}}`)))
	a.Config.Refine.JoinMapKey = "config/join_map.json"

	m, err = a.JoinMap(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 1)
	assert.Equal(t, "rds", m["bigquery"].JoinWith)
}

func TestJobArguments(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Refine.JoinMapKey = "config/join_map.json"
	a := &App{Config: cfg}

	args := a.jobArguments()
	assert.Equal(t, "dev", args["--ENV"])
	assert.Equal(t, "s3://datalakenewai/config/join_map.json", args["--JOIN_MAP"])
}
