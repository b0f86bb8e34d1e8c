package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/config"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/notify"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/secrets"
)

// fakeUnit returns scripted outcomes keyed by unit ID. Unknown units succeed.
type fakeUnit struct {
	kind     adapter.Kind
	startErr map[string]error
	outcome  map[string]adapter.TerminalStatus
	conflict map[string]bool

	mu      sync.Mutex
	started []string
}

func newFakeUnit(kind adapter.Kind) *fakeUnit {
	return &fakeUnit{
		kind:     kind,
		startErr: map[string]error{},
		outcome:  map[string]adapter.TerminalStatus{},
		conflict: map[string]bool{},
	}
}

func (f *fakeUnit) Kind() adapter.Kind { return f.kind }

func (f *fakeUnit) Start(ctx context.Context, id string) (adapter.Handle, error) {
	f.mu.Lock()
	f.started = append(f.started, id)
	f.mu.Unlock()
	if err := f.startErr[id]; err != nil {
		return adapter.Handle{}, &adapter.StartError{Kind: f.kind, UnitID: id, Err: err}
	}
	return adapter.Handle{Kind: f.kind, UnitID: id, RunID: "jr_" + id, Conflict: f.conflict[id]}, nil
}

func (f *fakeUnit) AwaitTerminal(ctx context.Context, h adapter.Handle) (adapter.TerminalStatus, error) {
	st, ok := f.outcome[h.UnitID]
	if !ok || st == adapter.StatusSucceeded {
		return adapter.StatusSucceeded, nil
	}
	if st == adapter.StatusFailed && h.UnitID == "slow" {
		return st, fmt.Errorf("%s: %w", h.UnitID, adapter.ErrTimedOut)
	}
	return st, &adapter.UnitError{Kind: f.kind, UnitID: h.UnitID, Status: st, Reason: "boom"}
}

func (f *fakeUnit) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

type recordingHook struct {
	mu    sync.Mutex
	diags []notify.Diagnostic
}

func (h *recordingHook) Fallback(ctx context.Context, d notify.Diagnostic) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diags = append(h.diags, d)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	units   map[Stage]*fakeUnit
	hook    *recordingHook
	runlog  runlog.Store
	secrets secrets.StaticStore
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		units: map[Stage]*fakeUnit{
			StageExtractConnectors:  newFakeUnit(adapter.KindFlow),
			StageExtractReplication: newFakeUnit(adapter.KindReplication),
			StageTransform:          newFakeUnit(adapter.KindBatchJob),
			StageCatalog:            newFakeUnit(adapter.KindCrawler),
		},
		hook:    &recordingHook{},
		runlog:  runlog.NewObjectStore(store, "meta", "meta-data/logs/"),
		secrets: secrets.StaticStore{"arn:hubspot": {"token": "x"}},
	}

	units := make(map[Stage]adapter.Unit, len(f.units))
	for k, v := range f.units {
		units[k] = v
	}

	seq := 0
	deps := Deps{
		Units:   units,
		Secrets: f.secrets,
		RunLog:  f.runlog,
		Hook:    f.hook,
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("run-%d", seq)
		},
	}
	if mutate != nil {
		mutate(&deps)
	}

	f.orch, err = NewOrchestrator(deps)
	require.NoError(t, err)
	return f
}

func baseConfig() StageConfig {
	return StageConfig{
		Stages: []StageSpec{
			{Stage: StageExtractConnectors, Units: []Unit{{ID: "hubspot-flow"}, {ID: "bigquery-flow"}}, Required: true},
			{Stage: StageExtractReplication, Units: []Unit{{ID: "rds-task"}}, Required: true},
			{Stage: StageTransform, Units: []Unit{{ID: "refine-job"}}, Required: true},
			{Stage: StageCatalog, Units: []Unit{
				{ID: "bronze-crawler-dev", Table: "bronze"},
				{ID: "silver-crawler-dev", Table: "silver"},
				{ID: "gold-crawler-dev", Table: "gold"},
			}},
		},
		RequiredSecrets:       []SecretRef{{Name: "hubspot", Ref: "arn:hubspot"}},
		BestEffortConcurrency: 1,
	}
}

func TestNewOrchestratorRequiresDeps(t *testing.T) {
	_, err := NewOrchestrator(Deps{})
	assert.Error(t, err)
}

func TestRunAllSucceed(t *testing.T) {
	f := newFixture(t, nil)

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.True(t, run.Terminal())
	require.NotNil(t, run.CompletedAt)
	require.Len(t, run.Results, 7)
	assert.Empty(t, f.hook.diags)

	var stages []Stage
	for i, r := range run.Results {
		assert.Equal(t, i+1, r.Seq)
		assert.Equal(t, ResultSucceeded, r.Status)
		stages = append(stages, r.Stage)
	}
	assert.Equal(t, []Stage{
		StageExtractConnectors, StageExtractConnectors,
		StageExtractReplication, StageTransform,
		StageCatalog, StageCatalog, StageCatalog,
	}, stages)
	assert.Equal(t, "jr_rds-task", run.Results[2].ExternalRunID)
	assert.Equal(t, "silver", run.Results[5].TableName)

	recs, err := f.runlog.List(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Len(t, recs, 7)

	saved, err := f.runlog.GetRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", saved.Status)
	assert.Equal(t, 7, saved.Results)
}

func TestRunReportsEachResult(t *testing.T) {
	var seen []int
	f := newFixture(t, func(d *Deps) {
		d.OnResult = func(r StageResult) { seen = append(seen, r.Seq) }
	})

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, seen)
	assert.Len(t, run.Results, len(seen))
}

func TestRunMissingCredentials(t *testing.T) {
	f := newFixture(t, nil)
	cfg := baseConfig()
	cfg.RequiredSecrets = append(cfg.RequiredSecrets, SecretRef{Name: "rds", Ref: "arn:rds"})

	run, err := f.orch.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, run.Status)
	assert.Empty(t, run.Results)
	assert.Contains(t, run.Reason, "Missing credentials")
	assert.Contains(t, run.Reason, "rds")
	require.Len(t, f.hook.diags, 1)
	assert.Equal(t, "run-1", f.hook.diags[0].RunID)

	for _, u := range f.units {
		assert.Empty(t, u.Started())
	}
}

func TestRunContinuesAfterRequiredFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.units[StageExtractConnectors].outcome["bigquery-flow"] = adapter.StatusFailed
	f.units[StageTransform].startErr["refine-job"] = errors.New("ConcurrentRunsExceededException")

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, RunFailed, run.Status)
	require.Len(t, run.Results, 7)
	assert.Len(t, run.Failed(), 2)
	assert.Contains(t, run.Reason, "bigquery-flow")
	assert.Contains(t, run.Reason, "refine-job")

	require.Len(t, f.hook.diags, 2)
	assert.Equal(t, "bigquery-flow", f.hook.diags[0].Unit)
	assert.Equal(t, "refine-job", f.hook.diags[1].Unit)
	assert.Equal(t, []string{"bronze-crawler-dev", "silver-crawler-dev", "gold-crawler-dev"}, f.units[StageCatalog].Started())
}

func TestRunAbortOnRequiredFailureStillCatalogs(t *testing.T) {
	f := newFixture(t, nil)
	f.units[StageExtractReplication].outcome["rds-task"] = adapter.StatusCancelled
	cfg := baseConfig()
	cfg.AbortOnRequiredFailure = true

	run, err := f.orch.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, run.Status)
	assert.Empty(t, f.units[StageTransform].Started())
	assert.Len(t, f.units[StageCatalog].Started(), 3)
	assert.Equal(t, ResultCancelled, run.Results[2].Status)
	assert.Len(t, f.hook.diags, 1)
}

func TestRunBestEffortFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t, nil)
	f.units[StageCatalog].outcome["gold-crawler-dev"] = adapter.StatusFailed
	f.units[StageCatalog].outcome["slow"] = adapter.StatusFailed
	cfg := baseConfig()
	cfg.Stages[3].Units = append(cfg.Stages[3].Units, Unit{ID: "slow"})
	cfg.BestEffortConcurrency = 3

	run, err := f.orch.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, run.Status)
	assert.Empty(t, f.hook.diags)
	assert.Len(t, f.units[StageCatalog].Started(), 4)

	var timedOut bool
	for _, r := range run.Results {
		if r.UnitID == "slow" {
			timedOut = true
			assert.Equal(t, ResultFailed, r.Status)
			assert.Contains(t, r.Error, "timed out")
		}
	}
	assert.True(t, timedOut)
}

func TestRunCrawlerConflictIsSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.units[StageCatalog].conflict["silver-crawler-dev"] = true

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
}

func TestRunSkipsTransformWhenBronzeEmpty(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.BronzeCheck = func(ctx context.Context) (bool, error) { return false, nil }
	})

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, RunSucceeded, run.Status)
	assert.Empty(t, f.units[StageTransform].Started())
	assert.Len(t, run.Results, 6)
}

func TestRunBronzeCheckErrorRunsTransform(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.BronzeCheck = func(ctx context.Context) (bool, error) { return false, errors.New("list denied") }
	})

	_, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"refine-job"}, f.units[StageTransform].Started())
}

func TestRunMissingAdapterFailsUnits(t *testing.T) {
	f := newFixture(t, func(d *Deps) { delete(d.Units, StageTransform) })

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, RunFailed, run.Status)
	assert.Len(t, f.hook.diags, 1)
}

func TestRunInsight(t *testing.T) {
	model := llm.NewMockModel("  All seven units succeeded.  ")
	f := newFixture(t, func(d *Deps) { d.Insight = model })

	run, err := f.orch.Run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "All seven units succeeded.", run.Insight)
	require.Len(t, model.Prompts(), 1)
	assert.Contains(t, model.Prompts()[0], "catalog gold-crawler-dev: succeeded")
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.orch.Run(ctx, baseConfig())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "cancelled", run.Reason)
}

func TestStageConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Environment = "dev"
	cfg.Pipeline.Connectors = []string{"hubspot-flow"}
	cfg.Pipeline.TransformJobs = []string{"refine-job"}
	cfg.Secrets.Required = []config.SecretRef{{Name: "hubspot", Ref: "arn:hubspot"}}

	sc := StageConfigFrom(cfg)
	require.Len(t, sc.Stages, 4)
	assert.Equal(t, []Unit{{ID: "hubspot-flow"}}, sc.Stages[0].Units)
	assert.True(t, sc.Stages[0].Required)
	assert.False(t, sc.Stages[3].Required)
	assert.Equal(t, Unit{ID: "gold-crawler-dev", Table: "gold"}, sc.Stages[3].Units[2])
	assert.Equal(t, []SecretRef{{Name: "hubspot", Ref: "arn:hubspot"}}, sc.RequiredSecrets)
}

func TestOrderedIgnoresInputOrder(t *testing.T) {
	in := []StageSpec{{Stage: StageCatalog}, {Stage: StageTransform}, {Stage: StageExtractConnectors}}
	out := ordered(in)
	assert.Equal(t, []Stage{StageExtractConnectors, StageTransform, StageCatalog}, []Stage{out[0].Stage, out[1].Stage, out[2].Stage})
}
