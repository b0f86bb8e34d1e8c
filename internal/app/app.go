// Package app assembles the lakehouse agent from configuration. Both the API
// server and the CLI build their components here.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/assistant"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/awsclient"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/cache"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/config"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/embedding"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/fewshot"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/inprocess"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/lineage"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/translate"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config
	Logger *observability.Logger

	Store        objectstore.Store
	Cache        cache.Client
	RunLog       runlog.Store
	Model        llm.Model
	Embedder     embedding.Embedder
	Index        *fewshot.Index
	Translator   *translate.Translator
	Assistant    *assistant.Service
	Refiner      *refine.Engine
	Orchestrator *pipeline.Orchestrator

	// Catalog is set for the local backend only.
	Catalog *inprocess.Catalog
	// Lineage is nil when the lineage trail is disabled.
	Lineage *lineage.Writer

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	sqlite   *inprocess.SQLiteQueries
	closers  []func() error
	onResult func(pipeline.StageResult)
	onSource func(string, *refine.DatasetPartition, error)
}

// Option customizes New.
type Option func(*App)

// WithResultObserver is called with every stage result the orchestrator records.
func WithResultObserver(fn func(pipeline.StageResult)) Option {
	return func(a *App) { a.onResult = fn }
}

// WithSourceObserver is called as each source finishes refining.
func WithSourceObserver(fn func(source string, part *refine.DatasetPartition, err error)) Option {
	return func(a *App) { a.onSource = fn }
}

// New builds the application. Everything opened so far is closed again when
// a later component fails.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Store, err = a.newStore(); err != nil {
		return nil, err
	}
	if a.Cache, err = a.newCache(ctx); err != nil {
		return nil, err
	}
	if a.RunLog, err = a.newRunLog(ctx); err != nil {
		return nil, err
	}
	if a.Model, err = a.newModel(ctx); err != nil {
		return nil, err
	}
	if a.Embedder, err = a.newEmbedder(ctx); err != nil {
		return nil, err
	}

	if err = a.buildQueryPath(ctx); err != nil {
		return nil, err
	}

	if cfg.Lineage.Enabled {
		a.Lineage = lineage.NewWriter(
			lineage.NewObjectStore(a.Store, cfg.Storage.MetaBucket, cfg.Lineage.Prefix),
			lineage.Config{BufferSize: cfg.Lineage.BufferSize, FlushInterval: cfg.Lineage.FlushInterval},
			logger)
		a.onClose(a.Lineage.Stop)
	}

	refineOpts := refine.Options{
		BronzeBucket:    cfg.Storage.BronzeBucket,
		SilverBucket:    cfg.Storage.SilverBucket,
		JoinedPrefix:    cfg.Storage.JoinedPrefix,
		PrimaryKeyRules: cfg.Refine.PrimaryKeyRules,
		Concurrency:     cfg.Refine.Concurrency,
		OnSource:        a.sourceObserver(),
	}
	if a.Lineage != nil {
		refineOpts.OnJoin = a.Lineage.RecordJoin
	}
	a.Refiner = refine.NewEngine(a.Store, refineOpts, logger)

	if err = a.buildOrchestrator(ctx); err != nil {
		return nil, err
	}

	logger.Info().
		Str("backend", cfg.Pipeline.Backend).
		Str("storage", cfg.Storage.Driver).
		Str("query_engine", cfg.Query.Engine).
		Str("llm", cfg.LLM.Provider).
		Msg("Application initialized")
	return a, nil
}

// StageConfig is the run input derived from the configuration.
func (a *App) StageConfig() pipeline.StageConfig {
	return pipeline.StageConfigFrom(a.Config)
}

// JoinMap returns the configured join map. A join map key in the meta bucket
// takes precedence over the inline map.
func (a *App) JoinMap(ctx context.Context) (refine.JoinMap, error) {
	if key := a.Config.Refine.JoinMapKey; key != "" {
		return refine.LoadJoinMap(ctx, a.Store, a.Config.Storage.MetaBucket, key)
	}
	m := make(refine.JoinMap, len(a.Config.Refine.JoinMap))
	for src, spec := range a.Config.Refine.JoinMap {
		m[src] = refine.JoinSpec{JoinWith: spec.JoinWith, LeftKey: spec.LeftKey, RightKey: spec.RightKey}
	}
	return m, nil
}

// Close releases every component in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// sourceObserver and resultObserver record lineage before passing the
// result on to the caller's observer.
func (a *App) sourceObserver() func(string, *refine.DatasetPartition, error) {
	if a.Lineage == nil {
		return a.onSource
	}
	return func(src string, part *refine.DatasetPartition, err error) {
		a.Lineage.RecordSource(src, part, err)
		if a.onSource != nil {
			a.onSource(src, part, err)
		}
	}
}

func (a *App) resultObserver() func(pipeline.StageResult) {
	if a.Lineage == nil {
		return a.onResult
	}
	return func(r pipeline.StageResult) {
		a.Lineage.RecordResult(r)
		if a.onResult != nil {
			a.onResult(r)
		}
	}
}

// aws loads the shared AWS configuration on first use.
func (a *App) aws(ctx context.Context) (aws.Config, error) {
	a.awsOnce.Do(func() {
		a.awsCfg, a.awsErr = awsclient.LoadConfig(ctx, a.Config.AWS)
	})
	return a.awsCfg, a.awsErr
}

func (a *App) buildQueryPath(ctx context.Context) error {
	cfg := a.Config

	examples := fewshot.DefaultExamples()
	if cfg.FewShot.Path != "" {
		loaded, err := fewshot.LoadFile(cfg.FewShot.Path)
		if err != nil {
			return err
		}
		examples = loaded
	}
	index, err := fewshot.Build(ctx, a.Embedder, examples)
	if err != nil {
		return fmt.Errorf("build example index: %w", err)
	}
	a.Index = index

	a.Translator = translate.New(a.Embedder, index, a.Model, translate.Config{
		Schema: cfg.Query.TableSchema,
		TopK:   cfg.Query.TopK,
	}, a.Logger)

	executor, err := a.newQueryExecutor(ctx)
	if err != nil {
		return err
	}
	a.Assistant = assistant.NewService(a.Translator, executor, cfg.Query.DedupeKeys, a.Logger)
	return nil
}

func (a *App) buildOrchestrator(ctx context.Context) error {
	secretStore, err := a.newSecrets(ctx)
	if err != nil {
		return err
	}
	hook, err := a.newHook(ctx)
	if err != nil {
		return err
	}
	units, err := a.newUnits(ctx)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Units:         units,
		Secrets:       secretStore,
		RunLog:        a.RunLog,
		Hook:          hook,
		Logger:        a.Logger,
		InsightPrompt: a.Config.Pipeline.InsightPrompt,
		OnResult:      a.resultObserver(),
	}
	if a.Config.Pipeline.PrecheckBronze {
		deps.BronzeCheck = a.bronzeCheck
	}
	if a.Config.Pipeline.InsightPrompt != "" {
		deps.Insight = a.Model
	}

	orch, err := pipeline.NewOrchestrator(deps)
	if err != nil {
		return err
	}
	a.Orchestrator = orch
	return nil
}

// bronzeCheck reports whether any configured source has raw data. Without
// configured sources the whole bronze bucket is inspected.
func (a *App) bronzeCheck(ctx context.Context) (bool, error) {
	bucket := a.Config.Storage.BronzeBucket
	sources := a.Config.Refine.Sources
	if len(sources) == 0 {
		return objectstore.HasData(ctx, a.Store, bucket, "")
	}
	var errs []error
	for _, src := range sources {
		ok, err := objectstore.HasData(ctx, a.Store, bucket, src+"/")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}
