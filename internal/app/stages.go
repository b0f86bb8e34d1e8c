package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/appflow"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/databasemigrationservice"
	"github.com/aws/aws-sdk-go-v2/service/databrew"
	"github.com/aws/aws-sdk-go-v2/service/glue"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/awsclient"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/inprocess"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
)

func (a *App) timing(timeout time.Duration) adapter.Timing {
	return adapter.Timing{
		Interval:       a.Config.Pipeline.PollInterval,
		Timeout:        timeout,
		TolerateErrors: adapter.DefaultTiming.TolerateErrors,
	}
}

// newUnits maps every stage to its adapter. The local backend has no
// extraction services, so those stages are left unmapped and their units
// fail when configured.
func (a *App) newUnits(ctx context.Context) (map[pipeline.Stage]adapter.Unit, error) {
	p := a.Config.Pipeline
	if p.Backend == "local" {
		return a.localUnits(), nil
	}

	awsCfg, err := a.aws(ctx)
	if err != nil {
		return nil, err
	}

	glueClient := glue.NewFromConfig(awsCfg)
	var jobs adapter.JobService
	if p.TransformEngine == "databrew" {
		jobs = awsclient.NewDataBrewJobs(databrew.NewFromConfig(awsCfg))
	} else {
		jobs = awsclient.NewGlueJobs(glueClient, a.jobArguments())
	}

	return map[pipeline.Stage]adapter.Unit{
		pipeline.StageExtractConnectors: adapter.NewFlowConnector(
			awsclient.NewAppFlows(appflow.NewFromConfig(awsCfg)), a.timing(p.FlowTimeout), a.Logger),
		pipeline.StageExtractReplication: adapter.NewReplicationTask(
			awsclient.NewDMSTasks(databasemigrationservice.NewFromConfig(awsCfg)),
			adapter.ReplicationMode(p.ReplicationMode), a.timing(p.ReplicationTimeout), a.Logger),
		pipeline.StageTransform: adapter.NewBatchJob(jobs, a.timing(p.JobTimeout), a.Logger),
		pipeline.StageCatalog:   adapter.NewCrawler(awsclient.NewGlueCrawlers(glueClient), a.timing(p.CrawlerTimeout), a.Logger),
	}, nil
}

func (a *App) localUnits() map[pipeline.Stage]adapter.Unit {
	p := a.Config.Pipeline
	s := a.Config.Storage

	var loader inprocess.TableLoader
	if a.sqlite != nil {
		loader = a.sqlite
	}
	a.Catalog = inprocess.NewCatalog(a.Store, map[string]string{
		"bronze": s.BronzeBucket,
		"silver": s.SilverBucket,
		"gold":   s.GoldBucket,
	}, loader, a.Logger)

	jobs := inprocess.NewRefineJobs(a.Refiner, a.Config.Refine.Sources, a.JoinMap, a.Logger)
	return map[pipeline.Stage]adapter.Unit{
		pipeline.StageTransform: adapter.NewBatchJob(jobs, a.timing(p.JobTimeout), a.Logger),
		pipeline.StageCatalog:   adapter.NewCrawler(a.Catalog, a.timing(p.CrawlerTimeout), a.Logger),
	}
}

// jobArguments are passed to every Glue job run.
func (a *App) jobArguments() map[string]string {
	cfg := a.Config
	args := map[string]string{
		"--ENV":           cfg.Pipeline.Environment,
		"--BRONZE_BUCKET": cfg.Storage.BronzeBucket,
		"--SILVER_BUCKET": cfg.Storage.SilverBucket,
	}
	if cfg.Refine.JoinMapKey != "" {
		args["--JOIN_MAP"] = fmt.Sprintf("s3://%s/%s", cfg.Storage.MetaBucket, cfg.Refine.JoinMapKey)
	}
	return args
}

func (a *App) newQueryExecutor(ctx context.Context) (*adapter.QueryExecutor, error) {
	q := a.Config.Query
	timing := adapter.Timing{Interval: q.PollInterval, Timeout: q.Timeout}

	if q.Engine == "sqlite" {
		db, err := runlog.OpenDB(ctx, runlog.SQLConfig{Driver: "sqlite", DSN: q.SQLitePath, MaxOpenConns: 1})
		if err != nil {
			return nil, fmt.Errorf("open query database: %w", err)
		}
		a.onClose(db.Close)
		a.sqlite = inprocess.NewSQLiteQueries(db)
		return adapter.NewQueryExecutor(a.sqlite, q.Database, "", timing, a.Logger), nil
	}

	awsCfg, err := a.aws(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.NewQueryExecutor(awsclient.NewAthenaQueries(athena.NewFromConfig(awsCfg), 0),
		q.Database, q.OutputLocation, timing, a.Logger), nil
}
