package awsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
)

// GlueAPI is the subset of the Glue client used here.
type GlueAPI interface {
	StartJobRun(ctx context.Context, in *glue.StartJobRunInput, optFns ...func(*glue.Options)) (*glue.StartJobRunOutput, error)
	GetJobRun(ctx context.Context, in *glue.GetJobRunInput, optFns ...func(*glue.Options)) (*glue.GetJobRunOutput, error)
	StartCrawler(ctx context.Context, in *glue.StartCrawlerInput, optFns ...func(*glue.Options)) (*glue.StartCrawlerOutput, error)
	GetCrawler(ctx context.Context, in *glue.GetCrawlerInput, optFns ...func(*glue.Options)) (*glue.GetCrawlerOutput, error)
}

// GlueJobs runs Glue ETL jobs.
type GlueJobs struct {
	api  GlueAPI
	args map[string]string
}

// NewGlueJobs creates a job service. args are passed to every run as job arguments.
func NewGlueJobs(api GlueAPI, args map[string]string) *GlueJobs {
	return &GlueJobs{api: api, args: args}
}

func (g *GlueJobs) StartJob(ctx context.Context, name string) (string, error) {
	in := &glue.StartJobRunInput{JobName: aws.String(name)}
	if len(g.args) > 0 {
		in.Arguments = g.args
	}
	out, err := g.api.StartJobRun(ctx, in)
	if err != nil {
		return "", fmt.Errorf("glue start job run: %w", err)
	}
	return aws.ToString(out.JobRunId), nil
}

func (g *GlueJobs) JobState(ctx context.Context, name, runID string) (adapter.Status, error) {
	out, err := g.api.GetJobRun(ctx, &glue.GetJobRunInput{
		JobName: aws.String(name),
		RunId:   aws.String(runID),
	})
	if err != nil {
		return adapter.Status{}, fmt.Errorf("glue get job run: %w", err)
	}
	if out.JobRun == nil {
		return adapter.Status{Phase: adapter.PhasePending}, nil
	}
	return adapter.Status{
		Phase:  glueJobPhase(string(out.JobRun.JobRunState)),
		Reason: aws.ToString(out.JobRun.ErrorMessage),
	}, nil
}

func glueJobPhase(state string) adapter.Phase {
	switch state {
	case "SUCCEEDED":
		return adapter.PhaseSucceeded
	case "FAILED", "ERROR", "TIMEOUT", "EXPIRED":
		return adapter.PhaseFailed
	case "STOPPED":
		return adapter.PhaseCancelled
	case "WAITING":
		return adapter.PhasePending
	default:
		return adapter.PhaseRunning
	}
}

// GlueCrawlers runs Glue catalog crawlers.
type GlueCrawlers struct {
	api GlueAPI

	mu      sync.Mutex
	started map[string]time.Time
}

// NewGlueCrawlers creates a crawler service.
func NewGlueCrawlers(api GlueAPI) *GlueCrawlers {
	return &GlueCrawlers{api: api, started: make(map[string]time.Time)}
}

func (g *GlueCrawlers) StartCrawl(ctx context.Context, name string) error {
	startedAt := time.Now().UTC()
	_, err := g.api.StartCrawler(ctx, &glue.StartCrawlerInput{Name: aws.String(name)})
	if err != nil {
		var running *gluetypes.CrawlerRunningException
		if errors.As(err, &running) {
			return fmt.Errorf("crawler %s: %w", name, adapter.ErrAlreadyRunning)
		}
		return fmt.Errorf("glue start crawler: %w", err)
	}
	g.mu.Lock()
	g.started[name] = startedAt
	g.mu.Unlock()
	return nil
}

// CrawlState reports running while the crawler is busy, then the outcome of
// its last crawl. A last crawl older than our own start means ours has not
// begun yet.
func (g *GlueCrawlers) CrawlState(ctx context.Context, name string) (adapter.Status, error) {
	out, err := g.api.GetCrawler(ctx, &glue.GetCrawlerInput{Name: aws.String(name)})
	if err != nil {
		return adapter.Status{}, fmt.Errorf("glue get crawler: %w", err)
	}
	c := out.Crawler
	if c == nil {
		return adapter.Status{}, fmt.Errorf("crawler %s not found", name)
	}

	switch c.State {
	case gluetypes.CrawlerStateRunning, gluetypes.CrawlerStateStopping:
		return adapter.Status{Phase: adapter.PhaseRunning}, nil
	}

	last := c.LastCrawl
	if last == nil {
		return adapter.Status{Phase: adapter.PhasePending}, nil
	}

	g.mu.Lock()
	startedAt, ours := g.started[name]
	g.mu.Unlock()
	if ours && last.StartTime != nil && last.StartTime.Before(startedAt.Add(-time.Minute)) {
		return adapter.Status{Phase: adapter.PhasePending}, nil
	}

	switch last.Status {
	case gluetypes.LastCrawlStatusSucceeded:
		return adapter.Status{Phase: adapter.PhaseSucceeded}, nil
	case gluetypes.LastCrawlStatusCancelled:
		return adapter.Status{Phase: adapter.PhaseCancelled, Reason: aws.ToString(last.ErrorMessage)}, nil
	default:
		return adapter.Status{Phase: adapter.PhaseFailed, Reason: aws.ToString(last.ErrorMessage)}, nil
	}
}

var (
	_ adapter.JobService     = (*GlueJobs)(nil)
	_ adapter.CrawlerService = (*GlueCrawlers)(nil)
)
