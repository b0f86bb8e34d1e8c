package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// CrawlerService starts catalog crawls. StartCrawl returns ErrAlreadyRunning
// (possibly wrapped) when a crawl is in flight. CrawlState reports
// PhaseRunning while crawling and the last crawl outcome otherwise.
type CrawlerService interface {
	StartCrawl(ctx context.Context, name string) error
	CrawlState(ctx context.Context, name string) (Status, error)
}

// Crawler adapts a CrawlerService to Unit.
type Crawler struct {
	svc    CrawlerService
	timing Timing
	logger *observability.Logger
}

// NewCrawler creates a crawler adapter.
func NewCrawler(svc CrawlerService, timing Timing, logger *observability.Logger) *Crawler {
	return &Crawler{svc: svc, timing: timing.orDefault(), logger: loggerOrNop(logger).WithComponent("crawler")}
}

func (c *Crawler) Kind() Kind { return KindCrawler }

// Start begins a crawl. An in-flight crawl is not an error: the handle is
// marked Conflict and AwaitTerminal succeeds once that crawl ends.
func (c *Crawler) Start(ctx context.Context, name string) (Handle, error) {
	h := Handle{Kind: KindCrawler, UnitID: name, StartedAt: time.Now().UTC()}
	if err := c.svc.StartCrawl(ctx, name); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			c.logger.Warn().Str("crawler", name).Msg("Crawler already running, awaiting in-flight crawl")
			h.Conflict = true
			return h, nil
		}
		return Handle{}, &StartError{Kind: KindCrawler, UnitID: name, Err: err}
	}
	c.logger.Info().Str("crawler", name).Msg("Started crawler")
	return h, nil
}

func (c *Crawler) AwaitTerminal(ctx context.Context, h Handle) (TerminalStatus, error) {
	status, err := await(ctx, c.logger, h, c.timing, func(ctx context.Context) (Status, error) {
		return c.svc.CrawlState(ctx, h.UnitID)
	})
	if !h.Conflict {
		return status, err
	}

	// The in-flight crawl belongs to another caller; only reaching a
	// terminal state matters here.
	var ue *UnitError
	if errors.As(err, &ue) {
		c.logger.Warn().Str("crawler", h.UnitID).Str("outcome", string(ue.Status)).Str("reason", ue.Reason).
			Msg("In-flight crawl did not succeed")
		return StatusSucceeded, nil
	}
	return status, err
}

var _ Unit = (*Crawler)(nil)
