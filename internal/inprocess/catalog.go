package inprocess

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

// TableLoader publishes a crawled table for querying.
type TableLoader interface {
	LoadTable(ctx context.Context, name string, t *refine.Table) error
}

// Catalog crawls the local medallion buckets. A crawler named
// "<layer>-crawler-..." scans the bucket of that layer; the top-level
// prefixes become tables. Gold tables are handed to the loader.
type Catalog struct {
	store   objectstore.Store
	buckets map[string]string
	loader  TableLoader
	logger  *observability.Logger

	mu      sync.Mutex
	running map[string]bool
	last    map[string]adapter.Status
	tables  map[string][]string
}

// NewCatalog creates a catalog over buckets keyed by layer (bronze, silver, gold).
func NewCatalog(store objectstore.Store, buckets map[string]string, loader TableLoader, logger *observability.Logger) *Catalog {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Catalog{
		store:   store,
		buckets: buckets,
		loader:  loader,
		logger:  logger.WithComponent("catalog"),
		running: map[string]bool{},
		last:    map[string]adapter.Status{},
		tables:  map[string][]string{},
	}
}

// StartCrawl runs the crawl synchronously. A concurrent crawl of the same
// name returns adapter.ErrAlreadyRunning.
func (c *Catalog) StartCrawl(ctx context.Context, name string) error {
	c.mu.Lock()
	if c.running[name] {
		c.mu.Unlock()
		return adapter.ErrAlreadyRunning
	}
	c.running[name] = true
	c.last[name] = adapter.Status{Phase: adapter.PhaseRunning}
	c.mu.Unlock()

	tables, err := c.crawl(ctx, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[name] = false
	if err != nil {
		c.last[name] = adapter.Status{Phase: adapter.PhaseFailed, Reason: err.Error()}
		return nil
	}
	c.tables[name] = tables
	c.last[name] = adapter.Status{Phase: adapter.PhaseSucceeded}
	return nil
}

// CrawlState implements adapter.CrawlerService.
func (c *Catalog) CrawlState(ctx context.Context, name string) (adapter.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.last[name]
	if !ok {
		return adapter.Status{Phase: adapter.PhasePending}, nil
	}
	return st, nil
}

// Tables returns the tables found by the last successful crawl of name.
func (c *Catalog) Tables(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tables[name]...)
}

func (c *Catalog) crawl(ctx context.Context, name string) ([]string, error) {
	layer := layerOf(name)
	bucket, ok := c.buckets[layer]
	if !ok {
		return nil, fmt.Errorf("crawler %s does not map to a known layer", name)
	}

	keys, err := c.store.List(ctx, bucket, "")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}

	seen := map[string]bool{}
	for _, k := range keys {
		i := strings.Index(k, "/")
		if i <= 0 {
			continue
		}
		seen[k[:i]] = true
	}
	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	if layer == "gold" && c.loader != nil {
		for _, table := range tables {
			t, _, err := refine.ReadLocation(ctx, c.store, refine.Location{Bucket: bucket, Prefix: table + "/"})
			if err != nil {
				return nil, fmt.Errorf("read gold table %s: %w", table, err)
			}
			if err := c.loader.LoadTable(ctx, table, t); err != nil {
				return nil, fmt.Errorf("load gold table %s: %w", table, err)
			}
		}
	}

	c.logger.Info().Str("crawler", name).Str("bucket", bucket).Strs("tables", tables).Msg("Crawl finished")
	return tables, nil
}

func layerOf(name string) string {
	for _, layer := range []string{"bronze", "silver", "gold"} {
		if strings.HasPrefix(strings.ToLower(name), layer) {
			return layer
		}
	}
	return ""
}

var _ adapter.CrawlerService = (*Catalog)(nil)
