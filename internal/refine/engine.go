// Package refine turns raw bronze extracts into cleaned, deduplicated and
// date-partitioned silver datasets, joining related sources when configured.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// IngestDateColumn is stamped on every refined row.
const IngestDateColumn = "ingest_date"

// DefaultPrimaryKeyRules match "id", "*_id" and "<source>_id".
var DefaultPrimaryKeyRules = []string{`^id$`, `_id$`, `^{source}_id$`}

// Location addresses a prefix inside a bucket.
type Location struct {
	Bucket string
	Prefix string
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Prefix
}

func (l Location) join(parts ...string) string {
	return objectstore.JoinKey(append([]string{l.Prefix}, parts...)...)
}

// JoinSpec declares a left-outer join of a source onto another source.
type JoinSpec struct {
	JoinWith string `json:"join_with" yaml:"join_with"`
	LeftKey  string `json:"left_key" yaml:"left_key"`
	RightKey string `json:"right_key" yaml:"right_key"`
}

// JoinMap maps a source name to its join instruction.
type JoinMap map[string]JoinSpec

// LoadJoinMap reads a JSON join map document from the object store.
func LoadJoinMap(ctx context.Context, store objectstore.Store, bucket, key string) (JoinMap, error) {
	data, err := store.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("load join map %s/%s: %w", bucket, key, err)
	}
	var m JoinMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse join map: %w", err)
	}
	return m, nil
}

// UnreadableSourceError reports a source no reader could decode.
type UnreadableSourceError struct {
	Source   string
	Location string
	Err      error
}

func (e *UnreadableSourceError) Error() string {
	return fmt.Sprintf("source %s at %s is unreadable: %v", e.Source, e.Location, e.Err)
}

func (e *UnreadableSourceError) Unwrap() error { return e.Err }

// JoinOutcome describes the conditional join step.
type JoinOutcome struct {
	With     string `json:"with"`
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason,omitempty"`
	Location string `json:"location,omitempty"`
	Rows     int    `json:"rows"`
}

// DatasetPartition is the refined output of one source for one ingest date.
type DatasetPartition struct {
	Source         string       `json:"source"`
	IngestDate     string       `json:"ingest_date"`
	Location       string       `json:"location"`
	Format         Format       `json:"input_format"`
	Columns        []string     `json:"columns"`
	KeyColumns     []string     `json:"key_columns"`
	InputRows      int          `json:"input_rows"`
	Rows           int          `json:"rows"`
	DroppedColumns []string     `json:"dropped_columns,omitempty"`
	Duplicates     int          `json:"duplicates"`
	NullRows       int          `json:"null_rows"`
	Join           *JoinOutcome `json:"join,omitempty"`
}

// Options configures an Engine.
type Options struct {
	BronzeBucket string
	SilverBucket string
	// JoinedPrefix is where joined outputs are written under the silver location.
	JoinedPrefix    string
	PrimaryKeyRules []string
	// Concurrency bounds RefineAll.
	Concurrency int
	// OnSource, when set, is called by RefineAll as each source finishes.
	OnSource func(source string, part *DatasetPartition, err error)
	// OnJoin, when set, is called by RefineAll after each attempted join.
	OnJoin func(source string, outcome *JoinOutcome)
}

// Engine refines sources between object store locations.
type Engine struct {
	store  objectstore.Store
	opts   Options
	logger *observability.Logger
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store objectstore.Store, opts Options, logger *observability.Logger) *Engine {
	if len(opts.PrimaryKeyRules) == 0 {
		opts.PrimaryKeyRules = DefaultPrimaryKeyRules
	}
	if opts.JoinedPrefix == "" {
		opts.JoinedPrefix = "joined/"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Engine{
		store:  store,
		opts:   opts,
		logger: logger.WithComponent("refine"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// BronzeLocation is the default raw location of source.
func (e *Engine) BronzeLocation(source string) Location {
	return Location{Bucket: e.opts.BronzeBucket, Prefix: source + "/"}
}

// SilverLocation is the default refined root.
func (e *Engine) SilverLocation() Location {
	return Location{Bucket: e.opts.SilverBucket}
}

// Refine cleans one source from bronze into silver and runs its join, if
// joins holds one. A failed join never fails the source.
func (e *Engine) Refine(ctx context.Context, source string, bronze, silver Location, joins JoinMap) (*DatasetPartition, error) {
	date := e.now().Format("2006-01-02")
	part, _, err := e.refineSource(ctx, source, bronze, silver, date)
	if err != nil {
		return nil, err
	}
	if spec, ok := joins[source]; ok {
		part.Join = e.join(ctx, source, spec, silver, date)
	}
	return part, nil
}

// Summary is the result of RefineAll.
type Summary struct {
	IngestDate string                       `json:"ingest_date"`
	Partitions map[string]*DatasetPartition `json:"partitions"`
	Errors     map[string]string            `json:"errors,omitempty"`
}

// RefineAll refines every source concurrently, then runs joins once all
// sources have been written. Per-source failures are collected, not returned.
func (e *Engine) RefineAll(ctx context.Context, sources []string, joins JoinMap) (*Summary, error) {
	date := e.now().Format("2006-01-02")
	silver := e.SilverLocation()
	sum := &Summary{
		IngestDate: date,
		Partitions: make(map[string]*DatasetPartition, len(sources)),
		Errors:     map[string]string{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, src := range sources {
		g.Go(func() error {
			part, _, err := e.refineSource(gctx, src, e.BronzeLocation(src), silver, date)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				sum.Errors[src] = err.Error()
			} else {
				sum.Partitions[src] = part
			}
			if e.opts.OnSource != nil {
				e.opts.OnSource(src, part, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	for _, src := range sortedKeys(joins) {
		part, ok := sum.Partitions[src]
		if !ok {
			continue
		}
		part.Join = e.join(ctx, src, joins[src], silver, date)
		if e.opts.OnJoin != nil {
			e.opts.OnJoin(src, part.Join)
		}
	}
	if len(sum.Errors) == 0 {
		sum.Errors = nil
	}
	return sum, nil
}

func (e *Engine) refineSource(ctx context.Context, source string, bronze, silver Location, date string) (*DatasetPartition, *Table, error) {
	logger := e.logger.WithSource(source)
	start := time.Now()

	t, format, err := e.read(ctx, bronze)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		logger.Error().Err(err).Str("location", bronze.String()).Msg("Source unreadable")
		return nil, nil, &UnreadableSourceError{Source: source, Location: bronze.String(), Err: err}
	}

	part := &DatasetPartition{Source: source, IngestDate: date, Format: format, InputRows: len(t.Rows)}

	part.DroppedColumns = t.PruneNullColumns()
	t.TrimStrings()

	keys, err := KeyColumns(t.Columns, source, e.opts.PrimaryKeyRules)
	if err != nil {
		return nil, nil, err
	}
	part.KeyColumns = keys
	part.Duplicates = t.Dedupe(keys)
	part.NullRows = t.DropNullRows()

	t.Stamp(IngestDateColumn, date)
	part.Columns = append([]string(nil), t.Columns...)
	part.Rows = len(t.Rows)

	key, err := e.writePartition(ctx, silver.Bucket, silver.join(source), date, t)
	if err != nil {
		return nil, nil, err
	}
	part.Location = silver.Bucket + "/" + key

	logger.Info().
		Str("format", string(format)).
		Int("input_rows", part.InputRows).
		Int("rows", part.Rows).
		Int("duplicates", part.Duplicates).
		Strs("key_columns", keys).
		Dur("duration", time.Since(start)).
		Msg("Source refined")
	return part, t, nil
}

func (e *Engine) read(ctx context.Context, loc Location) (*Table, Format, error) {
	return ReadLocation(ctx, e.store, loc)
}

// ReadLocation loads every data object under loc into one table, trying
// parquet, then JSON lines, then CSV.
func ReadLocation(ctx context.Context, store objectstore.Store, loc Location) (*Table, Format, error) {
	keys, err := store.List(ctx, loc.Bucket, loc.Prefix)
	if err != nil && !objectstore.IsNotFound(err) {
		return nil, "", err
	}
	var objects [][]byte
	for _, k := range keys {
		if isMarker(k) {
			continue
		}
		data, err := store.Get(ctx, loc.Bucket, k)
		if err != nil {
			return nil, "", err
		}
		objects = append(objects, data)
	}
	return decodeAll(objects)
}

func isMarker(key string) bool {
	base := key[strings.LastIndex(key, "/")+1:]
	return base == "" || strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")
}

// writePartition replaces <prefix>/ingest_date=<date>/ with a single parquet file.
func (e *Engine) writePartition(ctx context.Context, bucket, prefix, date string, t *Table) (string, error) {
	data, err := EncodeParquet(t)
	if err != nil {
		return "", err
	}

	dir := partitionDir(prefix, date)
	if _, err := objectstore.DeletePrefix(ctx, e.store, bucket, dir); err != nil {
		return "", fmt.Errorf("clear partition %s: %w", dir, err)
	}
	key := dir + "part-0.parquet"
	if err := e.store.Put(ctx, bucket, key, data); err != nil {
		return "", fmt.Errorf("write partition %s: %w", key, err)
	}
	return key, nil
}

// join left-joins the refined output of source onto spec.JoinWith.
func (e *Engine) join(ctx context.Context, source string, spec JoinSpec, silver Location, date string) *JoinOutcome {
	logger := e.logger.WithSource(source)
	out := &JoinOutcome{With: spec.JoinWith}
	joinedPrefix := silver.join(e.opts.JoinedPrefix, source+"_"+spec.JoinWith)
	skip := func(reason string) *JoinOutcome {
		out.Skipped = true
		out.Reason = reason
		logger.Info().Str("join_with", spec.JoinWith).Str("reason", reason).Msg("Join skipped")
		// A skipped join leaves no joined partition for the date.
		dir := partitionDir(joinedPrefix, date)
		if _, err := objectstore.DeletePrefix(ctx, e.store, silver.Bucket, dir); err != nil {
			logger.Warn().Err(err).Str("prefix", dir).Msg("Failed to clear stale join output")
		}
		return out
	}

	left, _, err := e.read(ctx, Location{Bucket: silver.Bucket, Prefix: partitionPrefix(silver, source, date)})
	if err != nil {
		return skip("refined output unavailable: " + err.Error())
	}
	right, _, err := e.read(ctx, Location{Bucket: silver.Bucket, Prefix: partitionPrefix(silver, spec.JoinWith, date)})
	if err != nil {
		return skip(fmt.Sprintf("refined output of %s unavailable", spec.JoinWith))
	}

	var missing []string
	if !left.HasColumn(spec.LeftKey) {
		missing = append(missing, source+"."+spec.LeftKey)
	}
	if !right.HasColumn(spec.RightKey) {
		missing = append(missing, spec.JoinWith+"."+spec.RightKey)
	}
	if len(missing) > 0 {
		return skip("join keys missing: " + strings.Join(missing, ", "))
	}

	// Both sides carry the same ingest date column.
	right = dropColumn(right, IngestDateColumn)
	joined := left.LeftJoin(right, spec.LeftKey, spec.RightKey, spec.JoinWith+"_")

	key, err := e.writePartition(ctx, silver.Bucket, joinedPrefix, date, joined)
	if err != nil {
		logger.Error().Err(err).Msg("Join write failed")
		return skip(err.Error())
	}
	out.Location = silver.Bucket + "/" + key
	out.Rows = len(joined.Rows)
	logger.Info().Str("join_with", spec.JoinWith).Int("rows", out.Rows).Msg("Join written")
	return out
}

func partitionDir(prefix, date string) string {
	return objectstore.JoinKey(prefix, IngestDateColumn+"="+date) + "/"
}

func partitionPrefix(silver Location, source, date string) string {
	return silver.join(source, IngestDateColumn+"="+date) + "/"
}

func dropColumn(t *Table, name string) *Table {
	out := &Table{Rows: t.Rows}
	for _, c := range t.Columns {
		if c != name {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

func sortedKeys(m JoinMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsUnreadable reports whether err is an UnreadableSourceError.
func IsUnreadable(err error) bool {
	var u *UnreadableSourceError
	return errors.As(err, &u)
}
