package lineage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

const maxBatch = 100

// Config configures the writer.
type Config struct {
	BufferSize    int
	FlushInterval time.Duration
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:    256,
		FlushInterval: 5 * time.Second,
	}
}

// Writer buffers events and flushes them in batches from a background
// goroutine. Events recorded while the buffer is full, or after Stop, are
// written synchronously.
type Writer struct {
	logger *observability.Logger
	store  Store
	buffer chan Event
	config Config
	now    func() time.Time

	// mu orders buffered sends before the final drain. Record holds it
	// shared while sending and Stop holds it exclusively to mark stopped.
	mu      sync.RWMutex
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewWriter starts a writer. A nil store logs events instead of saving them.
func NewWriter(store Store, config Config, logger *observability.Logger) *Writer {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	w := &Writer{
		logger: logger.WithComponent("lineage"),
		store:  store,
		buffer: make(chan Event, config.BufferSize),
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.runFlushLoop()
	return w
}

// Record queues an event, filling in its ID and time when unset.
func (w *Writer) Record(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = w.now().UTC()
	}

	w.mu.RLock()
	queued := false
	if !w.stopped {
		select {
		case w.buffer <- e:
			queued = true
		default:
			w.logger.Warn().Msg("Lineage buffer full, writing synchronously")
		}
	}
	w.mu.RUnlock()

	if !queued {
		w.flush([]Event{e})
	}
}

// RecordSource records the outcome of refining one source.
func (w *Writer) RecordSource(source string, part *refine.DatasetPartition, err error) {
	if err != nil {
		w.Record(Event{
			Action:   ActionFailed,
			Resource: source,
			Payload:  map[string]any{"error": err.Error()},
		})
		return
	}
	if part == nil {
		return
	}

	w.Record(Event{
		Action:   ActionRefined,
		Resource: source,
		Location: part.Location,
		Payload: map[string]any{
			"ingest_date": part.IngestDate,
			"format":      string(part.Format),
			"input_rows":  part.InputRows,
			"rows":        part.Rows,
			"duplicates":  part.Duplicates,
			"null_rows":   part.NullRows,
			"key_columns": part.KeyColumns,
		},
	})
}

// RecordJoin records a joined partition. Skipped joins wrote nothing and are
// ignored.
func (w *Writer) RecordJoin(source string, j *refine.JoinOutcome) {
	if j == nil || j.Skipped {
		return
	}
	w.Record(Event{
		Action:   ActionJoined,
		Resource: source + "_" + j.With,
		Location: j.Location,
		Payload:  map[string]any{"rows": j.Rows, "with": j.With},
	})
}

// RecordResult records successfully cataloged layers. Other results are
// already kept by the run log.
func (w *Writer) RecordResult(r pipeline.StageResult) {
	if r.Stage != pipeline.StageCatalog || r.Status != pipeline.ResultSucceeded {
		return
	}
	w.Record(Event{
		Action:     ActionCataloged,
		Resource:   r.TableName,
		Payload:    map[string]any{"crawler": r.UnitID},
		OccurredAt: r.Timestamp,
	})
}

// Stop flushes everything buffered and stops the background goroutine.
func (w *Writer) Stop() error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}

func (w *Writer) runFlushLoop() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case e := <-w.buffer:
			batch = append(batch, e)
			if len(batch) >= maxBatch {
				w.flush(batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = nil
			}
		case <-w.stopCh:
			for {
				select {
				case e := <-w.buffer:
					batch = append(batch, e)
				default:
					if len(batch) > 0 {
						w.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (w *Writer) flush(batch []Event) {
	if w.store == nil {
		for _, e := range batch {
			w.logger.Info().
				Str("action", string(e.Action)).
				Str("resource", e.Resource).
				Str("location", e.Location).
				Msg("Lineage event")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.store.SaveEvents(ctx, batch); err != nil {
		w.logger.Error().Err(err).Int("count", len(batch)).Msg("Failed to flush lineage batch")
		return
	}
	w.logger.Debug().Int("count", len(batch)).Msg("Flushed lineage batch")
}
