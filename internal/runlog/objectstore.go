package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
)

// ObjectStore keeps run metadata as JSON documents:
//
//	<prefix><run_id>/run.json
//	<prefix><run_id>/<seq>_<stage>_<job>_<job_run_id|NA>_<table|NA>.json
type ObjectStore struct {
	store  objectstore.Store
	bucket string
	prefix string
}

// NewObjectStore creates an object-store-backed run log.
func NewObjectStore(store objectstore.Store, bucket, prefix string) *ObjectStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectStore{store: store, bucket: bucket, prefix: prefix}
}

// RecordKey returns the object key for rec.
func (s *ObjectStore) RecordKey(rec Record) string {
	name := fmt.Sprintf("%04d_%s_%s_%s_%s.json", rec.Seq, sanitize(orNA(rec.Stage)), sanitize(rec.JobName),
		sanitize(orNA(rec.JobRunID)), sanitize(orNA(rec.TableName)))
	return s.prefix + rec.RunID + "/" + name
}

func (s *ObjectStore) runKey(runID string) string {
	return s.prefix + runID + "/run.json"
}

func (s *ObjectStore) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.store.Put(ctx, s.bucket, s.RecordKey(rec), data); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *ObjectStore) List(ctx context.Context, runID string) ([]Record, error) {
	keys, err := s.store.List(ctx, s.bucket, s.prefix+runID+"/")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var recs []Record
	for _, key := range keys {
		if path.Base(key) == "run.json" {
			continue
		}
		data, err := s.store.Get(ctx, s.bucket, key)
		if err != nil {
			return nil, fmt.Errorf("get record %s: %w", key, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", key, err)
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	return recs, nil
}

func (s *ObjectStore) SaveRun(ctx context.Context, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := s.store.Put(ctx, s.bucket, s.runKey(run.RunID), data); err != nil {
		return fmt.Errorf("put run: %w", err)
	}
	return nil
}

func (s *ObjectStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	data, err := s.store.Get(ctx, s.bucket, s.runKey(runID))
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

func (s *ObjectStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	keys, err := s.store.List(ctx, s.bucket, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var runs []Run
	for _, key := range keys {
		if path.Base(key) != "run.json" {
			continue
		}
		runID := path.Base(path.Dir(key))
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '-'
		}
		return r
	}, s)
}

var _ Store = (*ObjectStore)(nil)
