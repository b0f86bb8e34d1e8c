// Package inprocess runs pipeline units inside the agent process: transform
// jobs execute the refinement engine, crawls catalog the local object store
// and interactive queries run against SQLite.
//
// Each type satisfies the matching adapter service interface, so the
// orchestrator drives them exactly like the managed-service clients.
package inprocess

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/adapter"
)

// execution tracks one asynchronous unit run.
type execution struct {
	status    adapter.Status
	startedAt time.Time
	endedAt   time.Time
}

// tracker records executions by id.
type tracker struct {
	mu   sync.Mutex
	runs map[string]*execution
}

func newTracker() *tracker {
	return &tracker{runs: map[string]*execution{}}
}

func (t *tracker) start() string {
	id := uuid.New().String()
	t.mu.Lock()
	t.runs[id] = &execution{status: adapter.Status{Phase: adapter.PhaseRunning}, startedAt: time.Now().UTC()}
	t.mu.Unlock()
	return id
}

func (t *tracker) finish(id string, st adapter.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ex, ok := t.runs[id]; ok {
		ex.status = st
		ex.endedAt = time.Now().UTC()
	}
}

func (t *tracker) state(id string) (adapter.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ex, ok := t.runs[id]
	if !ok {
		return adapter.Status{}, false
	}
	return ex.status, true
}
