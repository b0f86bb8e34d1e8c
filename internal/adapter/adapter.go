// Package adapter gives every kind of managed external work a uniform
// start-then-await-terminal contract.
//
// Four variants cover the pipeline units: batch jobs, catalog crawlers,
// replication tasks and flow connectors. QueryExecutor follows the same
// contract for interactive queries, with a much shorter poll cadence.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/poll"
)

// Kind identifies an adapter variant.
type Kind string

const (
	KindBatchJob    Kind = "batch_job"
	KindCrawler     Kind = "crawler"
	KindReplication Kind = "replication_task"
	KindFlow        Kind = "flow_connector"
	KindQuery       Kind = "query"
)

// Phase is the normalized state reported by an external service.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseCancelled
}

// Status is a phase plus an optional service-provided reason.
type Status struct {
	Phase  Phase
	Reason string
}

// TerminalStatus is the outcome of AwaitTerminal.
type TerminalStatus string

const (
	StatusSucceeded TerminalStatus = "succeeded"
	StatusFailed    TerminalStatus = "failed"
	StatusCancelled TerminalStatus = "cancelled"
)

// Handle references one started unit of external work.
type Handle struct {
	Kind   Kind
	UnitID string
	// RunID is the external run identifier, empty when the service has none.
	RunID string
	// Conflict is set when the unit was already running and Start attached to it.
	Conflict  bool
	StartedAt time.Time
}

// Unit is the uniform contract implemented by every variant.
type Unit interface {
	Kind() Kind
	Start(ctx context.Context, unitID string) (Handle, error)
	AwaitTerminal(ctx context.Context, h Handle) (TerminalStatus, error)
}

// ErrTimedOut is returned by AwaitTerminal when the variant timeout elapses.
var ErrTimedOut = poll.ErrTimedOut

// ErrAlreadyRunning is returned by a CrawlerService when a crawl is in flight.
var ErrAlreadyRunning = errors.New("already running")

// StartError reports that the service refused to start a unit.
type StartError struct {
	Kind   Kind
	UnitID string
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s %s: %v", e.Kind, e.UnitID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// UnitError carries the reason a unit reached a non-success terminal state.
type UnitError struct {
	Kind   Kind
	UnitID string
	Status TerminalStatus
	Reason string
}

func (e *UnitError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %s %s", e.Kind, e.UnitID, e.Status)
	}
	return fmt.Sprintf("%s %s %s: %s", e.Kind, e.UnitID, e.Status, e.Reason)
}

// Timing bounds AwaitTerminal for one variant.
type Timing struct {
	Interval time.Duration
	Timeout  time.Duration
	// TolerateErrors is the number of consecutive status errors ignored.
	TolerateErrors int
}

// DefaultTiming is used when a variant is built with a zero Timing.
var DefaultTiming = Timing{Interval: 30 * time.Second, Timeout: 2 * time.Hour, TolerateErrors: 3}

func (t Timing) orDefault() Timing {
	if t.Interval <= 0 {
		t.Interval = DefaultTiming.Interval
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTiming.Timeout
	}
	return t
}

// await polls state until it turns terminal and maps the result.
// A timeout is reported as StatusFailed with ErrTimedOut.
func await(ctx context.Context, logger *observability.Logger, h Handle, timing Timing, state func(ctx context.Context) (Status, error)) (TerminalStatus, error) {
	var last Status
	polls := 0
	err := poll.Until(ctx, poll.Options{
		Interval:       timing.Interval,
		Timeout:        timing.Timeout,
		TolerateErrors: timing.TolerateErrors,
	}, func(ctx context.Context) (bool, error) {
		st, err := state(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("unit", h.UnitID).Str("run_id", h.RunID).Msg("Status check failed")
			return false, err
		}
		polls++
		if st.Phase != last.Phase {
			logger.Debug().Str("unit", h.UnitID).Str("run_id", h.RunID).Str("phase", string(st.Phase)).Int("polls", polls).Msg("Unit state changed")
		}
		last = st
		return st.Phase.Terminal(), nil
	})

	if err != nil {
		if errors.Is(err, poll.ErrTimedOut) {
			return StatusFailed, fmt.Errorf("%s %s: %w", h.Kind, h.UnitID, ErrTimedOut)
		}
		return StatusFailed, fmt.Errorf("await %s %s: %w", h.Kind, h.UnitID, err)
	}

	switch last.Phase {
	case PhaseSucceeded:
		return StatusSucceeded, nil
	case PhaseCancelled:
		return StatusCancelled, &UnitError{Kind: h.Kind, UnitID: h.UnitID, Status: StatusCancelled, Reason: last.Reason}
	default:
		return StatusFailed, &UnitError{Kind: h.Kind, UnitID: h.UnitID, Status: StatusFailed, Reason: last.Reason}
	}
}

func loggerOrNop(l *observability.Logger) *observability.Logger {
	if l == nil {
		return observability.NopLogger()
	}
	return l
}
