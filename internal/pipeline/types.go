package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageExtractConnectors  Stage = "extract-connectors"
	StageExtractReplication Stage = "extract-replication"
	StageTransform          Stage = "transform"
	StageCatalog            Stage = "catalog"
)

// StageOrder is the fixed execution order.
var StageOrder = []Stage{StageExtractConnectors, StageExtractReplication, StageTransform, StageCatalog}

// RunStatus is the overall state of a PipelineRun.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ResultStatus is the outcome of one unit attempt.
type ResultStatus string

const (
	// ResultStarted means the unit was started but we stopped watching it.
	ResultStarted   ResultStatus = "started"
	ResultSucceeded ResultStatus = "succeeded"
	ResultFailed    ResultStatus = "failed"
	ResultCancelled ResultStatus = "cancelled"
)

// StageResult records one unit attempt. Results are append-only.
type StageResult struct {
	Seq           int          `json:"seq"`
	Stage         Stage        `json:"stage"`
	UnitID        string       `json:"unit_id"`
	ExternalRunID string       `json:"external_run_id,omitempty"`
	Status        ResultStatus `json:"status"`
	Timestamp     time.Time    `json:"timestamp"`
	TableName     string       `json:"table_name,omitempty"`
	Error         string       `json:"error,omitempty"`
	Required      bool         `json:"required"`
}

// PipelineRun is one invocation of the pipeline. It is immutable once terminal.
type PipelineRun struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Results     []StageResult `json:"results"`
	Status      RunStatus     `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Insight     string        `json:"insight,omitempty"`
}

// Terminal reports whether the run has finished.
func (r *PipelineRun) Terminal() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}

// Failed returns the required results that did not succeed.
func (r *PipelineRun) Failed() []StageResult {
	var out []StageResult
	for _, res := range r.Results {
		if res.Required && res.Status != ResultSucceeded {
			out = append(out, res)
		}
	}
	return out
}

// Unit is one external unit of work inside a stage.
type Unit struct {
	ID    string
	Table string
}

// StageSpec lists the units of one stage and whether the stage is required.
type StageSpec struct {
	Stage    Stage
	Units    []Unit
	Required bool
}

// SecretRef names a credential that must resolve before any stage runs.
type SecretRef struct {
	Name string
	Ref  string
}

// StageConfig is the full input of a run.
type StageConfig struct {
	Stages          []StageSpec
	RequiredSecrets []SecretRef
	// AbortOnRequiredFailure skips the remaining non-catalog stages after a
	// required unit fails. The catalog stage always runs.
	AbortOnRequiredFailure bool
	// BestEffortConcurrency bounds parallel units inside best-effort stages.
	BestEffortConcurrency int
}

// ConfigurationError reports missing or unreadable credentials.
type ConfigurationError struct {
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return "Missing credentials: " + strings.Join(e.Missing, ", ")
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
