// Package notify delivers fallback diagnostics raised by failed pipeline units.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/cache"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/observability"
)

// Diagnostic describes one failure that needs attention.
type Diagnostic struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	JobRunID  string    `json:"job_run_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Subject returns a short one-line summary.
func (d Diagnostic) Subject() string {
	if d.Unit == "" {
		return fmt.Sprintf("Pipeline run %s failed", d.RunID)
	}
	return fmt.Sprintf("Pipeline unit %s failed in %s", d.Unit, d.Stage)
}

// Hook receives fallback diagnostics.
type Hook interface {
	Fallback(ctx context.Context, d Diagnostic) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, d Diagnostic) error

// Fallback calls f.
func (f HookFunc) Fallback(ctx context.Context, d Diagnostic) error { return f(ctx, d) }

// Multi fans a diagnostic out to every hook and joins their errors.
type Multi []Hook

// Fallback implements Hook.
func (m Multi) Fallback(ctx context.Context, d Diagnostic) error {
	var errs []error
	for _, h := range m {
		if err := h.Fallback(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogHook writes diagnostics to the logger.
type LogHook struct {
	logger *observability.Logger
}

// NewLogHook creates a logging hook.
func NewLogHook(logger *observability.Logger) *LogHook {
	return &LogHook{logger: logger}
}

// Fallback implements Hook.
func (h *LogHook) Fallback(ctx context.Context, d Diagnostic) error {
	h.logger.Error().
		Str("run_id", d.RunID).
		Str("stage", d.Stage).
		Str("unit", d.Unit).
		Str("job_run_id", d.JobRunID).
		Str("reason", d.Reason).
		Msg("Fallback diagnostic")
	return nil
}

// ChannelHook publishes diagnostics on a pub/sub channel.
type ChannelHook struct {
	pub     cache.PubSub
	channel string
}

// NewChannelHook creates a pub/sub hook.
func NewChannelHook(pub cache.PubSub, channel string) *ChannelHook {
	return &ChannelHook{pub: pub, channel: channel}
}

// Fallback implements Hook.
func (h *ChannelHook) Fallback(ctx context.Context, d Diagnostic) error {
	if err := h.pub.Publish(ctx, h.channel, d); err != nil {
		return fmt.Errorf("publish diagnostic: %w", err)
	}
	return nil
}

// Publisher sends a message with a subject, e.g. an SNS topic.
type Publisher interface {
	Publish(ctx context.Context, subject, body string) error
}

// TopicHook publishes diagnostics as JSON to a topic.
type TopicHook struct {
	pub Publisher
}

// NewTopicHook creates a topic hook.
func NewTopicHook(pub Publisher) *TopicHook {
	return &TopicHook{pub: pub}
}

// Fallback implements Hook.
func (h *TopicHook) Fallback(ctx context.Context, d Diagnostic) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal diagnostic: %w", err)
	}
	return h.pub.Publish(ctx, d.Subject(), string(body))
}

// AdvisorHook asks a language model for remediation steps and logs them.
type AdvisorHook struct {
	model  llm.Model
	logger *observability.Logger
}

// NewAdvisorHook creates an advisor hook.
func NewAdvisorHook(model llm.Model, logger *observability.Logger) *AdvisorHook {
	return &AdvisorHook{model: model, logger: logger}
}

// Fallback implements Hook.
func (h *AdvisorHook) Fallback(ctx context.Context, d Diagnostic) error {
	var b strings.Builder
	b.WriteString("A data pipeline step failed. Suggest the most likely cause and concrete remediation steps in under 120 words.\n")
	fmt.Fprintf(&b, "Stage: %s\nUnit: %s\nRun: %s\nError: %s\n", d.Stage, d.Unit, d.JobRunID, d.Reason)

	advice, err := h.model.Invoke(ctx, b.String())
	if err != nil {
		return fmt.Errorf("request remediation advice: %w", err)
	}
	h.logger.Warn().Str("run_id", d.RunID).Str("unit", d.Unit).Str("advice", strings.TrimSpace(advice)).Msg("Remediation advice")
	return nil
}

var (
	_ Hook = Multi(nil)
	_ Hook = HookFunc(nil)
	_ Hook = (*LogHook)(nil)
	_ Hook = (*ChannelHook)(nil)
	_ Hook = (*TopicHook)(nil)
	_ Hook = (*AdvisorHook)(nil)
)
