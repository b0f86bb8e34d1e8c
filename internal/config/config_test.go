package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"brand", "model", "profit"}, cfg.Query.DedupeKeys)
	assert.Equal(t, 2, cfg.Query.TopK)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.PollInterval)
}

func TestCatalogTargets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Environment = "prod"
	assert.Equal(t, []string{"bronze-crawler-prod", "silver-crawler-prod", "gold-crawler-prod"}, cfg.CatalogTargets())

	cfg.Pipeline.Crawlers = []string{"custom"}
	assert.Equal(t, []string{"custom"}, cfg.CatalogTargets())
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  port: 9000
pipeline:
  environment: staging
  transform_jobs: [refine-job]
refine:
  join_map:
    hubspot:
      join_with: rds
      left_key: crm_id
      right_key: customer_id
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("APPFLOWS", "hubspot-flow, bigquery-flow ,")
	t.Setenv("DMS_TASKS", "rds-task")
	t.Setenv("RDS_SECRET_ARN", "arn:rds")
	t.Setenv("GOLD_BUCKET", "gold-prod")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "staging", cfg.Pipeline.Environment)
	assert.Equal(t, []string{"refine-job"}, cfg.Pipeline.TransformJobs)
	assert.Equal(t, []string{"hubspot-flow", "bigquery-flow"}, cfg.Pipeline.Connectors)
	assert.Equal(t, []string{"rds-task"}, cfg.Pipeline.ReplicationTasks)
	assert.Equal(t, "gold-prod", cfg.Storage.GoldBucket)
	assert.Contains(t, cfg.Secrets.Required, SecretRef{Name: "rds", Ref: "arn:rds"})
	assert.Equal(t, JoinSpec{JoinWith: "rds", LeftKey: "crm_id", RightKey: "customer_id"}, cfg.Refine.JoinMap["hubspot"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad storage driver", func(c *Config) { c.Storage.Driver = "ftp" }},
		{"s3 without endpoint", func(c *Config) { c.Storage.Driver = "s3" }},
		{"bad backend", func(c *Config) { c.Pipeline.Backend = "gcp" }},
		{"bad query engine", func(c *Config) { c.Query.Engine = "presto" }},
		{"sqlite without path", func(c *Config) { c.Query.Engine = "sqlite"; c.Query.SQLitePath = "" }},
		{"bad transform engine", func(c *Config) { c.Pipeline.TransformEngine = "spark" }},
		{"bad replication mode", func(c *Config) { c.Pipeline.ReplicationMode = "full" }},
		{"bad lineage buffer", func(c *Config) { c.Lineage.BufferSize = 0 }},
		{"zero poll interval", func(c *Config) { c.Pipeline.PollInterval = 0 }},
		{"bad pk rule", func(c *Config) { c.Refine.PrimaryKeyRules = []string{"("} }},
		{"incomplete join", func(c *Config) { c.Refine.JoinMap = map[string]JoinSpec{"a": {JoinWith: "b"}} }},
		{"no dedupe keys", func(c *Config) { c.Query.DedupeKeys = nil }},
		{"bad llm provider", func(c *Config) { c.LLM.Provider = "other" }},
		{"bad runlog driver", func(c *Config) { c.RunLog.Driver = "kafka" }},
		{"secret without ref", func(c *Config) { c.Secrets.Required = []SecretRef{{Name: "x"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
