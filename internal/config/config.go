// Package config provides unified configuration loading for the lakehouse agent.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lakehouse agent.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	Refine        RefineConfig        `yaml:"refine"`
	Query         QueryConfig         `yaml:"query"`
	LLM           LLMConfig           `yaml:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	FewShot       FewShotConfig       `yaml:"fewshot"`
	Cache         CacheConfig         `yaml:"cache"`
	RunLog        RunLogConfig        `yaml:"runlog"`
	Database      DatabaseConfig      `yaml:"database"`
	AWS           AWSConfig           `yaml:"aws"`
	Notify        NotifyConfig        `yaml:"notify"`
	Lineage       LineageConfig       `yaml:"lineage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	// AuthToken, when set, is required as a bearer token on /api and /invoke.
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig describes the object store and the medallion buckets.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // s3 or local
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UseSSL       bool   `yaml:"use_ssl"`
	LocalRoot    string `yaml:"local_root"`
	BronzeBucket string `yaml:"bronze_bucket"`
	SilverBucket string `yaml:"silver_bucket"`
	GoldBucket   string `yaml:"gold_bucket"`
	MetaBucket   string `yaml:"meta_bucket"`
	LogPrefix    string `yaml:"log_prefix"`
	JoinedPrefix string `yaml:"joined_prefix"`
}

// StageRequirements marks which pipeline stages are required.
type StageRequirements struct {
	Connectors  bool `yaml:"connectors"`
	Replication bool `yaml:"replication"`
	Transform   bool `yaml:"transform"`
	Catalog     bool `yaml:"catalog"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	Environment            string            `yaml:"environment"`
	Backend                string            `yaml:"backend"` // aws or local
	Connectors             []string          `yaml:"connectors"`
	ReplicationTasks       []string          `yaml:"replication_tasks"`
	TransformJobs          []string          `yaml:"transform_jobs"`
	TransformEngine        string            `yaml:"transform_engine"` // glue or databrew
	ReplicationMode        string            `yaml:"replication_mode"`
	Crawlers               []string          `yaml:"crawlers"`
	Required               StageRequirements `yaml:"required"`
	PollInterval           time.Duration     `yaml:"poll_interval"`
	JobTimeout             time.Duration     `yaml:"job_timeout"`
	CrawlerTimeout         time.Duration     `yaml:"crawler_timeout"`
	ReplicationTimeout     time.Duration     `yaml:"replication_timeout"`
	FlowTimeout            time.Duration     `yaml:"flow_timeout"`
	AbortOnRequiredFailure bool              `yaml:"abort_on_required_failure"`
	BestEffortConcurrency  int               `yaml:"best_effort_concurrency"`
	PrecheckBronze         bool              `yaml:"precheck_bronze"`
	InsightPrompt          string            `yaml:"insight_prompt"`
}

// SecretRef names a credential the pipeline needs before it starts.
type SecretRef struct {
	Name string `yaml:"name"`
	Ref  string `yaml:"ref"`
}

// SecretsConfig holds secret store settings.
type SecretsConfig struct {
	Driver   string      `yaml:"driver"` // env or aws
	Required []SecretRef `yaml:"required"`
}

// JoinSpec is a single entry of the join map.
type JoinSpec struct {
	JoinWith string `yaml:"join_with" json:"join_with"`
	LeftKey  string `yaml:"left_key" json:"left_key"`
	RightKey string `yaml:"right_key" json:"right_key"`
}

// RefineConfig holds data refinement settings.
type RefineConfig struct {
	Sources         []string            `yaml:"sources"`
	JoinMap         map[string]JoinSpec `yaml:"join_map"`
	JoinMapKey      string              `yaml:"join_map_key"`
	PrimaryKeyRules []string            `yaml:"primary_key_rules"`
	Concurrency     int                 `yaml:"concurrency"`
}

// QueryConfig holds interactive query settings.
type QueryConfig struct {
	Engine         string        `yaml:"engine"` // athena or sqlite
	SQLitePath     string        `yaml:"sqlite_path"`
	Database       string        `yaml:"database"`
	Table          string        `yaml:"table"`
	TableSchema    string        `yaml:"table_schema"`
	OutputLocation string        `yaml:"output_location"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	DedupeKeys     []string      `yaml:"dedupe_keys"`
	TopK           int           `yaml:"top_k"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // bedrock, openrouter or mock
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // bedrock, openrouter or mock
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// FewShotConfig points at the few-shot corpus. An empty path uses the built-in corpus.
type FewShotConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RunLogConfig selects where run metadata is persisted.
type RunLogConfig struct {
	Driver string `yaml:"driver"` // objectstore or sql
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AWSConfig holds AWS SDK settings shared by every managed-service client.
type AWSConfig struct {
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"`
}

// NotifyConfig selects the fallback diagnostic targets.
type NotifyConfig struct {
	RedisChannel string `yaml:"redis_channel"`
	SNSTopicARN  string `yaml:"sns_topic_arn"`
}

// LineageConfig controls the lineage trail written to the meta bucket.
type LineageConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Prefix        string        `yaml:"prefix"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	loadDotEnv(path)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env files next to the working directory and the config file.
// Existing environment variables win.
func loadDotEnv(configPath string) {
	_ = godotenv.Load()
	if configPath != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))
	}
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     15 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Storage: StorageConfig{
			Driver:       "local",
			Region:       "us-east-1",
			UseSSL:       true,
			LocalRoot:    "/tmp/lakehouse",
			BronzeBucket: "bronze",
			SilverBucket: "silver",
			GoldBucket:   "gold",
			MetaBucket:   "datalakenewai",
			LogPrefix:    "meta-data/logs/",
			JoinedPrefix: "joined/",
		},
		Pipeline: PipelineConfig{
			Environment:     "dev",
			Backend:         "aws",
			TransformEngine: "glue",
			ReplicationMode: "reload-target",
			Required: StageRequirements{
				Connectors:  true,
				Replication: true,
				Transform:   true,
				Catalog:     false,
			},
			PollInterval:          30 * time.Second,
			JobTimeout:            2 * time.Hour,
			CrawlerTimeout:        30 * time.Minute,
			ReplicationTimeout:    2 * time.Hour,
			FlowTimeout:           time.Hour,
			BestEffortConcurrency: 1,
			PrecheckBronze:        true,
		},
		Secrets: SecretsConfig{
			Driver: "env",
		},
		Refine: RefineConfig{
			Sources:         []string{"hubspot", "bigquery", "rds"},
			PrimaryKeyRules: []string{`^id$`, `_id$`, `^{source}_id$`},
			Concurrency:     3,
		},
		Query: QueryConfig{
			Engine:         "athena",
			SQLitePath:     "/tmp/lakehouse-gold.db",
			Database:       "gold_db",
			Table:          "gold",
			TableSchema:    "Table: gold\nColumns: brand, model, color, memory, storage, rating, selling_price, original_price, profit",
			OutputLocation: "s3://datalakenewai/meta-data/athena-results/",
			PollInterval:   time.Second,
			Timeout:        2 * time.Minute,
			DedupeKeys:     []string{"brand", "model", "profit"},
			TopK:           2,
		},
		LLM: LLMConfig{
			Provider:    "bedrock",
			Model:       "amazon.nova-pro-v1:0",
			BaseURL:     "https://openrouter.ai/api/v1",
			MaxTokens:   512,
			Temperature: 0,
			Timeout:     60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "bedrock",
			Model:     "amazon.titan-embed-g1-text-02",
			BaseURL:   "https://openrouter.ai/api/v1",
			Dimension: 1536,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		RunLog: RunLogConfig{
			Driver: "objectstore",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/lakehouse-runs.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Lineage: LineageConfig{
			Enabled:       true,
			Prefix:        "meta-data/lineage/",
			BufferSize:    256,
			FlushInterval: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "lakehouse-agent",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case "s3":
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage endpoint is required for s3 driver")
		}
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage local_root is required for local driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}

	if c.Storage.BronzeBucket == "" || c.Storage.SilverBucket == "" || c.Storage.GoldBucket == "" {
		return fmt.Errorf("bronze, silver and gold buckets are required")
	}

	if c.Pipeline.Environment == "" {
		return fmt.Errorf("pipeline environment is required")
	}

	if !oneOf(c.Pipeline.Backend, "aws", "local") {
		return fmt.Errorf("invalid pipeline backend: %s", c.Pipeline.Backend)
	}

	if c.Pipeline.TransformEngine != "glue" && c.Pipeline.TransformEngine != "databrew" {
		return fmt.Errorf("invalid transform engine: %s", c.Pipeline.TransformEngine)
	}

	if !oneOf(c.Pipeline.ReplicationMode, "reload-target", "resume-processing", "start-replication") {
		return fmt.Errorf("invalid replication mode: %s", c.Pipeline.ReplicationMode)
	}

	if c.Pipeline.PollInterval <= 0 {
		return fmt.Errorf("pipeline poll_interval must be positive")
	}

	for name, d := range map[string]time.Duration{
		"job_timeout":         c.Pipeline.JobTimeout,
		"crawler_timeout":     c.Pipeline.CrawlerTimeout,
		"replication_timeout": c.Pipeline.ReplicationTimeout,
		"flow_timeout":        c.Pipeline.FlowTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("pipeline %s must be positive", name)
		}
	}

	if c.Pipeline.BestEffortConcurrency < 1 {
		return fmt.Errorf("pipeline best_effort_concurrency must be at least 1")
	}

	if c.Secrets.Driver != "env" && c.Secrets.Driver != "aws" {
		return fmt.Errorf("invalid secrets driver: %s", c.Secrets.Driver)
	}

	for _, s := range c.Secrets.Required {
		if s.Name == "" || s.Ref == "" {
			return fmt.Errorf("required secret entries need a name and a ref")
		}
	}

	if len(c.Refine.PrimaryKeyRules) == 0 {
		return fmt.Errorf("refine primary_key_rules must not be empty")
	}
	for _, rule := range c.Refine.PrimaryKeyRules {
		if _, err := regexp.Compile(strings.ReplaceAll(rule, "{source}", "x")); err != nil {
			return fmt.Errorf("invalid primary key rule %q: %w", rule, err)
		}
	}

	for src, spec := range c.Refine.JoinMap {
		if spec.JoinWith == "" || spec.LeftKey == "" || spec.RightKey == "" {
			return fmt.Errorf("join map entry %q needs join_with, left_key and right_key", src)
		}
	}

	switch c.Query.Engine {
	case "athena":
	case "sqlite":
		if c.Query.SQLitePath == "" {
			return fmt.Errorf("query sqlite_path is required for the sqlite engine")
		}
	default:
		return fmt.Errorf("invalid query engine: %s", c.Query.Engine)
	}

	if c.Query.TopK < 1 {
		return fmt.Errorf("query top_k must be at least 1")
	}

	if len(c.Query.DedupeKeys) == 0 {
		return fmt.Errorf("query dedupe_keys must not be empty")
	}

	if c.Query.PollInterval <= 0 || c.Query.Timeout <= 0 {
		return fmt.Errorf("query poll_interval and timeout must be positive")
	}

	if !oneOf(c.LLM.Provider, "bedrock", "openrouter", "mock") {
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}

	if !oneOf(c.Embedding.Provider, "bedrock", "openrouter", "mock") {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.RunLog.Driver != "objectstore" && c.RunLog.Driver != "sql" {
		return fmt.Errorf("invalid runlog driver: %s", c.RunLog.Driver)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Lineage.Enabled && (c.Lineage.BufferSize < 1 || c.Lineage.FlushInterval <= 0) {
		return fmt.Errorf("lineage buffer_size and flush_interval must be positive")
	}

	return nil
}

// CatalogTargets returns the crawler names for the catalog stage.
// Without explicit crawlers it derives bronze, silver and gold crawlers for the environment.
func (c *Config) CatalogTargets() []string {
	if len(c.Pipeline.Crawlers) > 0 {
		return c.Pipeline.Crawlers
	}
	env := c.Pipeline.Environment
	return []string{
		"bronze-crawler-" + env,
		"silver-crawler-" + env,
		"gold-crawler-" + env,
	}
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("Environment"); v != "" {
		cfg.Pipeline.Environment = v
	}
	if v := os.Getenv("LAKEHOUSE_ENV"); v != "" {
		cfg.Pipeline.Environment = v
	}

	if v := os.Getenv("LAKEHOUSE_BACKEND"); v != "" {
		cfg.Pipeline.Backend = v
	}

	if v := os.Getenv("QUERY_ENGINE"); v != "" {
		cfg.Query.Engine = v
	}

	if v := os.Getenv("APPFLOWS"); v != "" {
		cfg.Pipeline.Connectors = splitList(v)
	}

	if v := os.Getenv("DMS_TASKS"); v != "" {
		cfg.Pipeline.ReplicationTasks = splitList(v)
	}

	if v := os.Getenv("GLUE_JOBS"); v != "" {
		cfg.Pipeline.TransformJobs = splitList(v)
	}

	if v := os.Getenv("CRAWLERS"); v != "" {
		cfg.Pipeline.Crawlers = splitList(v)
	}

	if v := os.Getenv("BRONZE_BUCKET"); v != "" {
		cfg.Storage.BronzeBucket = v
	}

	if v := os.Getenv("SILVER_BUCKET"); v != "" {
		cfg.Storage.SilverBucket = v
	}

	if v := os.Getenv("GOLD_BUCKET"); v != "" {
		cfg.Storage.GoldBucket = v
	}

	if v := os.Getenv("META_BUCKET"); v != "" {
		cfg.Storage.MetaBucket = v
	}

	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.Driver = "s3"
		cfg.Storage.Endpoint = v
	}

	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}

	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}

	for _, name := range []string{"hubspot", "bigquery", "rds"} {
		if v := os.Getenv(strings.ToUpper(name) + "_SECRET_ARN"); v != "" {
			cfg.Secrets.Required = upsertSecret(cfg.Secrets.Required, SecretRef{Name: name, Ref: v})
		}
	}

	if v := os.Getenv("SECRETS_DRIVER"); v != "" {
		cfg.Secrets.Driver = v
	}

	if v := os.Getenv("BEDROCK_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}

	if v := os.Getenv("ATHENA_DATABASE"); v != "" {
		cfg.Query.Database = v
	}

	if v := os.Getenv("ATHENA_OUTPUT"); v != "" {
		cfg.Query.OutputLocation = v
	}

	if v := os.Getenv("JOIN_MAP_KEY"); v != "" {
		cfg.Refine.JoinMapKey = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.RunLog.Driver = "sql"
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("SNS_TOPIC_ARN"); v != "" {
		cfg.Notify.SNSTopicARN = v
	}

	if v := os.Getenv("LINEAGE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Lineage.Enabled = b
		}
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func upsertSecret(refs []SecretRef, ref SecretRef) []SecretRef {
	for i := range refs {
		if refs[i].Name == ref.Name {
			refs[i].Ref = ref.Ref
			return refs
		}
	}
	return append(refs, ref)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
