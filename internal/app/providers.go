package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/awsclient"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/cache"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/embedding"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/llm"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/notify"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/objectstore"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/secrets"
)

func (a *App) newStore() (objectstore.Store, error) {
	s := a.Config.Storage
	switch s.Driver {
	case "s3":
		return objectstore.NewS3Client(objectstore.S3Config{
			Endpoint:  s.Endpoint,
			Region:    s.Region,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			UseSSL:    s.UseSSL,
		})
	default:
		return objectstore.NewLocalStore(s.LocalRoot)
	}
}

func (a *App) newCache(ctx context.Context) (cache.Client, error) {
	c := a.Config.Cache
	var client cache.Client
	switch c.Driver {
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			PoolSize: c.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		client = rc
	default:
		client = cache.NewMemoryClient(c.MaxEntries)
	}
	a.onClose(client.Close)
	return client, nil
}

func (a *App) newRunLog(ctx context.Context) (runlog.Store, error) {
	cfg := a.Config
	if cfg.RunLog.Driver != "sql" {
		return runlog.NewObjectStore(a.Store, cfg.Storage.MetaBucket, cfg.Storage.LogPrefix), nil
	}

	sqlCfg := runlog.SQLConfig{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.DatabaseDSN(),
		JournalMode: cfg.Database.SQLite.JournalMode,
	}
	if cfg.Database.Driver == "sqlite" {
		sqlCfg.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
	} else {
		sqlCfg.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
		sqlCfg.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
		sqlCfg.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
	}
	db, err := runlog.OpenDB(ctx, sqlCfg)
	if err != nil {
		return nil, err
	}
	a.onClose(db.Close)
	return runlog.NewSQLStore(ctx, db)
}

func (a *App) newModel(ctx context.Context) (llm.Model, error) {
	c := a.Config.LLM
	switch c.Provider {
	case "mock":
		return llm.NewMockModel(mockReply(a.Config.Query.Table)), nil
	case "openrouter":
		return llm.NewClient(llm.Config{
			APIKey:      c.APIKey,
			Model:       c.Model,
			BaseURL:     c.BaseURL,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		})
	default:
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		return awsclient.NewBedrockChat(bedrockruntime.NewFromConfig(awsCfg), c.Model, c.MaxTokens, c.Temperature), nil
	}
}

func (a *App) newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	c := a.Config.Embedding
	var inner embedding.Embedder
	switch c.Provider {
	case "mock":
		inner = embedding.NewMockClient(c.Dimension)
	case "openrouter":
		client, err := embedding.NewClient(embedding.Config{
			APIKey:    c.APIKey,
			Model:     c.Model,
			BaseURL:   c.BaseURL,
			Dimension: c.Dimension,
			Timeout:   c.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = client
	default:
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		inner = awsclient.NewTitanEmbedder(bedrockruntime.NewFromConfig(awsCfg), c.Model, c.Dimension)
	}
	return embedding.NewCachedEmbedder(inner, a.Cache, a.Config.Cache.TTL, a.Logger), nil
}

func (a *App) newSecrets(ctx context.Context) (secrets.Store, error) {
	if a.Config.Secrets.Driver != "aws" {
		return secrets.NewEnvStore(), nil
	}
	awsCfg, err := a.aws(ctx)
	if err != nil {
		return nil, err
	}
	return awsclient.NewSecretsManager(secretsmanager.NewFromConfig(awsCfg)), nil
}

// newHook always logs; a Redis channel, an SNS topic and the advisor model
// are added when configured.
func (a *App) newHook(ctx context.Context) (notify.Hook, error) {
	hooks := notify.Multi{notify.NewLogHook(a.Logger)}

	n := a.Config.Notify
	if n.RedisChannel != "" {
		if ps, ok := a.Cache.(cache.PubSub); ok {
			hooks = append(hooks, notify.NewChannelHook(ps, n.RedisChannel))
		}
	}
	if n.SNSTopicARN != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, notify.NewTopicHook(awsclient.NewSNSTopic(sns.NewFromConfig(awsCfg), n.SNSTopicARN)))
	}
	if a.Config.LLM.Provider != "mock" {
		hooks = append(hooks, notify.NewAdvisorHook(a.Model, a.Logger))
	}
	return hooks, nil
}

// mockReply is what the mock model answers to every prompt: a sample of the
// gold table.
func mockReply(table string) string {
	return fmt.Sprintf(`{"action":"query","sql":"SELECT * FROM %s LIMIT 10","reply":"Here is a sample of %s."}`, table, table)
}
