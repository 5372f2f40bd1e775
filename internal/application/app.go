// Package application assembles the archive's components from configuration.
// Both the HTTP server and the command line tool start from Build.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/archive/internal/cache"
	"github.com/JonMunkholm/archive/internal/config"
	"github.com/JonMunkholm/archive/internal/filearchive"
	"github.com/JonMunkholm/archive/internal/gateway"
	"github.com/JonMunkholm/archive/internal/importer"
	"github.com/JonMunkholm/archive/internal/staging"
	"github.com/JonMunkholm/archive/internal/store"
	"github.com/JonMunkholm/archive/internal/store/dynamo"
	"github.com/JonMunkholm/archive/internal/store/memory"
	"github.com/JonMunkholm/archive/internal/store/postgres"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
	BackendMemory   = "memory"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Store    store.DocumentStore
	Gateway  *gateway.Gateway
	Progress *importer.Channel
	Importer *importer.Orchestrator
	Staging  *staging.Store
	Archiver filearchive.Archiver

	closers []func() error
}

// Build connects the configured store, cache and archiver and wires the
// gateway, orchestrator and staging store on top. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg}

	// The AWS config is loaded once, and only when a component needs it.
	var loaded *aws.Config
	awsCfg := func() (aws.Config, error) {
		if loaded != nil {
			return *loaded, nil
		}
		c, err := loadAWS(ctx, cfg)
		if err != nil {
			return c, err
		}
		loaded = &c
		return c, nil
	}

	st, err := app.openStore(ctx, cfg, logger, awsCfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = st

	listCache, err := app.openCache(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Gateway = gateway.New(st, cfg.Store.DatabaseID, cfg.Store.CollectionID, gateway.Options{
		Parallelism:       cfg.Gateway.BatchParallelism,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		CallTimeout:       cfg.Gateway.CallTimeout,
		Cache:             listCache,
	})
	app.Progress = importer.NewChannel()
	app.Importer = importer.New(app.Gateway, app.Progress, importer.Options{
		StepDelay: cfg.Import.StepDelay,
		Timeout:   cfg.Import.Timeout,
	})
	app.Staging = staging.New(cfg.Staging.MaxSessions, cfg.Staging.TTL)

	app.Archiver = filearchive.Noop{}
	if cfg.Archive.Bucket != "" {
		c, err := awsCfg()
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Archiver = filearchive.NewS3(s3.NewFromConfig(c), cfg.Archive.Bucket, cfg.Archive.Prefix)
		logger.Info("source archiving enabled", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
	}

	logger.Info("application ready",
		"store", st.Name(),
		"database_id", cfg.Store.DatabaseID,
		"collection_id", cfg.Store.CollectionID,
		"cache", cfg.Cache.Backend,
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, awsCfg func() (aws.Config, error)) (store.DocumentStore, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case BackendPostgres:
		dsn := cfg.PostgresURL()
		if cfg.Database.Migrate {
			if err := postgres.Migrate(dsn, logger); err != nil {
				return nil, err
			}
		}

		poolConfig, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)
		poolConfig.MinConns = int32(cfg.Database.MinConns)
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return postgres.New(pool), nil

	case BackendDynamo:
		c, err := awsCfg()
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(c, func(o *dynamodb.Options) {
			if cfg.Store.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
			}
		})
		return dynamo.New(client, cfg.Dynamo.TablePrefix, cfg.Store.DatabaseID, cfg.Store.CollectionID), nil

	case BackendMemory:
		logger.Warn("using in-memory store; records are lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func (a *App) openCache(ctx context.Context, cfg *config.Config) (cache.ListCache, error) {
	switch strings.ToLower(cfg.Cache.Backend) {
	case "memory":
		return cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), nil
	case "redis":
		prefix := "archive:" + cfg.Store.DatabaseID + ":" + cfg.Store.CollectionID
		c, err := cache.NewRedisFromURL(ctx, cfg.Cache.RedisURL, prefix, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	case "none", "":
		return cache.Noop{}, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// loadAWS resolves credentials and region from the environment.
func loadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Dynamo.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return c, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

var _ io.Closer = (*App)(nil)
