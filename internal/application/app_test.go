package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/archive/internal/config"
	"github.com/JonMunkholm/archive/internal/filearchive"
	"github.com/JonMunkholm/archive/internal/schema"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:   config.StoreConfig{Backend: BackendMemory, DatabaseID: "db", CollectionID: "docs"},
		Cache:   config.CacheConfig{Backend: "memory", Size: 8, TTL: time.Minute},
		Staging: config.StagingConfig{MaxSessions: 4, TTL: time.Hour},
		Gateway: config.GatewayConfig{BatchParallelism: 2},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_Memory(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig(), discard())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "memory", app.Gateway.StoreName())
	assert.IsType(t, filearchive.Noop{}, app.Archiver)
	assert.Same(t, app.Progress, app.Importer.Progress())

	res := app.Gateway.Create(ctx, schema.Fields{SerialNumber: "1", ApplicationNumber: "A", Locker: "L", Shelf: "S", Collection: "C"})
	require.True(t, res.Success)
	assert.Len(t, app.Gateway.List(ctx, nil).Data, 1)
}

func TestBuild_UnknownBackends(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "store", mutate: func(c *config.Config) { c.Store.Backend = "sqlite" }, wantErr: `unknown store backend "sqlite"`},
		{name: "cache", mutate: func(c *config.Config) { c.Cache.Backend = "memcached" }, wantErr: `unknown cache backend "memcached"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg, discard())
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestClose_Idempotent(t *testing.T) {
	app := &App{}
	calls := 0
	app.closers = []func() error{func() error { calls++; return nil }}
	assert.NoError(t, app.Close())
	assert.NoError(t, app.Close())
	assert.Equal(t, 1, calls)
}
