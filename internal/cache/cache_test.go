package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

func samplePage() store.Page {
	return store.Page{
		Documents: []schema.Record{{
			Meta:   schema.Meta{ID: "a", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			Fields: schema.Fields{SerialNumber: "1", Locker: "L"},
		}},
		Total: 1,
	}
}

func TestKey(t *testing.T) {
	a := Key([]string{"x", "y"})
	assert.Equal(t, a, Key([]string{"x", "y"}))
	assert.NotEqual(t, a, Key([]string{"y", "x"}))
	assert.NotEqual(t, a, Key([]string{"xy"}))
	assert.Len(t, a, 16)
}

func TestLRU(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", c.Generation(ctx), samplePage())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, samplePage(), got)

	c.Set(ctx, "k2", c.Generation(ctx), store.Page{})
	c.Set(ctx, "k3", c.Generation(ctx), store.Page{})
	assert.Equal(t, 2, c.Len())

	c.Purge(ctx)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_SetAfterPurgeIsDropped(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, time.Minute)

	gen := c.Generation(ctx)
	c.Purge(ctx)
	assert.Equal(t, gen+1, c.Generation(ctx))

	c.Set(ctx, "k", gen, samplePage())
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "page read before the purge must not be cached")

	c.Set(ctx, "k", c.Generation(ctx), samplePage())
	_, ok = c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestLRU_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 20*time.Millisecond)

	c.Set(ctx, "k", c.Generation(ctx), samplePage())
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNoop(t *testing.T) {
	var c ListCache = Noop{}
	c.Set(context.Background(), "k", c.Generation(context.Background()), samplePage())
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedis_Integration(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("set TEST_INTEGRATION=1 to run Redis integration tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	c := NewRedis(client, "archive-test", time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	gen := c.Generation(ctx)
	c.Set(ctx, "k", gen, samplePage())
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, "a", got.Documents[0].ID)

	c.Purge(ctx)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", gen, samplePage())
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "a page stored under a retired generation stays unreachable")
}
