package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/archive/internal/store"
)

// Redis shares listings between service instances. Purge bumps a generation
// counter so stale entries become unreachable and expire on their own TTL.
// Entries are written under the generation the reader took before its store
// read, so a page read before a purge lands under the retired generation.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a cache on client. prefix namespaces all keys.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisFromURL parses url (redis://...) and connects.
func NewRedisFromURL(ctx context.Context, url, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedis(client, prefix, ttl), nil
}

func (c *Redis) genKey() string {
	return c.prefix + ":gen"
}

// Generation reads the shared purge counter. A failed read returns -1,
// which no entry is ever stored under.
func (c *Redis) Generation(ctx context.Context) int64 {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("list cache: read generation", "error", err)
		return -1
	}
	return gen
}

func (c *Redis) entryKey(gen int64, key string) string {
	return c.prefix + ":" + strconv.FormatInt(gen, 10) + ":" + key
}

func (c *Redis) Get(ctx context.Context, key string) (store.Page, bool) {
	gen := c.Generation(ctx)
	if gen < 0 {
		observe("redis", false)
		return store.Page{}, false
	}
	data, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("list cache: get", "error", err)
		}
		observe("redis", false)
		return store.Page{}, false
	}

	var page store.Page
	if err := json.Unmarshal(data, &page); err != nil {
		observe("redis", false)
		return store.Page{}, false
	}
	observe("redis", true)
	return page, true
}

func (c *Redis) Set(ctx context.Context, key string, gen int64, page store.Page) {
	if gen < 0 {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.entryKey(gen, key), data, c.ttl).Err(); err != nil {
		slog.Warn("list cache: set", "error", err)
	}
}

func (c *Redis) Purge(ctx context.Context) {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		slog.Warn("list cache: purge", "error", err)
	}
}

// Close releases the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}
