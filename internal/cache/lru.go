package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/JonMunkholm/archive/internal/store"
)

// LRU is a per-process listing cache with TTL, on hashicorp/golang-lru.
// Writes made by other processes do not purge it.
type LRU struct {
	cache *expirable.LRU[string, store.Page]

	mu  sync.Mutex // orders Set against Purge
	gen int64
}

// NewLRU creates a cache holding at most size listings for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{cache: expirable.NewLRU[string, store.Page](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, key string) (store.Page, bool) {
	page, ok := c.cache.Get(key)
	observe("memory", ok)
	return page, ok
}

func (c *LRU) Generation(context.Context) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *LRU) Set(_ context.Context, key string, gen int64, page store.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.cache.Add(key, page)
}

func (c *LRU) Purge(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}

// Len returns the number of cached listings.
func (c *LRU) Len() int {
	return c.cache.Len()
}
