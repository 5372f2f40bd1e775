// Package cache holds listing results between writes.
// A listing is keyed by its encoded queries; any write purges everything.
//
// Every Purge advances a generation. A reader takes the generation before
// it reads the store and hands it back to Set, which drops the page when a
// purge happened in between, so a listing read before a write is never
// stored after that write's purge.
package cache

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/archive/internal/store"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_list_cache_hits_total",
		Help: "Listing cache hits.",
	}, []string{"backend"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_list_cache_misses_total",
		Help: "Listing cache misses.",
	}, []string{"backend"})
)

// ListCache stores listing pages by query key.
type ListCache interface {
	Get(ctx context.Context, key string) (store.Page, bool)
	// Generation returns the current purge generation.
	Generation(ctx context.Context) int64
	// Set stores page unless a purge happened since gen was read.
	Set(ctx context.Context, key string, gen int64, page store.Page)
	Purge(ctx context.Context)
}

// Key derives a cache key from a listing's queries. Query order matters.
func Key(queries []string) string {
	h := xxhash.New()
	_, _ = h.WriteString(strings.Join(queries, "\x00"))
	return hex.EncodeToString(h.Sum(nil))
}

func observe(backend string, hit bool) {
	if hit {
		cacheHitsTotal.WithLabelValues(backend).Inc()
		return
	}
	cacheMissesTotal.WithLabelValues(backend).Inc()
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (store.Page, bool) { return store.Page{}, false }
func (Noop) Generation(context.Context) int64               { return 0 }
func (Noop) Set(context.Context, string, int64, store.Page) {}
func (Noop) Purge(context.Context)                          {}
