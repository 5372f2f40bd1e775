// Package gateway is the only component that talks to the document store.
//
// Every operation wraps one remote call and returns a Result instead of an
// error: remote and decoding failures are logged, counted and folded into
// the result so callers branch on Success. Batch helpers run items through a
// bounded worker pool and report each failed item.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/archive/internal/cache"
	"github.com/JonMunkholm/archive/internal/logging"
	"github.com/JonMunkholm/archive/internal/schema"
	"github.com/JonMunkholm/archive/internal/store"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_gateway_calls_total",
		Help: "Document store calls made by the gateway.",
	}, []string{"op", "outcome"})
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_gateway_call_duration_seconds",
		Help:    "Latency of document store calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// Result is the outcome of one gateway operation.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Total   int    `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`

	err error
}

// Err returns the underlying error of a failed result, or nil.
func (r Result[T]) Err() error {
	return r.err
}

// OK builds a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds a failed result carrying err.
func Fail[T any](err error) Result[T] {
	return Result[T]{Error: err.Error(), err: err}
}

// Options tune a Gateway. Zero values select the defaults.
type Options struct {
	// Parallelism is the worker count for batch helpers (default 4).
	Parallelism int
	// RequestsPerSecond throttles batch calls. 0 disables throttling.
	RequestsPerSecond float64
	// CallTimeout bounds every store call. 0 means no extra bound.
	CallTimeout time.Duration
	// Cache holds listings between writes (default: no cache).
	Cache cache.ListCache
	// NewID generates document ids (default: uuid v4).
	NewID func() string
}

// Gateway wraps a DocumentStore bound to one database and collection.
type Gateway struct {
	store        store.DocumentStore
	databaseID   string
	collectionID string

	cache       cache.ListCache
	newID       func() string
	parallelism int
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// New creates a Gateway for the given collection.
func New(s store.DocumentStore, databaseID, collectionID string, opts Options) *Gateway {
	g := &Gateway{
		store:        s,
		databaseID:   databaseID,
		collectionID: collectionID,
		cache:        opts.Cache,
		newID:        opts.NewID,
		parallelism:  opts.Parallelism,
		callTimeout:  opts.CallTimeout,
	}
	if g.cache == nil {
		g.cache = cache.Noop{}
	}
	if g.newID == nil {
		g.newID = func() string { return uuid.New().String() }
	}
	if g.parallelism <= 0 {
		g.parallelism = 4
	}
	if opts.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), g.parallelism)
	}
	return g
}

// StoreName returns the backend name of the wrapped store.
func (g *Gateway) StoreName() string {
	return g.store.Name()
}

// Ping checks that the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

// call runs fn with the per-call timeout and records metrics.
func (g *Gateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	callDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		callsTotal.WithLabelValues(op, "error").Inc()
		logging.FromContext(ctx).Warn("document store call failed",
			"op", op,
			"store", g.store.Name(),
			"error", err,
		)
		return err
	}
	callsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// List returns the documents matching queries with the total match count.
// Empty queries list every document.
func (g *Gateway) List(ctx context.Context, queries []string) Result[[]schema.Record] {
	return g.list(ctx, queries, true)
}

// Snapshot lists every document, bypassing the listing cache. Bulk
// operations use it so they never act on a stale listing.
func (g *Gateway) Snapshot(ctx context.Context) Result[[]schema.Record] {
	return g.list(ctx, nil, false)
}

func (g *Gateway) list(ctx context.Context, queries []string, cached bool) Result[[]schema.Record] {
	key := cache.Key(queries)
	if cached {
		if page, hit := g.cache.Get(ctx, key); hit {
			res := OK(page.Documents)
			res.Total = page.Total
			return res
		}
	}

	// Taken before the read so a purge during the read discards this page.
	gen := g.cache.Generation(ctx)

	var page store.Page
	err := g.call(ctx, "list", func(ctx context.Context) error {
		var err error
		page, err = g.store.ListDocuments(ctx, g.databaseID, g.collectionID, queries)
		return err
	})
	if err != nil {
		return Fail[[]schema.Record](fmt.Errorf("list documents: %w", err))
	}
	if page.Documents == nil {
		page.Documents = []schema.Record{}
	}

	g.cache.Set(ctx, key, gen, page)
	res := OK(page.Documents)
	res.Total = page.Total
	return res
}

// Get returns one document.
func (g *Gateway) Get(ctx context.Context, id string) Result[schema.Record] {
	var rec schema.Record
	err := g.call(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = g.store.GetDocument(ctx, g.databaseID, g.collectionID, id)
		return err
	})
	if err != nil {
		return Fail[schema.Record](fmt.Errorf("get document %s: %w", id, err))
	}
	return OK(rec)
}

// Create stores fields under a freshly generated id.
func (g *Gateway) Create(ctx context.Context, fields schema.Fields) Result[schema.Record] {
	id := g.newID()

	var rec schema.Record
	err := g.call(ctx, "create", func(ctx context.Context) error {
		var err error
		rec, err = g.store.CreateDocument(ctx, g.databaseID, g.collectionID, id, fields)
		return err
	})
	if err != nil {
		return Fail[schema.Record](fmt.Errorf("create document: %w", err))
	}
	g.cache.Purge(ctx)
	return OK(rec)
}

// Update replaces the fields of document id.
func (g *Gateway) Update(ctx context.Context, id string, fields schema.Fields) Result[schema.Record] {
	var rec schema.Record
	err := g.call(ctx, "update", func(ctx context.Context) error {
		var err error
		rec, err = g.store.UpdateDocument(ctx, g.databaseID, g.collectionID, id, fields)
		return err
	})
	if err != nil {
		return Fail[schema.Record](fmt.Errorf("update document %s: %w", id, err))
	}
	g.cache.Purge(ctx)
	return OK(rec)
}

// Delete removes document id.
func (g *Gateway) Delete(ctx context.Context, id string) Result[struct{}] {
	err := g.call(ctx, "delete", func(ctx context.Context) error {
		return g.store.DeleteDocument(ctx, g.databaseID, g.collectionID, id)
	})
	if err != nil {
		return Fail[struct{}](fmt.Errorf("delete document %s: %w", id, err))
	}
	g.cache.Purge(ctx)
	return OK(struct{}{})
}
