package gateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/archive/internal/logging"
	"github.com/JonMunkholm/archive/internal/schema"
)

// ItemFailure describes one failed item of a batch.
type ItemFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`

	err error
}

// BatchResult is the outcome of a batch helper. Success is true only when
// every item succeeded.
type BatchResult struct {
	Success   bool            `json:"success"`
	Attempted int             `json:"attempted"`
	Succeeded int             `json:"succeeded"`
	Records   []schema.Record `json:"records,omitempty"`
	Failures  []ItemFailure   `json:"failures,omitempty"`
	Error     string          `json:"error,omitempty"`

	err error
}

// Err returns the first error of a failed batch, or nil.
func (b BatchResult) Err() error {
	if b.err != nil {
		return b.err
	}
	if len(b.Failures) > 0 {
		return b.Failures[0].err
	}
	return nil
}

func failBatch(err error) BatchResult {
	return BatchResult{Error: err.Error(), err: err}
}

// fanOut runs fn for indices 0..n-1 on a bounded pool. Each item waits for
// the limiter when throttling is enabled. All items are attempted; per-item
// errors are returned in index order.
func (g *Gateway) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)

	var eg errgroup.Group
	eg.SetLimit(g.parallelism)
	for i := range n {
		eg.Go(func() error {
			if g.limiter != nil {
				if err := g.limiter.Wait(ctx); err != nil {
					errs[i] = err
					return nil
				}
			}
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = eg.Wait()
	return errs
}

func (g *Gateway) collect(ctx context.Context, op string, errs []error, id func(i int) string) BatchResult {
	res := BatchResult{Attempted: len(errs)}
	for i, err := range errs {
		if err == nil {
			res.Succeeded++
			continue
		}
		res.Failures = append(res.Failures, ItemFailure{Index: i, ID: id(i), Error: err.Error(), err: err})
	}

	res.Success = len(res.Failures) == 0
	if !res.Success {
		res.Error = fmt.Sprintf("%s: %d of %d items failed: %s",
			op, len(res.Failures), res.Attempted, res.Failures[0].Error)
		logging.FromContext(ctx).Warn("batch finished with failures",
			"op", op,
			"attempted", res.Attempted,
			"failed", len(res.Failures),
		)
	}
	return res
}

// CreateMany creates one document per entry of rows. Records holds the
// created documents in input order; entries of failed items are zero.
func (g *Gateway) CreateMany(ctx context.Context, rows []schema.Fields) BatchResult {
	records := make([]schema.Record, len(rows))
	errs := g.fanOut(ctx, len(rows), func(ctx context.Context, i int) error {
		res := g.Create(ctx, rows[i])
		if !res.Success {
			return res.Err()
		}
		records[i] = res.Data
		return nil
	})

	res := g.collect(ctx, "create many", errs, func(int) string { return "" })
	res.Records = records
	return res
}

// DeleteMany deletes every id.
func (g *Gateway) DeleteMany(ctx context.Context, ids []string) BatchResult {
	errs := g.fanOut(ctx, len(ids), func(ctx context.Context, i int) error {
		return g.Delete(ctx, ids[i]).Err()
	})
	return g.collect(ctx, "delete many", errs, func(i int) string { return ids[i] })
}

// ClearAll deletes every document in the collection. It fails without
// deleting anything when the listing fails.
func (g *Gateway) ClearAll(ctx context.Context) BatchResult {
	listed := g.Snapshot(ctx)
	if !listed.Success {
		return failBatch(listed.Err())
	}

	ids := make([]string, len(listed.Data))
	for i, r := range listed.Data {
		ids[i] = r.ID
	}
	return g.DeleteMany(ctx, ids)
}

// ResetAll clears the collection and creates rows. The first failing phase
// ends the reset and its first error is surfaced.
func (g *Gateway) ResetAll(ctx context.Context, rows []schema.Fields) BatchResult {
	cleared := g.ClearAll(ctx)
	if !cleared.Success {
		return failBatch(fmt.Errorf("reset: clear: %w", cleared.Err()))
	}

	created := g.CreateMany(ctx, rows)
	if !created.Success {
		res := created
		res.Error = "reset: " + created.Error
		return res
	}
	return created
}
