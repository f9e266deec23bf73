package xchpay

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchResult summarizes a batch scan. Per-row failures never abort the
// scan; they are collected in Errors.
type BatchResult struct {
	Scanned   int
	Succeeded int
	// Changed counts rows whose status the sweep actually moved. Sweeps
	// that only read or notify leave it zero.
	Changed int
	Errors  MultiError
}

// Failed returns the number of rows that failed.
func (r *BatchResult) Failed() int { return len(r.Errors.Errors) }

// Err returns the collected failures as one error, or nil.
func (r *BatchResult) Err() error { return r.Errors.ErrOrNil() }

// fanOut runs fn for every item with at most limit in flight. Row
// goroutines always return nil to the group so one failure never cancels
// its siblings.
func fanOut[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) *BatchResult {
	res := &BatchResult{Scanned: len(items)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			err := fn(ctx, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors.Add(err)
			} else {
				res.Succeeded++
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // row goroutines never return errors

	return res
}
