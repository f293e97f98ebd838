// Package parallel runs per-record batch transforms on a bounded worker pool.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every element with at most workers goroutines and returns results in
// input order. The first error cancels the remaining work.
func Map[T, R any](ctx context.Context, workers int, in []T, fn func(ctx context.Context, i int, v T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	if len(in) == 0 {
		return out, nil
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range in {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, in[i])
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
