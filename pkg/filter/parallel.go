package filter

import (
	"context"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// parallelFor runs fn(i) for i in [0,n) on at most threads goroutines.
// threads <= 0 means GOMAXPROCS. fn must only write to its own index.
func parallelFor(ctx context.Context, n, threads int, fn func(i int)) error {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	if threads > n {
		threads = n
	}
	if threads <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	chunk := (n + threads - 1) / threads
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

func dedupSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
