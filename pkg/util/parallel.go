package util

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunkSize keeps tiny inputs on a single goroutine
const minChunkSize = 256

// ParallelChunks splits [0, n) into contiguous chunks and runs fn on each chunk concurrently.
// fn must only touch indices within its own chunk. The first error cancels the context
// passed to the remaining chunks and is returned.
func ParallelChunks(ctx context.Context, n int, fn func(ctx context.Context, start, end int) error) error {
	if n <= 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	if chunk < minChunkSize {
		chunk = minChunkSize
	}

	if chunk >= n {
		return fn(ctx, 0, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		start := start
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, start, end)
		})
	}
	return g.Wait()
}
