// Package parallel fans work out over CPU cores. Range-chunked helpers serve
// numeric kernels (forest trees, kernel rows); ForEach serves the grid search
// where each task can fail and the whole run must stop on cancellation.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Workers resolves an n_jobs value to a worker count: values below zero
// mean every CPU (-1 all, -2 all but one, ...), zero means one worker.
func Workers(nJobs int) int {
	switch {
	case nJobs > 0:
		return nJobs
	case nJobs < 0:
		n := runtime.NumCPU() + 1 + nJobs
		if n < 1 {
			n = 1
		}
		return n
	default:
		return 1
	}
}

// Parallelize divides items into one contiguous range per CPU core and runs
// fn on each range concurrently.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(runtime.NumCPU(), items, fn)
}

// ParallelizeN is Parallelize with an explicit worker count.
func ParallelizeN(workers, items int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers > items {
		workers = items
	}
	if workers <= 1 {
		fn(0, items)
		return
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn over the whole range in the calling
// goroutine when items does not exceed threshold, and as ParallelizeN
// otherwise.
func ParallelizeWithThreshold(workers, items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	ParallelizeN(workers, items, fn)
}

// ForEach calls fn(ctx, i) for i in [0, n) on at most workers goroutines.
// The first error cancels the context passed to the remaining calls and is
// returned.
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
