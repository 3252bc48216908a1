// sim/workers.go
package sim

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minCellsPerWorker keeps tiny lattices on a single goroutine.
const minCellsPerWorker = 64

// parallelRange splits [0, n) into contiguous chunks and runs fn on each
// chunk concurrently, returning after every chunk finished (the join
// barrier). Chunks are disjoint, so fn may write to its own indices freely.
// workers <= 0 uses GOMAXPROCS.
func parallelRange(n, workers int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, max(1, n/minCellsPerWorker))
	if workers == 1 {
		return fn(0, n)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error { return fn(lo, hi) })
	}
	return g.Wait()
}
