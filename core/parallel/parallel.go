// Package parallel provides the fork-join primitives used by the pipeline's
// tuning and bootstrap stages: a bounded set of independent tasks dispatched
// across a fixed worker pool, with results collected by task index so
// completion order never changes downstream behavior.
package parallel

import (
	"runtime"
	"sync"

	"github.com/oceanbench/habmap/pkg/errors"
)

// DefaultWorkers returns the pool size used when the caller does not set one:
// available parallelism minus one to keep the host responsive, never below 1.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// RunOrdered executes n independent tasks on a pool of the given size and
// returns one error slot per task, index-aligned with the task order. A nil
// slot means the task succeeded. Panics inside a task are converted to
// errors rather than crashing the stage; the stage always runs to
// completion (no mid-stage cancellation).
func RunOrdered(n, workers int, task func(i int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > n {
		workers = n
	}

	indices := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				errs[i] = runOne(i, task)
			}
		}()
	}

	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return errs
}

func runOne(i int, task func(i int) error) (err error) {
	defer errors.Recover(&err, "parallel task")
	return task(i)
}

// Parallelize divides items into contiguous chunks, one per worker, and runs
// fn over each chunk's half-open range. Used for elementwise work over
// raster cells where per-item dispatch would be too fine-grained.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
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
