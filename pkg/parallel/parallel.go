// Package parallel splits index ranges across a fixed number of goroutines.
// Every per-point phase of the engine runs through For, so worker counts are
// always an explicit value handed down from the caller.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// DefaultWorkers returns the worker count used when a caller passes 0.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// For executes fn over [0,n) split into contiguous chunks, one per worker.
// fn receives the chunk bounds and the worker number so callers can keep
// per-worker scratch state. A panic in any worker is recovered and returned
// as an error after all workers have finished.
func For(n, workers int, fn func(worker, start, end int)) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > n {
		workers = n
	}
	if workers == 1 {
		return run(fn, 0, 0, n)
	}

	chunk := (n + workers - 1) / workers
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		s := w * chunk
		if s >= n {
			break
		}
		e := min(s+chunk, n)
		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			errs[w] = run(fn, w, s, e)
		}(w, s, e)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Chunks returns the number of chunks For would use for n items.
func Chunks(n, workers int) int {
	if n <= 0 {
		return 0
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	return (n + chunk - 1) / chunk
}

func run(fn func(worker, start, end int), w, s, e int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(error); ok {
				err = re
				return
			}
			err = fmt.Errorf("parallel: worker %d panicked: %v", w, r)
		}
	}()
	fn(w, s, e)
	return nil
}
