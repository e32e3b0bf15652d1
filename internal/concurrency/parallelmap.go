// Package concurrency implements the Concurrency Primitive every pipeline
// stage fans work out through: a bounded-concurrency mapper with
// per-item error isolation and ordered results. Grounded on the bounded
// worker-pool idiom in the teacher's internal/jobs/worker.go (a
// channel-based semaphore gating concurrent in-flight provider calls)
// and on kadirpekel-hector's workflowagent/parallel.go, which fans work
// out with golang.org/x/sync/errgroup; this package combines the two:
// errgroup for goroutine lifecycle and golang.org/x/sync/semaphore for
// the concurrency bound.
package concurrency

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Result is one item's outcome: either Value is set, or Err is, never both.
type Result[O any] struct {
	Index int
	Value O
	Err   error
}

// Options configures a ParallelMap run.
type Options struct {
	// Concurrency bounds the number of in-flight fn calls. Defaults to 1.
	Concurrency int

	// OnProgress, if set, fires exactly once per item after it finishes,
	// in completion order - not input order.
	OnProgress func(completed, total int)

	// StopOnError, false by default (matching the spec's
	// continueOnError=true default), records a per-item error and keeps
	// going. Set true to stop starting new items after the first error;
	// items already in flight still finish.
	StopOnError bool
}

// ParallelMap applies fn to every item with at most opts.Concurrency
// calls in flight, returning one Result per item in input order
// regardless of completion order.
func ParallelMap[I, O any](ctx context.Context, items []I, fn func(ctx context.Context, item I, index int) (O, error), opts Options) []Result[O] {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]Result[O], len(items))
	total := len(items)
	var completed int64
	var progressMu sync.Mutex
	var stopped atomic.Bool

	sem := semaphore.NewWeighted(int64(concurrency))
	group, groupCtx := errgroup.WithContext(ctx)

	for i, item := range items {
		i, item := i, item

		if opts.StopOnError && stopped.Load() {
			results[i] = Result[O]{Index: i, Err: context.Canceled}
			continue
		}

		if err := sem.Acquire(groupCtx, 1); err != nil {
			results[i] = Result[O]{Index: i, Err: err}
			continue
		}

		group.Go(func() error {
			defer sem.Release(1)

			value, err := fn(groupCtx, item, i)
			results[i] = Result[O]{Index: i, Value: value, Err: err}

			if err != nil && opts.StopOnError {
				stopped.Store(true)
			}

			done := atomic.AddInt64(&completed, 1)
			if opts.OnProgress != nil {
				progressMu.Lock()
				opts.OnProgress(int(done), total)
				progressMu.Unlock()
			}

			if err != nil && opts.StopOnError {
				return err
			}
			return nil
		})
	}

	_ = group.Wait()
	return results
}

// ParallelBatch chunks items into groups of batchSize, then applies
// ParallelMap across the chunks, for calls that operate on a whole batch.
// The S2 filter stage (§4.7) builds its batches of 20 itself and calls
// ParallelMap directly.
func ParallelBatch[I, O any](ctx context.Context, items []I, batchSize int, fn func(ctx context.Context, batch []I, index int) (O, error), opts Options) []Result[O] {
	if batchSize <= 0 {
		batchSize = len(items)
		if batchSize == 0 {
			batchSize = 1
		}
	}

	var batches [][]I
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}

	return ParallelMap(ctx, batches, fn, opts)
}
