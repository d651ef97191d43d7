package objstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vecgraph/vecgraph/internal/xerrors"
)

// defaultBatchConcurrency bounds how many concurrent Get/Delete calls a
// backend's BatchRead/BatchDelete helpers issue against the underlying
// transport. Cloud backends are latency-bound, not CPU-bound, so a
// modest fan-out (rather than one-at-a-time) is what turns N round
// trips into N/defaultBatchConcurrency round trips.
const defaultBatchConcurrency = 16

// batchRead runs get(path) over paths with bounded concurrency and
// collects successes into a map, silently omitting NotFound paths per
// the Store.BatchRead contract.
func batchRead(ctx context.Context, paths []string, get func(context.Context, string) (*Object, error)) (map[string]*Object, error) {
	sem := semaphore.NewWeighted(defaultBatchConcurrency)
	var mu sync.Mutex
	results := make(map[string]*Object, len(paths))
	var firstErr error

	var wg sync.WaitGroup
	for _, p := range paths {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()
			obj, err := get(ctx, p)
			if err != nil {
				if xerrors.IsNotFound(err) {
					return
				}
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			results[p] = obj
			mu.Unlock()
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// batchDelete runs del(path) over paths with bounded concurrency,
// honoring opts.ContinueOnError.
func batchDelete(ctx context.Context, paths []string, opts BatchDeleteOptions, del func(context.Context, string) error) error {
	sem := semaphore.NewWeighted(defaultBatchConcurrency)
	var mu sync.Mutex
	var errs []error

	var wg sync.WaitGroup
	for _, p := range paths {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()
			err := del(ctx, p)
			for attempt := 0; err != nil && attempt < opts.MaxRetries; attempt++ {
				err = del(ctx, p)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				mu.Unlock()
			}
		}()
		if len(errs) > 0 && !opts.ContinueOnError {
			wg.Wait()
			break
		}
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("batch delete: %d of %d paths failed: %w", len(errs), len(paths), errs[0])
}
