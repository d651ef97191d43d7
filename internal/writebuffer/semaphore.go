package writebuffer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// AdaptiveSemaphore is the backpressure half of C4: a permit pool whose
// effective capacity shrinks under a sustained error rate and grows
// back toward a ceiling during a cooldown of consecutive successes.
type AdaptiveSemaphore struct {
	sem     *semaphore.Weighted
	ceiling int64
	floor   int64

	mu                 sync.Mutex
	current            int64
	reserved           int64
	errorThreshold     float64
	cooldownSuccesses  int
	consecutiveSuccess int
	windowErrors       int
	windowTotal        int
	windowSize         int
}

// NewAdaptiveSemaphore builds a semaphore starting at ceiling capacity.
// windowSize is the number of RecordResult calls averaged before an
// error-rate decision is made.
func NewAdaptiveSemaphore(ceiling, floor int64, errorThreshold float64, cooldownSuccesses, windowSize int) *AdaptiveSemaphore {
	if floor < 1 {
		floor = 1
	}
	if windowSize < 1 {
		windowSize = 1
	}
	return &AdaptiveSemaphore{
		sem:               semaphore.NewWeighted(ceiling),
		ceiling:           ceiling,
		floor:             floor,
		current:           ceiling,
		errorThreshold:    errorThreshold,
		cooldownSuccesses: cooldownSuccesses,
		windowSize:        windowSize,
	}
}

// Acquire blocks for one permit within the current effective capacity.
func (a *AdaptiveSemaphore) Acquire(ctx context.Context) error {
	return a.sem.Acquire(ctx, 1)
}

// Release returns a permit acquired via Acquire.
func (a *AdaptiveSemaphore) Release() {
	a.sem.Release(1)
}

// Capacity reports the current effective capacity.
func (a *AdaptiveSemaphore) Capacity() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// RecordResult feeds one outcome into the moving error-rate window and
// the success-streak cooldown counter, shrinking or growing capacity as
// the thresholds dictate. Call once per completed Acquire/Release pair.
func (a *AdaptiveSemaphore) RecordResult(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windowTotal++
	if success {
		a.consecutiveSuccess++
	} else {
		a.windowErrors++
		a.consecutiveSuccess = 0
	}

	if a.windowTotal >= a.windowSize {
		rate := float64(a.windowErrors) / float64(a.windowTotal)
		a.windowErrors, a.windowTotal = 0, 0
		if rate > a.errorThreshold {
			a.resizeLocked(half(a.current, a.floor))
		}
	}

	if a.consecutiveSuccess >= a.cooldownSuccesses {
		a.consecutiveSuccess = 0
		a.resizeLocked(double(a.current, a.ceiling))
	}
}

func half(current, floor int64) int64 {
	target := current / 2
	if target < floor {
		return floor
	}
	return target
}

func double(current, ceiling int64) int64 {
	target := current * 2
	if target > ceiling {
		return ceiling
	}
	return target
}

// resizeLocked moves from a.current to target by reserving or releasing
// permits on the underlying semaphore. Shrinking reserves permits in a
// detached goroutine rather than blocking the caller, since the permit
// being reserved may currently be held by an in-flight write.
func (a *AdaptiveSemaphore) resizeLocked(target int64) {
	if target == a.current {
		return
	}
	delta := a.current - target
	a.current = target

	if delta > 0 {
		a.reserved += delta
		go func(n int64) {
			_ = a.sem.Acquire(context.Background(), n)
		}(delta)
		return
	}

	grow := -delta
	if grow > a.reserved {
		grow = a.reserved
	}
	a.reserved -= grow
	a.sem.Release(grow)
}
