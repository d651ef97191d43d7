package writebuffer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveSemaphore_StartsAtCeiling(t *testing.T) {
	s := NewAdaptiveSemaphore(8, 1, 0.5, 3, 4)
	assert.Equal(t, int64(8), s.Capacity())
}

func TestAdaptiveSemaphore_ShrinksAfterSustainedErrors(t *testing.T) {
	// Given a semaphore with a small window and low error threshold
	s := NewAdaptiveSemaphore(8, 1, 0.1, 100, 4)

	// When most results in a window are failures
	s.RecordResult(false)
	s.RecordResult(false)
	s.RecordResult(false)
	s.RecordResult(true)

	// Then capacity halves
	assert.Equal(t, int64(4), s.Capacity())
}

func TestAdaptiveSemaphore_GrowsAfterCooldownSuccesses(t *testing.T) {
	// Given a semaphore already shrunk to half capacity
	s := NewAdaptiveSemaphore(8, 1, 0.1, 3, 4)
	s.RecordResult(false)
	s.RecordResult(false)
	s.RecordResult(false)
	s.RecordResult(false)
	require.Equal(t, int64(4), s.Capacity())

	// When three consecutive successes follow
	s.RecordResult(true)
	s.RecordResult(true)
	s.RecordResult(true)

	// Then capacity doubles back up
	assert.Equal(t, int64(8), s.Capacity())
}

func TestAdaptiveSemaphore_NeverShrinksBelowFloor(t *testing.T) {
	// Given a semaphore with floor 2 starting at ceiling 4
	s := NewAdaptiveSemaphore(4, 2, 0.1, 1000, 2)

	// When repeatedly recording failures
	for i := 0; i < 10; i++ {
		s.RecordResult(false)
	}

	// Then capacity never drops below the floor
	assert.GreaterOrEqual(t, s.Capacity(), int64(2))
}

func TestAdaptiveSemaphore_AcquireReleaseRoundTrips(t *testing.T) {
	s := NewAdaptiveSemaphore(2, 1, 0.5, 5, 5)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))
	s.Release()
	s.Release()
}
