package writebuffer

import "time"

// Config tunes the coalescing buffer and backpressure semaphore.
type Config struct {
	// MaxBufferSize triggers a flush once the pending set reaches this
	// many distinct entity ids.
	MaxBufferSize int
	// FlushInterval triggers a flush this long after the first write
	// buffered since the previous flush, regardless of buffer size.
	FlushInterval time.Duration
	// MaxConcurrent is the backpressure semaphore's ceiling.
	MaxConcurrent int64
	// MinConcurrent is the backpressure semaphore's floor; capacity
	// never shrinks below this even under sustained errors.
	MinConcurrent int64
	// ErrorThreshold is the error-rate fraction (0..1) above which
	// capacity is halved.
	ErrorThreshold float64
	// CooldownSuccesses is the number of consecutive successful flushes
	// required before capacity doubles back toward the ceiling.
	CooldownSuccesses int
	// WindowSize is how many flush outcomes are averaged before an
	// error-rate decision is made.
	WindowSize int
}

// DefaultConfig matches spec §4.4's defaults: 100ms base backoff, 5s cap,
// factor 2 (carried by xerrors.DefaultRetryConfig, used internally by
// the buffer), a moderate buffer size, and a one-second flush interval.
func DefaultConfig() Config {
	return Config{
		MaxBufferSize:     100,
		FlushInterval:     time.Second,
		MaxConcurrent:     32,
		MinConcurrent:     2,
		ErrorThreshold:    0.2,
		CooldownSuccesses: 10,
		WindowSize:        20,
	}
}
