package app

import "time"

// Default retry delays: the n-th consecutive failure waits n*step, capped at max.
const (
	DefaultBackoffStep = 2 * time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// backoff computes linearly growing, capped retry delays from a
// consecutive-failure count. It is owned by a single goroutine.
type backoff struct {
	step     time.Duration
	max      time.Duration
	failures int
}

func newBackoff(step, max time.Duration) *backoff {
	if step <= 0 {
		step = DefaultBackoffStep
	}
	if max < step {
		max = step
	}
	return &backoff{step: step, max: max}
}

// Next records one more consecutive failure and returns the delay to wait.
func (b *backoff) Next() time.Duration {
	b.failures++
	// Past the cap the product could overflow; stop multiplying.
	if b.failures > int(b.max/b.step) {
		return b.max
	}
	return time.Duration(b.failures) * b.step
}

// Reset clears the consecutive-failure count after a success.
func (b *backoff) Reset() {
	b.failures = 0
}

// Failures returns the current consecutive-failure count.
func (b *backoff) Failures() int {
	return b.failures
}
