package queue

import "github.com/jonboulle/clockwork"

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the number of pending recompute jobs. Values below one
// keep the default.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithClock sets the clock used to stamp jobs and measure their wait.
func WithClock(clock clockwork.Clock) Option {
	return func(q *InMemoryQueue) {
		if clock != nil {
			q.clock = clock
		}
	}
}
