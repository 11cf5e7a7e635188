package repository

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithClock sets the clock used for UpdatedAt stamps and the metrics ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}
