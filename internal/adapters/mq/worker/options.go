package worker

import (
	"time"

	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

// Option configures an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName names the worker in its log lines.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger replaces the "worker" logger.
func WithLogger(log logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if log != nil {
			w.logger = log
		}
	}
}

// WithJobTimeout bounds a single project recompute. Zero leaves jobs bounded
// only by the worker's context.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.jobTimeout = d
		}
	}
}

func withCounters(c *counters) Option {
	return func(w *InMemoryWorker) {
		w.counters = c
	}
}
