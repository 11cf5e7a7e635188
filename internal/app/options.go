package service

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/repository"
	"github.com/Greggwolin/landscape-sub003/internal/domain/irr"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The default is a memory store created on Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock sets the clock used for run timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRecomputeTimeout bounds each background project recompute. Zero
// disables the bound.
func WithRecomputeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.recomputeTimeout = d
		}
	}
}

// WithCacheSize sets how many results the fingerprint cache keeps.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
	}
}

// WithBatchConcurrency bounds how many batch scenarios run at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// WithIRRMethod selects periodic or dated IRR.
func WithIRRMethod(m types.IRRMethod) Option {
	return func(s *Service) {
		if m != "" {
			s.irrMethod = m
		}
	}
}

// WithIRRSolver sets the solver used for returns.
func WithIRRSolver(solver *irr.Solver) Option {
	return func(s *Service) {
		if solver != nil {
			s.solver = solver
		}
	}
}

// WithDefaultGranularity sets the table granularity used when a request names none.
func WithDefaultGranularity(g types.Granularity) Option {
	return func(s *Service) {
		if g != "" {
			s.defaultGranularity = g
		}
	}
}
