// Package service provides the waterfall business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	jobqueue "github.com/Greggwolin/landscape-sub003/internal/adapters/mq/queue"
	workerpool "github.com/Greggwolin/landscape-sub003/internal/adapters/mq/worker"
	"github.com/Greggwolin/landscape-sub003/internal/adapters/repository"
	"github.com/Greggwolin/landscape-sub003/internal/domain/irr"
	"github.com/Greggwolin/landscape-sub003/internal/domain/runcache"
	"github.com/Greggwolin/landscape-sub003/internal/domain/summary"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
	"github.com/Greggwolin/landscape-sub003/pkg/metrics"
)

// Service runs waterfalls and manages per-project inputs and results.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	cache     runcache.Cache
	queue     jobqueue.Queue
	pool      *workerpool.Pool
	projector *summary.Projector
	solver    *irr.Solver
	clock     clockwork.Clock

	// Configuration
	workerCount        int
	queueSize          int
	recomputeTimeout   time.Duration
	cacheSize          int
	batchConcurrency   int
	irrMethod          types.IRRMethod
	defaultGranularity types.Granularity

	// State
	started  bool
	stopping bool
	runs     atomic.Int64
	cacheHit atomic.Int64
	rejected atomic.Int64

	logger logger.Logger
}

// New constructs a Service. Ad-hoc runs work immediately; project operations
// need Start.
func New(opts ...Option) *Service {
	s := &Service{
		clock:              clockwork.NewRealClock(),
		workerCount:        runtime.NumCPU(),
		queueSize:          1024,
		cacheSize:          256,
		batchConcurrency:   runtime.NumCPU(),
		irrMethod:          types.IRRPeriodic,
		defaultGranularity: types.Monthly,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.solver == nil {
		s.solver = irr.NewSolver()
	}
	s.projector = summary.NewProjector(summary.WithSolver(s.solver), summary.WithIRRMethod(s.irrMethod))
	s.cache = runcache.New(runcache.WithMaxSize(s.cacheSize))
	return s
}

// Start initializes the store, the recompute queue and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting waterfall service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx, repository.WithClock(s.clock))
		s.ownsStore = true
		s.logger.Info(ctx, "using memory store")
	}
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize), jobqueue.WithClock(s.clock))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s, workerpool.WithJobTimeout(s.recomputeTimeout))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "waterfall service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("cacheSize", s.cacheSize),
		logger.String("irrMethod", string(s.irrMethod)),
	)
	return nil
}

// Stop drains the recompute queue and closes the store. Workers keep the
// store until the queue is drained, so the lock is released while waiting.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	pool := s.pool
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping waterfall service...")
	if pool != nil {
		if err := pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "store close failed", logger.Error(err))
		}
		if s.ownsStore {
			s.store = nil
			s.ownsStore = false
		}
	}
	s.started = false
	s.stopping = false
	s.logger.Info(ctx, "waterfall service stopped")
}

// storeOrErr returns the store once the service is started.
func (s *Service) storeOrErr() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.store == nil {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// DefaultGranularity is the table granularity used when a request names none.
func (s *Service) DefaultGranularity() types.Granularity {
	return s.defaultGranularity
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"cacheSize":        s.cacheSize,
		"batchConcurrency": s.batchConcurrency,
		"irrMethod":        string(s.irrMethod),
		"runs":             s.runs.Load(),
		"cacheHits":        s.cacheHit.Load(),
		"cachedResults":    s.cache.Size(),
		"rejectedConfigs":  s.rejected.Load(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		projects := s.store.Count(ctx)
		stats["queueLength"] = queueLen
		stats["totalProjects"] = projects
		stats["workers"] = s.pool.Stats()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateProjectsTotal(projects)
		metrics.UpdateWorkerCount(s.workerCount)
		metrics.UpdateCacheSize(s.cache.Size())
	}
	return stats
}
