package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

// project holds everything stored for one project id.
type project struct {
	config  *model.WaterfallConfig
	cash    *model.CashFlowSummary
	run     *model.WaterfallResult
	layouts map[string]layout.Layout
}

func (p *project) empty() bool {
	return p.config == nil && p.cash == nil && p.run == nil && len(p.layouts) == 0
}

// MemoryStore is the default in-process Store. Values are copied on the way
// in and out so callers never share slices with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*project
	clock    clockwork.Clock

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		projects:              make(map[string]*project),
		clock:                 clockwork.NewRealClock(),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// startMetricsUpdater publishes the project gauge until ctx ends or Close is called.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	ticker := s.clock.NewTicker(s.metricsUpdateInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.Chan():
				metrics.UpdateProjectsTotal(s.Count(ctx))
			}
		}
	}()
}

// Close stops the metrics updater. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) write(projectID string, fn func(p *project)) error {
	if projectID == "" {
		return ErrMissingProject
	}
	start := s.clock.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(s.clock.Since(start).Microseconds()) / 1000)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		p = &project{layouts: make(map[string]layout.Layout)}
		s.projects[projectID] = p
	}
	fn(p)
	return nil
}

func (s *MemoryStore) read(projectID string, fn func(p *project) bool) error {
	start := s.clock.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(s.clock.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok || !fn(p) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	return nil
}

// SaveConfig implements Store.
func (s *MemoryStore) SaveConfig(ctx context.Context, cfg model.WaterfallConfig) error {
	cfg = cloneConfig(cfg)
	cfg.UpdatedAt = s.clock.Now().UTC()
	return s.write(cfg.ProjectID, func(p *project) { p.config = &cfg })
}

// GetConfig implements Store.
func (s *MemoryStore) GetConfig(ctx context.Context, projectID string) (model.WaterfallConfig, error) {
	var out model.WaterfallConfig
	err := s.read(projectID, func(p *project) bool {
		if p.config == nil {
			return false
		}
		out = cloneConfig(*p.config)
		return true
	})
	return out, err
}

// SaveCashFlows implements Store.
func (s *MemoryStore) SaveCashFlows(ctx context.Context, cf model.CashFlowSummary) error {
	cf = cloneCashFlows(cf)
	cf.UpdatedAt = s.clock.Now().UTC()
	return s.write(cf.ProjectID, func(p *project) { p.cash = &cf })
}

// GetCashFlows implements Store.
func (s *MemoryStore) GetCashFlows(ctx context.Context, projectID string) (model.CashFlowSummary, error) {
	var out model.CashFlowSummary
	err := s.read(projectID, func(p *project) bool {
		if p.cash == nil {
			return false
		}
		out = cloneCashFlows(*p.cash)
		return true
	})
	return out, err
}

// SaveRun implements Store. Results are immutable once computed, so only the
// top-level slices are copied.
func (s *MemoryStore) SaveRun(ctx context.Context, res *model.WaterfallResult) error {
	if res == nil {
		return ErrMissingProject
	}
	cp := cloneResult(res)
	return s.write(res.ProjectID, func(p *project) { p.run = cp })
}

// LatestRun implements Store.
func (s *MemoryStore) LatestRun(ctx context.Context, projectID string) (*model.WaterfallResult, error) {
	var out *model.WaterfallResult
	err := s.read(projectID, func(p *project) bool {
		if p.run == nil {
			return false
		}
		out = cloneResult(p.run)
		return true
	})
	return out, err
}

// SaveLayout implements Store.
func (s *MemoryStore) SaveLayout(ctx context.Context, projectID string, l layout.Layout) error {
	if l.Table == "" {
		return ErrMissingTable
	}
	l = cloneLayout(l)
	return s.write(projectID, func(p *project) { p.layouts[l.Table] = l })
}

// GetLayout implements Store.
func (s *MemoryStore) GetLayout(ctx context.Context, projectID, table string) (layout.Layout, error) {
	var out layout.Layout
	err := s.read(projectID, func(p *project) bool {
		l, ok := p.layouts[table]
		if ok {
			out = cloneLayout(l)
		}
		return ok
	})
	return out, err
}

// DeleteProject implements Store.
func (s *MemoryStore) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	p, ok := s.projects[projectID]
	if ok {
		delete(s.projects, projectID)
	}
	s.mu.Unlock()
	if !ok || p.empty() {
		return ErrNotFound
	}
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.projects {
		if !p.empty() {
			n++
		}
	}
	return n
}

func cloneConfig(c model.WaterfallConfig) model.WaterfallConfig {
	c.Tiers = slices.Clone(c.Tiers)
	for i := range c.Tiers {
		if r := c.Tiers[i].HurdleRate; r != nil {
			v := *r
			c.Tiers[i].HurdleRate = &v
		}
	}
	c.Partners = slices.Clone(c.Partners)
	return c
}

func cloneCashFlows(c model.CashFlowSummary) model.CashFlowSummary {
	c.Periods = slices.Clone(c.Periods)
	c.Contributions = slices.Clone(c.Contributions)
	return c
}

func cloneResult(r *model.WaterfallResult) *model.WaterfallResult {
	cp := *r
	cp.PartnerSummaries = slices.Clone(r.PartnerSummaries)
	cp.TierSummaries = slices.Clone(r.TierSummaries)
	cp.PeriodDistributions = slices.Clone(r.PeriodDistributions)
	cp.TierDefinitions = slices.Clone(r.TierDefinitions)
	cp.Notices = slices.Clone(r.Notices)
	return &cp
}

func cloneLayout(l layout.Layout) layout.Layout {
	l.Columns = slices.Clone(l.Columns)
	for i := range l.Columns {
		if v := l.Columns[i].Visible; v != nil {
			b := *v
			l.Columns[i].Visible = &b
		}
		if o := l.Columns[i].Order; o != nil {
			n := *o
			l.Columns[i].Order = &n
		}
	}
	return l
}
