package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/export"
	jobqueue "github.com/Greggwolin/landscape-sub003/internal/adapters/mq/queue"
	"github.com/Greggwolin/landscape-sub003/internal/adapters/repository"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
	"github.com/Greggwolin/landscape-sub003/pkg/metrics"
)

// Recompute reasons attached to queued jobs.
const (
	ReasonConfigSaved    = "config_saved"
	ReasonCashFlowsSaved = "cash_flows_saved"
	ReasonRequested      = "requested"
)

// SaveConfig validates and upserts a project's tier configuration, then
// schedules a recompute.
func (s *Service) SaveConfig(ctx context.Context, cfg model.WaterfallConfig) (model.WaterfallConfig, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return model.WaterfallConfig{}, err
	}
	if err := waterfall.Validate(cfg.Tiers); err != nil {
		s.reject(ctx, cfg.ProjectID, err)
		return model.WaterfallConfig{}, err
	}
	if err := waterfall.ValidateGPContributionPct(cfg.GPContributionPct); err != nil {
		s.reject(ctx, cfg.ProjectID, err)
		return model.WaterfallConfig{}, err
	}
	cfg.Tiers = waterfall.SortTiers(cfg.Tiers)
	if err := store.SaveConfig(ctx, cfg); err != nil {
		return model.WaterfallConfig{}, err
	}
	s.scheduleRecompute(ctx, cfg.ProjectID, ReasonConfigSaved)
	return store.GetConfig(ctx, cfg.ProjectID)
}

// GetConfig returns a project's tier configuration.
func (s *Service) GetConfig(ctx context.Context, projectID string) (model.WaterfallConfig, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return model.WaterfallConfig{}, err
	}
	return store.GetConfig(ctx, projectID)
}

// SaveCashFlows validates and upserts a project's cash-flow summary, then
// schedules a recompute.
func (s *Service) SaveCashFlows(ctx context.Context, cf model.CashFlowSummary) (model.CashFlowSummary, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return model.CashFlowSummary{}, err
	}
	if err := waterfall.ValidateInputs(cf.Periods, cf.Contributions); err != nil {
		s.reject(ctx, cf.ProjectID, err)
		return model.CashFlowSummary{}, err
	}
	if err := store.SaveCashFlows(ctx, cf); err != nil {
		return model.CashFlowSummary{}, err
	}
	s.scheduleRecompute(ctx, cf.ProjectID, ReasonCashFlowsSaved)
	return store.GetCashFlows(ctx, cf.ProjectID)
}

// GetCashFlows returns a project's cash-flow summary.
func (s *Service) GetCashFlows(ctx context.Context, projectID string) (model.CashFlowSummary, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return model.CashFlowSummary{}, err
	}
	return store.GetCashFlows(ctx, projectID)
}

// RunProject runs a project from its stored inputs and saves the result.
// A project without cash flows runs on an empty series and carries a notice.
func (s *Service) RunProject(ctx context.Context, projectID string) (*model.WaterfallResult, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	in, err := projectInput(ctx, store, projectID)
	if err != nil {
		return nil, err
	}
	return s.runAndSave(ctx, store, in)
}

// projectInput assembles the run input from a project's stored config and
// cash flows.
func projectInput(ctx context.Context, store repository.Store, projectID string) (model.RunInput, error) {
	cfg, err := store.GetConfig(ctx, projectID)
	if err != nil {
		return model.RunInput{}, err
	}
	in := model.RunInput{
		ProjectID:         projectID,
		Tiers:             cfg.Tiers,
		GPContributionPct: cfg.GPContributionPct,
	}
	cf, err := store.GetCashFlows(ctx, projectID)
	switch {
	case err == nil:
		in.Periods = cf.Periods
		in.Contributions = cf.Contributions
		in.PeakEquity = cf.PeakEquity
	case errors.Is(err, ErrNotFound):
	default:
		return model.RunInput{}, err
	}
	return in, nil
}

func (s *Service) runAndSave(ctx context.Context, store repository.Store, in model.RunInput) (*model.WaterfallResult, error) {
	res, err := s.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := store.SaveRun(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Recompute implements the worker runner: rerun and store, discarding the result.
func (s *Service) Recompute(ctx context.Context, projectID string) error {
	_, err := s.RunProject(ctx, projectID)
	return err
}

// EnqueueRecompute queues a background rerun. A full queue yields ErrBackpressure.
func (s *Service) EnqueueRecompute(ctx context.Context, projectID, reason string) (model.RecomputeJob, error) {
	s.mu.RLock()
	q, started := s.queue, s.started && !s.stopping
	s.mu.RUnlock()
	if !started {
		return model.RecomputeJob{}, ErrNotStarted
	}

	job := model.RecomputeJob{
		JobID:      uuid.NewString(),
		ProjectID:  projectID,
		Reason:     reason,
		EnqueuedAt: s.clock.Now().UTC(),
	}
	if err := q.Enqueue(ctx, job); err != nil {
		if errors.Is(err, jobqueue.ErrFull) {
			metrics.RecordRecomputeRejected()
			return model.RecomputeJob{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return model.RecomputeJob{}, err
	}
	return job, nil
}

// scheduleRecompute queues a rerun after a save. Failures are logged, not returned,
// since the save itself succeeded.
func (s *Service) scheduleRecompute(ctx context.Context, projectID, reason string) {
	if _, err := s.EnqueueRecompute(ctx, projectID, reason); err != nil {
		s.logger.Warn(ctx, "recompute not scheduled",
			logger.ProjectID(projectID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	}
}

// LatestResult returns the newest stored run when it was computed from the
// project's current config and cash flows. A missing or outdated run is
// recomputed and saved before returning.
func (s *Service) LatestResult(ctx context.Context, projectID string) (*model.WaterfallResult, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	in, err := projectInput(ctx, store, projectID)
	if err != nil {
		return nil, err
	}
	res, err := store.LatestRun(ctx, projectID)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.runAndSave(ctx, store, in)
	case err != nil:
		return nil, err
	}
	fp, err := waterfall.Fingerprint(in)
	if err != nil {
		return nil, err
	}
	if fp != res.Fingerprint {
		s.logger.Debug(ctx, "stored run is outdated", logger.ProjectID(projectID), logger.RunID(res.RunID))
		return s.runAndSave(ctx, store, in)
	}
	return res, nil
}

// Export writes the latest result of a project as an xlsx workbook using the
// project's saved distributions layout.
func (s *Service) Export(ctx context.Context, w io.Writer, projectID string, g types.Granularity) error {
	res, err := s.LatestResult(ctx, projectID)
	if err != nil {
		return err
	}
	l, err := s.storedLayout(ctx, projectID, export.DistributionsTable)
	if err != nil {
		return err
	}
	if g == "" {
		g = s.defaultGranularity
	}
	return export.WriteWorkbook(w, res, waterfall.ClassifyMode(res.TierDefinitions), l, g)
}

// LayoutView is a saved layout and the columns it resolves to.
type LayoutView struct {
	Layout  layout.Layout
	Columns []layout.Column
}

// SaveLayout validates l against the columns the project's mode offers and stores it.
func (s *Service) SaveLayout(ctx context.Context, projectID string, l layout.Layout) (LayoutView, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return LayoutView{}, err
	}
	available, err := s.columns(ctx, projectID, l.Table)
	if err != nil {
		return LayoutView{}, err
	}
	if err := layout.Validate(available, l); err != nil {
		return LayoutView{}, err
	}
	if err := store.SaveLayout(ctx, projectID, l); err != nil {
		return LayoutView{}, err
	}
	return LayoutView{Layout: l, Columns: layout.Resolve(available, l)}, nil
}

// GetLayout returns the saved layout of table, or the default when none was saved.
func (s *Service) GetLayout(ctx context.Context, projectID, table string) (LayoutView, error) {
	available, err := s.columns(ctx, projectID, table)
	if err != nil {
		return LayoutView{}, err
	}
	l, err := s.storedLayout(ctx, projectID, table)
	if err != nil {
		return LayoutView{}, err
	}
	return LayoutView{Layout: l, Columns: layout.Resolve(available, l)}, nil
}

func (s *Service) storedLayout(ctx context.Context, projectID, table string) (layout.Layout, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return layout.Layout{}, err
	}
	l, err := store.GetLayout(ctx, projectID, table)
	if errors.Is(err, ErrNotFound) {
		return layout.Layout{Table: table}, nil
	}
	return l, err
}

// columns lists what table can show for the project's configured tiers.
func (s *Service) columns(ctx context.Context, projectID, table string) ([]layout.Column, error) {
	if table != export.DistributionsTable {
		return nil, fmt.Errorf("%w: unknown table %q", layout.ErrInvalidLayout, table)
	}
	cfg, err := s.GetConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return export.DistributionColumns(waterfall.ClassifyMode(cfg.Tiers), cfg.Tiers), nil
}

// DeleteProject removes the project's stored data and cached results.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	store, err := s.storeOrErr()
	if err != nil {
		return err
	}
	if err := store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if n := s.cache.InvalidateProject(ctx, projectID); n > 0 {
		metrics.UpdateCacheSize(s.cache.Size())
	}
	s.logger.Info(ctx, "project deleted", logger.ProjectID(projectID))
	return nil
}
