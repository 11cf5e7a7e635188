package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/summary"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
	"github.com/Greggwolin/landscape-sub003/pkg/metrics"
)

// Run computes a waterfall for in. Identical inputs reuse the cached
// distributions under a fresh RunID and ComputedAt.
// Only configuration problems fail a run; missing data and IRR failures are
// reported as notices.
func (s *Service) Run(ctx context.Context, in model.RunInput) (*model.WaterfallResult, error) {
	start := s.clock.Now()

	if err := waterfall.ValidateGPContributionPct(in.GPContributionPct); err != nil {
		s.reject(ctx, in.ProjectID, err)
		return nil, err
	}
	fp, err := waterfall.Fingerprint(in)
	if err != nil {
		metrics.RecordRun("error")
		return nil, err
	}
	if cached, ok := s.cache.Get(ctx, fp); ok {
		s.cacheHit.Add(1)
		metrics.RecordCacheHit()
		metrics.RecordRun("cached")
		// A hit is still a new run: stores order runs by ComputedAt.
		res := *cached
		res.RunID = uuid.NewString()
		res.ComputedAt = s.clock.Now().UTC()
		return &res, nil
	}
	metrics.RecordCacheMiss()

	rows, ledger, err := waterfall.Allocate(in.Periods, in.Tiers, in.Contributions,
		waterfall.WithGPContributionPct(in.GPContributionPct),
		waterfall.WithPeakEquity(in.PeakEquity),
	)
	if err != nil {
		s.reject(ctx, in.ProjectID, err)
		return nil, err
	}
	sum := s.projector.Project(rows, ledger, in.Tiers, in.PeakEquity)

	res := &model.WaterfallResult{
		RunID:               uuid.NewString(),
		ProjectID:           in.ProjectID,
		Mode:                waterfall.ClassifyMode(in.Tiers).Kind(),
		Fingerprint:         fp,
		ComputedAt:          s.clock.Now().UTC(),
		ProjectSummary:      sum.Project,
		PartnerSummaries:    sum.Partners,
		TierSummaries:       sum.Tiers,
		PeriodDistributions: rows,
		TierDefinitions:     waterfall.SortTiers(in.Tiers),
		Notices:             append(ledger.Notices(), sum.Notices...),
	}
	s.observe(ctx, res, s.clock.Since(start))
	s.cache.Put(ctx, fp, res)
	metrics.UpdateCacheSize(s.cache.Size())
	return res, nil
}

func (s *Service) reject(ctx context.Context, projectID string, err error) {
	if !errors.Is(err, waterfall.ErrInvalidConfiguration) {
		metrics.RecordRun("error")
		return
	}
	s.rejected.Add(1)
	metrics.RecordRun("invalid")
	metrics.RecordConfigRejection()
	metrics.RecordErrorByComponent("engine", "configuration")
	s.logger.Debug(ctx, "waterfall configuration rejected",
		logger.ProjectID(projectID),
		logger.Error(err),
	)
}

func (s *Service) observe(ctx context.Context, res *model.WaterfallResult, took time.Duration) {
	s.runs.Add(1)
	metrics.RecordRun("ok")
	metrics.RecordRunDuration(float64(took.Microseconds()) / 1000)
	metrics.RecordPeriodsProcessed(len(res.PeriodDistributions))

	for _, n := range res.Notices {
		if n.Code == model.NoticeDataUnavailable {
			metrics.RecordDataUnavailable()
		}
	}
	for _, p := range res.PartnerSummaries {
		if p.IRRStatus == model.NoticeIRRNoConvergence {
			metrics.RecordIRRNoConvergence(string(p.PartnerType))
		}
	}
	if res.ProjectSummary.IRRStatus == model.NoticeIRRNoConvergence {
		metrics.RecordIRRNoConvergence("project")
	}

	s.logger.Debug(ctx, "waterfall computed",
		logger.RunID(res.RunID),
		logger.ProjectID(res.ProjectID),
		logger.String("mode", string(res.Mode)),
		logger.Int("periods", len(res.PeriodDistributions)),
		logger.Int("notices", len(res.Notices)),
		logger.Duration("took", took),
	)
}

// BatchItem is the outcome of one batch scenario.
type BatchItem struct {
	Index  int
	Result *model.WaterfallResult
	Err    error
}

// RunBatch runs every input with bounded concurrency. A failing scenario is
// reported in its item and does not stop the others.
func (s *Service) RunBatch(ctx context.Context, inputs []model.RunInput) ([]BatchItem, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	items := make([]BatchItem, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Run(gctx, inputs[i])
			items[i] = BatchItem{Index: i, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Napkin builds tiers from a napkin form and runs them on in's cash flows.
// in.Tiers and in.GPContributionPct are replaced by the form's values.
func (s *Service) Napkin(ctx context.Context, form waterfall.NapkinInput, in model.RunInput) ([]model.TierDefinition, *model.WaterfallResult, error) {
	tiers, err := waterfall.BuildNapkinTiers(form)
	if err != nil {
		s.reject(ctx, in.ProjectID, err)
		return nil, nil, err
	}
	in.Tiers = tiers
	in.GPContributionPct = form.GPContributionPct
	res, err := s.Run(ctx, in)
	if err != nil {
		return tiers, nil, err
	}
	return tiers, res, nil
}

// View returns res with its period table bucketed at g. The result itself is not modified.
func (s *Service) View(res *model.WaterfallResult, g types.Granularity) *model.WaterfallResult {
	if res == nil {
		return nil
	}
	if g == "" {
		g = s.defaultGranularity
	}
	if g == types.Monthly {
		return res
	}
	cp := *res
	cp.PeriodDistributions = summary.Rebucket(res.PeriodDistributions, g)
	return &cp
}
