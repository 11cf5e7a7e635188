// Package summary projects a waterfall run into partner, tier and project totals
// and re-buckets the monthly table into coarser views.
package summary

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/irr"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

var hundred = decimal.NewFromInt(100)

// Summary is the aggregate view of a run.
type Summary struct {
	Project  model.ProjectSummary
	Partners []model.PartnerSummary
	Tiers    []model.TierSummary
	Notices  []model.Notice
}

// Projector aggregates runs. It holds no per-run state and is safe for concurrent use.
type Projector struct {
	solver *irr.Solver
	method types.IRRMethod
}

// Option configures a Projector.
type Option func(*Projector)

// WithSolver sets the IRR solver.
func WithSolver(s *irr.Solver) Option {
	return func(p *Projector) {
		if s != nil {
			p.solver = s
		}
	}
}

// WithIRRMethod selects periodic (monthly, annualized) or dated XIRR returns.
func WithIRRMethod(m types.IRRMethod) Option {
	return func(p *Projector) {
		if m == types.IRRPeriodic || m == types.IRRXIRR {
			p.method = m
		}
	}
}

// NewProjector returns a Projector using a default solver and periodic IRR.
func NewProjector(opts ...Option) *Projector {
	p := &Projector{
		solver: irr.NewSolver(),
		method: types.IRRPeriodic,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project aggregates rows and ledger totals. peakEquity is the supplied
// project peak and wins when it exceeds the peak implied by the flows.
func (p *Projector) Project(rows []model.PeriodDistribution, ledger *waterfall.Ledger, tiers []model.TierDefinition, peakEquity decimal.Decimal) Summary {
	sorted := waterfall.SortTiers(tiers)
	var out Summary

	dated := p.method == types.IRRXIRR && hasDates(rows)
	if p.method == types.IRRXIRR && !dated && len(rows) > 0 {
		out.Notices = append(out.Notices, model.Notice{
			Code:    model.NoticeDataUnavailable,
			Message: "period dates missing; periodic IRR used instead of XIRR",
		})
	}

	lp := ledger.Partner(types.PartnerLP)
	gp := ledger.Partner(types.PartnerGP)
	for _, pt := range []types.PartnerType{types.PartnerLP, types.PartnerGP} {
		acc := lp
		if pt == types.PartnerGP {
			acc = gp
		}
		ps := model.PartnerSummary{
			PartnerType:      pt,
			TotalContributed: acc.Contributed,
			TotalDistributed: acc.Distributed,
			NetProfit:        acc.Distributed.Sub(acc.Contributed),
			EquityMultiple:   multiple(acc.Distributed, acc.Contributed),
			TierBreakdown:    make([]model.TierAmount, 0, len(sorted)),
		}
		for _, t := range sorted {
			ps.TierBreakdown = append(ps.TierBreakdown, model.TierAmount{TierNumber: t.TierNumber, Amount: acc.ByTier[t.TierNumber]})
		}
		if !acc.Contributed.IsZero() || !acc.Distributed.IsZero() {
			ps.IRR, ps.IRRStatus = p.rate(acc.Flows, rows, dated, &out.Notices, string(pt))
		}
		out.Partners = append(out.Partners, ps)
	}

	combined := make([]decimal.Decimal, len(lp.Flows))
	for i := range combined {
		combined[i] = lp.Flows[i]
		if i < len(gp.Flows) {
			combined[i] = combined[i].Add(gp.Flows[i])
		}
	}

	contributed := lp.Contributed.Add(gp.Contributed)
	distributed := lp.Distributed.Add(gp.Distributed)
	proj := model.ProjectSummary{
		TotalContributed: contributed,
		TotalDistributed: distributed,
		NetProfit:        distributed.Sub(contributed),
		EquityMultiple:   multiple(distributed, contributed),
		PeakEquity:       decimal.Max(peakCapital(combined), peakEquity),
		HoldPeriodMonths: holdPeriod(rows),
	}
	for _, r := range rows {
		proj.Undistributed = proj.Undistributed.Add(r.Undistributed)
	}
	if !contributed.IsZero() || !distributed.IsZero() {
		proj.IRR, proj.IRRStatus = p.rate(combined, rows, dated, &out.Notices, "project")
	}
	out.Project = proj

	out.Tiers = tierSummaries(rows, sorted, distributed)
	return out
}

func (p *Projector) rate(flows []decimal.Decimal, rows []model.PeriodDistribution, dated bool, notices *[]model.Notice, who string) (*float64, string) {
	var (
		r   float64
		err error
	)
	if dated {
		df := make([]irr.DatedFlow, len(flows))
		for i, f := range flows {
			df[i] = irr.DatedFlow{Date: rows[i].Date, Amount: f.InexactFloat64()}
		}
		r, err = p.solver.XIRR(df)
	} else {
		fs := make([]float64, len(flows))
		for i, f := range flows {
			fs[i] = f.InexactFloat64()
		}
		r, err = p.solver.Annualized(fs, 12)
	}
	if err != nil {
		if errors.Is(err, irr.ErrNoConvergence) {
			*notices = append(*notices, model.Notice{
				Code:    model.NoticeIRRNoConvergence,
				Message: fmt.Sprintf("%s IRR unavailable: %v", who, err),
			})
		}
		return nil, model.NoticeIRRNoConvergence
	}
	return &r, "ok"
}

func multiple(distributed, contributed decimal.Decimal) decimal.Decimal {
	if contributed.IsZero() {
		return decimal.Zero
	}
	return distributed.Div(contributed)
}

// peakCapital is the largest cumulative net capital outstanding.
func peakCapital(flows []decimal.Decimal) decimal.Decimal {
	var running, peak decimal.Decimal
	for _, f := range flows {
		running = running.Sub(f)
		if running.GreaterThan(peak) {
			peak = running
		}
	}
	return peak
}

// holdPeriod counts months from the first contribution to the last distribution.
func holdPeriod(rows []model.PeriodDistribution) int {
	first, last := -1, -1
	for i, r := range rows {
		if first < 0 && (r.LPContribution.IsPositive() || r.GPContribution.IsPositive()) {
			first = i
		}
		if r.LPDist.IsPositive() || r.GPDist.IsPositive() {
			last = i
		}
	}
	if first < 0 || last < first {
		return 0
	}
	return last - first
}

func tierSummaries(rows []model.PeriodDistribution, tiers []model.TierDefinition, grand decimal.Decimal) []model.TierSummary {
	out := make([]model.TierSummary, len(tiers))
	for i, t := range tiers {
		out[i] = model.TierSummary{TierNumber: t.TierNumber, TierName: t.TierName}
	}
	for _, r := range rows {
		for i, td := range r.Tiers {
			if i >= len(out) {
				break
			}
			out[i].LPTotal = out[i].LPTotal.Add(td.LPShare)
			out[i].GPTotal = out[i].GPTotal.Add(td.GPShare)
		}
	}
	for i := range out {
		out[i].Total = out[i].LPTotal.Add(out[i].GPTotal)
		if grand.IsPositive() {
			out[i].PctOfTotal = out[i].Total.Mul(hundred).DivRound(grand, 4)
		}
	}
	return out
}

func hasDates(rows []model.PeriodDistribution) bool {
	if len(rows) == 0 {
		return false
	}
	for _, r := range rows {
		if r.Date.IsZero() {
			return false
		}
	}
	return true
}
