package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

// Property names reported in violations.
const (
	PropertySplits          = "splits_sum_to_100"
	PropertyOverDistributed = "no_over_distribution"
	PropertyRowTotals       = "row_totals_match_tiers"
	PropertyMonotonic       = "monotonic_cumulative_distributions"
	PropertyNegativePeriod  = "negative_period_is_contribution"
	PropertyEquityMultiple  = "equity_multiple_ratio"
	PropertyIdempotent      = "idempotent_rerun"
)

// multipleTolerance bounds |EM - distributed/contributed|.
const multipleTolerance = 1e-9

// Violation is one failed property.
type Violation struct {
	Property string `json:"property"`
	Period   int    `json:"period"` // -1 when not tied to a period
	Detail   string `json:"detail"`
}

func (v Violation) String() string {
	if v.Period < 0 {
		return fmt.Sprintf("%s: %s", v.Property, v.Detail)
	}
	return fmt.Sprintf("%s (period %d): %s", v.Property, v.Period, v.Detail)
}

// Report collects the violations found for one scenario.
type Report struct {
	Scenario   string      `json:"scenario"`
	Checked    int         `json:"checked"`
	Violations []Violation `json:"violations"`
}

// OK reports whether every property held.
func (r Report) OK() bool { return len(r.Violations) == 0 }

func (r *Report) fail(property string, period int, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{Property: property, Period: period, Detail: fmt.Sprintf(format, args...)})
}

// Verify checks res, computed from in, against the waterfall invariants. The
// idempotence check reruns the allocation and compares encoded rows byte for
// byte with the result's own rows.
func Verify(name string, in model.RunInput, res *model.WaterfallResult) Report {
	r := Report{Scenario: name, Violations: []Violation{}}
	if res == nil {
		r.fail(PropertyIdempotent, -1, "no result")
		return r
	}
	r.checkSplits(res.TierDefinitions)
	r.checkRows(res.PeriodDistributions)
	r.checkMultiples(res)
	r.checkIdempotent(in, res.PeriodDistributions)
	r.Checked = 6
	return r
}

func (r *Report) checkSplits(tiers []model.TierDefinition) {
	for _, t := range tiers {
		if sum := t.LPSplitPct.Add(t.GPSplitPct); !sum.Equal(decimal.NewFromInt(100)) {
			r.fail(PropertySplits, -1, "tier %d splits sum to %s", t.TierNumber, sum.String())
		}
	}
}

func (r *Report) checkRows(rows []model.PeriodDistribution) {
	var cumLP, cumGP decimal.Decimal
	for _, row := range rows {
		var paid, lp, gp decimal.Decimal
		for _, td := range row.Tiers {
			paid = paid.Add(td.Total())
			lp = lp.Add(td.LPShare)
			gp = gp.Add(td.GPShare)
		}
		limit := decimal.Max(row.CashFlow, decimal.Zero)
		if paid.GreaterThan(limit) {
			r.fail(PropertyOverDistributed, row.PeriodID, "tiers paid %s from cash flow %s", paid.String(), row.CashFlow.String())
		}
		if !lp.Equal(row.LPDist) || !gp.Equal(row.GPDist) {
			r.fail(PropertyRowTotals, row.PeriodID, "row lp/gp %s/%s, tiers %s/%s", row.LPDist.String(), row.GPDist.String(), lp.String(), gp.String())
		}
		nextLP, nextGP := cumLP.Add(row.LPDist), cumGP.Add(row.GPDist)
		if nextLP.LessThan(cumLP) || nextGP.LessThan(cumGP) {
			r.fail(PropertyMonotonic, row.PeriodID, "cumulative distributions fell to lp %s gp %s", nextLP.String(), nextGP.String())
		}
		cumLP, cumGP = nextLP, nextGP
		if row.CashFlow.IsNegative() {
			if !paid.IsZero() {
				r.fail(PropertyNegativePeriod, row.PeriodID, "negative period paid %s", paid.String())
			}
			if !row.LPContribution.Add(row.GPContribution).IsPositive() {
				r.fail(PropertyNegativePeriod, row.PeriodID, "negative cash flow %s booked no contribution", row.CashFlow.String())
			}
		}
	}
}

func (r *Report) checkMultiples(res *model.WaterfallResult) {
	check := func(who string, em, distributed, contributed decimal.Decimal) {
		want := 0.0
		if !contributed.IsZero() {
			want = distributed.InexactFloat64() / contributed.InexactFloat64()
		}
		if got := em.InexactFloat64(); math.Abs(got-want) > multipleTolerance*math.Max(1, math.Abs(want)) {
			r.fail(PropertyEquityMultiple, -1, "%s multiple %v, distributed/contributed %v", who, got, want)
		}
	}
	ps := res.ProjectSummary
	check("project", ps.EquityMultiple, ps.TotalDistributed, ps.TotalContributed)
	for _, p := range res.PartnerSummaries {
		check(string(p.PartnerType), p.EquityMultiple, p.TotalDistributed, p.TotalContributed)
	}
}

func (r *Report) checkIdempotent(in model.RunInput, rows []model.PeriodDistribution) {
	again, _, err := waterfall.Allocate(in.Periods, in.Tiers, in.Contributions,
		waterfall.WithGPContributionPct(in.GPContributionPct),
		waterfall.WithPeakEquity(in.PeakEquity),
	)
	if err != nil {
		r.fail(PropertyIdempotent, -1, "rerun failed: %v", err)
		return
	}
	want, err := json.Marshal(rows)
	if err != nil {
		r.fail(PropertyIdempotent, -1, "encode rows: %v", err)
		return
	}
	got, err := json.Marshal(again)
	if err != nil {
		r.fail(PropertyIdempotent, -1, "encode rerun: %v", err)
		return
	}
	if !bytes.Equal(want, got) {
		r.fail(PropertyIdempotent, -1, "rerun rows differ from result rows")
	}
}

// Partner returns the summary for pt, or a zero summary when absent.
func Partner(res *model.WaterfallResult, pt types.PartnerType) model.PartnerSummary {
	for _, p := range res.PartnerSummaries {
		if p.PartnerType == pt {
			return p
		}
	}
	return model.PartnerSummary{PartnerType: pt}
}
