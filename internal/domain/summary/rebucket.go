package summary

import (
	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// Rebucket aggregates monthly rows into quarterly or annual rows.
// Flow fields are summed; balance fields take the bucket's last value.
// Rows are bucketed by calendar date, or by period index when undated.
// PeriodID of an output row is the bucket ordinal.
func Rebucket(rows []model.PeriodDistribution, g types.Granularity) []model.PeriodDistribution {
	if g != types.Quarterly && g != types.Annual {
		out := make([]model.PeriodDistribution, len(rows))
		copy(out, rows)
		return out
	}

	dated := hasDates(rows)
	key := func(r model.PeriodDistribution) int {
		if dated {
			if g == types.Annual {
				return r.Date.Year()
			}
			return r.Date.Year()*4 + (int(r.Date.Month())-1)/3
		}
		if g == types.Annual {
			return r.PeriodID / 12
		}
		return r.PeriodID / 3
	}

	var out []model.PeriodDistribution
	var cur *model.PeriodDistribution
	curKey := 0
	for _, r := range rows {
		k := key(r)
		if cur == nil || k != curKey {
			out = append(out, model.PeriodDistribution{
				PeriodID: len(out),
				Tiers:    make([]model.TierDistribution, len(r.Tiers)),
			})
			cur = &out[len(out)-1]
			curKey = k
			for i, td := range r.Tiers {
				cur.Tiers[i].TierNumber = td.TierNumber
			}
		}
		accumulate(cur, r)
	}
	return out
}

func accumulate(b *model.PeriodDistribution, r model.PeriodDistribution) {
	b.CashFlow = b.CashFlow.Add(r.CashFlow)
	b.LPContribution = b.LPContribution.Add(r.LPContribution)
	b.GPContribution = b.GPContribution.Add(r.GPContribution)
	b.LPDist = b.LPDist.Add(r.LPDist)
	b.GPDist = b.GPDist.Add(r.GPDist)
	b.Undistributed = b.Undistributed.Add(r.Undistributed)

	b.Date = r.Date
	b.CumulativeCashFlow = r.CumulativeCashFlow
	b.AccruedPref = r.AccruedPref
	b.AccruedHurdle = r.AccruedHurdle

	for i, td := range r.Tiers {
		if i >= len(b.Tiers) {
			b.Tiers = append(b.Tiers, model.TierDistribution{TierNumber: td.TierNumber})
		}
		b.Tiers[i].LPShare = b.Tiers[i].LPShare.Add(td.LPShare)
		b.Tiers[i].GPShare = b.Tiers[i].GPShare.Add(td.GPShare)
		b.Tiers[i].Outstanding = td.Outstanding
	}
}

// Totals sums the flow fields of rows.
func Totals(rows []model.PeriodDistribution) (cashFlow, lpDist, gpDist decimal.Decimal) {
	for _, r := range rows {
		cashFlow = cashFlow.Add(r.CashFlow)
		lpDist = lpDist.Add(r.LPDist)
		gpDist = gpDist.Add(r.GPDist)
	}
	return cashFlow, lpDist, gpDist
}
