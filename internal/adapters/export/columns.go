// Package export renders waterfall results as spreadsheets.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

// DistributionsTable is the layout key of the period distribution table.
const DistributionsTable = "waterfall_distributions"

const dateLayout = "2006-01-02"

// DistributionColumns lists the columns of the distribution table for a mode.
// Accrued pref only applies to IRR hurdles and the hurdle balance column is
// labelled by what it measures.
func DistributionColumns(mode waterfall.Mode, tiers []model.TierDefinition) []layout.Column {
	cols := []layout.Column{
		{Key: "period", Title: "Period", Width: 70, Required: true},
		{Key: "date", Title: "Date", Width: 100},
		{Key: "cashFlow", Title: "Cash Flow", Width: 130},
		{Key: "cumulativeCashFlow", Title: "Cumulative Cash Flow", Width: 150},
		{Key: "lpContribution", Title: "LP Contribution", Width: 130},
		{Key: "gpContribution", Title: "GP Contribution", Width: 130},
	}
	switch mode.(type) {
	case waterfall.EmWaterfall:
		cols = append(cols, layout.Column{Key: "accruedHurdle", Title: "Multiple Shortfall", Width: 140})
	case waterfall.IrrWaterfall, waterfall.HybridWaterfall:
		cols = append(cols,
			layout.Column{Key: "accruedPref", Title: "Accrued Pref", Width: 130},
			layout.Column{Key: "accruedHurdle", Title: "Hurdle Balance", Width: 130},
		)
	}
	for _, t := range waterfall.SortTiers(tiers) {
		name := t.TierName
		if name == "" {
			name = fmt.Sprintf("Tier %d", t.TierNumber)
		}
		cols = append(cols,
			layout.Column{Key: fmt.Sprintf("tier%dLp", t.TierNumber), Title: name + " LP", Width: 120},
			layout.Column{Key: fmt.Sprintf("tier%dGp", t.TierNumber), Title: name + " GP", Width: 120},
		)
	}
	cols = append(cols,
		layout.Column{Key: "lpDist", Title: "LP Distribution", Width: 130},
		layout.Column{Key: "gpDist", Title: "GP Distribution", Width: 130},
		layout.Column{Key: "undistributed", Title: "Undistributed", Width: 120},
	)
	return cols
}

// cellValue returns the numeric value of key in r, or text for non-numeric columns.
func cellValue(r model.PeriodDistribution, key string) (decimal.Decimal, string, bool) {
	switch key {
	case "period":
		return decimal.NewFromInt(int64(r.PeriodID)), "", true
	case "date":
		if r.Date.IsZero() {
			return decimal.Zero, "", false
		}
		return decimal.Zero, r.Date.Format(dateLayout), false
	case "cashFlow":
		return r.CashFlow, "", true
	case "cumulativeCashFlow":
		return r.CumulativeCashFlow, "", true
	case "lpContribution":
		return r.LPContribution, "", true
	case "gpContribution":
		return r.GPContribution, "", true
	case "accruedPref":
		return r.AccruedPref, "", true
	case "accruedHurdle":
		return r.AccruedHurdle, "", true
	case "lpDist":
		return r.LPDist, "", true
	case "gpDist":
		return r.GPDist, "", true
	case "undistributed":
		return r.Undistributed, "", true
	}
	if n, side, ok := tierKey(key); ok {
		for _, td := range r.Tiers {
			if td.TierNumber != n {
				continue
			}
			if side == "Lp" {
				return td.LPShare, "", true
			}
			return td.GPShare, "", true
		}
		return decimal.Zero, "", true
	}
	return decimal.Zero, "", false
}

func tierKey(key string) (int, string, bool) {
	if !strings.HasPrefix(key, "tier") || len(key) < 7 {
		return 0, "", false
	}
	side := key[len(key)-2:]
	if side != "Lp" && side != "Gp" {
		return 0, "", false
	}
	n, err := strconv.Atoi(key[4 : len(key)-2])
	if err != nil {
		return 0, "", false
	}
	return n, side, true
}
