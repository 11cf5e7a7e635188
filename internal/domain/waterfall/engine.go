// Package waterfall allocates periodic project cash flow across ordered
// distribution tiers between the GP and LP classes.
//
// A run is a deterministic fold over the period list. Each period books its
// contributions, then walks the tiers in order: a hurdle tier takes cash until
// the LP need it measures is met, and the residual tier takes whatever is
// left. Preferred return for the month accrues on the closing balances and is
// owed from the next period on. LP payments count toward every hurdle so a
// tier satisfied earlier is never paid twice.
package waterfall

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

type allocator struct {
	gpContributionPct decimal.Decimal
	peakEquity        decimal.Decimal
}

// Allocate runs the waterfall over periods. Inputs are copied and never mutated.
// Malformed tiers, periods or contributions yield a *ConfigurationError.
func Allocate(periods []model.PeriodCashFlow, tiers []model.TierDefinition, contributions []model.PartnerContribution, opts ...Option) ([]model.PeriodDistribution, *Ledger, error) {
	a := &allocator{}
	for _, opt := range opts {
		opt(a)
	}

	if err := Validate(tiers); err != nil {
		return nil, nil, err
	}
	sortedTiers := SortTiers(tiers)

	cerr := &ConfigurationError{}
	sortedPeriods := validatePeriods(periods, cerr)
	validateContributions(contributions, len(sortedPeriods), cerr)
	if err := cerr.orNil(); err != nil {
		return nil, nil, err
	}

	ledger := newLedger(sortedTiers)
	if len(sortedPeriods) == 0 {
		ledger.notice(&DataUnavailableError{Input: "periods", Detail: "no cash-flow periods supplied"})
		return []model.PeriodDistribution{}, ledger, nil
	}

	booked := a.schedule(sortedPeriods, contributions, ledger)

	rows := make([]model.PeriodDistribution, 0, len(sortedPeriods))
	cumulative := decimal.Zero
	for p, period := range sortedPeriods {
		in := booked[p]
		ledger.contribute(types.PartnerLP, in.lp)
		ledger.contribute(types.PartnerGP, in.gp)

		cumulative = cumulative.Add(period.CashFlow)
		row := model.PeriodDistribution{
			PeriodID:           period.PeriodIndex,
			Date:               period.Date,
			CashFlow:           period.CashFlow,
			CumulativeCashFlow: cumulative,
			LPContribution:     in.lp,
			GPContribution:     in.gp,
			Tiers:              make([]model.TierDistribution, len(sortedTiers)),
		}

		available := decimal.Zero
		if period.CashFlow.IsPositive() {
			available = period.CashFlow
		}
		for i, t := range sortedTiers {
			cash := a.tierCash(ledger, i, t, available)
			lpShare := decimal.Min(cash, cash.Mul(t.LPSplitPct.Div(hundred)).Round(precision))
			gpShare := cash.Sub(lpShare)
			if lpShare.IsPositive() {
				ledger.payLP(t.TierNumber, lpShare)
			}
			if gpShare.IsPositive() {
				ledger.payGP(t.TierNumber, gpShare)
			}
			if acc := ledger.tiers[i]; acc != nil {
				acc.Paid = acc.Paid.Add(cash)
			}
			available = available.Sub(cash)
			row.LPDist = row.LPDist.Add(lpShare)
			row.GPDist = row.GPDist.Add(gpShare)
			row.Tiers[i] = model.TierDistribution{TierNumber: t.TierNumber, LPShare: lpShare, GPShare: gpShare}
		}
		// The month's pref accrues on closing balances, so the row carries
		// what the next period owes. Outstanding is read after every tier has
		// paid, since later tiers can satisfy earlier accounts.
		ledger.accrue()
		for i := range sortedTiers {
			row.Tiers[i].Outstanding = ledger.need(i)
		}
		row.Undistributed = available
		row.AccruedPref = ledger.accruedPref()
		row.AccruedHurdle = ledger.accruedHurdle()

		ledger.closePeriod()
		rows = append(rows, row)
	}
	return rows, ledger, nil
}

func (a *allocator) tierCash(l *Ledger, i int, t model.TierDefinition, available decimal.Decimal) decimal.Decimal {
	if !available.IsPositive() {
		return decimal.Zero
	}
	if t.IsResidual() {
		return available
	}
	need := l.need(i)
	if need.IsZero() {
		return decimal.Zero
	}
	gross := need.DivRound(l.tiers[i].lpFrac, precision)
	return decimal.Min(available, gross)
}

type booking struct {
	lp, gp decimal.Decimal
}

// schedule resolves the capital booked in each period. Explicit contributions
// win for their period; a negative cash flow in a period without explicit
// contributions is split by ownership.
func (a *allocator) schedule(periods []model.PeriodCashFlow, contributions []model.PartnerContribution, l *Ledger) []booking {
	out := make([]booking, len(periods))
	explicit := make([]bool, len(periods))
	for _, c := range contributions {
		amt := c.Amount.Abs()
		if c.PartnerType == types.PartnerGP {
			out[c.PeriodIndex].gp = out[c.PeriodIndex].gp.Add(amt)
		} else {
			out[c.PeriodIndex].lp = out[c.PeriodIndex].lp.Add(amt)
		}
		explicit[c.PeriodIndex] = true
	}

	booked := len(contributions) > 0
	for p, period := range periods {
		if explicit[p] || !period.CashFlow.IsNegative() {
			continue
		}
		out[p] = a.split(period.CashFlow.Abs())
		booked = true
	}

	if !booked {
		if a.peakEquity.IsPositive() {
			out[0] = a.split(a.peakEquity)
			l.notice(&DataUnavailableError{
				Input:  "contributions",
				Detail: fmt.Sprintf("no contributions supplied; assumed peak equity %s contributed in period 0", a.peakEquity.String()),
			})
		} else {
			l.notice(&DataUnavailableError{
				Input:  "contributions",
				Detail: "no contributions or peak equity supplied; hurdles measured against zero capital",
			})
		}
	}
	return out
}

func (a *allocator) split(amount decimal.Decimal) booking {
	gp := amount.Mul(a.gpContributionPct).Div(hundred).Round(precision)
	return booking{lp: amount.Sub(gp), gp: gp}
}
