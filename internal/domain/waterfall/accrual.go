package waterfall

import (
	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// precision is the number of decimal places kept on accruals and shares.
const precision = 10

// dust is the largest need still treated as satisfied.
var dust = decimal.New(1, -8)

// PartnerAccount tracks one partner class across a run.
type PartnerAccount struct {
	Contributed decimal.Decimal
	Distributed decimal.Decimal
	// Flows is the signed cash flow per period: distributions minus contributions.
	Flows []decimal.Decimal
	// ByTier holds cumulative distributions keyed by tier number.
	ByTier map[int]decimal.Decimal

	periodIn, periodOut decimal.Decimal
}

func newPartnerAccount() PartnerAccount {
	return PartnerAccount{ByTier: make(map[int]decimal.Decimal)}
}

func (p *PartnerAccount) contribute(amount decimal.Decimal) {
	p.Contributed = p.Contributed.Add(amount)
	p.periodIn = p.periodIn.Add(amount)
}

func (p *PartnerAccount) distribute(tier int, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	p.Distributed = p.Distributed.Add(amount)
	p.periodOut = p.periodOut.Add(amount)
	p.ByTier[tier] = p.ByTier[tier].Add(amount)
}

func (p *PartnerAccount) closePeriod() {
	p.Flows = append(p.Flows, p.periodOut.Sub(p.periodIn))
	p.periodIn = decimal.Zero
	p.periodOut = decimal.Zero
}

// TierState is the LP-side hurdle balance of one tier.
type TierState struct {
	TierNumber int
	HurdleType types.HurdleType
	// Unreturned is LP capital not yet returned through this tier's account.
	// It goes negative once the LP has received more than contributed.
	Unreturned decimal.Decimal
	// Pref is accrued, unpaid preferred return.
	Pref decimal.Decimal
	// AccruedTotal is all pref ever accrued.
	AccruedTotal decimal.Decimal
	// Paid is the cumulative cash (LP and GP) the tier has distributed.
	Paid decimal.Decimal
}

type hurdleAccount struct {
	TierState
	monthlyRate decimal.Decimal
	multiple    decimal.Decimal
	compounding bool
	lpFrac      decimal.Decimal
}

// Ledger is the accrual and return tracker mutated period by period.
type Ledger struct {
	lp, gp  PartnerAccount
	tiers   []*hurdleAccount // parallel to the sorted tiers; nil for residual
	notices []model.Notice
	periods int
}

func newLedger(tiers []model.TierDefinition) *Ledger {
	l := &Ledger{
		lp:    newPartnerAccount(),
		gp:    newPartnerAccount(),
		tiers: make([]*hurdleAccount, len(tiers)),
	}
	for i, t := range tiers {
		if t.IsResidual() {
			continue
		}
		acc := &hurdleAccount{
			TierState:   TierState{TierNumber: t.TierNumber, HurdleType: t.HurdleType},
			compounding: t.Compounding,
			lpFrac:      t.LPSplitPct.Div(hundred),
		}
		switch t.HurdleType {
		case types.HurdleIRR:
			acc.monthlyRate = t.HurdleRate.Div(hundred).Div(twelve)
		case types.HurdleEquityMultiple:
			acc.multiple = *t.HurdleRate
		}
		l.tiers[i] = acc
	}
	return l
}

// Partner returns the account of the given class.
func (l *Ledger) Partner(pt types.PartnerType) PartnerAccount {
	if pt == types.PartnerGP {
		return l.gp
	}
	return l.lp
}

// Tier returns the hurdle state of a tier. ok is false for residual or unknown tiers.
func (l *Ledger) Tier(tierNumber int) (TierState, bool) {
	for _, acc := range l.tiers {
		if acc != nil && acc.TierNumber == tierNumber {
			return acc.TierState, true
		}
	}
	return TierState{}, false
}

// Notices returns the non-fatal conditions recorded during the run.
func (l *Ledger) Notices() []model.Notice {
	out := make([]model.Notice, len(l.notices))
	copy(out, l.notices)
	return out
}

// Periods is the number of periods folded into the ledger.
func (l *Ledger) Periods() int { return l.periods }

func (l *Ledger) notice(err *DataUnavailableError) {
	l.notices = append(l.notices, model.Notice{Code: model.NoticeDataUnavailable, Message: err.Error()})
}

// accrue grows every IRR account by one month on its current balance.
func (l *Ledger) accrue() {
	for _, acc := range l.tiers {
		if acc == nil || acc.HurdleType != types.HurdleIRR {
			continue
		}
		base := acc.Unreturned
		if acc.compounding {
			base = base.Add(acc.Pref)
		}
		if !base.IsPositive() {
			continue
		}
		amt := base.Mul(acc.monthlyRate).Round(precision)
		acc.Pref = acc.Pref.Add(amt)
		acc.AccruedTotal = acc.AccruedTotal.Add(amt)
	}
}

func (l *Ledger) contribute(pt types.PartnerType, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	if pt == types.PartnerGP {
		l.gp.contribute(amount)
		return
	}
	l.lp.contribute(amount)
	for _, acc := range l.tiers {
		if acc != nil {
			acc.Unreturned = acc.Unreturned.Add(amount)
		}
	}
}

// need is the LP amount still required to satisfy tier i.
func (l *Ledger) need(i int) decimal.Decimal {
	acc := l.tiers[i]
	if acc == nil {
		return decimal.Zero
	}
	var n decimal.Decimal
	switch acc.HurdleType {
	case types.HurdleIRR:
		n = acc.Pref.Add(acc.Unreturned)
	case types.HurdleEquityMultiple:
		n = acc.multiple.Mul(l.lp.Contributed).Sub(l.lp.Distributed)
	}
	if n.LessThanOrEqual(dust) {
		return decimal.Zero
	}
	return n
}

// payLP applies an LP distribution to every hurdle account, pref first.
func (l *Ledger) payLP(tier int, amount decimal.Decimal) {
	l.lp.distribute(tier, amount)
	for _, acc := range l.tiers {
		if acc == nil || acc.HurdleType != types.HurdleIRR {
			continue
		}
		toPref := decimal.Min(amount, acc.Pref)
		acc.Pref = acc.Pref.Sub(toPref)
		acc.Unreturned = acc.Unreturned.Sub(amount.Sub(toPref))
	}
}

func (l *Ledger) payGP(tier int, amount decimal.Decimal) {
	l.gp.distribute(tier, amount)
}

func (l *Ledger) closePeriod() {
	l.lp.closePeriod()
	l.gp.closePeriod()
	l.periods++
}

// accruedPref is the unpaid pref of the first IRR tier.
func (l *Ledger) accruedPref() decimal.Decimal {
	for _, acc := range l.tiers {
		if acc != nil && acc.HurdleType == types.HurdleIRR {
			return acc.Pref
		}
	}
	return decimal.Zero
}

// accruedHurdle is the outstanding need of the first unsatisfied hurdle tier.
func (l *Ledger) accruedHurdle() decimal.Decimal {
	for i := range l.tiers {
		if n := l.need(i); n.IsPositive() {
			return n
		}
	}
	return decimal.Zero
}
