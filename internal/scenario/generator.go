package scenario

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// Generator ranges.
const (
	minHoldMonths      = 12
	holdMonthsRange    = 84
	minEquity          = 500_000
	equityRange        = 9_500_000
	maxDrawMonths      = 6
	prefRateMin        = 6
	prefRateRange      = 6
	hurdleStepMin      = 2
	hurdleStepRange    = 6
	multipleMin        = 1.2
	multipleRange      = 1.3
	multipleStepMin    = 0.05
	maxPromoteTiers    = 3
	gpContributionMax  = 20
	residualGPMin      = 10
	residualGPRange    = 30
	negativeMonthOdds  = 0.05
	distributionJitter = 0.6
	cashPrecision      = 2
)

// Generator produces reproducible random deals. The same seed yields the
// same scenarios.
type Generator struct {
	rnd   *rand.Rand
	start time.Time
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		start: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Generate returns n scenarios named gen-<i>.
func (g *Generator) Generate(n int) []Scenario {
	out := make([]Scenario, n)
	for i := range out {
		out[i] = g.Next(fmt.Sprintf("gen-%d", i))
	}
	return out
}

// Next builds one deal: a capital draw over the first months, operating
// cash flow with occasional negative months, and a sale at the end. Tiers
// are drawn as an IRR stack, an equity-multiple stack or a mix of both.
func (g *Generator) Next(name string) Scenario {
	months := minHoldMonths + g.rnd.IntN(holdMonthsRange)
	equity := float64(minEquity + g.rnd.IntN(equityRange))
	gpPct := decimal.NewFromInt(int64(g.rnd.IntN(gpContributionMax + 1)))

	draws := 1 + g.rnd.IntN(maxDrawMonths)
	monthlyYield := equity * (0.004 + 0.006*g.rnd.Float64())
	periods := make([]model.PeriodCashFlow, 0, months)
	for p := 0; p < months; p++ {
		var cf float64
		switch {
		case p < draws:
			cf = -equity / float64(draws)
		case p == months-1:
			cf = equity * (0.9 + g.rnd.Float64())
		case g.rnd.Float64() < negativeMonthOdds:
			cf = -monthlyYield * g.rnd.Float64()
		default:
			cf = monthlyYield * (1 - distributionJitter/2 + distributionJitter*g.rnd.Float64())
		}
		periods = append(periods, model.PeriodCashFlow{
			PeriodIndex: p,
			Date:        monthEnd(g.start, p),
			CashFlow:    decimal.NewFromFloat(cf).Round(cashPrecision),
		})
	}

	in := model.RunInput{
		ProjectID:         name,
		Tiers:             g.tiers(gpPct),
		Periods:           periods,
		GPContributionPct: gpPct,
		PeakEquity:        decimal.NewFromFloat(equity).Round(cashPrecision),
	}
	return Scenario{Name: name, Input: in}
}

func (g *Generator) tiers(gpPct decimal.Decimal) []model.TierDefinition {
	promotes := 1 + g.rnd.IntN(maxPromoteTiers)
	kind := g.rnd.IntN(3)
	rate := float64(prefRateMin + g.rnd.IntN(prefRateRange))
	mult := decimal.NewFromFloat(multipleMin + multipleRange*g.rnd.Float64()/float64(promotes)).Round(2)

	tiers := make([]model.TierDefinition, 0, promotes+1)
	lpShare := decimal.NewFromInt(100).Sub(gpPct)
	for i := 0; i < promotes; i++ {
		t := model.TierDefinition{
			TierNumber: i + 1,
			LPSplitPct: lpShare,
			GPSplitPct: gpPct,
		}
		useIRR := kind == 0 || (kind == 2 && i%2 == 0)
		if useIRR {
			hr := decimal.NewFromFloat(rate)
			t.TierName = fmt.Sprintf("%s%% IRR hurdle", hr.String())
			t.HurdleType = types.HurdleIRR
			t.HurdleRate = &hr
			rate += float64(hurdleStepMin + g.rnd.IntN(hurdleStepRange))
		} else {
			hr := mult
			t.TierName = fmt.Sprintf("%sx multiple", hr.String())
			t.HurdleType = types.HurdleEquityMultiple
			t.HurdleRate = &hr
			step := multipleStepMin + multipleRange*g.rnd.Float64()/float64(promotes)
			mult = mult.Add(decimal.NewFromFloat(step).Round(2))
		}
		tiers = append(tiers, t)
		// later tiers shift cash toward the GP
		lpShare = lpShare.Sub(decimal.NewFromInt(int64(5 + g.rnd.IntN(10))))
		if lpShare.LessThan(decimal.NewFromInt(50)) {
			lpShare = decimal.NewFromInt(50)
		}
	}
	gp := decimal.NewFromInt(int64(residualGPMin + g.rnd.IntN(residualGPRange)))
	tiers = append(tiers, model.TierDefinition{
		TierNumber: promotes + 1,
		TierName:   "Residual",
		LPSplitPct: decimal.NewFromInt(100).Sub(gp),
		GPSplitPct: gp,
	})
	for i := 1; i < promotes; i++ {
		tiers[i].GPSplitPct = decimal.NewFromInt(100).Sub(tiers[i].LPSplitPct)
	}
	return tiers
}

// monthEnd returns the last day of the month p months after start.
func monthEnd(start time.Time, p int) time.Time {
	first := time.Date(start.Year(), start.Month()+time.Month(p)+1, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, -1)
}
