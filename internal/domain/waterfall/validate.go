package waterfall

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// SortTiers returns a copy of tiers ordered by TierNumber.
func SortTiers(tiers []model.TierDefinition) []model.TierDefinition {
	out := make([]model.TierDefinition, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TierNumber < out[j].TierNumber })
	return out
}

// Validate checks tier definitions before a run starts.
// It returns a *ConfigurationError listing every problem found.
func Validate(tiers []model.TierDefinition) error {
	cerr := &ConfigurationError{}
	if len(tiers) == 0 {
		cerr.add("waterfallTiers", "at least one tier is required")
		return cerr
	}

	sorted := SortTiers(tiers)
	var (
		lastIRR, lastEM *decimal.Decimal
		residuals       int
	)
	for i, t := range sorted {
		field := fmt.Sprintf("waterfallTiers[%d]", i)
		if t.TierNumber != i+1 {
			cerr.add(field+".tierNumber", "tier numbers must run 1..%d without gaps or duplicates, got %d", len(sorted), t.TierNumber)
		}
		if t.LPSplitPct.IsNegative() || t.LPSplitPct.GreaterThan(hundred) {
			cerr.add(field+".lpSplitPct", "must be between 0 and 100")
		}
		if t.GPSplitPct.IsNegative() || t.GPSplitPct.GreaterThan(hundred) {
			cerr.add(field+".gpSplitPct", "must be between 0 and 100")
		}
		if sum := t.LPSplitPct.Add(t.GPSplitPct); !sum.Equal(hundred) {
			cerr.add(field+".splits", "lpSplitPct + gpSplitPct must equal 100, got %s", sum.String())
		}

		switch t.HurdleType {
		case types.HurdleNone:
			residuals++
			if t.HurdleRate != nil {
				cerr.add(field+".hurdleRate", "residual tier must not carry a hurdle rate")
			}
			if i != len(sorted)-1 {
				cerr.add(field+".hurdleType", "residual tier must be the last tier")
			}
		case types.HurdleIRR, types.HurdleEquityMultiple:
			if t.HurdleRate == nil || !t.HurdleRate.IsPositive() {
				cerr.add(field+".hurdleRate", "hurdle tier requires a positive hurdle rate")
				continue
			}
			if !t.LPSplitPct.IsPositive() {
				cerr.add(field+".lpSplitPct", "hurdle tier must pay the LP to be satisfiable")
			}
			rate := *t.HurdleRate
			prev := &lastIRR
			if t.HurdleType == types.HurdleEquityMultiple {
				prev = &lastEM
			}
			if *prev != nil && !rate.GreaterThan(**prev) {
				cerr.add(field+".hurdleRate", "hurdle rates must increase with tier order, %s follows %s", rate.String(), (**prev).String())
			}
			r := rate
			*prev = &r
		default:
			cerr.add(field+".hurdleType", "unknown hurdle type %q", string(t.HurdleType))
		}
	}
	if residuals > 1 {
		cerr.add("waterfallTiers", "at most one residual tier is allowed, got %d", residuals)
	}
	return cerr.orNil()
}

// validatePeriods sorts periods and checks indexes are 0..N-1.
func validatePeriods(periods []model.PeriodCashFlow, cerr *ConfigurationError) []model.PeriodCashFlow {
	out := make([]model.PeriodCashFlow, len(periods))
	copy(out, periods)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodIndex < out[j].PeriodIndex })
	for i, p := range out {
		if p.PeriodIndex != i {
			cerr.add(fmt.Sprintf("periods[%d].periodIndex", i), "period indexes must be unique and run 0..%d, got %d", len(out)-1, p.PeriodIndex)
			break
		}
	}
	return out
}

func validateContributions(contribs []model.PartnerContribution, periods int, cerr *ConfigurationError) {
	for i, c := range contribs {
		field := fmt.Sprintf("contributions[%d]", i)
		if c.PartnerType != types.PartnerLP && c.PartnerType != types.PartnerGP {
			cerr.add(field+".partnerType", "must be LP or GP")
		}
		if c.PeriodIndex < 0 || c.PeriodIndex >= periods {
			cerr.add(field+".periodIndex", "period %d is outside the cash-flow series", c.PeriodIndex)
		}
	}
}

// ValidateInputs checks a cash-flow series and its contributions without running.
func ValidateInputs(periods []model.PeriodCashFlow, contributions []model.PartnerContribution) error {
	cerr := &ConfigurationError{}
	sorted := validatePeriods(periods, cerr)
	validateContributions(contributions, len(sorted), cerr)
	return cerr.orNil()
}

// ValidateGPContributionPct checks the GP ownership share is a percent.
func ValidateGPContributionPct(pct decimal.Decimal) error {
	cerr := &ConfigurationError{}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		cerr.add("gpContributionPct", "must be between 0 and 100, got %s", pct.String())
	}
	return cerr.orNil()
}
