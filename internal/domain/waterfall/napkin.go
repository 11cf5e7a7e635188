package waterfall

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// Promote is one IRR hurdle of a napkin waterfall.
type Promote struct {
	HurdleRate   decimal.Decimal `json:"hurdleRate"`
	GPPromotePct decimal.Decimal `json:"gpPromotePct"`
}

// NapkinInput is the quick-entry form: a pref, a list of promotes and a residual promote.
type NapkinInput struct {
	PrefRate             decimal.Decimal `json:"prefRate"`
	GPContributionPct    decimal.Decimal `json:"gpContributionPct"`
	Promotes             []Promote       `json:"promotes"`
	ResidualGPPromotePct decimal.Decimal `json:"residualGpPromotePct"`
}

// BuildNapkinTiers expands a napkin form into validated tier definitions.
// Each tier's GP split is the promote plus the GP's pro rata share of the rest.
func BuildNapkinTiers(in NapkinInput) ([]model.TierDefinition, error) {
	cerr := &ConfigurationError{}
	if in.GPContributionPct.IsNegative() || in.GPContributionPct.GreaterThan(hundred) {
		cerr.add("gpContributionPct", "must be between 0 and 100")
	}
	if !in.PrefRate.IsPositive() {
		cerr.add("prefRate", "must be positive")
	}
	check := func(field string, pct decimal.Decimal) {
		if pct.IsNegative() || pct.GreaterThanOrEqual(hundred) {
			cerr.add(field, "promote must be at least 0 and below 100")
		}
	}
	for i, p := range in.Promotes {
		check(fmt.Sprintf("promotes[%d].gpPromotePct", i), p.GPPromotePct)
	}
	check("residualGpPromotePct", in.ResidualGPPromotePct)
	if err := cerr.orNil(); err != nil {
		return nil, err
	}

	gpFrac := in.GPContributionPct.Div(hundred)
	split := func(promotePct decimal.Decimal) (lp, gp decimal.Decimal) {
		promote := promotePct.Div(hundred)
		gp = promote.Add(decimal.NewFromInt(1).Sub(promote).Mul(gpFrac)).Mul(hundred).Round(6)
		return hundred.Sub(gp), gp
	}

	pref := in.PrefRate
	lp, gp := split(decimal.Zero)
	tiers := []model.TierDefinition{{
		TierNumber: 1,
		TierName:   "Preferred Return",
		HurdleType: types.HurdleIRR,
		HurdleRate: &pref,
		LPSplitPct: lp,
		GPSplitPct: gp,
	}}
	for i, p := range in.Promotes {
		rate := p.HurdleRate
		lp, gp := split(p.GPPromotePct)
		tiers = append(tiers, model.TierDefinition{
			TierNumber: i + 2,
			TierName:   fmt.Sprintf("Promote %d", i+1),
			HurdleType: types.HurdleIRR,
			HurdleRate: &rate,
			LPSplitPct: lp,
			GPSplitPct: gp,
		})
	}
	lp, gp = split(in.ResidualGPPromotePct)
	tiers = append(tiers, model.TierDefinition{
		TierNumber: len(tiers) + 1,
		TierName:   "Residual",
		HurdleType: types.HurdleNone,
		LPSplitPct: lp,
		GPSplitPct: gp,
	})

	if err := Validate(tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}
