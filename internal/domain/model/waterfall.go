// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// TierDefinition is one step of a distribution waterfall.
// TierNumber is 1-based and doubles as priority.
type TierDefinition struct {
	TierNumber  int              `json:"tierNumber"`
	TierName    string           `json:"tierName"`
	HurdleType  types.HurdleType `json:"hurdleType"`
	HurdleRate  *decimal.Decimal `json:"hurdleRate"` // annual % for IRR, multiple for EM, nil for residual
	LPSplitPct  decimal.Decimal  `json:"lpSplitPct"`
	GPSplitPct  decimal.Decimal  `json:"gpSplitPct"`
	Compounding bool             `json:"compounding,omitempty"`
}

// IsResidual reports whether the tier absorbs all remaining cash.
func (t TierDefinition) IsResidual() bool {
	return !t.HurdleType.IsHurdle()
}

// PeriodCashFlow is the net project cash flow for one month.
type PeriodCashFlow struct {
	PeriodIndex int             `json:"periodIndex"`
	Date        time.Time       `json:"date"`
	CashFlow    decimal.Decimal `json:"cashFlow"`
}

// PartnerContribution is capital paid in by a partner class.
// Amount may carry either sign; its magnitude is the capital contributed.
type PartnerContribution struct {
	PartnerType types.PartnerType `json:"partnerType"`
	Amount      decimal.Decimal   `json:"amount"`
	PeriodIndex int               `json:"periodIndex"`
}

// EquityPartner describes an ownership position in the deal.
type EquityPartner struct {
	PartnerType     types.PartnerType `json:"partnerType"`
	Name            string            `json:"name"`
	ContributionPct decimal.Decimal   `json:"contributionPct"`
}

// WaterfallConfig is the per-project tier configuration. It outlives runs.
type WaterfallConfig struct {
	ProjectID         string           `json:"projectId"`
	Tiers             []TierDefinition `json:"waterfallTiers"`
	Partners          []EquityPartner  `json:"equityPartners"`
	GPContributionPct decimal.Decimal  `json:"gpContributionPct"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// CashFlowSummary is the project cash-flow input consumed by a run.
type CashFlowSummary struct {
	ProjectID     string                `json:"projectId"`
	PeakEquity    decimal.Decimal       `json:"peakEquity"`
	Periods       []PeriodCashFlow      `json:"periods"`
	Contributions []PartnerContribution `json:"contributions"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// TierDistribution is the cash a tier paid in one period.
type TierDistribution struct {
	TierNumber  int             `json:"tierNumber"`
	LPShare     decimal.Decimal `json:"lpShare"`
	GPShare     decimal.Decimal `json:"gpShare"`
	Outstanding decimal.Decimal `json:"outstanding"` // LP need left after the period
}

// Total is LPShare + GPShare.
func (d TierDistribution) Total() decimal.Decimal {
	return d.LPShare.Add(d.GPShare)
}

// PeriodDistribution is one row of the distribution table.
type PeriodDistribution struct {
	PeriodID           int                `json:"periodId"`
	Date               time.Time          `json:"date"`
	CashFlow           decimal.Decimal    `json:"cashFlow"`
	CumulativeCashFlow decimal.Decimal    `json:"cumulativeCashFlow"`
	LPContribution     decimal.Decimal    `json:"lpContribution"`
	GPContribution     decimal.Decimal    `json:"gpContribution"`
	LPDist             decimal.Decimal    `json:"lpDist"`
	GPDist             decimal.Decimal    `json:"gpDist"`
	AccruedPref        decimal.Decimal    `json:"accruedPref"`
	AccruedHurdle      decimal.Decimal    `json:"accruedHurdle"`
	Undistributed      decimal.Decimal    `json:"undistributed"`
	Tiers              []TierDistribution `json:"tiers"`
}

// TierAmount is a partner's take from one tier.
type TierAmount struct {
	TierNumber int             `json:"tierNumber"`
	Amount     decimal.Decimal `json:"amount"`
}

// PartnerSummary aggregates a partner class over a run.
type PartnerSummary struct {
	PartnerType      types.PartnerType `json:"partnerType"`
	TotalContributed decimal.Decimal   `json:"totalContributed"`
	TotalDistributed decimal.Decimal   `json:"totalDistributed"`
	NetProfit        decimal.Decimal   `json:"netProfit"`
	IRR              *float64          `json:"irr"`
	IRRStatus        string            `json:"irrStatus,omitempty"`
	EquityMultiple   decimal.Decimal   `json:"equityMultiple"`
	TierBreakdown    []TierAmount      `json:"tierBreakdown"`
}

// TierSummary aggregates a tier over a run.
type TierSummary struct {
	TierNumber int             `json:"tierNumber"`
	TierName   string          `json:"tierName"`
	LPTotal    decimal.Decimal `json:"lpTotal"`
	GPTotal    decimal.Decimal `json:"gpTotal"`
	Total      decimal.Decimal `json:"total"`
	PctOfTotal decimal.Decimal `json:"pctOfTotal"`
}

// ProjectSummary aggregates both partner classes over a run.
type ProjectSummary struct {
	TotalContributed decimal.Decimal `json:"totalContributed"`
	TotalDistributed decimal.Decimal `json:"totalDistributed"`
	NetProfit        decimal.Decimal `json:"netProfit"`
	IRR              *float64        `json:"irr"`
	IRRStatus        string          `json:"irrStatus,omitempty"`
	EquityMultiple   decimal.Decimal `json:"equityMultiple"`
	PeakEquity       decimal.Decimal `json:"peakEquity"`
	HoldPeriodMonths int             `json:"holdPeriodMonths"`
	Undistributed    decimal.Decimal `json:"undistributed"`
}

// Notice codes surfaced as informational banners.
const (
	NoticeDataUnavailable  = "DATA_UNAVAILABLE"
	NoticeIRRNoConvergence = "IRR_NO_CONVERGENCE"
)

// Notice is a non-fatal condition observed during a run.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunInput is the immutable snapshot a run is computed from.
type RunInput struct {
	ProjectID         string                `json:"projectId,omitempty"`
	Tiers             []TierDefinition      `json:"tiers"`
	Periods           []PeriodCashFlow      `json:"periods"`
	Contributions     []PartnerContribution `json:"contributions"`
	GPContributionPct decimal.Decimal       `json:"gpContributionPct"`
	PeakEquity        decimal.Decimal       `json:"peakEquity"`
}

// WaterfallResult is the full output of a run.
type WaterfallResult struct {
	RunID               string               `json:"runId"`
	ProjectID           string               `json:"projectId,omitempty"`
	Mode                types.ModeKind       `json:"mode"`
	Fingerprint         string               `json:"fingerprint"`
	ComputedAt          time.Time            `json:"computedAt"`
	ProjectSummary      ProjectSummary       `json:"projectSummary"`
	PartnerSummaries    []PartnerSummary     `json:"partnerSummaries"`
	TierSummaries       []TierSummary        `json:"tierSummaries"`
	PeriodDistributions []PeriodDistribution `json:"periodDistributions"`
	TierDefinitions     []TierDefinition     `json:"tierDefinitions"`
	Notices             []Notice             `json:"notices"`
}
