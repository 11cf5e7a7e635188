package api

import (
	"time"

	"github.com/shopspring/decimal"

	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

const dateLayout = "2006-01-02"

// Request bodies. Decimal fields accept JSON numbers or numeric strings.

type configRequest struct {
	WaterfallTiers    []model.TierDefinition `json:"waterfallTiers"`
	EquityPartners    []model.EquityPartner  `json:"equityPartners"`
	GPContributionPct decimal.Decimal        `json:"gpContributionPct"`
}

type cashFlowSummary struct {
	PeakEquity decimal.Decimal `json:"peakEquity"`
}

type cashFlowsRequest struct {
	Summary       cashFlowSummary             `json:"summary"`
	Periods       []model.PeriodCashFlow      `json:"periods"`
	Contributions []model.PartnerContribution `json:"contributions"`
}

type napkinRequest struct {
	ProjectID     string                      `json:"projectId"`
	Napkin        waterfall.NapkinInput       `json:"napkin"`
	Periods       []model.PeriodCashFlow      `json:"periods"`
	Contributions []model.PartnerContribution `json:"contributions"`
	PeakEquity    decimal.Decimal             `json:"peakEquity"`
}

type batchRequest struct {
	Scenarios []model.RunInput `json:"scenarios"`
}

// Response bodies carry numbers as JSON numbers.

type tierDefinitionDTO struct {
	TierNumber  int              `json:"tierNumber"`
	TierName    string           `json:"tierName"`
	HurdleType  types.HurdleType `json:"hurdleType"`
	HurdleRate  *float64         `json:"hurdleRate"`
	LPSplitPct  float64          `json:"lpSplitPct"`
	GPSplitPct  float64          `json:"gpSplitPct"`
	Compounding bool             `json:"compounding,omitempty"`
}

type equityPartnerDTO struct {
	PartnerType     types.PartnerType `json:"partnerType"`
	Name            string            `json:"name"`
	ContributionPct float64           `json:"contributionPct"`
}

type configResponse struct {
	ProjectID         string              `json:"projectId"`
	WaterfallTiers    []tierDefinitionDTO `json:"waterfallTiers"`
	EquityPartners    []equityPartnerDTO  `json:"equityPartners"`
	GPContributionPct float64             `json:"gpContributionPct"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

type periodCashFlowDTO struct {
	PeriodIndex int     `json:"periodIndex"`
	Date        string  `json:"date,omitempty"`
	CashFlow    float64 `json:"cashFlow"`
}

type contributionDTO struct {
	PartnerType types.PartnerType `json:"partnerType"`
	Amount      float64           `json:"amount"`
	PeriodIndex int               `json:"periodIndex"`
}

type cashFlowSummaryDTO struct {
	PeakEquity float64 `json:"peakEquity"`
}

type cashFlowsResponse struct {
	ProjectID     string              `json:"projectId"`
	Summary       cashFlowSummaryDTO  `json:"summary"`
	Periods       []periodCashFlowDTO `json:"periods"`
	Contributions []contributionDTO   `json:"contributions"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

type tierDistributionDTO struct {
	TierNumber  int     `json:"tierNumber"`
	LPShare     float64 `json:"lpShare"`
	GPShare     float64 `json:"gpShare"`
	Outstanding float64 `json:"outstanding"`
}

type periodDistributionDTO struct {
	PeriodID           int                   `json:"periodId"`
	Date               string                `json:"date,omitempty"`
	CashFlow           float64               `json:"cashFlow"`
	CumulativeCashFlow float64               `json:"cumulativeCashFlow"`
	LPContribution     float64               `json:"lpContribution"`
	GPContribution     float64               `json:"gpContribution"`
	LPDist             float64               `json:"lpDist"`
	GPDist             float64               `json:"gpDist"`
	AccruedPref        float64               `json:"accruedPref"`
	AccruedHurdle      float64               `json:"accruedHurdle"`
	Undistributed      float64               `json:"undistributed"`
	Tiers              []tierDistributionDTO `json:"tiers"`
}

type tierAmountDTO struct {
	TierNumber int     `json:"tierNumber"`
	Amount     float64 `json:"amount"`
}

type partnerSummaryDTO struct {
	PartnerType      types.PartnerType `json:"partnerType"`
	TotalContributed float64           `json:"totalContributed"`
	TotalDistributed float64           `json:"totalDistributed"`
	NetProfit        float64           `json:"netProfit"`
	IRR              *float64          `json:"irr"`
	IRRStatus        string            `json:"irrStatus,omitempty"`
	EquityMultiple   float64           `json:"equityMultiple"`
	TierBreakdown    []tierAmountDTO   `json:"tierBreakdown"`
}

type tierSummaryDTO struct {
	TierNumber int     `json:"tierNumber"`
	TierName   string  `json:"tierName"`
	LPTotal    float64 `json:"lpTotal"`
	GPTotal    float64 `json:"gpTotal"`
	Total      float64 `json:"total"`
	PctOfTotal float64 `json:"pctOfTotal"`
}

type projectSummaryDTO struct {
	TotalContributed float64  `json:"totalContributed"`
	TotalDistributed float64  `json:"totalDistributed"`
	NetProfit        float64  `json:"netProfit"`
	IRR              *float64 `json:"irr"`
	IRRStatus        string   `json:"irrStatus,omitempty"`
	EquityMultiple   float64  `json:"equityMultiple"`
	PeakEquity       float64  `json:"peakEquity"`
	HoldPeriodMonths int      `json:"holdPeriodMonths"`
	Undistributed    float64  `json:"undistributed"`
}

// waterfallResponse is the WaterfallApiResponse shape consumed by the UI.
type waterfallResponse struct {
	RunID               string                  `json:"runId"`
	ProjectID           string                  `json:"projectId,omitempty"`
	Mode                types.ModeKind          `json:"mode"`
	Granularity         types.Granularity       `json:"granularity"`
	Fingerprint         string                  `json:"fingerprint"`
	ComputedAt          time.Time               `json:"computedAt"`
	ProjectSummary      projectSummaryDTO       `json:"projectSummary"`
	PartnerSummaries    []partnerSummaryDTO     `json:"partnerSummaries"`
	TierSummaries       []tierSummaryDTO        `json:"tierSummaries"`
	PeriodDistributions []periodDistributionDTO `json:"periodDistributions"`
	TierDefinitions     []tierDefinitionDTO     `json:"tierDefinitions"`
	Notices             []model.Notice          `json:"notices"`
}

type napkinResponse struct {
	TierDefinitions []tierDefinitionDTO `json:"tierDefinitions"`
	Result          waterfallResponse   `json:"result"`
}

type batchItemDTO struct {
	Index  int                `json:"index"`
	Result *waterfallResponse `json:"result,omitempty"`
	Error  *errorResponse     `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItemDTO `json:"results"`
}

type recomputeResponse struct {
	Status string             `json:"status"`
	Job    model.RecomputeJob `json:"job"`
}

type columnDTO struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Width    int    `json:"width"`
	Required bool   `json:"required,omitempty"`
}

type layoutResponse struct {
	Table   string                `json:"table"`
	Saved   []layout.ColumnLayout `json:"saved"`
	Columns []columnDTO           `json:"columns"`
}

func num(d decimal.Decimal) float64 { return d.InexactFloat64() }

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func toTierDefinitions(tiers []model.TierDefinition) []tierDefinitionDTO {
	out := make([]tierDefinitionDTO, 0, len(tiers))
	for _, t := range tiers {
		dto := tierDefinitionDTO{
			TierNumber:  t.TierNumber,
			TierName:    t.TierName,
			HurdleType:  t.HurdleType,
			LPSplitPct:  num(t.LPSplitPct),
			GPSplitPct:  num(t.GPSplitPct),
			Compounding: t.Compounding,
		}
		if t.HurdleRate != nil {
			v := num(*t.HurdleRate)
			dto.HurdleRate = &v
		}
		out = append(out, dto)
	}
	return out
}

func toConfigResponse(cfg model.WaterfallConfig) configResponse {
	partners := make([]equityPartnerDTO, 0, len(cfg.Partners))
	for _, p := range cfg.Partners {
		partners = append(partners, equityPartnerDTO{PartnerType: p.PartnerType, Name: p.Name, ContributionPct: num(p.ContributionPct)})
	}
	return configResponse{
		ProjectID:         cfg.ProjectID,
		WaterfallTiers:    toTierDefinitions(cfg.Tiers),
		EquityPartners:    partners,
		GPContributionPct: num(cfg.GPContributionPct),
		UpdatedAt:         cfg.UpdatedAt,
	}
}

func toCashFlowsResponse(cf model.CashFlowSummary) cashFlowsResponse {
	periods := make([]periodCashFlowDTO, 0, len(cf.Periods))
	for _, p := range cf.Periods {
		periods = append(periods, periodCashFlowDTO{PeriodIndex: p.PeriodIndex, Date: date(p.Date), CashFlow: num(p.CashFlow)})
	}
	contribs := make([]contributionDTO, 0, len(cf.Contributions))
	for _, c := range cf.Contributions {
		contribs = append(contribs, contributionDTO{PartnerType: c.PartnerType, Amount: num(c.Amount), PeriodIndex: c.PeriodIndex})
	}
	return cashFlowsResponse{
		ProjectID:     cf.ProjectID,
		Summary:       cashFlowSummaryDTO{PeakEquity: num(cf.PeakEquity)},
		Periods:       periods,
		Contributions: contribs,
		UpdatedAt:     cf.UpdatedAt,
	}
}

func toWaterfallResponse(res *model.WaterfallResult, g types.Granularity) waterfallResponse {
	ps := res.ProjectSummary
	out := waterfallResponse{
		RunID:       res.RunID,
		ProjectID:   res.ProjectID,
		Mode:        res.Mode,
		Granularity: g,
		Fingerprint: res.Fingerprint,
		ComputedAt:  res.ComputedAt,
		ProjectSummary: projectSummaryDTO{
			TotalContributed: num(ps.TotalContributed),
			TotalDistributed: num(ps.TotalDistributed),
			NetProfit:        num(ps.NetProfit),
			IRR:              ps.IRR,
			IRRStatus:        ps.IRRStatus,
			EquityMultiple:   num(ps.EquityMultiple),
			PeakEquity:       num(ps.PeakEquity),
			HoldPeriodMonths: ps.HoldPeriodMonths,
			Undistributed:    num(ps.Undistributed),
		},
		PartnerSummaries:    make([]partnerSummaryDTO, 0, len(res.PartnerSummaries)),
		TierSummaries:       make([]tierSummaryDTO, 0, len(res.TierSummaries)),
		PeriodDistributions: make([]periodDistributionDTO, 0, len(res.PeriodDistributions)),
		TierDefinitions:     toTierDefinitions(res.TierDefinitions),
		Notices:             res.Notices,
	}
	if out.Notices == nil {
		out.Notices = []model.Notice{}
	}

	for _, p := range res.PartnerSummaries {
		breakdown := make([]tierAmountDTO, 0, len(p.TierBreakdown))
		for _, b := range p.TierBreakdown {
			breakdown = append(breakdown, tierAmountDTO{TierNumber: b.TierNumber, Amount: num(b.Amount)})
		}
		out.PartnerSummaries = append(out.PartnerSummaries, partnerSummaryDTO{
			PartnerType:      p.PartnerType,
			TotalContributed: num(p.TotalContributed),
			TotalDistributed: num(p.TotalDistributed),
			NetProfit:        num(p.NetProfit),
			IRR:              p.IRR,
			IRRStatus:        p.IRRStatus,
			EquityMultiple:   num(p.EquityMultiple),
			TierBreakdown:    breakdown,
		})
	}
	for _, t := range res.TierSummaries {
		out.TierSummaries = append(out.TierSummaries, tierSummaryDTO{
			TierNumber: t.TierNumber,
			TierName:   t.TierName,
			LPTotal:    num(t.LPTotal),
			GPTotal:    num(t.GPTotal),
			Total:      num(t.Total),
			PctOfTotal: num(t.PctOfTotal),
		})
	}
	for _, r := range res.PeriodDistributions {
		tiers := make([]tierDistributionDTO, 0, len(r.Tiers))
		for _, t := range r.Tiers {
			tiers = append(tiers, tierDistributionDTO{
				TierNumber:  t.TierNumber,
				LPShare:     num(t.LPShare),
				GPShare:     num(t.GPShare),
				Outstanding: num(t.Outstanding),
			})
		}
		out.PeriodDistributions = append(out.PeriodDistributions, periodDistributionDTO{
			PeriodID:           r.PeriodID,
			Date:               date(r.Date),
			CashFlow:           num(r.CashFlow),
			CumulativeCashFlow: num(r.CumulativeCashFlow),
			LPContribution:     num(r.LPContribution),
			GPContribution:     num(r.GPContribution),
			LPDist:             num(r.LPDist),
			GPDist:             num(r.GPDist),
			AccruedPref:        num(r.AccruedPref),
			AccruedHurdle:      num(r.AccruedHurdle),
			Undistributed:      num(r.Undistributed),
			Tiers:              tiers,
		})
	}
	return out
}

func toLayoutResponse(v service.LayoutView) layoutResponse {
	saved := v.Layout.Columns
	if saved == nil {
		saved = []layout.ColumnLayout{}
	}
	cols := make([]columnDTO, 0, len(v.Columns))
	for _, c := range v.Columns {
		cols = append(cols, columnDTO{Key: c.Key, Title: c.Title, Width: c.Width, Required: c.Required})
	}
	return layoutResponse{Table: v.Layout.Table, Saved: saved, Columns: cols}
}
