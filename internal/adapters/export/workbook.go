package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/summary"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

// Sheet names written by WriteWorkbook.
const (
	SheetSummary       = "Summary"
	SheetTiers         = "Tiers"
	SheetDistributions = "Distributions"
)

const (
	moneyFormat = "#,##0.00"
	ratioFormat = "0.0000"
)

// WriteWorkbook writes res to w as an xlsx workbook. The distribution sheet is
// bucketed at g and shows the columns resolved from l.
func WriteWorkbook(w io.Writer, res *model.WaterfallResult, mode waterfall.Mode, l layout.Layout, g types.Granularity) error {
	f := xlsx.NewFile()

	if err := writeSummary(f, res); err != nil {
		return err
	}
	if err := writeTiers(f, res); err != nil {
		return err
	}

	cols := layout.Resolve(DistributionColumns(mode, res.TierDefinitions), l)
	if err := writeDistributions(f, summary.Rebucket(res.PeriodDistributions, g), cols); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

func writeSummary(f *xlsx.File, res *model.WaterfallResult) error {
	sheet, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	header(sheet, "Metric", "Project", "LP", "GP")

	partners := map[types.PartnerType]model.PartnerSummary{}
	for _, p := range res.PartnerSummaries {
		partners[p.PartnerType] = p
	}
	lp, gp, proj := partners[types.PartnerLP], partners[types.PartnerGP], res.ProjectSummary

	moneyRow(sheet, "Total Contributed", moneyFormat, proj.TotalContributed, lp.TotalContributed, gp.TotalContributed)
	moneyRow(sheet, "Total Distributed", moneyFormat, proj.TotalDistributed, lp.TotalDistributed, gp.TotalDistributed)
	moneyRow(sheet, "Net Profit", moneyFormat, proj.NetProfit, lp.NetProfit, gp.NetProfit)
	moneyRow(sheet, "Equity Multiple", ratioFormat, proj.EquityMultiple, lp.EquityMultiple, gp.EquityMultiple)

	row := sheet.AddRow()
	row.AddCell().SetString("IRR")
	for _, v := range []*float64{proj.IRR, lp.IRR, gp.IRR} {
		cell := row.AddCell()
		if v == nil {
			cell.SetString("n/a")
			continue
		}
		cell.SetFloatWithFormat(*v, "0.00%")
	}

	moneyRow(sheet, "Peak Equity", moneyFormat, proj.PeakEquity)
	row = sheet.AddRow()
	row.AddCell().SetString("Hold Period (months)")
	row.AddCell().SetInt(proj.HoldPeriodMonths)
	row = sheet.AddRow()
	row.AddCell().SetString("Mode")
	row.AddCell().SetString(string(res.Mode))

	for _, n := range res.Notices {
		row = sheet.AddRow()
		row.AddCell().SetString(n.Code)
		row.AddCell().SetString(n.Message)
	}
	return nil
}

func writeTiers(f *xlsx.File, res *model.WaterfallResult) error {
	sheet, err := f.AddSheet(SheetTiers)
	if err != nil {
		return eris.Wrap(err, "xlsx: add tiers sheet")
	}
	header(sheet, "Tier", "Name", "Hurdle", "Rate", "LP Split %", "GP Split %", "LP Total", "GP Total", "Total", "% of Total")

	totals := map[int]model.TierSummary{}
	for _, ts := range res.TierSummaries {
		totals[ts.TierNumber] = ts
	}
	for _, t := range waterfall.SortTiers(res.TierDefinitions) {
		row := sheet.AddRow()
		row.AddCell().SetInt(t.TierNumber)
		row.AddCell().SetString(t.TierName)
		hurdle := string(t.HurdleType)
		if hurdle == "" {
			hurdle = "residual"
		}
		row.AddCell().SetString(hurdle)
		rateCell := row.AddCell()
		if t.HurdleRate != nil {
			rateCell.SetFloat(t.HurdleRate.InexactFloat64())
		}
		row.AddCell().SetFloat(t.LPSplitPct.InexactFloat64())
		row.AddCell().SetFloat(t.GPSplitPct.InexactFloat64())
		ts := totals[t.TierNumber]
		for _, v := range []decimal.Decimal{ts.LPTotal, ts.GPTotal, ts.Total} {
			row.AddCell().SetFloatWithFormat(v.InexactFloat64(), moneyFormat)
		}
		row.AddCell().SetFloat(ts.PctOfTotal.InexactFloat64())
	}
	return nil
}

func writeDistributions(f *xlsx.File, rows []model.PeriodDistribution, cols []layout.Column) error {
	sheet, err := f.AddSheet(SheetDistributions)
	if err != nil {
		return eris.Wrap(err, "xlsx: add distributions sheet")
	}
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.Title
	}
	header(sheet, titles...)

	for _, r := range rows {
		row := sheet.AddRow()
		for _, c := range cols {
			cell := row.AddCell()
			num, text, numeric := cellValue(r, c.Key)
			switch {
			case c.Key == "period":
				cell.SetInt(int(num.IntPart()))
			case numeric:
				cell.SetFloatWithFormat(num.InexactFloat64(), moneyFormat)
			default:
				cell.SetString(text)
			}
		}
	}
	return nil
}

func header(sheet *xlsx.Sheet, titles ...string) {
	row := sheet.AddRow()
	for _, t := range titles {
		row.AddCell().SetString(t)
	}
}

func moneyRow(sheet *xlsx.Sheet, label, format string, values ...decimal.Decimal) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	for _, v := range values {
		row.AddCell().SetFloatWithFormat(v.InexactFloat64(), format)
	}
}
