package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tealeg/xlsx/v2"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/export"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/summary"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func buildResult() (*model.WaterfallResult, waterfall.Mode) {
	tiers := []model.TierDefinition{{TierNumber: 1, TierName: "Residual", LPSplitPct: d("90"), GPSplitPct: d("10")}}
	periods := make([]model.PeriodCashFlow, 4)
	for i := range periods {
		periods[i] = model.PeriodCashFlow{
			PeriodIndex: i,
			Date:        time.Date(2025, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC),
			CashFlow:    d("100"),
		}
	}
	contribs := []model.PartnerContribution{{PartnerType: types.PartnerLP, Amount: d("300"), PeriodIndex: 0}}
	rows, ledger, err := waterfall.Allocate(periods, tiers, contribs)
	So(err, ShouldBeNil)
	s := summary.NewProjector().Project(rows, ledger, tiers, decimal.Zero)
	mode := waterfall.ClassifyMode(tiers)
	return &model.WaterfallResult{
		Mode:                mode.Kind(),
		ProjectSummary:      s.Project,
		PartnerSummaries:    s.Partners,
		TierSummaries:       s.Tiers,
		PeriodDistributions: rows,
		TierDefinitions:     tiers,
		Notices:             s.Notices,
	}, mode
}

func headerIndex(sheet *xlsx.Sheet, title string) int {
	for i, c := range sheet.Rows[0].Cells {
		if c.String() == title {
			return i
		}
	}
	return -1
}

func TestWriteWorkbook(t *testing.T) {
	Convey("Given a computed result", t, func() {
		res, mode := buildResult()
		hidden := false

		Convey("When it is exported monthly with the date column hidden", func() {
			var buf bytes.Buffer
			err := export.WriteWorkbook(&buf, res, mode, layout.Layout{
				Table:   export.DistributionsTable,
				Columns: []layout.ColumnLayout{{Key: "date", Visible: &hidden}},
			}, types.Monthly)
			So(err, ShouldBeNil)

			f, err := xlsx.OpenBinary(buf.Bytes())
			So(err, ShouldBeNil)

			Convey("Then all three sheets exist", func() {
				So(f.Sheets, ShouldHaveLength, 3)
				So(f.Sheets[0].Name, ShouldEqual, export.SheetSummary)
				So(f.Sheets[1].Name, ShouldEqual, export.SheetTiers)
				So(f.Sheets[2].Name, ShouldEqual, export.SheetDistributions)
			})

			Convey("Then the distribution sheet follows the layout", func() {
				sheet := f.Sheet[export.SheetDistributions]
				So(sheet.Rows, ShouldHaveLength, 5)
				So(headerIndex(sheet, "Date"), ShouldEqual, -1)
				So(sheet.Rows[0].Cells[1].String(), ShouldEqual, "Cash Flow")

				col := headerIndex(sheet, "LP Distribution")
				So(col, ShouldBeGreaterThan, 0)
				v, err := sheet.Rows[1].Cells[col].Float()
				So(err, ShouldBeNil)
				So(v, ShouldAlmostEqual, 90, 1e-9)
			})

			Convey("Then the tier sheet lists each tier", func() {
				sheet := f.Sheet[export.SheetTiers]
				So(sheet.Rows, ShouldHaveLength, 2)
				So(sheet.Rows[1].Cells[1].String(), ShouldEqual, "Residual")
				So(sheet.Rows[1].Cells[2].String(), ShouldEqual, "residual")
			})
		})

		Convey("When it is exported quarterly", func() {
			var buf bytes.Buffer
			So(export.WriteWorkbook(&buf, res, mode, layout.Layout{}, types.Quarterly), ShouldBeNil)
			f, err := xlsx.OpenBinary(buf.Bytes())
			So(err, ShouldBeNil)

			Convey("Then months are bucketed", func() {
				sheet := f.Sheet[export.SheetDistributions]
				So(sheet.Rows, ShouldHaveLength, 3)
				So(sheet.Rows[0].Cells[1].String(), ShouldEqual, "Date")
				So(sheet.Rows[1].Cells[1].String(), ShouldEqual, "2025-03-01")
			})
		})
	})
}

func TestDistributionColumns(t *testing.T) {
	Convey("Given tiers of each mode", t, func() {
		r := d("1.5")
		em := []model.TierDefinition{{TierNumber: 1, TierName: "Multiple", HurdleType: types.HurdleEquityMultiple, HurdleRate: &r, LPSplitPct: d("100"), GPSplitPct: d("0")}}

		keys := func(cols []layout.Column) []string {
			out := make([]string, len(cols))
			for i, c := range cols {
				out[i] = c.Key
			}
			return out
		}

		Convey("When the waterfall is multiple based", func() {
			cols := export.DistributionColumns(waterfall.ClassifyMode(em), em)

			Convey("Then no accrued pref column is offered", func() {
				So(keys(cols), ShouldNotContain, "accruedPref")
				So(keys(cols), ShouldContain, "accruedHurdle")
				So(keys(cols), ShouldContain, "tier1Lp")
			})
		})

		Convey("When the waterfall is hybrid", func() {
			p := d("8")
			hybrid := append([]model.TierDefinition{{TierNumber: 2, HurdleType: types.HurdleIRR, HurdleRate: &p, LPSplitPct: d("100"), GPSplitPct: d("0")}}, em...)
			cols := export.DistributionColumns(waterfall.ClassifyMode(hybrid), hybrid)

			Convey("Then both balances are offered", func() {
				So(keys(cols), ShouldContain, "accruedPref")
				So(keys(cols), ShouldContain, "tier2Gp")
				So(cols[len(cols)-1].Key, ShouldEqual, "undistributed")
			})
		})
	})
}
