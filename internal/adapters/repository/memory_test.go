package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

func sampleConfig(projectID string) model.WaterfallConfig {
	rate := decimal.NewFromInt(8)
	return model.WaterfallConfig{
		ProjectID: projectID,
		Tiers: []model.TierDefinition{
			{TierNumber: 1, TierName: "Pref", HurdleType: types.HurdleIRR, HurdleRate: &rate, LPSplitPct: decimal.NewFromInt(90), GPSplitPct: decimal.NewFromInt(10)},
			{TierNumber: 2, TierName: "Residual", LPSplitPct: decimal.NewFromInt(70), GPSplitPct: decimal.NewFromInt(30)},
		},
		Partners:          []model.EquityPartner{{PartnerType: types.PartnerLP, Name: "Fund I", ContributionPct: decimal.NewFromInt(90)}},
		GPContributionPct: decimal.NewFromInt(10),
	}
}

func sampleCashFlows(projectID string) model.CashFlowSummary {
	return model.CashFlowSummary{
		ProjectID:  projectID,
		PeakEquity: decimal.NewFromInt(1000),
		Periods: []model.PeriodCashFlow{
			{PeriodIndex: 0, CashFlow: decimal.NewFromInt(-1000)},
			{PeriodIndex: 1, CashFlow: decimal.NewFromInt(1500)},
		},
	}
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store on a fake clock", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		store := NewMemoryStore(ctx, WithClock(clock), WithMetricsUpdateInterval(time.Minute))
		Reset(func() { _ = store.Close() })

		Convey("When the store is empty", func() {
			_, cfgErr := store.GetConfig(ctx, "p1")
			_, cfErr := store.GetCashFlows(ctx, "p1")
			_, runErr := store.LatestRun(ctx, "p1")
			_, layErr := store.GetLayout(ctx, "p1", "waterfall_distributions")

			Convey("Then every read should be not found", func() {
				So(errors.Is(cfgErr, ErrNotFound), ShouldBeTrue)
				So(errors.Is(cfErr, ErrNotFound), ShouldBeTrue)
				So(errors.Is(runErr, ErrNotFound), ShouldBeTrue)
				So(errors.Is(layErr, ErrNotFound), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 0)
			})
		})

		Convey("When saving a configuration", func() {
			So(store.SaveConfig(ctx, sampleConfig("p1")), ShouldBeNil)
			got, err := store.GetConfig(ctx, "p1")

			Convey("Then it should read back stamped with the clock", func() {
				So(err, ShouldBeNil)
				So(got.Tiers, ShouldHaveLength, 2)
				So(got.Tiers[0].HurdleRate.Equal(decimal.NewFromInt(8)), ShouldBeTrue)
				So(got.UpdatedAt.Equal(clock.Now()), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 1)
			})

			Convey("Then mutating the returned copy should not leak into the store", func() {
				got.Tiers[0].TierName = "changed"
				*got.Tiers[0].HurdleRate = decimal.NewFromInt(99)
				again, err := store.GetConfig(ctx, "p1")
				So(err, ShouldBeNil)
				So(again.Tiers[0].TierName, ShouldEqual, "Pref")
				So(again.Tiers[0].HurdleRate.Equal(decimal.NewFromInt(8)), ShouldBeTrue)
			})

			Convey("Then saving again should replace it", func() {
				cfg := sampleConfig("p1")
				cfg.Tiers = cfg.Tiers[1:]
				cfg.Tiers[0].TierNumber = 1
				clock.Advance(time.Hour)
				So(store.SaveConfig(ctx, cfg), ShouldBeNil)
				again, err := store.GetConfig(ctx, "p1")
				So(err, ShouldBeNil)
				So(again.Tiers, ShouldHaveLength, 1)
				So(again.UpdatedAt.Equal(clock.Now()), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When saving without a project id", func() {
			err := store.SaveConfig(ctx, model.WaterfallConfig{})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, ErrMissingProject), ShouldBeTrue)
			})
		})

		Convey("When saving cash flows and a run", func() {
			So(store.SaveCashFlows(ctx, sampleCashFlows("p2")), ShouldBeNil)
			So(store.SaveRun(ctx, &model.WaterfallResult{RunID: "r1", ProjectID: "p2", Mode: types.ModeIRR}), ShouldBeNil)

			cf, err := store.GetCashFlows(ctx, "p2")
			So(err, ShouldBeNil)
			run, err := store.LatestRun(ctx, "p2")
			So(err, ShouldBeNil)

			Convey("Then both should read back", func() {
				So(cf.Periods, ShouldHaveLength, 2)
				So(cf.PeakEquity.Equal(decimal.NewFromInt(1000)), ShouldBeTrue)
				So(run.RunID, ShouldEqual, "r1")
			})

			Convey("Then a newer run should replace the latest", func() {
				So(store.SaveRun(ctx, &model.WaterfallResult{RunID: "r2", ProjectID: "p2"}), ShouldBeNil)
				run, err := store.LatestRun(ctx, "p2")
				So(err, ShouldBeNil)
				So(run.RunID, ShouldEqual, "r2")
			})
		})

		Convey("When saving a layout", func() {
			hidden := false
			l := layout.Layout{Table: "waterfall_distributions", Columns: []layout.ColumnLayout{{Key: "date", Visible: &hidden}}}
			So(store.SaveLayout(ctx, "p3", l), ShouldBeNil)
			hidden = true
			got, err := store.GetLayout(ctx, "p3", "waterfall_distributions")

			Convey("Then it should be stored by value", func() {
				So(err, ShouldBeNil)
				So(*got.Columns[0].Visible, ShouldBeFalse)
			})

			Convey("Then a missing table name should be rejected", func() {
				So(errors.Is(store.SaveLayout(ctx, "p3", layout.Layout{}), ErrMissingTable), ShouldBeTrue)
			})
		})

		Convey("When deleting a project", func() {
			So(store.SaveConfig(ctx, sampleConfig("p4")), ShouldBeNil)
			So(store.SaveCashFlows(ctx, sampleCashFlows("p4")), ShouldBeNil)
			err := store.DeleteProject(ctx, "p4")

			Convey("Then all of its data should be gone", func() {
				So(err, ShouldBeNil)
				_, err := store.GetConfig(ctx, "p4")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 0)
			})

			Convey("Then deleting again should be not found", func() {
				So(errors.Is(store.DeleteProject(ctx, "p4"), ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStoreConcurrency(t *testing.T) {
	Convey("Given concurrent writers and readers", t, func() {
		ctx := context.Background()
		store := NewMemoryStore(ctx)
		defer store.Close()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := []string{"a", "b", "c", "d"}[i%4]
				_ = store.SaveConfig(ctx, sampleConfig(id))
				_, _ = store.GetConfig(ctx, id)
				_ = store.Count(ctx)
			}(i)
		}
		wg.Wait()

		Convey("Then every project should be stored once", func() {
			So(store.Count(ctx), ShouldEqual, 4)
		})

		Convey("Then Close should be idempotent", func() {
			So(store.Close(), ShouldBeNil)
			So(store.Close(), ShouldBeNil)
		})
	})
}
