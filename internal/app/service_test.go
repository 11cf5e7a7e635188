package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tealeg/xlsx/v2"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/export"
	"github.com/Greggwolin/landscape-sub003/internal/adapters/repository"
	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func prefTiers() []model.TierDefinition {
	rate := d("8")
	return []model.TierDefinition{
		{TierNumber: 1, TierName: "Preferred Return", HurdleType: types.HurdleIRR, HurdleRate: &rate, LPSplitPct: d("90"), GPSplitPct: d("10")},
		{TierNumber: 2, TierName: "Residual", LPSplitPct: d("70"), GPSplitPct: d("30")},
	}
}

func periods(amounts ...string) []model.PeriodCashFlow {
	out := make([]model.PeriodCashFlow, len(amounts))
	for i, a := range amounts {
		out[i] = model.PeriodCashFlow{
			PeriodIndex: i,
			Date:        time.Date(2025, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC),
			CashFlow:    d(a),
		}
	}
	return out
}

func input(projectID string) model.RunInput {
	return model.RunInput{
		ProjectID:         projectID,
		Tiers:             prefTiers(),
		Periods:           periods("-1000", "0", "0", "0", "0", "1500"),
		GPContributionPct: d("10"),
	}
}

// slowStore blocks config reads for one project until release is closed.
type slowStore struct {
	repository.Store
	release chan struct{}
}

func (s *slowStore) GetConfig(ctx context.Context, projectID string) (model.WaterfallConfig, error) {
	if projectID == "slow" {
		<-s.release
	}
	return s.Store.GetConfig(ctx, projectID)
}

// runHistory keeps every saved run and reads back the newest by ComputedAt,
// later saves winning ties, like the postgres store.
type runHistory struct {
	repository.Store
	mu   sync.Mutex
	runs []*model.WaterfallResult
}

func (h *runHistory) SaveRun(_ context.Context, res *model.WaterfallResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.runs {
		if r.RunID == res.RunID {
			return nil
		}
	}
	cp := *res
	h.runs = append(h.runs, &cp)
	return nil
}

func (h *runHistory) LatestRun(_ context.Context, projectID string) (*model.WaterfallResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var latest *model.WaterfallResult
	for _, r := range h.runs {
		if r.ProjectID == projectID && (latest == nil || !r.ComputedAt.Before(latest.ComputedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func TestService_LatestFollowsCurrentConfig(t *testing.T) {
	Convey("Given a project whose runs are kept as history", t, func() {
		ctx := context.Background()
		clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
		store := &runHistory{Store: repository.NewMemoryStore(ctx, repository.WithClock(clock))}
		svc := service.New(service.WithStore(store), service.WithClock(clock), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		cfgA := model.WaterfallConfig{ProjectID: "p1", Tiers: prefTiers(), GPContributionPct: d("10")}
		cfgB := model.WaterfallConfig{ProjectID: "p1", Tiers: prefTiers(), GPContributionPct: d("20")}
		So(store.SaveCashFlows(ctx, model.CashFlowSummary{ProjectID: "p1", Periods: periods("-1000", "0", "0", "0", "0", "1500")}), ShouldBeNil)

		Convey("When the config goes A, B, then back to A", func() {
			So(store.SaveConfig(ctx, cfgA), ShouldBeNil)
			runA, err := svc.RunProject(ctx, "p1")
			So(err, ShouldBeNil)

			clock.Advance(time.Minute)
			So(store.SaveConfig(ctx, cfgB), ShouldBeNil)
			runB, err := svc.RunProject(ctx, "p1")
			So(err, ShouldBeNil)

			clock.Advance(time.Minute)
			So(store.SaveConfig(ctx, cfgA), ShouldBeNil)
			rerunA, err := svc.RunProject(ctx, "p1")
			So(err, ShouldBeNil)

			Convey("Then the cached rerun should be stored as the newest run", func() {
				So(rerunA.Fingerprint, ShouldEqual, runA.Fingerprint)
				So(rerunA.RunID, ShouldNotEqual, runA.RunID)

				latest, err := store.LatestRun(ctx, "p1")
				So(err, ShouldBeNil)
				So(latest.RunID, ShouldEqual, rerunA.RunID)

				got, err := svc.LatestResult(ctx, "p1")
				So(err, ShouldBeNil)
				So(got.Fingerprint, ShouldEqual, runA.Fingerprint)
				So(got.Fingerprint, ShouldNotEqual, runB.Fingerprint)
			})
		})

		Convey("When the config changes after the last stored run", func() {
			So(store.SaveConfig(ctx, cfgA), ShouldBeNil)
			runA, err := svc.RunProject(ctx, "p1")
			So(err, ShouldBeNil)
			So(store.SaveConfig(ctx, cfgB), ShouldBeNil)

			got, err := svc.LatestResult(ctx, "p1")

			Convey("Then the latest result should be recomputed for the new config", func() {
				So(err, ShouldBeNil)
				So(got.Fingerprint, ShouldNotEqual, runA.Fingerprint)
				for _, p := range got.PartnerSummaries {
					if p.PartnerType == types.PartnerGP {
						So(p.TotalContributed.Equal(d("200")), ShouldBeTrue)
					}
				}
			})
		})
	})
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report sensible defaults", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["irrMethod"], ShouldEqual, "periodic")
			So(svc.DefaultGranularity(), ShouldEqual, types.Monthly)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(8),
			service.WithCacheSize(4),
			service.WithBatchConcurrency(2),
			service.WithIRRMethod(types.IRRXIRR),
			service.WithDefaultGranularity(types.Quarterly),
		)

		Convey("Then the options should apply", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueSize"], ShouldEqual, 8)
			So(stats["cacheSize"], ShouldEqual, 4)
			So(stats["irrMethod"], ShouldEqual, "xirr")
			So(svc.DefaultGranularity(), ShouldEqual, types.Quarterly)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(1))
		ctx := context.Background()

		Convey("When project operations run before Start", func() {
			_, err := svc.GetConfig(ctx, "p1")
			_, qerr := svc.EnqueueRecompute(ctx, "p1", service.ReasonRequested)

			Convey("Then they should fail with ErrNotStarted", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(qerr, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When starting and stopping", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["totalProjects"], ShouldEqual, 0)
			svc.Stop()
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a service on a fake clock", t, func() {
		clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
		svc := service.New(service.WithClock(clock))
		ctx := context.Background()

		Convey("When running an ad-hoc scenario", func() {
			res, err := svc.Run(ctx, input(""))
			So(err, ShouldBeNil)

			Convey("Then the result should be complete", func() {
				So(res.RunID, ShouldNotBeEmpty)
				So(res.Fingerprint, ShouldHaveLength, 64)
				So(res.Mode, ShouldEqual, types.ModeIRR)
				So(res.ComputedAt.Equal(clock.Now()), ShouldBeTrue)
				So(res.PeriodDistributions, ShouldHaveLength, 6)
				So(res.PartnerSummaries, ShouldHaveLength, 2)
				So(res.TierSummaries, ShouldHaveLength, 2)
				So(res.ProjectSummary.TotalDistributed.Equal(d("1500")), ShouldBeTrue)
			})

			Convey("Then rerunning the same input should hit the cache", func() {
				clock.Advance(time.Minute)
				again, err := svc.Run(ctx, input(""))
				So(err, ShouldBeNil)
				So(again.Fingerprint, ShouldEqual, res.Fingerprint)
				So(again.RunID, ShouldNotEqual, res.RunID)
				So(again.ComputedAt.Equal(clock.Now()), ShouldBeTrue)
				So(res.ComputedAt.Equal(clock.Now()), ShouldBeFalse)
				stats := svc.GetStats()
				So(stats["runs"], ShouldEqual, int64(1))
				So(stats["cacheHits"], ShouldEqual, int64(1))
			})

			Convey("Then a changed input should compute again", func() {
				in := input("")
				in.Periods[5].CashFlow = d("1600")
				other, err := svc.Run(ctx, in)
				So(err, ShouldBeNil)
				So(other.Fingerprint, ShouldNotEqual, res.Fingerprint)
			})

			Convey("Then a quarterly view should bucket the table but keep the result", func() {
				view := svc.View(res, types.Quarterly)
				So(view.PeriodDistributions, ShouldHaveLength, 2)
				So(res.PeriodDistributions, ShouldHaveLength, 6)
				So(svc.View(res, types.Monthly), ShouldEqual, res)
			})
		})

		Convey("When the tiers are invalid", func() {
			in := input("")
			in.Tiers[0].GPSplitPct = d("20")
			_, err := svc.Run(ctx, in)

			Convey("Then it should fail with a configuration error", func() {
				So(errors.Is(err, waterfall.ErrInvalidConfiguration), ShouldBeTrue)
				So(svc.GetStats()["rejectedConfigs"], ShouldEqual, int64(1))
			})
		})

		Convey("When GP ownership is out of range", func() {
			in := input("")
			in.GPContributionPct = d("150")
			_, err := svc.Run(ctx, in)

			Convey("Then it should fail with a configuration error", func() {
				var cerr *waterfall.ConfigurationError
				So(errors.As(err, &cerr), ShouldBeTrue)
				So(cerr.Fields[0].Field, ShouldEqual, "gpContributionPct")
			})
		})

		Convey("When running a batch with one bad scenario", func() {
			bad := input("")
			bad.Tiers = nil
			items, err := svc.RunBatch(ctx, []model.RunInput{input("a"), bad, input("c")})

			Convey("Then every item should report its own outcome", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 3)
				So(items[0].Err, ShouldBeNil)
				So(items[0].Result.ProjectID, ShouldEqual, "a")
				So(errors.Is(items[1].Err, waterfall.ErrInvalidConfiguration), ShouldBeTrue)
				So(items[2].Result.ProjectID, ShouldEqual, "c")
			})
		})

		Convey("When running an empty batch", func() {
			_, err := svc.RunBatch(ctx, nil)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrEmptyBatch), ShouldBeTrue)
			})
		})

		Convey("When running a napkin form", func() {
			form := waterfall.NapkinInput{
				PrefRate:             d("8"),
				GPContributionPct:    d("10"),
				Promotes:             []waterfall.Promote{{HurdleRate: d("12"), GPPromotePct: d("20")}},
				ResidualGPPromotePct: d("30"),
			}
			tiers, res, err := svc.Napkin(ctx, form, input(""))

			Convey("Then the generated tiers should drive the run", func() {
				So(err, ShouldBeNil)
				So(tiers, ShouldHaveLength, 3)
				So(res.TierDefinitions, ShouldHaveLength, 3)
				So(tiers[2].IsResidual(), ShouldBeTrue)
			})
		})
	})
}

func TestService_Projects(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		// One worker keeps background recomputes in enqueue order.
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		cfg := model.WaterfallConfig{ProjectID: "p1", Tiers: prefTiers(), GPContributionPct: d("10")}
		cf := model.CashFlowSummary{ProjectID: "p1", Periods: periods("-1000", "0", "0", "0", "0", "1500")}

		Convey("When the project does not exist", func() {
			_, err := svc.LatestResult(ctx, "missing")

			Convey("Then it should be not found", func() {
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When saving an invalid configuration", func() {
			bad := cfg
			bad.Tiers = []model.TierDefinition{{TierNumber: 1, LPSplitPct: d("50"), GPSplitPct: d("40")}}
			_, err := svc.SaveConfig(ctx, bad)

			Convey("Then nothing should be stored", func() {
				So(errors.Is(err, waterfall.ErrInvalidConfiguration), ShouldBeTrue)
				_, err := svc.GetConfig(ctx, "p1")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When saving inputs and running", func() {
			saved, err := svc.SaveConfig(ctx, cfg)
			So(err, ShouldBeNil)
			So(saved.Tiers, ShouldHaveLength, 2)
			_, err = svc.SaveCashFlows(ctx, cf)
			So(err, ShouldBeNil)

			res, err := svc.RunProject(ctx, "p1")
			So(err, ShouldBeNil)

			Convey("Then the latest result should be the stored run", func() {
				latest, err := svc.LatestResult(ctx, "p1")
				So(err, ShouldBeNil)
				So(latest.Fingerprint, ShouldEqual, res.Fingerprint)
				So(latest.ProjectID, ShouldEqual, "p1")
			})

			Convey("Then the export should be a readable workbook", func() {
				var buf bytes.Buffer
				So(svc.Export(ctx, &buf, "p1", types.Annual), ShouldBeNil)
				f, err := xlsx.OpenBinary(buf.Bytes())
				So(err, ShouldBeNil)
				So(f.Sheets, ShouldHaveLength, 3)
			})

			Convey("Then a layout can hide a column", func() {
				hidden := false
				l := layout.Layout{Table: export.DistributionsTable, Columns: []layout.ColumnLayout{{Key: "date", Visible: &hidden}}}
				_, err := svc.SaveLayout(ctx, "p1", l)
				So(err, ShouldBeNil)

				view, err := svc.GetLayout(ctx, "p1", export.DistributionsTable)
				So(err, ShouldBeNil)
				for _, c := range view.Columns {
					So(c.Key, ShouldNotEqual, "date")
				}
				So(view.Columns[0].Key, ShouldEqual, "period")
			})

			Convey("Then a layout naming an unknown column should be rejected", func() {
				l := layout.Layout{Table: export.DistributionsTable, Columns: []layout.ColumnLayout{{Key: "irr"}}}
				_, err := svc.SaveLayout(ctx, "p1", l)
				So(errors.Is(err, layout.ErrInvalidLayout), ShouldBeTrue)
			})

			Convey("Then deleting removes everything", func() {
				So(svc.DeleteProject(ctx, "p1"), ShouldBeNil)
				_, err := svc.GetConfig(ctx, "p1")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a project has no cash flows", func() {
			_, err := svc.SaveConfig(ctx, cfg)
			So(err, ShouldBeNil)
			res, err := svc.RunProject(ctx, "p1")

			Convey("Then the run should carry a data notice", func() {
				So(err, ShouldBeNil)
				So(res.PeriodDistributions, ShouldBeEmpty)
				codes := make([]string, 0, len(res.Notices))
				for _, n := range res.Notices {
					codes = append(codes, n.Code)
				}
				So(codes, ShouldContain, model.NoticeDataUnavailable)
			})
		})

		Convey("When the cash flows are malformed", func() {
			bad := cf
			bad.Contributions = []model.PartnerContribution{{PartnerType: types.PartnerLP, Amount: d("100"), PeriodIndex: 42}}
			_, err := svc.SaveCashFlows(ctx, bad)

			Convey("Then they should be rejected", func() {
				So(errors.Is(err, waterfall.ErrInvalidConfiguration), ShouldBeTrue)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a service whose only worker is stuck", t, func() {
		ctx := context.Background()
		store := &slowStore{Store: repository.NewMemoryStore(ctx), release: make(chan struct{})}
		svc := service.New(service.WithStore(store), service.WithWorkerCount(1), service.WithQueueSize(1))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When recomputes keep arriving", func() {
			var rejected error
			for i := 0; i < 5 && rejected == nil; i++ {
				_, rejected = svc.EnqueueRecompute(ctx, "slow", service.ReasonRequested)
			}
			close(store.release)
			svc.Stop()

			Convey("Then the queue should push back", func() {
				So(errors.Is(rejected, service.ErrBackpressure), ShouldBeTrue)
			})
		})
	})
}
