package scenario_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/http/api"
	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/scenario"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const residualYAML = `
name: residual
input:
  tiers:
    - tierNumber: 1
      tierName: Residual
      hurdleType: null
      lpSplitPct: 90
      gpSplitPct: 10
  periods:
    - {periodIndex: 0, date: 2024-01-31, cashFlow: 100}
    - {periodIndex: 1, date: 2024-02-29, cashFlow: 100}
    - {periodIndex: 2, date: 2024-03-31, cashFlow: 100}
  contributions:
    - {partnerType: LP, amount: 300, periodIndex: 0}
  gpContributionPct: 0
  peakEquity: 300
`

const napkinJSON = `{
  "name": "napkin",
  "granularity": "annual",
  "napkin": {"prefRate": 8, "gpContributionPct": 10, "promotes": [{"hurdleRate": 12, "gpPromotePct": 20}], "residualGpPromotePct": 30},
  "input": {
    "tiers": [],
    "periods": [{"periodIndex": 0, "cashFlow": -1000}, {"periodIndex": 1, "cashFlow": 400}, {"periodIndex": 2, "cashFlow": 900}],
    "contributions": [],
    "gpContributionPct": 0,
    "peakEquity": 1000
  }
}`

func newService() *service.Service {
	return service.New(service.WithWorkerCount(1))
}

func TestParse(t *testing.T) {
	Convey("Given scenario documents", t, func() {
		Convey("When a YAML scenario uses bare dates and a null hurdle", func() {
			sc, err := scenario.Parse([]byte(residualYAML))

			Convey("Then it should decode into a run input", func() {
				So(err, ShouldBeNil)
				So(sc.Name, ShouldEqual, "residual")
				So(sc.Input.Tiers, ShouldHaveLength, 1)
				So(sc.Input.Tiers[0].HurdleType, ShouldEqual, types.HurdleNone)
				So(sc.Input.Tiers[0].LPSplitPct.String(), ShouldEqual, "90")
				So(sc.Input.Periods, ShouldHaveLength, 3)
				So(sc.Input.Periods[1].Date, ShouldEqual, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC))
				So(sc.Input.Contributions[0].PartnerType, ShouldEqual, types.PartnerLP)
			})
		})

		Convey("When a JSON scenario carries a napkin form", func() {
			sc, err := scenario.Parse([]byte(napkinJSON))
			So(err, ShouldBeNil)
			in, err := sc.Resolve()

			Convey("Then resolving should build the tiers from the form", func() {
				So(err, ShouldBeNil)
				So(sc.Granularity, ShouldEqual, types.Annual)
				So(in.Tiers, ShouldHaveLength, 3)
				So(in.GPContributionPct.String(), ShouldEqual, "10")
				So(in.Tiers[2].IsResidual(), ShouldBeTrue)
			})
		})

		Convey("When a field is unknown", func() {
			_, err := scenario.Parse([]byte("name: x\ninput: {tiers: [], peakEquityy: 3}\n"))

			Convey("Then the scenario should be rejected", func() {
				So(errors.Is(err, scenario.ErrInvalidScenario), ShouldBeTrue)
			})
		})

		Convey("When the document is empty", func() {
			_, err := scenario.Parse([]byte("   \n"))

			Convey("Then the scenario should be rejected", func() {
				So(errors.Is(err, scenario.ErrInvalidScenario), ShouldBeTrue)
			})
		})

		Convey("When a scenario has neither tiers nor a napkin form", func() {
			sc, err := scenario.Parse([]byte("input: {tiers: [], periods: []}\n"))
			So(err, ShouldBeNil)
			_, err = sc.Resolve()

			Convey("Then resolving should fail", func() {
				So(err, ShouldEqual, scenario.ErrEmptyScenario)
			})
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a scenario file without a name", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "deal-a.yaml")
		So(os.WriteFile(path, []byte("input:\n  tiers: [{tierNumber: 1, tierName: R, hurdleType: null, lpSplitPct: 80, gpSplitPct: 20}]\n"), 0o600), ShouldBeNil)

		Convey("When it is loaded", func() {
			sc, err := scenario.Load(path)

			Convey("Then the name should default to the file name", func() {
				So(err, ShouldBeNil)
				So(sc.Name, ShouldEqual, "deal-a")
			})
		})

		Convey("When a missing file is loaded", func() {
			_, err := scenario.Load(filepath.Join(dir, "missing.yaml"))

			Convey("Then an error should be returned", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When a generated scenario is written and read back", func() {
			sc := scenario.NewGenerator(7).Next("roundtrip")
			data, err := scenario.Marshal(&sc)
			So(err, ShouldBeNil)
			back, err := scenario.Parse(data)

			Convey("Then it should fingerprint the same inputs", func() {
				So(err, ShouldBeNil)
				So(back.Name, ShouldEqual, "roundtrip")
				So(back.Input.Periods, ShouldHaveLength, len(sc.Input.Periods))
				So(back.Input.Periods[3].CashFlow.Equal(sc.Input.Periods[3].CashFlow), ShouldBeTrue)
				So(back.Input.Periods[3].Date.Equal(sc.Input.Periods[3].Date), ShouldBeTrue)
				So(back.Input.Tiers[0].HurdleRate.Equal(*sc.Input.Tiers[0].HurdleRate), ShouldBeTrue)
			})
		})
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given two generators with the same seed", t, func() {
		a := scenario.NewGenerator(42).Generate(5)
		b := scenario.NewGenerator(42).Generate(5)

		Convey("Then they should produce the same deals", func() {
			for i := range a {
				So(a[i].Name, ShouldEqual, b[i].Name)
				So(len(a[i].Input.Periods), ShouldEqual, len(b[i].Input.Periods))
				So(a[i].Input.PeakEquity.Equal(b[i].Input.PeakEquity), ShouldBeTrue)
			}
		})
	})

	Convey("Given many generated deals run through the service", t, func() {
		ctx := context.Background()
		svc := newService()
		scenarios := scenario.NewGenerator(2024).Generate(40)

		Convey("Then every run should succeed and satisfy the waterfall invariants", func() {
			for _, sc := range scenarios {
				in, err := sc.Resolve()
				So(err, ShouldBeNil)
				res, err := svc.Run(ctx, in)
				So(err, ShouldBeNil)
				report := scenario.Verify(sc.Name, in, res)
				So(report.Violations, ShouldBeEmpty)
				So(report.OK(), ShouldBeTrue)
			}
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given the residual 90/10 scenario run through the service", t, func() {
		ctx := context.Background()
		sc, err := scenario.Parse([]byte(residualYAML))
		So(err, ShouldBeNil)
		in, err := sc.Resolve()
		So(err, ShouldBeNil)
		res, err := newService().Run(ctx, in)
		So(err, ShouldBeNil)

		Convey("Then each period should split 90/10 and verify clean", func() {
			for _, row := range res.PeriodDistributions {
				So(row.LPDist.String(), ShouldEqual, "90")
				So(row.GPDist.String(), ShouldEqual, "10")
			}
			So(scenario.Verify(sc.Name, in, res).OK(), ShouldBeTrue)
			So(scenario.Partner(res, types.PartnerLP).TotalDistributed.String(), ShouldEqual, "270")
		})

		Convey("When a row pays more than its cash flow", func() {
			tampered := *res
			tampered.PeriodDistributions = append([]model.PeriodDistribution(nil), res.PeriodDistributions...)
			row := tampered.PeriodDistributions[1]
			row.Tiers = []model.TierDistribution{{TierNumber: 1, LPShare: decimal.NewFromInt(95), GPShare: decimal.NewFromInt(15)}}
			row.LPDist, row.GPDist = decimal.NewFromInt(95), decimal.NewFromInt(15)
			tampered.PeriodDistributions[1] = row
			report := scenario.Verify(sc.Name, in, &tampered)

			Convey("Then over-distribution and the rerun mismatch should be reported", func() {
				So(report.OK(), ShouldBeFalse)
				props := map[string]bool{}
				for _, v := range report.Violations {
					props[v.Property] = true
				}
				So(props[scenario.PropertyOverDistributed], ShouldBeTrue)
				So(props[scenario.PropertyIdempotent], ShouldBeTrue)
			})
		})

		Convey("When the summary multiple and a tier split are wrong", func() {
			tampered := *res
			tampered.ProjectSummary.EquityMultiple = decimal.NewFromInt(3)
			tampered.TierDefinitions = []model.TierDefinition{{TierNumber: 1, LPSplitPct: decimal.NewFromInt(90), GPSplitPct: decimal.NewFromInt(5)}}
			report := scenario.Verify(sc.Name, in, &tampered)

			Convey("Then both properties should be reported", func() {
				props := map[string]bool{}
				for _, v := range report.Violations {
					props[v.Property] = true
					So(v.String(), ShouldNotBeEmpty)
				}
				So(props[scenario.PropertyEquityMultiple], ShouldBeTrue)
				So(props[scenario.PropertySplits], ShouldBeTrue)
			})
		})

		Convey("When there is no result", func() {
			Convey("Then verification should fail", func() {
				So(scenario.Verify(sc.Name, in, nil).OK(), ShouldBeFalse)
			})
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a running waterfall server", t, func() {
		ctx := context.Background()
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		ts := httptest.NewServer(api.NewServer(svc).Routes())
		defer ts.Close()
		client := scenario.NewClient(ts.URL, scenario.WithTimeout(5*time.Second))

		Convey("When waiting for health", func() {
			Convey("Then the server should report healthy", func() {
				So(client.WaitHealthy(ctx, 3), ShouldBeNil)
			})
		})

		Convey("When a tier scenario is submitted", func() {
			sc, err := scenario.Parse([]byte(residualYAML))
			So(err, ShouldBeNil)
			out, err := client.Submit(ctx, *sc)

			Convey("Then the remote summary should match the local run", func() {
				So(err, ShouldBeNil)
				So(out.Periods, ShouldHaveLength, 3)
				So(out.ProjectSummary.TotalDistributed, ShouldEqual, 300.0)
				So(out.Notices, ShouldNotBeNil)
			})
		})

		Convey("When a napkin scenario is submitted", func() {
			sc, err := scenario.Parse([]byte(napkinJSON))
			So(err, ShouldBeNil)
			out, err := client.Submit(ctx, *sc)

			Convey("Then the annual view should come back", func() {
				So(err, ShouldBeNil)
				So(out.Granularity, ShouldEqual, "annual")
				So(out.Partners, ShouldHaveLength, 2)
			})
		})

		Convey("When the server rejects the tiers", func() {
			sc, err := scenario.Parse([]byte(residualYAML))
			So(err, ShouldBeNil)
			sc.Input.Tiers[0].GPSplitPct = decimal.NewFromInt(20)
			_, err = client.Submit(ctx, *sc)

			Convey("Then the remote error should carry the field problems", func() {
				var rerr *scenario.RemoteError
				So(errors.As(err, &rerr), ShouldBeTrue)
				So(errors.Is(err, scenario.ErrRemote), ShouldBeTrue)
				So(rerr.Status, ShouldEqual, 422)
				So(rerr.Code, ShouldEqual, "configuration_error")
				So(rerr.Fields, ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given no server listening", t, func() {
		ts := httptest.NewServer(nil)
		url := ts.URL
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		Convey("Then waiting for health should give up", func() {
			So(scenario.NewClient(url).WaitHealthy(ctx, 2), ShouldNotBeNil)
		})
	})
}
