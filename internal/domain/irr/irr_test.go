package irr_test

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Greggwolin/landscape-sub003/internal/domain/irr"
)

func TestPeriodic(t *testing.T) {
	Convey("Given a default solver", t, func() {
		s := irr.NewSolver()

		Convey("When a single period returns 10%", func() {
			r, err := s.Periodic([]float64{-100, 110})

			Convey("Then the rate is 10%", func() {
				So(err, ShouldBeNil)
				So(r, ShouldAlmostEqual, 0.10, 1e-9)
			})
		})

		Convey("When cash returns after two periods", func() {
			flows := []float64{-100, 0, 121}
			r, err := s.Periodic(flows)

			Convey("Then the npv at the rate is zero", func() {
				So(err, ShouldBeNil)
				So(r, ShouldAlmostEqual, 0.10, 1e-9)
				So(irr.NPV(r, flows), ShouldAlmostEqual, 0, 1e-6)
			})
		})

		Convey("When most capital is lost", func() {
			r, err := s.Periodic([]float64{-100, 10})

			Convey("Then bisection finds the deep negative root", func() {
				So(err, ShouldBeNil)
				So(r, ShouldAlmostEqual, -0.9, 1e-8)
			})
		})

		Convey("When Newton starts far away", func() {
			far := irr.NewSolver(irr.WithGuess(5))
			r, err := far.Periodic([]float64{-100, 0, 0, 0, 400})

			Convey("Then it still lands on the root", func() {
				So(err, ShouldBeNil)
				So(r, ShouldAlmostEqual, math.Sqrt(2)-1, 1e-8)
			})
		})

		Convey("When there is no sign change", func() {
			_, err := s.Periodic([]float64{-100, -5, 0})

			Convey("Then it reports no convergence", func() {
				So(errors.Is(err, irr.ErrNoConvergence), ShouldBeTrue)
				var cerr *irr.ConvergenceError
				So(errors.As(err, &cerr), ShouldBeTrue)
				So(cerr.Method, ShouldEqual, "periodic")
				So(err.Error(), ShouldContainSubstring, "sign change")
			})
		})

		Convey("When the series is empty", func() {
			_, err := s.Periodic(nil)

			Convey("Then it reports no convergence", func() {
				So(errors.Is(err, irr.ErrNoConvergence), ShouldBeTrue)
			})
		})
	})
}

func TestAnnualized(t *testing.T) {
	Convey("Given monthly flows earning 1% a month", t, func() {
		s := irr.NewSolver()
		r, err := s.Annualized([]float64{-1000, 1010}, 12)

		Convey("Then the annual rate compounds twelve times", func() {
			So(err, ShouldBeNil)
			So(r, ShouldAlmostEqual, math.Pow(1.01, 12)-1, 1e-9)
		})
	})
}

func TestXIRR(t *testing.T) {
	Convey("Given dated flows", t, func() {
		s := irr.NewSolver(irr.WithTolerance(1e-12), irr.WithMaxIterations(500))
		start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
		flows := []irr.DatedFlow{
			{Date: start.AddDate(1, 0, 0), Amount: 1100},
			{Date: start, Amount: -1000},
		}

		Convey("When a leap year separates them", func() {
			r, err := s.XIRR(flows)

			Convey("Then Actual/365 is used", func() {
				So(err, ShouldBeNil)
				So(r, ShouldAlmostEqual, math.Pow(1.1, 365.0/366.0)-1, 1e-8)
			})

			Convey("Then XNPV from the first date is zero", func() {
				sorted := []irr.DatedFlow{flows[1], flows[0]}
				So(irr.XNPV(r, sorted), ShouldAlmostEqual, 0, 1e-6)
			})
		})

		Convey("When there are no flows", func() {
			_, err := s.XIRR(nil)

			Convey("Then it fails", func() {
				So(errors.Is(err, irr.ErrNoConvergence), ShouldBeTrue)
			})
		})
	})
}
