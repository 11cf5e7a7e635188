// Package irr solves internal rates of return over signed cash-flow series.
//
// Newton-Raphson runs first from the configured guess; if it leaves the
// domain or stalls, bisection takes over on a bracket that is widened until
// the NPV changes sign. Every root is checked against the NPV before it is
// returned.
package irr

import (
	"math"
	"time"
)

const (
	defaultMaxIterations = 200
	defaultTolerance     = 1e-10
	defaultGuess         = 0.01
	lowerBound           = -0.9999
	daysPerYear          = 365.0
)

// DatedFlow is a cash flow on a calendar date.
type DatedFlow struct {
	Date   time.Time
	Amount float64
}

// Solver finds IRRs within a fixed iteration budget.
type Solver struct {
	maxIterations int
	tolerance     float64
	guess         float64
}

// Option configures a Solver.
type Option func(*Solver)

// WithMaxIterations caps Newton and bisection steps, each.
func WithMaxIterations(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// WithTolerance sets the rate tolerance.
func WithTolerance(tol float64) Option {
	return func(s *Solver) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// WithGuess sets the Newton starting rate.
func WithGuess(g float64) Option {
	return func(s *Solver) {
		if g > lowerBound {
			s.guess = g
		}
	}
}

// NewSolver returns a Solver with defaults overridden by opts.
func NewSolver(opts ...Option) *Solver {
	s := &Solver{
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
		guess:         defaultGuess,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NPV discounts flows at a periodic rate; flows[0] is undiscounted.
func NPV(rate float64, flows []float64) float64 {
	var v float64
	for t, cf := range flows {
		v += cf / math.Pow(1+rate, float64(t))
	}
	return v
}

// XNPV discounts dated flows at an annual rate on an Actual/365 basis from the first date.
func XNPV(rate float64, flows []DatedFlow) float64 {
	if len(flows) == 0 {
		return 0
	}
	t0 := flows[0].Date
	var v float64
	for _, f := range flows {
		v += f.Amount / math.Pow(1+rate, yearFrac(t0, f.Date))
	}
	return v
}

// Periodic solves the per-period rate of flows.
func (s *Solver) Periodic(flows []float64) (float64, error) {
	times := make([]float64, len(flows))
	for i := range flows {
		times[i] = float64(i)
	}
	return s.solve("periodic", flows, times)
}

// Annualized solves the per-period rate and compounds it over periodsPerYear.
func (s *Solver) Annualized(flows []float64, periodsPerYear int) (float64, error) {
	r, err := s.Periodic(flows)
	if err != nil {
		return 0, err
	}
	return math.Pow(1+r, float64(periodsPerYear)) - 1, nil
}

// XIRR solves the annual rate of dated flows. Flows need not be sorted.
func (s *Solver) XIRR(flows []DatedFlow) (float64, error) {
	if len(flows) == 0 {
		return 0, &ConvergenceError{Method: "xirr", Reason: "empty series"}
	}
	t0 := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(t0) {
			t0 = f.Date
		}
	}
	amounts := make([]float64, len(flows))
	times := make([]float64, len(flows))
	for i, f := range flows {
		amounts[i] = f.Amount
		times[i] = yearFrac(t0, f.Date)
	}
	return s.solve("xirr", amounts, times)
}

func yearFrac(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / daysPerYear
}

func (s *Solver) solve(method string, amounts, times []float64) (float64, error) {
	var pos, neg bool
	var scale float64
	for _, a := range amounts {
		switch {
		case a > 0:
			pos = true
		case a < 0:
			neg = true
		}
		scale += math.Abs(a)
	}
	if !pos || !neg {
		return 0, &ConvergenceError{Method: method, Reason: "cash flows have no sign change"}
	}

	npv := func(r float64) float64 {
		var v float64
		for i, a := range amounts {
			v += a / math.Pow(1+r, times[i])
		}
		return v
	}
	dnpv := func(r float64) float64 {
		var v float64
		for i, a := range amounts {
			v -= times[i] * a / math.Pow(1+r, times[i]+1)
		}
		return v
	}
	ok := func(r float64) bool {
		return !math.IsNaN(r) && !math.IsInf(r, 0) && r > lowerBound && math.Abs(npv(r)) <= 1e-6*scale
	}

	r := s.guess
	for i := 0; i < s.maxIterations; i++ {
		f, df := npv(r), dnpv(r)
		if df == 0 || math.IsNaN(f) || math.IsNaN(df) {
			break
		}
		next := r - f/df
		if next <= lowerBound || math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		if math.Abs(next-r) < s.tolerance {
			if ok(next) {
				return next, nil
			}
			break
		}
		r = next
	}

	lo, hi := -0.5, 1.0
	flo, fhi := npv(lo), npv(hi)
	for i := 0; flo*fhi > 0; i++ {
		if i >= s.maxIterations || math.IsInf(hi, 0) {
			return 0, &ConvergenceError{Method: method, Iterations: i, Reason: "no bracketing interval found"}
		}
		lo, hi = (lo+lowerBound)/2, hi*2
		flo, fhi = npv(lo), npv(hi)
	}
	if math.IsNaN(flo * fhi) {
		return 0, &ConvergenceError{Method: method, Reason: "npv is undefined on the bracket"}
	}
	if flo == 0 && ok(lo) {
		return lo, nil
	}
	for i := 0; i < s.maxIterations; i++ {
		mid := (lo + hi) / 2
		fm := npv(mid)
		if fm == 0 || (hi-lo)/2 < s.tolerance {
			if ok(mid) {
				return mid, nil
			}
			return 0, &ConvergenceError{Method: method, Iterations: i + 1, Reason: "bisection root failed the npv check"}
		}
		if fm*flo < 0 {
			hi = mid
		} else {
			lo, flo = mid, fm
		}
	}
	return 0, &ConvergenceError{Method: method, Iterations: s.maxIterations, Reason: "iteration budget exhausted"}
}
