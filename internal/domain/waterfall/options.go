package waterfall

import "github.com/shopspring/decimal"

// Option configures a single allocation.
type Option func(*allocator)

// WithGPContributionPct sets the GP share (0-100) of capital calls inferred from negative cash flows.
func WithGPContributionPct(pct decimal.Decimal) Option {
	return func(a *allocator) {
		if !pct.IsNegative() && pct.LessThanOrEqual(hundred) {
			a.gpContributionPct = pct
		}
	}
}

// WithPeakEquity sets the capital assumed contributed at period 0 when no contributions are supplied.
func WithPeakEquity(amount decimal.Decimal) Option {
	return func(a *allocator) {
		if amount.IsPositive() {
			a.peakEquity = amount
		}
	}
}
