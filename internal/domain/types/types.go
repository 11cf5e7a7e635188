// Package types contains the enumerations shared across the application.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartnerType identifies an equity class receiving distributions.
type PartnerType string

// Partner classes.
const (
	PartnerLP PartnerType = "LP"
	PartnerGP PartnerType = "GP"
)

// ParsePartnerType accepts LP/GP in any case.
func ParsePartnerType(s string) (PartnerType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LP":
		return PartnerLP, nil
	case "GP":
		return PartnerGP, nil
	}
	return "", fmt.Errorf("unknown partner type %q", s)
}

// UnmarshalJSON rejects anything other than LP or GP.
func (p *PartnerType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("partner type must be a string: %w", err)
	}
	v, err := ParsePartnerType(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// HurdleType selects how a tier measures its threshold.
// The zero value is a residual tier with no hurdle.
type HurdleType string

// Hurdle kinds.
const (
	HurdleNone           HurdleType = ""
	HurdleIRR            HurdleType = "IRR"
	HurdleEquityMultiple HurdleType = "equity_multiple"
)

// IsHurdle reports whether the tier stops at a threshold.
func (h HurdleType) IsHurdle() bool {
	return h == HurdleIRR || h == HurdleEquityMultiple
}

// ParseHurdleType accepts the API spellings plus a few aliases used by the forms.
func ParseHurdleType(s string) (HurdleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "residual":
		return HurdleNone, nil
	case "irr":
		return HurdleIRR, nil
	case "equity_multiple", "em", "multiple":
		return HurdleEquityMultiple, nil
	}
	return "", fmt.Errorf("unknown hurdle type %q", s)
}

// MarshalJSON writes residual tiers as null.
func (h HurdleType) MarshalJSON() ([]byte, error) {
	if h == HurdleNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(h))
}

// UnmarshalJSON accepts null for residual tiers.
func (h *HurdleType) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*h = HurdleNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("hurdle type must be a string or null: %w", err)
	}
	v, err := ParseHurdleType(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ModeKind is the wire name of a waterfall mode.
type ModeKind string

// Waterfall modes.
const (
	ModeIRR    ModeKind = "irr"
	ModeEM     ModeKind = "equity_multiple"
	ModeHybrid ModeKind = "hybrid"
)

// Granularity controls how period rows are bucketed for display.
type Granularity string

// Supported granularities.
const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Annual    Granularity = "annual"
)

// ParseGranularity defaults to monthly on empty input.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "month":
		return Monthly, nil
	case "quarterly", "quarter":
		return Quarterly, nil
	case "annual", "annually", "yearly", "year":
		return Annual, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// IRRMethod selects the return solver.
type IRRMethod string

// Solver methods.
const (
	IRRPeriodic IRRMethod = "periodic"
	IRRXIRR     IRRMethod = "xirr"
)

// ParseIRRMethod defaults to periodic on empty input.
func ParseIRRMethod(s string) (IRRMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "periodic", "monthly":
		return IRRPeriodic, nil
	case "xirr", "dated":
		return IRRXIRR, nil
	}
	return "", fmt.Errorf("unknown irr method %q", s)
}
