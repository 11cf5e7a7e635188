package waterfall

import (
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// Mode is the waterfall variant a tier set belongs to. It is classified once
// and consumers switch on the concrete type.
type Mode interface {
	Kind() types.ModeKind
	isMode()
}

// IrrWaterfall has only IRR hurdles (or none at all).
type IrrWaterfall struct {
	HurdleTiers []model.TierDefinition
}

// EmWaterfall has only equity-multiple hurdles.
type EmWaterfall struct {
	HurdleTiers []model.TierDefinition
}

// HybridWaterfall mixes IRR and equity-multiple hurdles.
type HybridWaterfall struct {
	IRRTiers []model.TierDefinition
	EMTiers  []model.TierDefinition
}

func (IrrWaterfall) Kind() types.ModeKind    { return types.ModeIRR }
func (EmWaterfall) Kind() types.ModeKind     { return types.ModeEM }
func (HybridWaterfall) Kind() types.ModeKind { return types.ModeHybrid }

func (IrrWaterfall) isMode()    {}
func (EmWaterfall) isMode()     {}
func (HybridWaterfall) isMode() {}

// ClassifyMode derives the mode from tier hurdle types.
func ClassifyMode(tiers []model.TierDefinition) Mode {
	var irr, em []model.TierDefinition
	for _, t := range SortTiers(tiers) {
		switch t.HurdleType {
		case types.HurdleIRR:
			irr = append(irr, t)
		case types.HurdleEquityMultiple:
			em = append(em, t)
		}
	}
	switch {
	case len(irr) > 0 && len(em) > 0:
		return HybridWaterfall{IRRTiers: irr, EMTiers: em}
	case len(em) > 0:
		return EmWaterfall{HurdleTiers: em}
	default:
		return IrrWaterfall{HurdleTiers: irr}
	}
}
