package waterfall

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
)

// Canonical returns a copy of in with tiers, periods and contributions in a
// stable order and dates normalized to UTC.
func Canonical(in model.RunInput) model.RunInput {
	out := in
	out.Tiers = SortTiers(in.Tiers)

	out.Periods = make([]model.PeriodCashFlow, len(in.Periods))
	copy(out.Periods, in.Periods)
	for i := range out.Periods {
		out.Periods[i].Date = out.Periods[i].Date.UTC()
	}
	sort.SliceStable(out.Periods, func(i, j int) bool {
		return out.Periods[i].PeriodIndex < out.Periods[j].PeriodIndex
	})

	out.Contributions = make([]model.PartnerContribution, len(in.Contributions))
	copy(out.Contributions, in.Contributions)
	sort.SliceStable(out.Contributions, func(i, j int) bool {
		a, b := out.Contributions[i], out.Contributions[j]
		if a.PeriodIndex != b.PeriodIndex {
			return a.PeriodIndex < b.PeriodIndex
		}
		if a.PartnerType != b.PartnerType {
			return a.PartnerType < b.PartnerType
		}
		return a.Amount.LessThan(b.Amount)
	})
	return out
}

// Fingerprint hashes the canonical form of in. Equal inputs give equal fingerprints.
func Fingerprint(in model.RunInput) (string, error) {
	b, err := json.Marshal(Canonical(in))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
