package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/internal/scenario"
)

var (
	napkinPref       string
	napkinGPContrib  string
	napkinPromotes   []string
	napkinResidual   string
	napkinCashFlows  string
	napkinOutputYAML bool
)

var napkinCmd = &cobra.Command{
	Use:   "napkin",
	Short: "Expand a napkin form into tier definitions",
	Long: "Builds tiers from a pref rate, IRR promotes given as hurdle:promote pairs and a residual promote. " +
		"With --cashflows the tiers are run against that scenario's periods and contributions.",
	Example: "  waterfallctl napkin --pref 8 --gp-contribution 10 --promote 12:20 --promote 15:30 --residual-promote 40",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		form, err := napkinForm()
		if err != nil {
			return err
		}
		tiers, err := waterfall.BuildNapkinTiers(form)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if napkinOutputYAML {
			if err := writeTiersYAML(out, tiers); err != nil {
				return err
			}
		} else {
			printTiers(out, tiers)
		}

		if napkinCashFlows == "" {
			return nil
		}
		sc, err := scenario.Load(napkinCashFlows)
		if err != nil {
			return err
		}
		in := sc.Input
		if in.ProjectID == "" {
			in.ProjectID = sc.Name
		}
		_, res, err := newLocalService().Napkin(cmd.Context(), form, in)
		if err != nil {
			return err
		}
		printSummaries(out, []*model.WaterfallResult{res})
		return nil
	},
}

func init() {
	napkinCmd.Flags().StringVar(&napkinPref, "pref", "", "preferred return, annual percent (required)")
	napkinCmd.Flags().StringVar(&napkinGPContrib, "gp-contribution", "0", "GP share of contributed capital, percent")
	napkinCmd.Flags().StringArrayVar(&napkinPromotes, "promote", nil, "IRR hurdle and GP promote as hurdle:promote, repeatable")
	napkinCmd.Flags().StringVar(&napkinResidual, "residual-promote", "0", "GP promote above the last hurdle, percent")
	napkinCmd.Flags().StringVar(&napkinCashFlows, "cashflows", "", "scenario file whose periods and contributions are run")
	napkinCmd.Flags().BoolVar(&napkinOutputYAML, "yaml", false, "print tiers as YAML for a scenario file")
	_ = napkinCmd.MarkFlagRequired("pref")
	rootCmd.AddCommand(napkinCmd)
}

func napkinForm() (waterfall.NapkinInput, error) {
	var form waterfall.NapkinInput
	var err error
	if form.PrefRate, err = decimal.NewFromString(napkinPref); err != nil {
		return form, fmt.Errorf("--pref: %w", err)
	}
	if form.GPContributionPct, err = decimal.NewFromString(napkinGPContrib); err != nil {
		return form, fmt.Errorf("--gp-contribution: %w", err)
	}
	if form.ResidualGPPromotePct, err = decimal.NewFromString(napkinResidual); err != nil {
		return form, fmt.Errorf("--residual-promote: %w", err)
	}
	for _, p := range napkinPromotes {
		hurdle, promote, ok := strings.Cut(p, ":")
		if !ok {
			return form, fmt.Errorf("--promote %q: want hurdle:promote", p)
		}
		h, err := decimal.NewFromString(strings.TrimSpace(hurdle))
		if err != nil {
			return form, fmt.Errorf("--promote %q: %w", p, err)
		}
		g, err := decimal.NewFromString(strings.TrimSpace(promote))
		if err != nil {
			return form, fmt.Errorf("--promote %q: %w", p, err)
		}
		form.Promotes = append(form.Promotes, waterfall.Promote{HurdleRate: h, GPPromotePct: g})
	}
	return form, nil
}

func printTiers(w io.Writer, tiers []model.TierDefinition) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tNAME\tHURDLE\tRATE\tLP %\tGP %")
	for _, t := range tiers {
		hurdle, rate := "residual", "-"
		if t.HurdleRate != nil {
			hurdle, rate = string(t.HurdleType), t.HurdleRate.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", t.TierNumber, t.TierName, hurdle, rate, t.LPSplitPct.String(), t.GPSplitPct.String())
	}
	_ = tw.Flush()
}

// writeTiersYAML emits a tiers block that can be pasted into a scenario's input.
func writeTiersYAML(w io.Writer, tiers []model.TierDefinition) error {
	type tierYAML struct {
		TierNumber int     `yaml:"tierNumber"`
		TierName   string  `yaml:"tierName"`
		HurdleType *string `yaml:"hurdleType"`
		HurdleRate *string `yaml:"hurdleRate"`
		LPSplitPct string  `yaml:"lpSplitPct"`
		GPSplitPct string  `yaml:"gpSplitPct"`
	}
	doc := struct {
		Tiers []tierYAML `yaml:"tiers"`
	}{Tiers: make([]tierYAML, 0, len(tiers))}
	for _, t := range tiers {
		ty := tierYAML{TierNumber: t.TierNumber, TierName: t.TierName, LPSplitPct: t.LPSplitPct.String(), GPSplitPct: t.GPSplitPct.String()}
		if t.HurdleRate != nil {
			kind, rate := string(t.HurdleType), t.HurdleRate.String()
			ty.HurdleType, ty.HurdleRate = &kind, &rate
		}
		doc.Tiers = append(doc.Tiers, ty)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
