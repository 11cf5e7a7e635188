package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Greggwolin/landscape-sub003/internal/adapters/export"
	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/domain/waterfall"
	"github.com/Greggwolin/landscape-sub003/internal/scenario"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

const outputDirPermission = 0o750

var errScenariosFailed = errors.New("one or more scenarios failed")

var (
	runGranularity string
	runXLSXDir     string
	runVerify      bool
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>...",
	Short: "Run scenario files offline and print their summaries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.Get().Named("run")

		var flagGranularity types.Granularity
		if runGranularity != "" {
			g, err := types.ParseGranularity(runGranularity)
			if err != nil {
				return err
			}
			flagGranularity = g
		}

		scenarios, inputs, err := loadScenarios(args)
		if err != nil {
			return err
		}
		svc := newLocalService()
		items, err := svc.RunBatch(ctx, inputs)
		if err != nil {
			return err
		}

		if runXLSXDir != "" {
			if err := os.MkdirAll(runXLSXDir, outputDirPermission); err != nil {
				return fmt.Errorf("create xlsx dir: %w", err)
			}
		}

		var (
			failed  int
			results = make([]*model.WaterfallResult, 0, len(items))
			reports []scenario.Report
		)
		for _, it := range items {
			sc := scenarios[it.Index]
			if it.Err != nil {
				failed++
				log.Error(ctx, "scenario failed", logger.String("scenario", sc.Name), logger.Error(it.Err))
				continue
			}
			g := flagGranularity
			if g == "" {
				g = sc.Granularity
			}
			if g == "" {
				g = svc.DefaultGranularity()
			}
			results = append(results, svc.View(it.Result, g))

			if runXLSXDir != "" {
				path := filepath.Join(runXLSXDir, sc.Name+".xlsx")
				if err := writeWorkbook(path, it.Result, g); err != nil {
					return err
				}
				log.Info(ctx, "workbook written", logger.String("scenario", sc.Name), logger.String("path", path))
			}
			if runVerify {
				report := scenario.Verify(sc.Name, inputs[it.Index], it.Result)
				if !report.OK() {
					failed++
				}
				reports = append(reports, report)
			}
		}

		out := cmd.OutOrStdout()
		if runJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		} else {
			printSummaries(out, results)
		}
		for _, r := range reports {
			printReport(out, r)
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d", errScenariosFailed, failed, len(items))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runGranularity, "granularity", "", "period table granularity: monthly, quarterly or annual")
	runCmd.Flags().StringVar(&runXLSXDir, "xlsx-dir", "", "write one <scenario>.xlsx workbook per scenario into this directory")
	runCmd.Flags().BoolVar(&runVerify, "verify", false, "check run invariants after each run")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print full results as JSON")
	rootCmd.AddCommand(runCmd)
}

func writeWorkbook(path string, res *model.WaterfallResult, g types.Granularity) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	err = export.WriteWorkbook(f, res, waterfall.ClassifyMode(res.TierDefinitions), layout.Layout{Table: export.DistributionsTable}, g)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func printSummaries(w io.Writer, results []*model.WaterfallResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tMODE\tROWS\tCONTRIBUTED\tDISTRIBUTED\tMULTIPLE\tLP IRR\tGP IRR\tNOTICES")
	for _, res := range results {
		ps := res.ProjectSummary
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			res.ProjectID,
			res.Mode,
			len(res.PeriodDistributions),
			ps.TotalContributed.StringFixed(2),
			ps.TotalDistributed.StringFixed(2),
			ps.EquityMultiple.StringFixed(4),
			rate(scenario.Partner(res, types.PartnerLP).IRR),
			rate(scenario.Partner(res, types.PartnerGP).IRR),
			len(res.Notices),
		)
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, r scenario.Report) {
	if r.OK() {
		fmt.Fprintf(w, "ok    %s (%d properties)\n", r.Scenario, r.Checked)
		return
	}
	fmt.Fprintf(w, "FAIL  %s\n", r.Scenario)
	for _, v := range r.Violations {
		fmt.Fprintf(w, "      %s\n", v)
	}
}

func rate(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}
