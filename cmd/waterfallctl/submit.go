package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
	"github.com/Greggwolin/landscape-sub003/internal/scenario"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

var (
	submitURL     string
	submitTimeout time.Duration
	submitRetries uint64
)

var submitCmd = &cobra.Command{
	Use:   "submit <scenario>...",
	Short: "Submit scenario files to a running waterfall server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.Get().Named("submit")

		scenarios := make([]scenario.Scenario, 0, len(args))
		for _, p := range args {
			sc, err := scenario.Load(p)
			if err != nil {
				return err
			}
			scenarios = append(scenarios, *sc)
		}

		client := scenario.NewClient(submitURL,
			scenario.WithTimeout(submitTimeout),
			scenario.WithClientLogger(log),
		)
		if err := client.WaitHealthy(ctx, submitRetries); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SCENARIO\tRUN\tMODE\tROWS\tDISTRIBUTED\tMULTIPLE\tLP IRR\tNOTICES")
		failed := 0
		for _, sc := range scenarios {
			out, err := client.Submit(ctx, sc)
			if err != nil {
				failed++
				log.Error(ctx, "submit failed", logger.String("scenario", sc.Name), logger.Error(err))
				continue
			}
			var lpIRR *float64
			for _, p := range out.Partners {
				if p.PartnerType == types.PartnerLP {
					lpIRR = p.IRR
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.4f\t%s\t%d\n",
				sc.Name, out.RunID, out.Mode, len(out.Periods),
				out.ProjectSummary.TotalDistributed, out.ProjectSummary.EquityMultiple,
				rate(lpIRR), len(out.Notices))
		}
		_ = tw.Flush()
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d", errScenariosFailed, failed, len(scenarios))
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitURL, "url", "http://localhost:8080", "base URL of the waterfall server")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 30*time.Second, "per-request timeout")
	submitCmd.Flags().Uint64Var(&submitRetries, "health-retries", 5, "health checks before giving up")
	rootCmd.AddCommand(submitCmd)
}
