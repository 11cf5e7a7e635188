// Command waterfallctl runs equity waterfall scenarios offline, verifies their
// invariants, builds napkin tier sets and submits scenarios to a server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	service "github.com/Greggwolin/landscape-sub003/internal/app"
	"github.com/Greggwolin/landscape-sub003/internal/config"
	"github.com/Greggwolin/landscape-sub003/internal/domain/irr"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/internal/scenario"
	"github.com/Greggwolin/landscape-sub003/pkg/logger"
)

var (
	cfg       *config.Config
	logFormat string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "waterfallctl",
	Short: "Equity waterfall scenario tool",
	Long: "Runs distribution waterfalls from YAML or JSON scenario files without a server, " +
		"checks run invariants, expands napkin forms into tiers and submits scenarios to a running server.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		format := cfg.LogFormat
		if logFormat != "" {
			format = logFormat
		}
		if err := logger.InitWithFormat(format, cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		if err := logger.SetLevelString(level); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json or tint (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newLocalService builds an unstarted service for ad-hoc runs.
func newLocalService() *service.Service {
	return service.New(
		service.WithLogger(logger.Get().Named("service")),
		service.WithCacheSize(cfg.CacheSize),
		service.WithBatchConcurrency(cfg.BatchConcurrency),
		service.WithIRRMethod(cfg.Method()),
		service.WithIRRSolver(irr.NewSolver(
			irr.WithMaxIterations(cfg.IRRMaxIterations),
			irr.WithTolerance(cfg.IRRTolerance),
		)),
		service.WithDefaultGranularity(cfg.Granularity()),
	)
}

// loadScenarios reads every file and resolves its run input.
func loadScenarios(paths []string) ([]scenario.Scenario, []model.RunInput, error) {
	scenarios := make([]scenario.Scenario, 0, len(paths))
	inputs := make([]model.RunInput, 0, len(paths))
	for _, p := range paths {
		sc, err := scenario.Load(p)
		if err != nil {
			return nil, nil, err
		}
		in, err := sc.Resolve()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		if in.ProjectID == "" {
			in.ProjectID = sc.Name
		}
		scenarios = append(scenarios, *sc)
		inputs = append(inputs, in)
	}
	return scenarios, inputs, nil
}
