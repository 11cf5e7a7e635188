// Package repository persists waterfall configurations, cash-flow inputs,
// run results and table layouts.
package repository

import (
	"context"

	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
)

// Store provides read/write access to per-project waterfall state.
// Implementations are safe for concurrent use.
type Store interface {
	// SaveConfig upserts the tier configuration of cfg.ProjectID.
	SaveConfig(ctx context.Context, cfg model.WaterfallConfig) error
	// GetConfig returns ErrNotFound if the project has no configuration.
	GetConfig(ctx context.Context, projectID string) (model.WaterfallConfig, error)

	// SaveCashFlows upserts the cash-flow summary of cf.ProjectID.
	SaveCashFlows(ctx context.Context, cf model.CashFlowSummary) error
	// GetCashFlows returns ErrNotFound if the project has no cash flows.
	GetCashFlows(ctx context.Context, projectID string) (model.CashFlowSummary, error)

	// SaveRun stores res as the latest result of res.ProjectID. Stores may
	// keep older runs; LatestRun then returns the newest by ComputedAt.
	SaveRun(ctx context.Context, res *model.WaterfallResult) error
	// LatestRun returns ErrNotFound if the project was never run.
	LatestRun(ctx context.Context, projectID string) (*model.WaterfallResult, error)

	// SaveLayout upserts the layout of l.Table for a project.
	SaveLayout(ctx context.Context, projectID string, l layout.Layout) error
	// GetLayout returns ErrNotFound if no layout was saved for table.
	GetLayout(ctx context.Context, projectID, table string) (layout.Layout, error)

	// DeleteProject removes every record of a project.
	// Returns ErrNotFound if nothing was stored.
	DeleteProject(ctx context.Context, projectID string) error

	// Count returns the number of projects with any stored state.
	Count(ctx context.Context) int

	// Close releases background goroutines and connections.
	Close() error
}
