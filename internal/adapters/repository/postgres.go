package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Greggwolin/landscape-sub003/internal/domain/layout"
	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	"github.com/Greggwolin/landscape-sub003/pkg/metrics"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// PostgresStore implements Store on PostgreSQL with JSONB documents.
type PostgresStore struct {
	pool Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects a pool to dsn and pings it.
func NewPostgresStore(ctx context.Context, dsn string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an existing pool.
func NewPostgresStoreWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func observeWrite(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeRead(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// SaveConfig implements Store.
func (s *PostgresStore) SaveConfig(ctx context.Context, cfg model.WaterfallConfig) error {
	if cfg.ProjectID == "" {
		return ErrMissingProject
	}
	defer observeWrite(time.Now())
	doc, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "postgres: encode config")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO waterfall_configs (project_id, config, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (project_id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		cfg.ProjectID, doc)
	if err != nil {
		return eris.Wrapf(err, "postgres: save config %s", cfg.ProjectID)
	}
	return nil
}

// GetConfig implements Store.
func (s *PostgresStore) GetConfig(ctx context.Context, projectID string) (model.WaterfallConfig, error) {
	defer observeRead(time.Now())
	var (
		cfg       model.WaterfallConfig
		doc       []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT config, updated_at FROM waterfall_configs WHERE project_id = $1`, projectID).
		Scan(&doc, &updatedAt)
	if err != nil {
		return cfg, notFound(err, "postgres: get config %s", projectID)
	}
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "postgres: decode config %s", projectID)
	}
	cfg.ProjectID = projectID
	cfg.UpdatedAt = updatedAt.UTC()
	return cfg, nil
}

// SaveCashFlows implements Store.
func (s *PostgresStore) SaveCashFlows(ctx context.Context, cf model.CashFlowSummary) error {
	if cf.ProjectID == "" {
		return ErrMissingProject
	}
	defer observeWrite(time.Now())
	doc, err := json.Marshal(cf)
	if err != nil {
		return eris.Wrap(err, "postgres: encode cash flows")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO project_cash_flows (project_id, cash_flows, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (project_id) DO UPDATE SET cash_flows = EXCLUDED.cash_flows, updated_at = now()`,
		cf.ProjectID, doc)
	if err != nil {
		return eris.Wrapf(err, "postgres: save cash flows %s", cf.ProjectID)
	}
	return nil
}

// GetCashFlows implements Store.
func (s *PostgresStore) GetCashFlows(ctx context.Context, projectID string) (model.CashFlowSummary, error) {
	defer observeRead(time.Now())
	var (
		cf        model.CashFlowSummary
		doc       []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT cash_flows, updated_at FROM project_cash_flows WHERE project_id = $1`, projectID).
		Scan(&doc, &updatedAt)
	if err != nil {
		return cf, notFound(err, "postgres: get cash flows %s", projectID)
	}
	if err := json.Unmarshal(doc, &cf); err != nil {
		return cf, eris.Wrapf(err, "postgres: decode cash flows %s", projectID)
	}
	cf.ProjectID = projectID
	cf.UpdatedAt = updatedAt.UTC()
	return cf, nil
}

// SaveRun implements Store. Every run is kept and LatestRun reads the newest
// by computed_at, then insert order. Saving a run_id again overwrites it.
func (s *PostgresStore) SaveRun(ctx context.Context, res *model.WaterfallResult) error {
	if res == nil || res.ProjectID == "" {
		return ErrMissingProject
	}
	defer observeWrite(time.Now())
	doc, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "postgres: encode run")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO waterfall_runs (run_id, project_id, fingerprint, result, computed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
		    result = EXCLUDED.result,
		    computed_at = EXCLUDED.computed_at,
		    seq = nextval(pg_get_serial_sequence('waterfall_runs', 'seq'))`,
		res.RunID, res.ProjectID, res.Fingerprint, doc, res.ComputedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run %s", res.RunID)
	}
	return nil
}

// LatestRun implements Store.
func (s *PostgresStore) LatestRun(ctx context.Context, projectID string) (*model.WaterfallResult, error) {
	defer observeRead(time.Now())
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT result FROM waterfall_runs
		WHERE project_id = $1
		ORDER BY computed_at DESC, seq DESC
		LIMIT 1`, projectID).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "postgres: latest run %s", projectID)
	}
	res := &model.WaterfallResult{}
	if err := json.Unmarshal(doc, res); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode run %s", projectID)
	}
	return res, nil
}

// SaveLayout implements Store.
func (s *PostgresStore) SaveLayout(ctx context.Context, projectID string, l layout.Layout) error {
	if projectID == "" {
		return ErrMissingProject
	}
	if l.Table == "" {
		return ErrMissingTable
	}
	defer observeWrite(time.Now())
	doc, err := json.Marshal(l)
	if err != nil {
		return eris.Wrap(err, "postgres: encode layout")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO table_layouts (project_id, table_name, layout, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (project_id, table_name) DO UPDATE SET layout = EXCLUDED.layout, updated_at = now()`,
		projectID, l.Table, doc)
	if err != nil {
		return eris.Wrapf(err, "postgres: save layout %s/%s", projectID, l.Table)
	}
	return nil
}

// GetLayout implements Store.
func (s *PostgresStore) GetLayout(ctx context.Context, projectID, table string) (layout.Layout, error) {
	defer observeRead(time.Now())
	var (
		l   layout.Layout
		doc []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT layout FROM table_layouts WHERE project_id = $1 AND table_name = $2`, projectID, table).
		Scan(&doc)
	if err != nil {
		return l, notFound(err, "postgres: get layout %s/%s", projectID, table)
	}
	if err := json.Unmarshal(doc, &l); err != nil {
		return l, eris.Wrapf(err, "postgres: decode layout %s/%s", projectID, table)
	}
	l.Table = table
	return l, nil
}

var deleteStatements = []string{
	`DELETE FROM waterfall_configs WHERE project_id = $1`,
	`DELETE FROM project_cash_flows WHERE project_id = $1`,
	`DELETE FROM waterfall_runs WHERE project_id = $1`,
	`DELETE FROM table_layouts WHERE project_id = $1`,
}

// DeleteProject implements Store. All tables are cleared in one transaction.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	defer observeWrite(time.Now())
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete")
	}
	var removed int64
	for _, stmt := range deleteStatements {
		tag, err := tx.Exec(ctx, stmt, projectID)
		if err != nil {
			_ = tx.Rollback(ctx)
			return eris.Wrapf(err, "postgres: delete project %s", projectID)
		}
		removed += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit delete %s", projectID)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Count implements Store. Errors count as zero.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT project_id FROM waterfall_configs
			UNION SELECT project_id FROM project_cash_flows
			UNION SELECT project_id FROM waterfall_runs
			UNION SELECT project_id FROM table_layouts
		) p`).Scan(&n)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "count")
		return 0
	}
	return n
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps anything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	return eris.Wrapf(err, format, args...)
}
