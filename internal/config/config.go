// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and LANDSCAPE_* env vars over the defaults.
// - Validation failures are *FieldError values that wrap ErrInvalidConfig.
package config

import (
	"strings"
	"time"

	"github.com/Greggwolin/landscape-sub003/internal/domain/types"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text, json or tint.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or postgres.
	Store string `koanf:"store"`

	// PostgresDSN is the connection string used when Store is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// PostgresRunMigrations applies embedded migrations at startup.
	PostgresRunMigrations bool `koanf:"postgres_run_migrations"`

	// PostgresMaxConns caps the connection pool.
	PostgresMaxConns int `koanf:"postgres_max_conns"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers. Zero means one per CPU.
	WorkerCount int `koanf:"worker_count"`

	// RecomputeTimeout bounds one background project recompute, e.g. "30s".
	// Zero disables the bound.
	RecomputeTimeout time.Duration `koanf:"recompute_timeout"`

	// CacheSize bounds the run result cache.
	CacheSize int `koanf:"cache_size"`

	// BatchConcurrency caps parallel scenarios in a batch run.
	BatchConcurrency int `koanf:"batch_concurrency"`

	// IRRMethod selects the return solver: periodic or xirr.
	IRRMethod string `koanf:"irr_method"`

	// IRRMaxIterations and IRRTolerance bound the root finder.
	IRRMaxIterations int     `koanf:"irr_max_iterations"`
	IRRTolerance     float64 `koanf:"irr_tolerance"`

	// DefaultGranularity buckets period tables when a request names none.
	DefaultGranularity string `koanf:"default_granularity"`

	// CORSAllowedOrigins is a comma separated list of browser origins.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8080",
		Store:              StoreMemory,
		PostgresMaxConns:   10,
		QueueSize:          1024,
		WorkerCount:        0,
		RecomputeTimeout:   time.Minute,
		CacheSize:          256,
		BatchConcurrency:   8,
		IRRMethod:          string(types.IRRPeriodic),
		IRRMaxIterations:   100,
		IRRTolerance:       1e-10,
		DefaultGranularity: string(types.Monthly),
	}
}

// AllowedOrigins splits CORSAllowedOrigins into trimmed, non-empty origins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Granularity returns the parsed default granularity.
func (c *Config) Granularity() types.Granularity {
	g, err := types.ParseGranularity(c.DefaultGranularity)
	if err != nil {
		return types.Monthly
	}
	return g
}

// Method returns the parsed IRR method.
func (c *Config) Method() types.IRRMethod {
	m, err := types.ParseIRRMethod(c.IRRMethod)
	if err != nil {
		return types.IRRPeriodic
	}
	return m
}

// Validate reports the first invalid setting as a *FieldError.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fieldError("addr", "must not be empty")
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fieldError("store", "must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	case c.Store == StorePostgres && strings.TrimSpace(c.PostgresDSN) == "":
		return fieldError("postgres_dsn", "is required when store is postgres")
	case c.PostgresMaxConns < 1:
		return fieldError("postgres_max_conns", "must be positive")
	case c.QueueSize < 1:
		return fieldError("queue_size", "must be positive")
	case c.WorkerCount < 0:
		return fieldError("worker_count", "must not be negative")
	case c.RecomputeTimeout < 0:
		return fieldError("recompute_timeout", "must not be negative")
	case c.CacheSize < 0:
		return fieldError("cache_size", "must not be negative")
	case c.BatchConcurrency < 1:
		return fieldError("batch_concurrency", "must be positive")
	case c.IRRMaxIterations < 1:
		return fieldError("irr_max_iterations", "must be positive")
	case c.IRRTolerance <= 0:
		return fieldError("irr_tolerance", "must be positive")
	}
	switch c.LogFormat {
	case "text", "json", "tint":
	default:
		return fieldError("log_format", "must be text, json or tint, got %q", c.LogFormat)
	}
	if _, err := types.ParseIRRMethod(c.IRRMethod); err != nil {
		return fieldError("irr_method", "is not usable: %v", err)
	}
	if _, err := types.ParseGranularity(c.DefaultGranularity); err != nil {
		return fieldError("default_granularity", "is not usable: %v", err)
	}
	return nil
}
