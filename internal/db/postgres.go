package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption adjusts the pool settings before the pool is opened.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the pool. Non-positive values keep the default.
func WithMaxConns(n int) PoolOption {
	return func(c *pgxpool.Config) {
		if n <= 0 {
			return
		}
		c.MaxConns = int32(n)
		if c.MinConns > c.MaxConns {
			c.MinConns = c.MaxConns
		}
	}
}

// WithStatementTimeout makes the server abort statements running longer
// than d. Zero leaves the server default.
func WithStatementTimeout(d time.Duration) PoolOption {
	return func(c *pgxpool.Config) {
		if d <= 0 {
			return
		}
		c.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(d.Milliseconds(), 10)
	}
}

// PoolConfig parses dsn and applies the scheduler's pool defaults. Every
// session is tagged with appName in pg_stat_activity and runs in UTC, since
// appointment dates and times are stored as zone-less DATE and TIME columns.
func PoolConfig(dsn, appName string, opts ...PoolOption) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	params := cfg.ConnConfig.RuntimeParams
	if appName != "" {
		params["application_name"] = appName
	}
	params["timezone"] = "UTC"

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// ConnectPostgres opens a pool built by PoolConfig and fails unless the
// database answers a ping within five seconds.
func ConnectPostgres(ctx context.Context, dsn, appName string, opts ...PoolOption) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dsn, appName, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.ConnConfig.Host, err)
	}
	return pool, nil
}
