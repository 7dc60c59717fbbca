package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the catalog's pgx connection pool. Repositories never hold it
// directly; request handlers stash a Querier in the context and the
// repositories read it back from there.
type DB struct {
	*pgxpool.Pool
}

// Config tunes the connection pool. Zero values fall back to the defaults
// below.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const (
	defaultMaxConnections = 25
	defaultConnLifetime   = time.Hour
	defaultConnIdleTime   = 30 * time.Minute
	connectPingTimeout    = 5 * time.Second
)

func (c *Config) applyTo(pool *pgxpool.Config) {
	pool.MaxConns = c.MaxConnections
	if pool.MaxConns <= 0 {
		pool.MaxConns = defaultMaxConnections
	}
	pool.MaxConnLifetime = c.MaxConnLifetime
	if pool.MaxConnLifetime <= 0 {
		pool.MaxConnLifetime = defaultConnLifetime
	}
	pool.MaxConnIdleTime = c.MaxConnIdleTime
	if pool.MaxConnIdleTime <= 0 {
		pool.MaxConnIdleTime = defaultConnIdleTime
	}
}

// Connect opens a pool against cfg.URL and verifies it with a bounded ping,
// so a dead database fails at startup instead of on the first query.
func Connect(ctx context.Context, cfg *Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.applyTo(poolCfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
