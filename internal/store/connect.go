// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and schema migrations
// for the accounts service.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32         `koanf:"max_conns" yaml:"max_conns"`
	MinConns        int32         `koanf:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	// ConnectAttempts bounds the pings made while waiting for the database.
	ConnectAttempts uint64 `koanf:"connect_attempts" yaml:"connect_attempts"`
}

// DefaultPoolConfig returns the pool settings used when none are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		ConnectAttempts: 5,
	}
}

// Connect opens a pool for databaseURL and waits until the database answers
// a ping, backing off exponentially between attempts.
func Connect(ctx context.Context, databaseURL string, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	attempts := max(cfg.ConnectAttempts, 1)
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(200*time.Millisecond))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	logger.InfoContext(ctx, "database connected",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database)
	return pool, nil
}
