// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/accounts/internal/api"
	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/internal/transport/grpcapi"
	"github.com/holomush/accounts/internal/transport/httpapi"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database connection pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, cfg store.PoolConfig, logger *slog.Logger) (Pool, error)

	// AccountsFactory builds the account repository on top of the pool.
	// Default: postgres.NewAccountRepository
	AccountsFactory func(pool Pool) auth.AccountRepository

	// MigratorFactory opens a schema migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// NotifierFactory builds the outbound notification channel.
	// Default: defaultNotifier
	NotifierFactory func(cfg config.NotifyConfig, logger *slog.Logger) (auth.Notifier, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// HTTPServerFactory creates the HTTP API server.
	// Default: httpapi.NewServer
	HTTPServerFactory func(cfg httpapi.Config, ops api.Operations, logger *slog.Logger) Server

	// GRPCServerFactory creates the gRPC API server.
	// Default: grpcapi.NewServer
	GRPCServerFactory func(cfg grpcapi.Config, ops api.Operations, logger *slog.Logger) (Server, error)
}

// Pool wraps the methods used from pgxpool.Pool.
type Pool interface {
	postgres.DBTX
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// Server is a listener with the lifecycle shared by the API and
// observability servers.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
}

// Compile-time interface checks.
var (
	_ Pool                = (*pgxpool.Pool)(nil)
	_ Migrator            = (*store.Migrator)(nil)
	_ Server              = (*httpapi.Server)(nil)
	_ Server              = (*grpcapi.Server)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
)

// fill replaces nil factories with the production implementations.
func (d *ServeDeps) fill() {
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, url string, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
			pool, err := store.Connect(ctx, url, cfg, logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if d.AccountsFactory == nil {
		d.AccountsFactory = func(pool Pool) auth.AccountRepository {
			return postgres.NewAccountRepository(pool)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = defaultNotifier
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, logger)
		}
	}
	if d.HTTPServerFactory == nil {
		d.HTTPServerFactory = func(cfg httpapi.Config, ops api.Operations, logger *slog.Logger) Server {
			return httpapi.NewServer(cfg, ops, logger)
		}
	}
	if d.GRPCServerFactory == nil {
		d.GRPCServerFactory = func(cfg grpcapi.Config, ops api.Operations, logger *slog.Logger) (Server, error) {
			return grpcapi.NewServer(cfg, ops, logger)
		}
	}
}
