// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/accounts/internal/store"
)

// testPool is shared by every integration test in the package.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	code, err := runWithDatabase(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func runWithDatabase(m *testing.M) (int, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("accounts_test"),
		postgres.WithUsername("accounts"),
		postgres.WithPassword("accounts"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return 0, err
	}
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return 0, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return 0, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return 0, err
	}
	_ = migrator.Close()

	testPool, err = store.Connect(ctx, connStr, store.DefaultPoolConfig(), nil)
	if err != nil {
		return 0, err
	}
	defer testPool.Close()

	return m.Run(), nil
}
