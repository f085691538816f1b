// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/store"
)

// migratorFactory opens the migrator used by the migrate subcommands.
var migratorFactory = func(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Apply, roll back, or inspect the PostgreSQL schema migrations
embedded in the accounts binary. The database URL comes from DATABASE_URL
or database.url in the config file.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return runMigrateUp(cmd, m)
		}),
	})

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  `Roll back the given number of migrations (default 1), or all of them with --all. Rolling back drops account data.`,
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return runMigrateDown(cmd, m, steps, all)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return runMigrateStatus(cmd, m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long:  `Mark the database as being at VERSION and clear the dirty flag. Use after repairing a failed migration by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
				return runMigrateForce(cmd, m, version)
			})(cmd, args)
		},
	})

	return cmd
}

// withMigrator resolves the database URL, opens a migrator, and closes it
// after fn returns.
func withMigrator(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, nil, nil)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database URL is required (set %s)", config.EnvDatabaseURL)
		}

		m, err := migratorFactory(cfg.Database.URL)
		if err != nil {
			return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrf("Warning: failed to close migrator: %v\n", closeErr)
			}
		}()
		return fn(cmd, m, args)
	}
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, m Migrator, steps int, all bool) error {
	if all {
		cmd.Println("Rolling back all migrations...")
		if err := m.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
		}
		cmd.Println("All migrations rolled back")
		return nil
	}
	if steps < 1 {
		return oops.Code("INVALID_STEPS").Errorf("steps must be at least 1, got %d", steps)
	}
	cmd.Printf("Rolling back %d migration(s)...\n", steps)
	if err := m.Steps(-steps); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").With("steps", steps).Wrap(err)
	}
	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").Wrap(err)
	}

	state := "clean"
	if status.Dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", status.Current, state)
	printVersions(cmd, "Applied", status.Applied)
	printVersions(cmd, "Pending", status.Pending)
	if status.Dirty {
		cmd.Println("The last migration failed part way. Repair the schema, then run 'accounts migrate force VERSION'.")
	}
	return nil
}

func printVersions(cmd *cobra.Command, label string, versions []uint) {
	if len(versions) == 0 {
		cmd.Printf("%s: none\n", label)
		return
	}
	cmd.Printf("%s:\n", label)
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		cmd.Printf("  %s\n", name)
	}
}

func runMigrateForce(cmd *cobra.Command, m Migrator, version int) error {
	if err := m.Force(version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", version).Wrap(err)
	}
	cmd.Printf("Schema version forced to %d\n", version)
	return nil
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("arg", arg).Errorf("version must be an integer: %q", arg)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("arg", arg).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
