// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Accounts - credential and one-time code service",
		Long: `Accounts registers users, issues session tokens, and runs the
email verification and password reset one-time code flows over HTTP and gRPC.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/accounts/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}
