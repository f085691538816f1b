// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/accounts/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil, nil)
			if err != nil {
				return err
			}
			return printConfig(cmd, cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check that the configuration can start the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.Println("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func printConfig(cmd *cobra.Command, cfg *config.Config) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	if err := enc.Close(); err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return nil
}
