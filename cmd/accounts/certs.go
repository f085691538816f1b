// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/certs"
	"github.com/holomush/accounts/internal/xdg"
)

// certsDirGetter returns the default certificates directory.
var certsDirGetter = xdg.CertsDir

type certsOptions struct {
	dir   string
	hosts []string
	force bool
}

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage TLS material for the gRPC listener",
	}

	opts := &certsOptions{}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a development CA and server certificate",
		Long: `Generate a private CA and a server certificate for the gRPC listener.
An existing CA in the directory is reused unless --force is given, so
clients that already trust it keep working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCertsGenerate(cmd, opts)
		},
	}
	generate.Flags().StringVar(&opts.dir, "dir", "", "output directory (default: XDG_CONFIG_HOME/accounts/certs)")
	generate.Flags().StringSliceVar(&opts.hosts, "hosts", []string{"localhost", "127.0.0.1"}, "DNS names and IP addresses for the server certificate")
	generate.Flags().BoolVar(&opts.force, "force", false, "replace an existing CA")
	cmd.AddCommand(generate)

	return cmd
}

func runCertsGenerate(cmd *cobra.Command, opts *certsOptions) error {
	dir := opts.dir
	if dir == "" {
		var err error
		if dir, err = certsDirGetter(); err != nil {
			return oops.Code("CERTS_DIR_FAILED").Wrap(err)
		}
	}
	if err := xdg.EnsureDir(dir); err != nil {
		return err
	}

	var ca *certs.Authority
	_, statErr := os.Stat(filepath.Join(dir, certs.CAFile))
	if statErr == nil && !opts.force {
		loaded, err := certs.LoadAuthority(dir)
		if err != nil {
			return err
		}
		ca = loaded
		cmd.Println("Reusing existing CA")
	} else {
		generated, err := certs.GenerateAuthority("Accounts development CA")
		if err != nil {
			return err
		}
		ca = generated
		cmd.Println("Generated new CA")
	}

	server, err := ca.IssueServer(opts.hosts...)
	if err != nil {
		return err
	}
	if err := certs.Save(dir, ca, server); err != nil {
		return err
	}

	cmd.Printf("Certificates written to %s\n", dir)
	cmd.Println("Configure the gRPC listener with:")
	cmd.Printf("  grpc:\n    cert_file: %s\n    key_file: %s\n",
		filepath.Join(dir, certs.CertFile), filepath.Join(dir, certs.KeyFile))
	return nil
}
