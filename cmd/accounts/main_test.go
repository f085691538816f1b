// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeRoot runs the CLI with args and returns everything it printed.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	t.Cleanup(func() { configFile = "" })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := executeRoot(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "config", "certs"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "with equals",
			args:     []string{"--config=/etc/accounts.yaml", "--help"},
			wantFlag: "/etc/accounts.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""
			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
			configFile = ""
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestServeCommand_Flags(t *testing.T) {
	out, err := executeRoot(t, "serve", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--http.addr", "--grpc.addr", "--metrics_addr", "--logging.level", "--notify.mode", "--auto_migrate", "--config"} {
		assert.Contains(t, out, flag)
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ACCOUNTS_TOKEN_SECRET", "")

	_, err := executeRoot(t, "serve")
	assert.Error(t, err, "serve refuses to start without a database URL")
}
