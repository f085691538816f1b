// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	tests := []struct {
		name       string
		configHome string
		home       string
		fn         func() (string, error)
		want       string
	}{
		{"config dir from env", "/custom/config", "/home/testuser", ConfigDir, "/custom/config/accounts"},
		{"config dir default", "", "/home/testuser", ConfigDir, "/home/testuser/.config/accounts"},
		{"config file", "/custom/config", "", ConfigFile, "/custom/config/accounts/config.yaml"},
		{"certs dir", "", "/home/testuser", CertsDir, "/home/testuser/.config/accounts/certs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tt.configHome)
			t.Setenv("HOME", tt.home)

			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, EnsureDir(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	require.NoError(t, EnsureDir(path), "existing directory is not an error")
}

func TestEnsureDir_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	assert.Error(t, EnsureDir(filepath.Join(file, "sub")))
}
