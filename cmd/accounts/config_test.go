// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holomush/accounts/pkg/errutil"
)

func TestConfigPrint_RedactsSecrets(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://accounts:s3cret@db/accounts")
	t.Setenv("ACCOUNTS_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ACCOUNTS_SMTP_PASSWORD", "hunter2")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  product: Acme\n"), 0o600))

	out, err := executeRoot(t, "--config", path, "config", "print")
	require.NoError(t, err)

	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "0123456789abcdef")

	var printed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &printed))
	authSection, ok := printed["auth"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Acme", authSection["product"])
	assert.Equal(t, "[REDACTED]", authSection["token_secret"])
	argon2, ok := authSection["argon2"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, argon2, "salt_len")
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://db/accounts")
	t.Setenv("ACCOUNTS_SMTP_PASSWORD", "")

	t.Setenv("ACCOUNTS_TOKEN_SECRET", "short")
	_, err := executeRoot(t, "config", "validate")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	t.Setenv("ACCOUNTS_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	out, err := executeRoot(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}
