// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/certs"
)

func TestCertsGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	out, err := executeRoot(t, "certs", "generate", "--dir", dir, "--hosts", "localhost,10.0.0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated new CA")
	assert.Contains(t, out, filepath.Join(dir, certs.CertFile))

	first, err := certs.LoadAuthority(dir)
	require.NoError(t, err)

	out, err = executeRoot(t, "certs", "generate", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Reusing existing CA")
	second, err := certs.LoadAuthority(dir)
	require.NoError(t, err)
	assert.True(t, first.Certificate.Equal(second.Certificate), "CA is kept")

	_, err = executeRoot(t, "certs", "generate", "--dir", dir, "--force")
	require.NoError(t, err)
	third, err := certs.LoadAuthority(dir)
	require.NoError(t, err)
	assert.False(t, first.Certificate.Equal(third.Certificate), "--force replaces the CA")
}

func TestCertsGenerate_DefaultDir(t *testing.T) {
	dir := t.TempDir()
	orig := certsDirGetter
	certsDirGetter = func() (string, error) { return dir, nil }
	t.Cleanup(func() { certsDirGetter = orig })

	_, err := executeRoot(t, "certs", "generate")
	require.NoError(t, err)

	_, err = certs.ClientTLSConfig(filepath.Join(dir, certs.CAFile), "localhost")
	assert.NoError(t, err)
}
