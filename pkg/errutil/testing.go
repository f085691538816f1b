// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails the test unless err carries code, such as
// AUTH_INVALID_OTP or CONFIG_INVALID. A nil err fails immediately.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected error with code %s", code)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, oopsErr.Code(), "error: %v", err)
}

// AssertErrorContext fails the test unless err carries key with value in
// its context, for example account_id or committed.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	require.Error(t, err, "expected error with context %s", key)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}
