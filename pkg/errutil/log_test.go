// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/pkg/errutil"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	err := oops.Code("TEST_ERROR").
		With("key", "value").
		Errorf("something failed")

	errutil.LogError(jsonLogger(&buf), "operation failed", err)

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "operation failed", entry["msg"])
	assert.Equal(t, "TEST_ERROR", entry["code"])
	assert.Equal(t, map[string]any{"key": "value"}, entry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	errutil.LogError(jsonLogger(&buf), "operation failed", errors.New("standard error"))

	entry := decode(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
}

func TestLog_LevelAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	err := oops.Code("AUTH_INVALID_OTP").
		With("account_id", "01J0000000000000000000000").
		With("otp", "123456").
		With("new_password", "hunter2").
		Errorf("invalid otp")

	errutil.Log(context.Background(), jsonLogger(&buf), slog.LevelDebug, "rejected", err)

	entry := decode(t, &buf)
	assert.Equal(t, "DEBUG", entry["level"])
	errCtx, ok := entry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "01J0000000000000000000000", errCtx["account_id"])
	assert.Equal(t, "[REDACTED]", errCtx["otp"])
	assert.Equal(t, "[REDACTED]", errCtx["new_password"])
	assert.NotContains(t, buf.String(), "hunter2")
}
