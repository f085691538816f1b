// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// redactedKeys are oops context keys whose values never reach a log line.
var redactedKeys = []string{"password", "otp", "token", "secret"}

// LogError logs err at error level.
func LogError(logger *slog.Logger, msg string, err error) {
	Log(context.Background(), logger, slog.LevelError, msg, err)
}

// Log logs err at level. For oops errors the code and context are logged as
// separate attributes; context values under sensitive keys are redacted.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Log(ctx, level, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		attrs = append(attrs, "context", redact(errCtx))
	}
	logger.Log(ctx, level, msg, attrs...)
}

func redact(errCtx map[string]any) map[string]any {
	out := make(map[string]any, len(errCtx))
	for k, v := range errCtx {
		out[k] = v
		lower := strings.ToLower(k)
		for _, sensitive := range redactedKeys {
			if strings.Contains(lower, sensitive) {
				out[k] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
