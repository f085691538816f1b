// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedNotifier fails the first failures calls with err.
type scriptedNotifier struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (s *scriptedNotifier) Send(_ context.Context, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return nil
}

func (s *scriptedNotifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingRecorder struct {
	delivered int
	failed    int
}

func (r *countingRecorder) RecordNotification(delivered bool) {
	if delivered {
		r.delivered++
		return
	}
	r.failed++
}

func fastRetry(attempts uint64) RetryConfig {
	return RetryConfig{Attempts: attempts, Backoff: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestLogNotifier(t *testing.T) {
	tests := []struct {
		name        string
		includeBody bool
		wantBody    bool
	}{
		{"body omitted by default", false, false},
		{"body included when enabled", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			n := NewLogNotifier(logger, tt.includeBody)

			require.NoError(t, n.Send(context.Background(), "ada@example.com", "Reset your password", "code 482913"))

			out := buf.String()
			assert.Contains(t, out, `"to":"ada@example.com"`)
			assert.Contains(t, out, `"subject":"Reset your password"`)
			if tt.wantBody {
				assert.Contains(t, out, "482913")
			} else {
				assert.NotContains(t, out, "482913")
			}
		})
	}
}

func TestLogNotifier_RejectsInvalidHeaders(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)), false)

	err := n.Send(context.Background(), "ada@example.com\nBcc: x", "Hi", "body")
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Empty(t, buf.String())
}

func TestObserved(t *testing.T) {
	rec := &countingRecorder{}
	inner := &scriptedNotifier{failures: 1, err: errors.New("relay down")}
	n := NewObserved(inner, rec)

	assert.Error(t, n.Send(context.Background(), "a@example.com", "s", "b"))
	assert.NoError(t, n.Send(context.Background(), "a@example.com", "s", "b"))

	assert.Equal(t, 1, rec.delivered)
	assert.Equal(t, 1, rec.failed)
}

func TestRetrying(t *testing.T) {
	errRelay := errors.New("relay down")

	tests := []struct {
		name      string
		attempts  uint64
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"first attempt succeeds", 3, 0, errRelay, 1, nil},
		{"recovers on third attempt", 3, 2, errRelay, 3, nil},
		{"gives up after max attempts", 3, 10, errRelay, 3, errRelay},
		{"single attempt", 1, 10, errRelay, 1, errRelay},
		{"zero attempts means one", 0, 10, errRelay, 1, errRelay},
		{"invalid message is not retried", 3, 10, ErrInvalidMessage, 1, ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedNotifier{failures: tt.failures, err: tt.err}
			n := NewRetrying(inner, fastRetry(tt.attempts), nil)

			err := n.Send(context.Background(), "a@example.com", "s", "b")
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, inner.Calls())
		})
	}
}

func TestRetrying_CanceledContext(t *testing.T) {
	inner := &scriptedNotifier{failures: 10, err: errors.New("relay down")}
	n := NewRetrying(inner, fastRetry(5), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Send(ctx, "a@example.com", "s", "b")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.Calls())
}

func TestRetrying_ObservedOnce(t *testing.T) {
	rec := &countingRecorder{}
	inner := &scriptedNotifier{failures: 2, err: errors.New("relay down")}
	n := NewObserved(NewRetrying(inner, fastRetry(3), nil), rec)

	require.NoError(t, n.Send(context.Background(), "a@example.com", "s", "b"))
	assert.Equal(t, 3, inner.Calls())
	assert.Equal(t, 1, rec.delivered)
	assert.Equal(t, 0, rec.failed)
}
