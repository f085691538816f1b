// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds redelivery.
type RetryConfig struct {
	Attempts uint64        `koanf:"attempts" yaml:"attempts"`
	Backoff  time.Duration `koanf:"backoff" yaml:"backoff"`
	MaxDelay time.Duration `koanf:"max_delay" yaml:"max_delay"`
}

// DefaultRetryConfig returns three attempts starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Retrying redelivers a failed message with exponential backoff, within the
// caller's context.
type Retrying struct {
	next   Notifier
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Notifier, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultRetryConfig().Backoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

// Send tries next up to the configured number of attempts. Invalid messages
// and context cancellation end the loop immediately.
func (r *Retrying) Send(ctx context.Context, to, subject, body string) error {
	backoff := retry.NewExponential(r.cfg.Backoff)
	if r.cfg.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(r.cfg.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(r.cfg.Attempts-1, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.next.Send(ctx, to, subject, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidMessage) || ctx.Err() != nil {
			return err
		}
		r.logger.DebugContext(ctx, "notification attempt failed",
			"attempt", attempt,
			"max_attempts", r.cfg.Attempts,
			"error", err)
		return retry.RetryableError(err)
	})
}
