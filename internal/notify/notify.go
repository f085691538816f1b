// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers account notifications by email.
//
// Errors returned here carry no oops code, so callers can classify them with
// their own codes.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// ErrInvalidMessage is returned for a recipient or subject that cannot be
// sent as a mail header. It is never retried.
var ErrInvalidMessage = errors.New("invalid message")

// Notifier delivers one plain-text message.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// validateHeaders rejects values that would let a caller inject mail headers.
func validateHeaders(to, subject string) error {
	if to == "" {
		return oops.In("notify").With("field", "to").Wrapf(ErrInvalidMessage, "recipient is empty")
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return oops.In("notify").Wrapf(ErrInvalidMessage, "header contains a line break")
	}
	return nil
}

// LogNotifier writes messages to a logger instead of sending them.
// It is meant for local development.
type LogNotifier struct {
	logger      *slog.Logger
	includeBody bool
}

// NewLogNotifier creates a LogNotifier. Bodies contain one-time codes, so
// they are logged only when includeBody is set.
func NewLogNotifier(logger *slog.Logger, includeBody bool) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, includeBody: includeBody}
}

// Send logs the message.
func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := validateHeaders(to, subject); err != nil {
		return err
	}
	attrs := []any{"to", to, "subject", subject}
	if n.includeBody {
		attrs = append(attrs, "body", body)
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}

// Recorder counts delivery results.
type Recorder interface {
	RecordNotification(delivered bool)
}

// Observed reports every Send result to a Recorder.
type Observed struct {
	next     Notifier
	recorder Recorder
}

// NewObserved wraps next.
func NewObserved(next Notifier, recorder Recorder) *Observed {
	return &Observed{next: next, recorder: recorder}
}

// Send delegates to the wrapped notifier and records the result.
func (o *Observed) Send(ctx context.Context, to, subject, body string) error {
	err := o.next.Send(ctx, to, subject, body)
	o.recorder.RecordNotification(err == nil)
	return err
}
