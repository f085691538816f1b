// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api is the boundary between transports and the credential service.
//
// Every operation takes a flat request, never returns an error, and reports
// its outcome as a Result. Failures are classified with auth.KindOf and
// translated to a fixed, client-safe message. Internal error detail only
// reaches the logs.
package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/pkg/errutil"
)

var tracer = otel.Tracer("holomush/accounts/api")

// CredentialService is the subset of auth.CredentialService the boundary uses.
type CredentialService interface {
	Register(ctx context.Context, name, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (ulid.ULID, error)
	Profile(ctx context.Context, accountID ulid.ULID) (*auth.Profile, error)
	RequestEmailOTP(ctx context.Context, accountID ulid.ULID) error
	ConsumeEmailOTP(ctx context.Context, accountID ulid.ULID, code string) error
	RequestPasswordResetOTP(ctx context.Context, email string) error
	ConsumePasswordReset(ctx context.Context, email, code, newPassword string) error
}

// Operations is the boundary surface that transports call. *Handler implements it.
type Operations interface {
	Register(ctx context.Context, req RegisterRequest) Result
	Login(ctx context.Context, req LoginRequest) Result
	Logout(ctx context.Context, req SessionRequest) Result
	IsAuthenticated(ctx context.Context, req SessionRequest) Result
	UserData(ctx context.Context, req SessionRequest) Result
	SendVerifyOTP(ctx context.Context, req SessionRequest) Result
	VerifyAccount(ctx context.Context, req VerifyAccountRequest) Result
	SendResetOTP(ctx context.Context, req ResetOTPRequest) Result
	ResetPassword(ctx context.Context, req ResetPasswordRequest) Result
}

var _ Operations = (*Handler)(nil)

// Recorder counts finished operations. observability.Metrics satisfies it.
type Recorder interface {
	RecordOutcome(operation, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(string, string, time.Duration) {}

// Result is the uniform outcome of a boundary operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Kind names the failure class. It is empty on full success.
	Kind string `json:"kind,omitempty"`
	// Partial marks a committed change whose notification could not be sent.
	Partial bool `json:"partial,omitempty"`
	Data    any  `json:"data,omitempty"`
}

// Failed reports whether the operation did not take effect.
func (r Result) Failed() bool {
	return !r.Success
}

// Handler runs boundary operations against a CredentialService.
type Handler struct {
	svc      CredentialService
	recorder Recorder
	logger   *slog.Logger
	// revealCredentials distinguishes a wrong password from an unknown email.
	revealCredentials bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithLogger sets the logger for failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRevealedCredentials reports a failed login as "Invalid password" when
// the account exists. It pairs with the service's reveal_unknown_accounts mode.
func WithRevealedCredentials(reveal bool) Option {
	return func(h *Handler) {
		h.revealCredentials = reveal
	}
}

// NewHandler creates a Handler. Returns an error if svc is nil.
func NewHandler(svc CredentialService, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("API_NIL_SERVICE").Errorf("credential service is required")
	}
	h := &Handler{svc: svc, recorder: nopRecorder{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// messages are the client-facing texts for one operation.
type messages struct {
	success string
	// partial is used when the change committed but mail failed.
	partial string
	// failures overrides the default text for specific kinds.
	failures map[auth.Kind]string
}

// defaultFailures holds the client-facing text per failure kind.
var defaultFailures = map[auth.Kind]string{
	auth.KindDuplicateAccount:   "User already exists",
	auth.KindUnknownAccount:     "User not found",
	auth.KindBadCredential:      "Invalid email or password",
	auth.KindInvalidOTP:         "Invalid OTP",
	auth.KindOTPExpired:         "OTP expired",
	auth.KindAlreadyVerified:    "Account is already verified",
	auth.KindInvalidToken:       "Not authorized. Login again",
	auth.KindNotificationFailed: "Email could not be sent",
	auth.KindStoreUnavailable:   "Service temporarily unavailable",
}

// run executes fn inside a span and converts its outcome to a Result.
func (h *Handler) run(
	ctx context.Context,
	operation string,
	msgs messages,
	fn func(ctx context.Context) (any, error),
) (result Result) {
	start := time.Now()
	ctx = logging.WithAttrs(ctx, slog.String("operation", operation))
	ctx, span := tracer.Start(ctx, "accounts."+operation, trace.WithSpanKind(trace.SpanKindServer))

	defer func() {
		if r := recover(); r != nil {
			err := oops.Code("API_PANIC").With("operation", operation).Errorf("panic: %v", r)
			result = h.failure(ctx, span, operation, msgs, err)
		}
		outcome := result.Kind
		span.SetAttributes(
			attribute.Bool("accounts.success", result.Success),
			attribute.Bool("accounts.partial", result.Partial),
			attribute.String("accounts.outcome", outcome),
		)
		span.End()
		h.recorder.RecordOutcome(operation, outcome, time.Since(start))
	}()

	data, err := fn(ctx)
	if err == nil {
		return Result{Success: true, Message: msgs.success, Data: data}
	}

	if auth.IsPartial(err) {
		errutil.Log(ctx, h.logger, slog.LevelWarn, "operation committed without notification", err)
		span.AddEvent("notification failed")
		return Result{
			Success: true,
			Message: msgs.partial,
			Kind:    string(auth.KindNotificationFailed),
			Partial: true,
			Data:    data,
		}
	}
	return h.failure(ctx, span, operation, msgs, err)
}

func (h *Handler) failure(ctx context.Context, span trace.Span, operation string, msgs messages, err error) Result {
	kind := auth.KindOf(err)

	switch kind {
	case auth.KindStoreUnavailable:
		errutil.Log(ctx, h.logger, slog.LevelError, operation+" failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
	case auth.KindNotificationFailed:
		errutil.Log(ctx, h.logger, slog.LevelWarn, operation+" failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
	default:
		errutil.Log(ctx, h.logger, slog.LevelInfo, operation+" rejected", err)
	}

	return Result{Success: false, Message: failureMessage(kind, msgs, err), Kind: string(kind)}
}

func failureMessage(kind auth.Kind, msgs messages, err error) string {
	if msg, ok := msgs.failures[kind]; ok {
		return msg
	}
	if kind == auth.KindInvalidInput {
		// Validation messages name the offending field and carry no secrets.
		return sentence(err.Error())
	}
	return defaultFailures[kind]
}

func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// authenticated resolves token and runs fn for the account it names.
func (h *Handler) authenticated(
	token string,
	fn func(ctx context.Context, accountID ulid.ULID) (any, error),
) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		accountID, err := h.svc.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		ctx = logging.WithAttrs(ctx, slog.String("account_id", accountID.String()))
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("account.id", accountID.String()))
		return fn(ctx, accountID)
	}
}
