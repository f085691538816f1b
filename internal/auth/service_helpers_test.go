// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/memory"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// fakeClock is a settable auth.Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	To, Subject, Body string
}

// recordingNotifier captures messages and optionally fails every send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *recordingNotifier) last() sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMessage{}
	}
	return n.sent[len(n.sent)-1]
}

// MockAccountRepository is a mock for injecting store failures.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Account), args.Error(1)
}

func (m *MockAccountRepository) Save(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// logCapture is a test slog handler that captures log records.
type logCapture struct {
	records []slog.Record
	mu      sync.Mutex
}

func (lc *logCapture) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (lc *logCapture) Handle(_ context.Context, r slog.Record) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.records = append(lc.records, r)
	return nil
}
func (lc *logCapture) WithAttrs(_ []slog.Attr) slog.Handler { return lc }
func (lc *logCapture) WithGroup(_ string) slog.Handler      { return lc }

func (lc *logCapture) contains(msg string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for i := range lc.records {
		if lc.records[i].Message == msg {
			return true
		}
	}
	return false
}

// allAttrs flattens every captured attribute value, for leak checks.
func (lc *logCapture) allAttrs() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	var b strings.Builder
	for i := range lc.records {
		lc.records[i].Attrs(func(a slog.Attr) bool {
			b.WriteString(a.Key)
			b.WriteString("=")
			b.WriteString(a.Value.String())
			b.WriteString(" ")
			return true
		})
	}
	return b.String()
}

// testEnv is a CredentialService over the in-memory store.
type testEnv struct {
	svc      *auth.CredentialService
	repo     *memory.AccountRepository
	clock    *fakeClock
	notifier *recordingNotifier
	tokens   *auth.JWTIssuer
	logs     *logCapture
}

func newTestEnv(t *testing.T, cfg auth.ServiceConfig) *testEnv {
	t.Helper()

	clock := newFakeClock()
	hasher, err := auth.NewArgon2idHasher(cheapParams)
	require.NoError(t, err)
	tokens, err := auth.NewJWTIssuer(testSecret, clock)
	require.NoError(t, err)

	env := &testEnv{
		repo:     memory.NewAccountRepository(),
		clock:    clock,
		notifier: &recordingNotifier{},
		tokens:   tokens,
		logs:     &logCapture{},
	}
	env.svc, err = auth.NewCredentialService(auth.ServiceDeps{
		Accounts: env.repo,
		Hasher:   hasher,
		Tokens:   tokens,
		OTPs:     auth.NewRandomOTPGenerator(clock),
		Notifier: env.notifier,
		Clock:    clock,
		Logger:   slog.New(env.logs),
	}, cfg)
	require.NoError(t, err)
	return env
}

// register creates an account and returns its ID.
func (e *testEnv) register(t *testing.T, email, password string) ulid.ULID {
	t.Helper()
	session, err := e.svc.Register(context.Background(), "Ada", email, password)
	require.NoError(t, err)
	return session.AccountID
}

func (e *testEnv) account(t *testing.T, id ulid.ULID) *auth.Account {
	t.Helper()
	account, err := e.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return account
}

// wrongCode returns a six digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

var errSMTPDown = errors.New("smtp: connection refused")
