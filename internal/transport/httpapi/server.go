// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the account operations as JSON over HTTP.
//
// Routes:
//
//	POST /api/auth/register
//	POST /api/auth/login
//	POST /api/auth/logout
//	POST /api/auth/send-verify-otp   (session)
//	POST /api/auth/verify-account    (session)
//	GET  /api/auth/is-auth           (session)
//	POST /api/auth/send-reset-otp
//	POST /api/auth/reset-password
//	GET  /api/user/data              (session)
//
// The session token is read from the "token" cookie, falling back to an
// "Authorization: Bearer" header.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/api"
)

// Config configures the HTTP transport.
type Config struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// SecureCookies marks the session cookie Secure and SameSite=None, for
	// deployments behind TLS with a separate front-end origin.
	SecureCookies bool `koanf:"secure_cookies" yaml:"secure_cookies"`
	// MaxBodyBytes bounds request bodies. Zero means 64 KiB.
	MaxBodyBytes int64 `koanf:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultMaxBodyBytes is the request body limit used when none is configured.
const DefaultMaxBodyBytes = 64 << 10

// Server serves the account routes.
type Server struct {
	cfg        Config
	ops        api.Operations
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server.
func NewServer(cfg Config, ops api.Operations, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{cfg: cfg, ops: ops, logger: logger}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/send-verify-otp", s.handleSendVerifyOTP)
	mux.HandleFunc("POST /api/auth/verify-account", s.handleVerifyAccount)
	mux.HandleFunc("GET /api/auth/is-auth", s.handleIsAuth)
	mux.HandleFunc("POST /api/auth/send-reset-otp", s.handleSendResetOTP)
	mux.HandleFunc("POST /api/auth/reset-password", s.handleResetPassword)
	mux.HandleFunc("GET /api/user/data", s.handleUserData)
	return s.logRequests(mux)
}

// Start begins serving. The returned channel receives a serve error, if any,
// and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_http_server").Wrap(err)
		}
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
