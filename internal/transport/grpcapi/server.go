// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package grpcapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/holomush/accounts/internal/api"
	"github.com/holomush/accounts/internal/logging"
)

// AuthorizationKey is the metadata key carrying the session token.
const AuthorizationKey = "authorization"

// Config configures the gRPC transport.
type Config struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string `koanf:"cert_file" yaml:"cert_file"`
	KeyFile  string `koanf:"key_file" yaml:"key_file"`
}

// TLSEnabled reports whether the listener serves TLS.
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Server serves accounts.v1.Accounts.
type Server struct {
	cfg        Config
	ops        api.Operations
	logger     *slog.Logger
	grpcServer *grpc.Server
	listener   net.Listener
	running    atomic.Bool
}

var _ accountsService = (*Server)(nil)

// NewServer creates a Server and registers the service.
func NewServer(cfg Config, ops api.Operations, logger *slog.Logger) (*Server, error) {
	if ops == nil {
		return nil, oops.Code("GRPC_NIL_OPERATIONS").Errorf("operations are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, ops: ops, logger: logger}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.logCalls, tokenFromMetadata),
	}
	if cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, oops.Code("GRPC_TLS_INVALID").
				With("cert_file", cfg.CertFile).
				With("key_file", cfg.KeyFile).
				Wrap(err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})))
	}

	s.grpcServer = grpc.NewServer(opts...)
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s, nil
}

// Start begins serving. The returned channel receives a serve error, if any,
// and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("grpc server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.grpcServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			s.logger.Error("grpc server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("grpc server started", "addr", listener.Addr().String(), "tls", s.cfg.TLSEnabled())
	return errCh, nil
}

// Stop drains in-flight calls, forcing the stop if ctx ends first.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
		s.logger.Warn("grpc server stopped forcefully")
		return oops.With("operation", "shutdown_grpc_server").Wrap(ctx.Err())
	}
	s.logger.Info("grpc server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Register implements accounts.v1.Accounts/Register.
func (s *Server) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.RegisterRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return encode(s.ops.Register(ctx, req))
}

// Login implements accounts.v1.Accounts/Login.
func (s *Server) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.LoginRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return encode(s.ops.Login(ctx, req))
}

// Logout implements accounts.v1.Accounts/Logout.
func (s *Server) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.ops.Logout(ctx, api.SessionRequest{Token: tokenFrom(ctx)}))
}

// IsAuthenticated implements accounts.v1.Accounts/IsAuthenticated.
func (s *Server) IsAuthenticated(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.ops.IsAuthenticated(ctx, api.SessionRequest{Token: tokenFrom(ctx)}))
}

// UserData implements accounts.v1.Accounts/UserData.
func (s *Server) UserData(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.ops.UserData(ctx, api.SessionRequest{Token: tokenFrom(ctx)}))
}

// SendVerifyOTP implements accounts.v1.Accounts/SendVerifyOtp.
func (s *Server) SendVerifyOTP(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.ops.SendVerifyOTP(ctx, api.SessionRequest{Token: tokenFrom(ctx)}))
}

// VerifyAccount implements accounts.v1.Accounts/VerifyAccount.
func (s *Server) VerifyAccount(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.VerifyAccountRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	req.Token = tokenFrom(ctx)
	return encode(s.ops.VerifyAccount(ctx, req))
}

// SendResetOTP implements accounts.v1.Accounts/SendResetOtp.
func (s *Server) SendResetOTP(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ResetOTPRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return encode(s.ops.SendResetOTP(ctx, req))
}

// ResetPassword implements accounts.v1.Accounts/ResetPassword.
func (s *Server) ResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.ResetPasswordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return encode(s.ops.ResetPassword(ctx, req))
}

// decode maps a Struct onto a request through its JSON field names.
func decode(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(res api.Result) (*structpb.Struct, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

type tokenKey struct{}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// tokenFromMetadata moves the authorization metadata value into the context.
func tokenFromMetadata(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if values := md.Get(AuthorizationKey); len(values) > 0 {
			token := strings.TrimSpace(values[0])
			if rest, found := strings.CutPrefix(token, "Bearer "); found {
				token = strings.TrimSpace(rest)
			}
			ctx = context.WithValue(ctx, tokenKey{}, token)
		}
	}
	return handler(ctx, req)
}

// logCalls tags each call with a request id and logs its completion.
func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	ctx = logging.WithAttrs(ctx, slog.String("request_id", ulid.Make().String()))

	resp, err := handler(ctx, req)

	s.logger.InfoContext(ctx, "grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}
