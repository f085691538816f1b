// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/api"
	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the accounts service",
		Long: `Start the HTTP and gRPC APIs backed by PostgreSQL, plus the
metrics and health endpoints when metrics_addr is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags(), nil)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.fill()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logOpts := cfg.Logging
	logOpts.Version = version
	logger, err := logging.Setup(logOpts, cmd.ErrOrStderr())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.Database.Pool, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	accounts := deps.AccountsFactory(pool)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, accounts.Ping, logger)
	}

	notifier, err := deps.NotifierFactory(cfg.Notify, logger)
	if err != nil {
		return oops.Code("NOTIFIER_INIT_FAILED").Wrap(err)
	}
	var handlerOpts []api.Option
	handlerOpts = append(handlerOpts,
		api.WithLogger(logger),
		api.WithRevealedCredentials(cfg.Auth.RevealUnknownAccounts),
	)
	if obsServer != nil {
		notifier = notify.NewObserved(notifier, obsServer.Metrics())
		handlerOpts = append(handlerOpts, api.WithRecorder(obsServer.Metrics()))
	}

	svc, err := newCredentialService(cfg.Auth, accounts, notifier, logger)
	if err != nil {
		return err
	}
	handler, err := api.NewHandler(svc, handlerOpts...)
	if err != nil {
		return err
	}

	var started []namedServer
	stopAll := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].server.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping server", "server", started[i].name, "error", err)
			}
		}
	}
	start := func(name string, s Server) error {
		errCh, err := s.Start()
		if err != nil {
			stopAll()
			return oops.Code("SERVER_START_FAILED").With("server", name).Wrap(err)
		}
		started = append(started, namedServer{name: name, server: s})
		go monitorServerErrors(ctx, cancel, errCh, name, logger)
		logger.Info("server started", "server", name, "addr", s.Addr())
		return nil
	}

	if obsServer != nil {
		if err := start("observability", obsServer); err != nil {
			return err
		}
	}
	if err := start("http", deps.HTTPServerFactory(cfg.HTTP, handler, logger)); err != nil {
		return err
	}
	if cfg.GRPC.Addr != "" {
		grpcServer, err := deps.GRPCServerFactory(cfg.GRPC, handler, logger)
		if err != nil {
			stopAll()
			return oops.Code("SERVER_START_FAILED").With("server", "grpc").Wrap(err)
		}
		if err := start("grpc", grpcServer); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Accounts service started")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopAll()
	logger.Info("shutdown complete")

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

type namedServer struct {
	name   string
	server Server
}

// newCredentialService assembles the credential service from its config.
func newCredentialService(cfg config.AuthConfig, accounts auth.AccountRepository, notifier auth.Notifier, logger *slog.Logger) (*auth.CredentialService, error) {
	clock := auth.SystemClock{}

	hasher, err := auth.NewArgon2idHasher(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewJWTIssuer([]byte(cfg.TokenSecret), clock)
	if err != nil {
		return nil, err
	}

	return auth.NewCredentialService(auth.ServiceDeps{
		Accounts: accounts,
		Hasher:   hasher,
		Tokens:   tokens,
		OTPs:     auth.NewRandomOTPGenerator(clock),
		Notifier: notifier,
		Clock:    clock,
		Logger:   logger,
	}, auth.ServiceConfig{
		Product:               cfg.Product,
		RevealUnknownAccounts: cfg.RevealUnknownAccounts,
		ConflictRetries:       cfg.ConflictRetries,
	})
}

// defaultNotifier builds the configured delivery channel. SMTP delivery is
// retried; log delivery cannot fail transiently.
func defaultNotifier(cfg config.NotifyConfig, logger *slog.Logger) (auth.Notifier, error) {
	switch cfg.Mode {
	case config.NotifyModeLog:
		if cfg.IncludeBody {
			logger.Warn("notification bodies are logged; do not use in production")
		}
		return notify.NewLogNotifier(logger, cfg.IncludeBody), nil
	case config.NotifyModeSMTP:
		smtpNotifier, err := notify.NewSMTPNotifier(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		return notify.NewRetrying(smtpNotifier, cfg.Retry, logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("mode", cfg.Mode).Errorf("unknown notify mode %q", cfg.Mode)
	}
}

// autoMigrate applies pending migrations before the service starts.
func autoMigrate(url string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel(oops.Code("SERVER_FAILED").With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}
