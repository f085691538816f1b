// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the accounts service configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// --config, then explicitly set command-line flags. Secrets are read from
// the environment last and never from flags.
package config

import (
	"errors"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/internal/transport/grpcapi"
	"github.com/holomush/accounts/internal/transport/httpapi"
	"github.com/holomush/accounts/internal/xdg"
)

// Environment variables holding secrets.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvTokenSecret  = "ACCOUNTS_TOKEN_SECRET" //nolint:gosec // variable name, not a credential
	EnvSMTPPassword = "ACCOUNTS_SMTP_PASSWORD" //nolint:gosec // variable name, not a credential
)

// Notification delivery modes.
const (
	NotifyModeLog  = "log"
	NotifyModeSMTP = "smtp"
)

const redacted = "[REDACTED]"

// Config is the complete service configuration.
type Config struct {
	Auth     AuthConfig      `koanf:"auth" yaml:"auth"`
	Database DatabaseConfig  `koanf:"database" yaml:"database"`
	Logging  logging.Options `koanf:"logging" yaml:"logging"`
	Notify   NotifyConfig    `koanf:"notify" yaml:"notify"`
	HTTP     httpapi.Config  `koanf:"http" yaml:"http"`
	GRPC     grpcapi.Config  `koanf:"grpc" yaml:"grpc"`
	// MetricsAddr is the observability listener. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr"`
	// AutoMigrate applies pending migrations before serving.
	AutoMigrate bool `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// AuthConfig configures the credential service.
type AuthConfig struct {
	Product               string            `koanf:"product" yaml:"product"`
	TokenSecret           string            `koanf:"token_secret" yaml:"token_secret"`
	RevealUnknownAccounts bool              `koanf:"reveal_unknown_accounts" yaml:"reveal_unknown_accounts"`
	ConflictRetries       uint64            `koanf:"conflict_retries" yaml:"conflict_retries"`
	Argon2                auth.Argon2Params `koanf:"argon2" yaml:"argon2"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL  string           `koanf:"url" yaml:"url"`
	Pool store.PoolConfig `koanf:"pool" yaml:"pool"`
}

// NotifyConfig selects and tunes notification delivery.
type NotifyConfig struct {
	// Mode is "log" (write messages to the log) or "smtp".
	Mode string `koanf:"mode" yaml:"mode"`
	// IncludeBody logs message bodies in log mode. Bodies carry OTPs, so
	// this is for development only.
	IncludeBody bool               `koanf:"include_body" yaml:"include_body"`
	SMTP        notify.SMTPConfig  `koanf:"smtp" yaml:"smtp"`
	Retry       notify.RetryConfig `koanf:"retry" yaml:"retry"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Auth: AuthConfig{
			Product:         "Accounts",
			ConflictRetries: auth.DefaultConflictRetries,
			Argon2:          auth.DefaultArgon2Params(),
		},
		Database: DatabaseConfig{Pool: store.DefaultPoolConfig()},
		Logging:  logging.Options{Service: "accounts", Format: "json", Level: "info"},
		Notify: NotifyConfig{
			Mode:  NotifyModeLog,
			SMTP:  notify.SMTPConfig{Port: 587, RequireTLS: true},
			Retry: notify.DefaultRetryConfig(),
		},
		HTTP:        httpapi.Config{Addr: "127.0.0.1:8080", MaxBodyBytes: httpapi.DefaultMaxBodyBytes},
		GRPC:        grpcapi.Config{Addr: "127.0.0.1:9090"},
		MetricsAddr: "127.0.0.1:9100",
	}
}

// AddFlags registers the overridable settings on fs. Flag names are the
// dotted config keys; defaults mirror Defaults so an unset flag never masks
// a file value.
func AddFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("http.addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("grpc.addr", d.GRPC.Addr, "gRPC listen address (empty disables)")
	fs.String("metrics_addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("logging.level", d.Logging.Level, "log level (debug, info, warn, error)")
	fs.String("logging.format", d.Logging.Format, "log format (json, text)")
	fs.String("notify.mode", d.Notify.Mode, "notification delivery (log, smtp)")
	fs.Bool("auto_migrate", d.AutoMigrate, "apply pending migrations before serving")
}

// Load builds the configuration. path may be empty, in which case the
// default config file is read if it exists. flags may be nil. getenv
// supplies secrets; nil means os.Getenv.
func Load(path string, flags *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	k := koanf.New(".")

	if path == "" {
		if def, err := xdg.ConfigFile(); err == nil {
			if _, statErr := os.Stat(def); statErr == nil {
				path = def
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	if v := getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv(EnvTokenSecret); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := getenv(EnvSMTPPassword); v != "" {
		cfg.Notify.SMTP.Password = v
	}
	return &cfg, nil
}

// Validate reports the first setting that would prevent the service from
// starting.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return invalid("database.url", errors.New("database URL is required (set "+EnvDatabaseURL+")"))
	}
	if len(c.Auth.TokenSecret) < auth.MinTokenSecretLen {
		return invalid("auth.token_secret",
			oops.Errorf("token secret must be at least %d bytes (set %s)", auth.MinTokenSecretLen, EnvTokenSecret))
	}
	if err := c.Auth.Argon2.Validate(); err != nil {
		return invalid("auth.argon2", err)
	}
	if c.Database.Pool.MaxConns <= 0 || c.Database.Pool.MinConns < 0 || c.Database.Pool.MinConns > c.Database.Pool.MaxConns {
		return invalid("database.pool", oops.Errorf("pool requires 0 <= min_conns <= max_conns and max_conns > 0"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", err)
	}
	if f := c.Logging.Format; f != "json" && f != "text" {
		return invalid("logging.format", oops.Errorf("unknown log format %q", f))
	}
	switch c.Notify.Mode {
	case NotifyModeLog:
	case NotifyModeSMTP:
		if err := c.Notify.SMTP.Validate(); err != nil {
			return invalid("notify.smtp", err)
		}
	default:
		return invalid("notify.mode", oops.Errorf("unknown notify mode %q", c.Notify.Mode))
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", errors.New("HTTP listen address is required"))
	}
	if (c.GRPC.CertFile == "") != (c.GRPC.KeyFile == "") {
		return invalid("grpc", errors.New("cert_file and key_file must be set together"))
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.Auth.TokenSecret != "" {
		out.Auth.TokenSecret = redacted
	}
	if out.Notify.SMTP.Password != "" {
		out.Notify.SMTP.Password = redacted
	}
	if out.Database.URL != "" {
		u, err := url.Parse(out.Database.URL)
		switch {
		case err != nil, strings.Contains(out.Database.URL, "password="):
			out.Database.URL = redacted
		case u.User != nil:
			out.Database.URL = u.Redacted()
		}
	}
	return out
}

func invalid(key string, err error) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("invalid %s: %v", key, err)
}
