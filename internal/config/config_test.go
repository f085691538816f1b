// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolate points the default config location at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Database.URL = "postgres://accounts@localhost:5432/accounts"
	cfg.Auth.TokenSecret = testSecret
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil, env(nil))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	isolate(t)
	path := writeFile(t, t.TempDir(), "config.yaml", `
auth:
  product: Acme
  reveal_unknown_accounts: true
  argon2:
    time: 3
    salt_len: 24
database:
  url: postgres://file@db/accounts
  pool:
    max_conns: 7
    max_conn_idle_time: 90s
notify:
  mode: smtp
  smtp:
    host: smtp.example.com
    from: no-reply@example.com
    timeout: 5s
  retry:
    attempts: 4
http:
  addr: 0.0.0.0:8443
  secure_cookies: true
grpc:
  addr: ""
`)

	cfg, err := Load(path, nil, env(map[string]string{
		EnvDatabaseURL:  "postgres://env@db/accounts",
		EnvTokenSecret:  testSecret,
		EnvSMTPPassword: "hunter2",
	}))
	require.NoError(t, err)

	assert.Equal(t, "Acme", cfg.Auth.Product)
	assert.True(t, cfg.Auth.RevealUnknownAccounts)
	assert.Equal(t, uint32(3), cfg.Auth.Argon2.Time)
	assert.Equal(t, uint32(24), cfg.Auth.Argon2.SaltLen)
	assert.Equal(t, Defaults().Auth.Argon2.Memory, cfg.Auth.Argon2.Memory, "unset keys keep defaults")
	assert.Equal(t, "postgres://env@db/accounts", cfg.Database.URL, "environment wins over file")
	assert.Equal(t, int32(7), cfg.Database.Pool.MaxConns)
	assert.Equal(t, 90*time.Second, cfg.Database.Pool.MaxConnIdleTime)
	assert.Equal(t, NotifyModeSMTP, cfg.Notify.Mode)
	assert.Equal(t, "smtp.example.com", cfg.Notify.SMTP.Host)
	assert.Equal(t, 587, cfg.Notify.SMTP.Port)
	assert.Equal(t, 5*time.Second, cfg.Notify.SMTP.Timeout)
	assert.Equal(t, "hunter2", cfg.Notify.SMTP.Password)
	assert.Equal(t, uint64(4), cfg.Notify.Retry.Attempts)
	assert.Equal(t, "0.0.0.0:8443", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.SecureCookies)
	assert.Empty(t, cfg.GRPC.Addr)
	assert.Equal(t, testSecret, cfg.Auth.TokenSecret)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := writeFile(t, t.TempDir(), "config.yaml", `
http:
  addr: 127.0.0.1:1111
logging:
  level: warn
`)
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http.addr=127.0.0.1:2222", "--auto_migrate"}))

	cfg, err := Load(path, fs, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2222", cfg.HTTP.Addr, "set flag wins")
	assert.Equal(t, "warn", cfg.Logging.Level, "unset flag keeps file value")
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, Defaults().GRPC.Addr, cfg.GRPC.Addr)
}

func TestLoad_DefaultFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, filepath.Join("accounts", "config.yaml"), "metrics_addr: 127.0.0.1:9999\n")

	cfg, err := Load("", nil, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.yaml")},
		{"invalid yaml", writeFile(t, dir, "bad.yaml", "http: [unterminated\n")},
		{"wrong type", writeFile(t, dir, "type.yaml", "database:\n  pool:\n    max_conns: many\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, nil, env(nil))
			errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"short token secret", func(c *Config) { c.Auth.TokenSecret = "short" }, "auth.token_secret"},
		{"bad argon2", func(c *Config) { c.Auth.Argon2.Time = 0 }, "auth.argon2"},
		{"pool min above max", func(c *Config) { c.Database.Pool.MinConns = 50 }, "database.pool"},
		{"zero pool", func(c *Config) { c.Database.Pool.MaxConns = 0 }, "database.pool"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"unknown notify mode", func(c *Config) { c.Notify.Mode = "carrier-pigeon" }, "notify.mode"},
		{"smtp without host", func(c *Config) { c.Notify.Mode = NotifyModeSMTP }, "notify.smtp"},
		{"smtp complete", func(c *Config) {
			c.Notify.Mode = NotifyModeSMTP
			c.Notify.SMTP.Host = "smtp.example.com"
			c.Notify.SMTP.From = "no-reply@example.com"
		}, ""},
		{"missing http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"grpc cert without key", func(c *Config) { c.GRPC.CertFile = "server.crt" }, "grpc"},
		{"grpc disabled", func(c *Config) { c.GRPC.Addr = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.wantKey)
		})
	}
}

func TestRedacted(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		wantDB string
	}{
		{"url with password", "postgres://accounts:s3cret@db:5432/accounts", "postgres://accounts:xxxxx@db:5432/accounts"},
		{"url without password", "postgres://db/accounts", "postgres://db/accounts"},
		{"keyword form", "host=db user=accounts password=s3cret", redacted},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database.URL = tt.url
			cfg.Notify.SMTP.Password = "hunter2"

			out := cfg.Redacted()
			assert.Equal(t, tt.wantDB, out.Database.URL)
			assert.Equal(t, redacted, out.Auth.TokenSecret)
			assert.Equal(t, redacted, out.Notify.SMTP.Password)
			assert.Equal(t, testSecret, cfg.Auth.TokenSecret, "original is untouched")
		})
	}
}
