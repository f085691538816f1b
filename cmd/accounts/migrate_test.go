// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/pkg/errutil"
)

// recordingMigrator records the calls made by the migrate subcommands.
type recordingMigrator struct {
	calls  []string
	steps  int
	forced int
	status *store.MigrationStatus
	err    error
	closed bool
}

func (m *recordingMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.err
}

func (m *recordingMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return m.err
}

func (m *recordingMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return m.err
}

func (m *recordingMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.forced = version
	return m.err
}

func (m *recordingMigrator) Status() (*store.MigrationStatus, error) {
	m.calls = append(m.calls, "status")
	return m.status, m.err
}

func (m *recordingMigrator) Close() error {
	m.closed = true
	return nil
}

func useMigrator(t *testing.T, m Migrator) {
	t.Helper()
	orig := migratorFactory
	migratorFactory = func(string) (Migrator, error) { return m, nil }
	t.Cleanup(func() { migratorFactory = orig })
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "surrounding whitespace is trimmed", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErr: true},
		{name: "trailing characters", input: "3abc", wantErr: true},
		{name: "float", input: "1.5", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestMigrateCommands(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantOut   string
		check     func(t *testing.T, m *recordingMigrator)
	}{
		{
			name:      "up",
			args:      []string{"migrate", "up"},
			wantCalls: []string{"up"},
			wantOut:   "Migrations completed successfully",
		},
		{
			name:      "down defaults to one step",
			args:      []string{"migrate", "down"},
			wantCalls: []string{"steps"},
			wantOut:   "Rolling back 1 migration(s)",
			check:     func(t *testing.T, m *recordingMigrator) { assert.Equal(t, -1, m.steps) },
		},
		{
			name:      "down with steps",
			args:      []string{"migrate", "down", "--steps", "3"},
			wantCalls: []string{"steps"},
			check:     func(t *testing.T, m *recordingMigrator) { assert.Equal(t, -3, m.steps) },
		},
		{
			name:      "down all",
			args:      []string{"migrate", "down", "--all"},
			wantCalls: []string{"down"},
			wantOut:   "All migrations rolled back",
		},
		{
			name:      "force",
			args:      []string{"migrate", "force", "2"},
			wantCalls: []string{"force"},
			wantOut:   "Schema version forced to 2",
			check:     func(t *testing.T, m *recordingMigrator) { assert.Equal(t, 2, m.forced) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			t.Setenv("DATABASE_URL", "postgres://localhost/accounts")
			m := &recordingMigrator{}
			useMigrator(t, m)

			out, err := executeRoot(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.True(t, m.closed, "migrator closed")
			if tt.wantOut != "" {
				assert.Contains(t, out, tt.wantOut)
			}
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}
}

func TestMigrateStatus(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/accounts")
	m := &recordingMigrator{status: &store.MigrationStatus{Current: 1, Dirty: true, Applied: []uint{1}, Pending: []uint{9999}}}
	useMigrator(t, m)

	out, err := executeRoot(t, "migrate", "status")
	require.NoError(t, err)

	assert.Contains(t, out, "Current version: 1 (dirty)")
	assert.Contains(t, out, "Applied:")
	assert.Contains(t, out, "000001_")
	assert.Contains(t, out, "  9999", "unknown versions print as numbers")
	assert.Contains(t, out, "migrate force VERSION")
}

func TestMigrate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		dbURL    string
		migErr   error
		wantCode string
	}{
		{"no database url", []string{"migrate", "up"}, "", nil, "CONFIG_INVALID"},
		{"up fails", []string{"migrate", "up"}, "postgres://localhost/accounts", errors.New("boom"), "MIGRATION_FAILED"},
		{"bad steps", []string{"migrate", "down", "--steps", "0"}, "postgres://localhost/accounts", nil, "INVALID_STEPS"},
		{"bad force version", []string{"migrate", "force", "x"}, "postgres://localhost/accounts", nil, "INVALID_VERSION"},
		{"status fails", []string{"migrate", "status"}, "postgres://localhost/accounts", errors.New("boom"), "MIGRATION_STATUS_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			t.Setenv("DATABASE_URL", tt.dbURL)
			useMigrator(t, &recordingMigrator{err: tt.migErr})

			_, err := executeRoot(t, tt.args...)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}
