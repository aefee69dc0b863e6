package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "09:00", cfg.WorkStart)
	assert.Equal(t, "17:00", cfg.WorkEnd)
	assert.Equal(t, 15*time.Minute, cfg.MinFreeWindow)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxBackoff)
	assert.Equal(t, time.Minute, cfg.Quota.Window)
	assert.Equal(t, 5*time.Minute, cfg.Credential.SafetyMargin)
	assert.Equal(t, []string{"primary"}, cfg.Calendars)
	assert.Equal(t, []string{"@default"}, cfg.TaskLists)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Berlin
work_start: "08:30"
min_free_window: 30m
calendars: [primary, team@example.com]
retry:
  max_attempts: 3
  base_backoff: 250ms
ics:
  - id: holidays
    url: https://example.com/holidays.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "08:30", cfg.WorkStart)
	assert.Equal(t, "17:00", cfg.WorkEnd)
	assert.Equal(t, 30*time.Minute, cfg.MinFreeWindow)
	assert.Equal(t, []string{"primary", "team@example.com"}, cfg.Calendars)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxBackoff)
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "holidays", cfg.ICS[0].ID)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
work_end = "18:00"
task_lists = ["@default", "work"]

[quota]
max_requests = 100
window = "30s"

[credential]
store = "sqlite"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "18:00", cfg.WorkEnd)
	assert.Equal(t, []string{"@default", "work"}, cfg.TaskLists)
	assert.Equal(t, 100, cfg.Quota.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Quota.Window)
	assert.Equal(t, StoreSQLite, cfg.Credential.Store)
	assert.Equal(t, "credentials.db", filepath.Base(cfg.CredentialPath()))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvUserTimezone, "America/New_York")
	t.Setenv(EnvTaskLists, "a, b,,c")
	t.Setenv(EnvClientID, "client-id")
	t.Setenv(EnvMaxAttempts, "7")
	t.Setenv(EnvMinFreeWindow, "not-a-duration")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.TaskLists)
	assert.Equal(t, "client-id", cfg.Credential.ClientID)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.MinFreeWindow)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("work_start: [unclosed"), 0o600))
	_, err := Load(bad)
	assert.Error(t, err)

	ini := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o600))
	_, err = Load(ini)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "encryption key", mutate: func(c *Config) { c.Credential.EncryptionKey = key }},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
		{name: "bad clock", mutate: func(c *Config) { c.WorkStart = "9am" }, wantErr: "work_start"},
		{name: "inverted hours", mutate: func(c *Config) { c.WorkStart, c.WorkEnd = "18:00", "09:00" }, wantErr: "must be after"},
		{name: "backoff order", mutate: func(c *Config) { c.Retry.BaseBackoff = time.Minute }, wantErr: "base_backoff"},
		{name: "jitter", mutate: func(c *Config) { c.Retry.JitterFraction = 2 }, wantErr: "jitter_fraction"},
		{name: "refresh timeout", mutate: func(c *Config) { c.Credential.RefreshTimeout = 10 * time.Minute }, wantErr: "refresh_timeout"},
		{name: "unknown store", mutate: func(c *Config) { c.Credential.Store = "s3" }, wantErr: "credential.store"},
		{name: "valkey without addr", mutate: func(c *Config) { c.Credential.Store = StoreValkey }, wantErr: "valkey_addr"},
		{name: "short key", mutate: func(c *Config) { c.Credential.EncryptionKey = "c2hvcnQ=" }, wantErr: "32 bytes"},
		{
			name: "duplicate ics",
			mutate: func(c *Config) {
				c.ICS = []ICSSource{{ID: "a", URL: "https://x"}, {ID: "a", URL: "https://y"}}
			},
			wantErr: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := Default()
			cfg.WorkStart = "07:45"
			cfg.Quota.MaxWait = 12 * time.Second
			require.NoError(t, Save(path, cfg))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "07:45", loaded.WorkStart)
			assert.Equal(t, 12*time.Second, loaded.Quota.MaxWait)
		})
	}

	assert.Error(t, Save("", Default()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}
