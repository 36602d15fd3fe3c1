package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/agenda/internal/kv"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, DefaultRefresh, c.Refresh)
	assert.Equal(t, 14, c.PageDays)
	assert.Equal(t, DefaultMaxConcurrency, c.MaxConcurrency)
	assert.Equal(t, DefaultRedirectPort, c.Google.RedirectPort)
	assert.Equal(t, kv.TypeFile, c.Storage.Type)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.NoError(t, c.Validate())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
	assert.ErrorIs(t, c.RequireGoogle(), ErrMissingClient)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")
	t.Setenv("AGENDA_TEST_SECRET", "s3cret")

	path := writeConfig(t, `
google:
  client_id: my-client
  client_secret: ${AGENDA_TEST_SECRET}
  redirect_port: 9999
timezone: Europe/Berlin
page_days: 7
max_concurrency: 4
refresh: "0 * * * *"
storage:
  type: sqlite
  path: /tmp/agenda.db
metrics:
  enabled: true
  addr: 0.0.0.0:9100
log:
  level: DEBUG
  format: json
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my-client", c.Google.ClientID)
	assert.Equal(t, "s3cret", c.Google.ClientSecret)
	assert.Equal(t, 9999, c.Google.RedirectPort)
	assert.Equal(t, 7, c.PageDays)
	assert.Equal(t, 4, c.MaxConcurrency)
	assert.Equal(t, "0 * * * *", c.Refresh)
	assert.Equal(t, kv.Config{Type: kv.TypeSQLite, Path: "/tmp/agenda.db"}, c.Storage)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:9100", c.Metrics.Addr)
	assert.Equal(t, "debug", c.Log.Level)
	assert.NoError(t, c.RequireGoogle())

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	level, err := c.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesClient(t *testing.T) {
	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")

	path := writeConfig(t, "google:\n  client_id: file-id\n  client_secret: file-secret\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-id", c.Google.ClientID)
	assert.Equal(t, "env-secret", c.Google.ClientSecret)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "google: [", "failed to parse config"},
		{"bad timezone", "timezone: Mars/Olympus", "invalid timezone"},
		{"bad schedule", "refresh: every minute", "invalid refresh schedule"},
		{"bad storage", "storage:\n  type: s3", "invalid storage type"},
		{"valkey without url", "storage:\n  type: valkey", "storage.valkey.url is required"},
		{"bad log level", "log:\n  level: loud", "invalid log level"},
		{"bad log format", "log:\n  format: xml", "invalid log format"},
		{"bad port", "google:\n  redirect_port: 70000", "invalid redirect_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalize(t *testing.T) {
	c := &Config{PageDays: -3}
	c.Normalize()
	assert.Equal(t, DefaultPageDays, c.PageDays)
}

func TestNormalize_MaxConcurrency(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero selects the default", 0, DefaultMaxConcurrency},
		{"explicit limit is kept", 3, 3},
		{"negative stays unbounded", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{MaxConcurrency: tt.in}
			c.Normalize()
			assert.Equal(t, tt.want, c.MaxConcurrency)

			c.Normalize()
			assert.Equal(t, tt.want, c.MaxConcurrency, "normalizing twice changes nothing")
		})
	}
}

func TestLocation_Default(t *testing.T) {
	loc, err := (&Config{}).Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/agenda.yaml")
	assert.Equal(t, "/etc/agenda.yaml", DefaultPath())

	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "config.yaml", filepath.Base(DefaultPath()))
}
