package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "data/licenses.db", cfg.Issuer.DatabasePath)
	assert.Equal(t, time.Hour, cfg.Client.TTL)
	assert.Equal(t, 168*time.Hour, cfg.Client.GraceWindow)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9100
issuer:
  shared_secret: file-secret
  database_path: /var/lib/tbot/licenses.db
client:
  ttl: 30m
  grace_window: 48h
logging:
  level: debug
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Issuer.SharedSecret)
	assert.Equal(t, "/var/lib/tbot/licenses.db", cfg.Issuer.DatabasePath)
	assert.Equal(t, 30*time.Minute, cfg.Client.TTL)
	assert.Equal(t, 48*time.Hour, cfg.Client.GraceWindow)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "http://localhost:8090", cfg.Client.IssuerURL)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9100
issuer:
  shared_secret: file-secret
`)

	t.Setenv("TBOT_SERVER_PORT", "9200")
	t.Setenv("TBOT_ISSUER_SHARED_SECRET", "env-secret")
	t.Setenv("TBOT_CLIENT_TTL", "2h")
	t.Setenv("TBOT_CLIENT_GRACE_WINDOW", "240h")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Issuer.SharedSecret)
	assert.Equal(t, 2*time.Hour, cfg.Client.TTL)
	assert.Equal(t, 240*time.Hour, cfg.Client.GraceWindow)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "grace window equal to ttl",
			yaml: "client:\n  ttl: 1h\n  grace_window: 1h\n",
		},
		{
			name: "grace window below ttl",
			yaml: "client:\n  ttl: 24h\n  grace_window: 1h\n",
		},
		{
			name: "zero ttl",
			yaml: "client:\n  ttl: 0s\n",
		},
		{
			name: "port out of range",
			yaml: "server:\n  port: 70000\n",
		},
		{
			name: "zero request timeout",
			yaml: "client:\n  request_timeout: 0s\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfigFile(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
