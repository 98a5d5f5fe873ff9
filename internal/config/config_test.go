package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, GetDefaults(), cfg)
	assert.True(t, cfg.Masking.Enabled)
	assert.Equal(t, "closed", cfg.Masking.FailMode)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  port: 9090
masking:
  options:
    - PHONE:NONE
    - ORDER:ORD-\d{6}:PARTIAL:3-2
  fail_mode: open
  max_message_bytes: 0
alerts:
  warn_per_second: 1
  burst: 2
redis:
  enabled: true
  key_prefix: test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"PHONE:NONE", `ORDER:ORD-\d{6}:PARTIAL:3-2`}, cfg.Masking.Options)
	assert.Equal(t, "open", cfg.Masking.FailMode)
	assert.Equal(t, 0, cfg.Masking.MaxMessageBytes)
	assert.Equal(t, 1.0, cfg.Alerts.WarnPerSecond)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "test", cfg.Redis.KeyPrefix)
	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LOGMASK_MASKING_FAIL_MODE", "open")
	t.Setenv("LOGMASK_SERVER_PORT", "7070")

	cfg, err := Load(writeConfig(t, t.TempDir(), "masking:\n  fail_mode: closed\n"))
	require.NoError(t, err)
	assert.Equal(t, "open", cfg.Masking.FailMode)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadOptionsFromEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "masking:\n  options: [PHONE]\n")

	t.Run("json array keeps commas inside expressions", func(t *testing.T) {
		t.Setenv("LOGMASK_MASKING_OPTIONS", `["ACCT:\\d{4,6}:PARTIAL:1-1", "EMAIL:NONE"]`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{`ACCT:\d{4,6}:PARTIAL:1-1`, "EMAIL:NONE"}, cfg.Masking.Options)
	})

	t.Run("one option per line", func(t *testing.T) {
		t.Setenv("LOGMASK_MASKING_OPTIONS", "ACCT:\\d{4,6}\n\n  PHONE:NONE \n")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{`ACCT:\d{4,6}`, "PHONE:NONE"}, cfg.Masking.Options)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Setenv("LOGMASK_MASKING_OPTIONS", `["PHONE"`)

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"batch size", func(c *Config) { c.Server.MaxBatchSize = 0 }},
		{"fail mode", func(c *Config) { c.Masking.FailMode = "maybe" }},
		{"max bytes", func(c *Config) { c.Masking.MaxMessageBytes = -1 }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"alert rate", func(c *Config) { c.Alerts.WarnPerSecond = -1 }},
		{"rate limit", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }},
		{"redis url", func(c *Config) { c.Redis.Enabled = true; c.Redis.RedisURL = "" }},
		{"database url", func(c *Config) { c.Database.Enabled = true; c.Database.DatabaseURL = "" }},
		{"websocket auth", func(c *Config) { c.WebSocket.Username = "ops" }},
		{"admin auth", func(c *Config) { c.Server.AdminPassword = "s3cret" }},
		{"alert burst", func(c *Config) { c.Alerts.WarnPerSecond = 5; c.Alerts.Burst = 0 }},
	}

	require.NoError(t, validateConfig(GetDefaults()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "masking:\n  options: [PHONE]\n")

	src := NewSource(path)
	cfg, err := src.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"PHONE"}, cfg.Masking.Options)
	assert.Equal(t, path, src.File())

	changes := make(chan *Config, 8)
	errs := make(chan error, 8)
	src.Watch(func(c *Config) {
		select {
		case changes <- c:
		default:
		}
	}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	writeConfig(t, dir, "masking:\n  options: [PHONE:NONE]\n")

	require.Eventually(t, func() bool {
		select {
		case c := <-changes:
			return len(c.Masking.Options) == 1 && c.Masking.Options[0] == "PHONE:NONE"
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)

	writeConfig(t, dir, "masking:\n  fail_mode: sideways\n")

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config was not reported")
	}
}
