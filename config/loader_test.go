package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsLoad(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.HTTPPort)
	assert.Equal(t, "https://claude.ai", cfg.Browser.BaseURL)
	assert.Equal(t, "sidechannel", cfg.Engine.PollStrategy)
	assert.Equal(t, 60, cfg.Engine.PollAttempts)
	assert.Equal(t, 90*time.Minute, cfg.Engine.RateLimitMargin)
	assert.Equal(t, time.Hour, cfg.Engine.RateLimitFallback)
	assert.Contains(t, cfg.Engine.Models, "claude-3-5-sonnet-20240620")
	assert.Empty(t, cfg.Database.Driver)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  http_port: 9000
browser:
  ws_endpoint: ws://127.0.0.1:9222/devtools/browser/abc
  base_url: https://chat.example.com
engine:
  poll_strategy: dom
  poll_interval: 500ms
  stream_interval: 50ms
  models:
    - model-a
    - model-b
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.WSEndpoint)
	assert.Equal(t, "https://chat.example.com", cfg.Browser.BaseURL)
	assert.Equal(t, "dom", cfg.Engine.PollStrategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.PollInterval)
	assert.Equal(t, []string{"model-a", "model-b"}, cfg.Engine.Models)
	// untouched keys keep defaults
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("UIBRIDGE_SERVER_HTTP_PORT", "8100")
	t.Setenv("UIBRIDGE_BROWSER_WS_ENDPOINT", "ws://10.0.0.5:9222/devtools/browser/xyz")
	t.Setenv("UIBRIDGE_ENGINE_THROTTLE_COOLDOWN", "2h")
	t.Setenv("UIBRIDGE_SERVER_API_KEYS", "k1, k2,k3")
	t.Setenv("UIBRIDGE_BROWSER_TYPING_CADENCE", "true")
	t.Setenv("UIBRIDGE_BROWSER_SELECTORS_INPUT", "div.editor")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8100, cfg.Server.HTTPPort)
	assert.Equal(t, "ws://10.0.0.5:9222/devtools/browser/xyz", cfg.Browser.WSEndpoint)
	assert.Equal(t, 2*time.Hour, cfg.Engine.ThrottleCooldown)
	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.Server.APIKeys)
	assert.True(t, cfg.Browser.TypingCadence)
	assert.Equal(t, "div.editor", cfg.Browser.Selectors.Input)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/uibridge.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.WSEndpoint = "ws://127.0.0.1:9222/devtools/browser/abc"
	require.NoError(t, cfg.Validate())

	t.Run("missing endpoint", func(t *testing.T) {
		c := DefaultConfig()
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ws_endpoint")
	})

	t.Run("default model outside allowlist", func(t *testing.T) {
		c := DefaultConfig()
		c.Browser.WSEndpoint = "ws://x"
		c.Engine.DefaultModel = "not-a-model"
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_model")
	})

	t.Run("bad poll strategy", func(t *testing.T) {
		c := DefaultConfig()
		c.Browser.WSEndpoint = "ws://x"
		c.Engine.PollStrategy = "guess"
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_strategy")
	})
}

func TestValidatorHook(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "/tmp/uibridge.db"}
	assert.Equal(t, "/tmp/uibridge.db", lite.DSN())

	assert.Empty(t, (&DatabaseConfig{}).DSN())
}
