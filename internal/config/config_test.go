package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanrelay/relay/internal/constants"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, constants.DefaultPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultPathPrefix, cfg.Server.PathPrefix)
	assert.Equal(t, int64(constants.DefaultMaxMessageSize), cfg.Server.MaxMessageSize)
	assert.Equal(t, constants.DefaultCookieName, cfg.Session.CookieName)
	assert.Equal(t, constants.DefaultSecretKeyFile, cfg.Session.SecretKeyFile)
	assert.Equal(t, constants.DefaultSessionLifetime, cfg.Session.Lifetime)
	assert.Equal(t, constants.DefaultLoginRateLimit, cfg.Limits.LoginRateLimit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_PORT", "9090")
	t.Setenv("RELAY_PATH_PREFIX", "/chat")
	t.Setenv("RELAY_COOKIE_NAME", "lan_chat_session")
	t.Setenv("RELAY_SESSION_LIFETIME", "24h")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "http://a.local, http://b.local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/chat", cfg.Server.PathPrefix)
	assert.Equal(t, "lan_chat_session", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("RELAY_PORT", "not-a-number")
	t.Setenv("RELAY_SESSION_LIFETIME", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultSessionLifetime, cfg.Session.Lifetime)
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"oversized port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"empty prefix", func(c *Config) { c.Server.PathPrefix = "" }, "path prefix"},
		{"relative prefix", func(c *Config) { c.Server.PathPrefix = "relay" }, "path prefix"},
		{"tiny frame limit", func(c *Config) { c.Server.MaxMessageSize = 16 }, "max message size"},
		{"empty cookie", func(c *Config) { c.Session.CookieName = "" }, "cookie name"},
		{"empty key file", func(c *Config) { c.Session.SecretKeyFile = "" }, "secret key"},
		{"empty store dir", func(c *Config) { c.Session.StoreDir = "" }, "store directory"},
		{"negative lifetime", func(c *Config) { c.Session.Lifetime = -time.Hour }, "lifetime"},
		{"zero login limit", func(c *Config) { c.Limits.LoginRateLimit = 0 }, "login rate"},
		{"zero rate window", func(c *Config) { c.Limits.RateWindow = 0 }, "rate window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg),
				"error %q should mention %q", err.Error(), tt.wantMsg)
		})
	}
}
