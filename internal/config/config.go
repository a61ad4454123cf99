// Package config loads relay configuration from environment variables.
// Values fall back to the defaults in internal/constants so the server can
// start on a LAN with zero configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lanrelay/relay/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Limits  LimitsConfig
	Log     LogConfig
}

// ServerConfig holds HTTP and WebSocket server configuration
type ServerConfig struct {
	Port                   int
	PathPrefix             string // HTTP path prefix for all routes (default: "/relay")
	MaxMessageSize         int64  // Maximum WebSocket frame size in bytes
	AllowedOrigins         []string
	CORSAllowedOrigins     []string
	TrustedProxies         []string
	MetricsAllowedNetworks []string
}

// SessionConfig holds session cookie and store configuration
type SessionConfig struct {
	CookieName    string
	SecretKeyFile string        // Path to the signing secret; created on first boot
	StoreDir      string        // File-backed session store directory
	Lifetime      time.Duration // Cookie and token lifetime
	CookieSecure  bool          // Set the Secure flag on the session cookie
}

// LimitsConfig holds rate limiting configuration
type LimitsConfig struct {
	LoginRateLimit     int           // Login attempts per window per IP
	EventRateLimit     int           // Inbound WebSocket events per window per connection
	RateWindow         time.Duration // Window shared by the sliding-window limiters
	MaxConnsPerIP      int           // Concurrent WebSocket connections per client IP
	PublicEndpointRate int           // Requests per window for healthz/readyz/metrics
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level          string
	StandardOutput bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:                   getEnvAsInt("RELAY_PORT", constants.DefaultPort),
			PathPrefix:             getEnv("RELAY_PATH_PREFIX", constants.DefaultPathPrefix),
			MaxMessageSize:         int64(getEnvAsInt("RELAY_MAX_MESSAGE_SIZE", constants.DefaultMaxMessageSize)),
			AllowedOrigins:         getEnvAsSlice("RELAY_ALLOWED_ORIGINS", nil),
			CORSAllowedOrigins:     getEnvAsSlice("RELAY_CORS_ALLOWED_ORIGINS", nil),
			TrustedProxies:         getEnvAsSlice("RELAY_TRUSTED_PROXIES", splitByComma(constants.DefaultTrustedProxies)),
			MetricsAllowedNetworks: getEnvAsSlice("RELAY_METRICS_ALLOWED_NETWORKS", splitByComma(constants.DefaultMetricsAllowedNetworks)),
		},
		Session: SessionConfig{
			CookieName:    getEnv("RELAY_COOKIE_NAME", constants.DefaultCookieName),
			SecretKeyFile: getEnv("RELAY_SECRET_KEY_FILE", constants.DefaultSecretKeyFile),
			StoreDir:      getEnv("RELAY_SESSION_DIR", constants.DefaultSessionDir),
			Lifetime:      getEnvAsDuration("RELAY_SESSION_LIFETIME", constants.DefaultSessionLifetime),
			CookieSecure:  getEnvAsBool("RELAY_COOKIE_SECURE", false),
		},
		Limits: LimitsConfig{
			LoginRateLimit:     getEnvAsInt("RELAY_LOGIN_RATE_LIMIT", constants.DefaultLoginRateLimit),
			EventRateLimit:     getEnvAsInt("RELAY_EVENT_RATE_LIMIT", constants.DefaultEventRateLimit),
			RateWindow:         getEnvAsDuration("RELAY_RATE_WINDOW", constants.DefaultRateWindow),
			MaxConnsPerIP:      getEnvAsInt("RELAY_MAX_CONNS_PER_IP", constants.MaxConnectionsPerIP),
			PublicEndpointRate: getEnvAsInt("RELAY_PUBLIC_ENDPOINT_RATE", constants.PublicEndpointRate),
		},
		Log: LogConfig{
			Level:          getEnv("RELAY_LOG_LEVEL", constants.DefaultLogLevel),
			StandardOutput: getEnvAsBool("RELAY_LOG_STDOUT", true),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server port must be between 1 and 65535"))
	}
	if c.Server.PathPrefix == "" {
		errs = append(errs, errors.New("path prefix cannot be empty"))
	} else if !strings.HasPrefix(c.Server.PathPrefix, "/") {
		errs = append(errs, errors.New("path prefix must start with '/'"))
	}
	if c.Server.MaxMessageSize < constants.MaxMessageTextLength {
		errs = append(errs, fmt.Errorf(
			"max message size %d is below the %d-byte message text limit",
			c.Server.MaxMessageSize, constants.MaxMessageTextLength))
	}

	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session cookie name cannot be empty"))
	}
	if c.Session.SecretKeyFile == "" {
		errs = append(errs, errors.New("secret key file path cannot be empty"))
	}
	if c.Session.StoreDir == "" {
		errs = append(errs, errors.New("session store directory cannot be empty"))
	}
	if c.Session.Lifetime <= 0 {
		errs = append(errs, errors.New("session lifetime must be positive"))
	}

	if c.Limits.LoginRateLimit <= 0 {
		errs = append(errs, errors.New("login rate limit must be positive"))
	}
	if c.Limits.EventRateLimit <= 0 {
		errs = append(errs, errors.New("event rate limit must be positive"))
	}
	if c.Limits.RateWindow <= 0 {
		errs = append(errs, errors.New("rate window must be positive"))
	}
	if c.Limits.MaxConnsPerIP <= 0 {
		errs = append(errs, errors.New("max connections per IP must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	result := []string{}
	for _, v := range splitByComma(valueStr) {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}

func splitByComma(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
