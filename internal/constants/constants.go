// Package constants provides centralized constant definitions for the relay
// application. This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// HTTP Status Codes
const (
	StatusOK                 = 200
	StatusBadRequest         = 400
	StatusTooManyRequests    = 429
	StatusServiceUnavailable = 503
)

// Timeouts for various operations
const (
	HealthCheckTimeout = 2 * time.Second  // Health check operations
	ShutdownTimeout    = 10 * time.Second // Graceful shutdown deadline
)

// Sizes and Limits
const (
	DefaultMaxMessageSize = 65536 // 64KB for WebSocket frames; chat payloads are small
	MaxUsernameLength     = 64    // Maximum requested display name length
	MaxMessageTextLength  = 4096  // Maximum private message text length
	DefaultLoginRateLimit = 30    // Login attempts per minute per IP
	DefaultEventRateLimit = 120   // Inbound WebSocket events per minute per connection
	MaxConnectionsPerIP   = 10    // Concurrent WebSocket connections per client IP
	PublicEndpointRate    = 60    // Requests per minute for healthz, readyz, metrics
	MinSecretLength       = 32    // Minimum signing secret length in bytes
)

// HTTP Server Timeouts (for standalone server mode)
const (
	HTTPReadTimeout  = 15 * time.Second  // Maximum time to read the entire request
	HTTPWriteTimeout = 30 * time.Second  // Maximum time to write the response
	HTTPIdleTimeout  = 120 * time.Second // Maximum time to keep idle connections alive
)

// Durations for background operations
const (
	DefaultRateWindow      = 1 * time.Minute // Rate limiting window
	DefaultCleanupInterval = 5 * time.Minute // Cleanup goroutine interval
	DefaultSessionLifetime = 30 * 24 * time.Hour
)

// Default Configuration Values
const (
	DefaultPort          = 8080
	DefaultLogLevel      = "info"
	DefaultPathPrefix    = "/relay" // Default HTTP path prefix for all routes
	DefaultCookieName    = "relay_session"
	DefaultSecretKeyFile = "secret_key.txt"
	DefaultSessionDir    = "sessions" // File-backed session store directory
)

// DefaultMetricsAllowedNetworks restricts the Prometheus endpoint to private
// ranges unless overridden.
const DefaultMetricsAllowedNetworks = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8"

// DefaultTrustedProxies is the default CIDR list for X-Forwarded-For trust.
const DefaultTrustedProxies = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8"

// MessageTimeLayout is the wall-clock format stamped onto routed messages.
const MessageTimeLayout = "15:04"

// HTTP Headers
const (
	HeaderRetryAfter = "Retry-After"
)

// Error Messages
const (
	ErrMsgRateLimitExceeded = "Too many requests. Please try again later."
	ErrMsgUsernameRequired  = "username is required"
)

// MinRetryAfterSeconds is the floor for Retry-After headers.
const MinRetryAfterSeconds = 1

// WeakSecrets contains substrings that indicate a guessable signing secret.
var WeakSecrets = []string{
	"secret", "password", "changeme", "default", "example", "test123",
}
