// Package relay provides the service registration for the LAN presence and
// messaging relay. It wires the identity registry, the presence broadcaster,
// the message router, and the session layer onto a Gin engine.
package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lanrelay/relay/internal/config"
	"github.com/lanrelay/relay/internal/constants"
	"github.com/lanrelay/relay/internal/httperrors"
	"github.com/lanrelay/relay/internal/metrics"
	"github.com/lanrelay/relay/internal/presence"
	"github.com/lanrelay/relay/internal/ratelimit"
	"github.com/lanrelay/relay/internal/registry"
	"github.com/lanrelay/relay/internal/router"
	"github.com/lanrelay/relay/internal/session"
	"github.com/lanrelay/relay/internal/util"
	"github.com/lanrelay/relay/internal/ws"
)

var (
	// Global references for graceful shutdown
	globalWSHandler     *ws.Handler
	globalLoginLimiter  *ratelimit.EventLimiter
	globalPublicLimiter *ratelimit.EventLimiter
	globalLogger        *zap.SugaredLogger
	shutdownMu          sync.Mutex
)

// loginRequest is the /api/login body.
type loginRequest struct {
	Username string `json:"username"`
}

// Register wires all relay endpoints onto the given Gin engine.
func Register(r *gin.Engine, cfg *config.Config, logger *zap.SugaredLogger) error {
	relayLogger := logger.With("component", "relay")
	relayLogger.Infow("Initializing relay service")

	if err := cfg.Validate(); err != nil {
		return err
	}

	// The signing secret survives restarts so session cookies issued before a
	// restart keep validating.
	secret, err := session.LoadOrCreateSecret(cfg.Session.SecretKeyFile)
	if err != nil {
		return fmt.Errorf("load signing secret: %w", err)
	}
	if err := validateSecret(secret); err != nil {
		relayLogger.Errorw("Configuration validation failed", "error", err)
		return err
	}

	store, err := session.NewFileStore(cfg.Session.StoreDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	sessions := session.NewManager(secret, cfg.Session.Lifetime, store, relayLogger)
	reg := registry.New()
	pres := presence.New(relayLogger)
	rtr := router.New(reg, relayLogger)

	wsHandler := ws.NewHandler(sessions, reg, pres, rtr, relayLogger, ws.Options{
		CookieName:     cfg.Session.CookieName,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		MaxConnsPerIP:  cfg.Limits.MaxConnsPerIP,
		EventRateLimit: cfg.Limits.EventRateLimit,
		RateWindow:     cfg.Limits.RateWindow,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if len(cfg.Server.AllowedOrigins) == 0 {
		relayLogger.Warnw("No allowed origins configured, accepting all origins (LAN mode)")
	}

	loginLimiter := ratelimit.NewEventLimiter(cfg.Limits.RateWindow, cfg.Limits.LoginRateLimit)
	publicLimiter := ratelimit.NewEventLimiter(cfg.Limits.RateWindow, cfg.Limits.PublicEndpointRate)
	loginLimiter.StartCleanup()
	publicLimiter.StartCleanup()

	// Stop any previously-registered instances to prevent goroutine leaks
	// when Register is called more than once (tests, hot-reload).
	shutdownMu.Lock()
	if globalLoginLimiter != nil {
		globalLoginLimiter.StopCleanup()
	}
	if globalPublicLimiter != nil {
		globalPublicLimiter.StopCleanup()
	}
	if globalWSHandler != nil {
		_ = globalWSHandler.Shutdown(context.Background())
	}
	globalWSHandler = wsHandler
	globalLoginLimiter = loginLimiter
	globalPublicLimiter = publicLimiter
	globalLogger = relayLogger
	shutdownMu.Unlock()

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		relayLogger.Infow("CORS middleware configured", "allowed_origins", cfg.Server.CORSAllowedOrigins)
	}

	// c.ClientIP() only trusts X-Forwarded-For from these networks.
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			relayLogger.Warnw("Failed to set trusted proxies", "error", err)
		}
	}

	r.Use(securityHeadersMiddleware())
	r.Use(metricsMiddleware())

	relayLogger.Infow("Using HTTP path prefix", "prefix", cfg.Server.PathPrefix)

	group := r.Group(cfg.Server.PathPrefix)
	{
		group.GET("/ws", func(c *gin.Context) {
			wsHandler.HandleWebSocket(c.Writer, c.Request)
		})

		api := group.Group("/api")
		{
			api.POST("/login", handleLogin(sessions, reg, loginLimiter, cfg, relayLogger))
			api.POST("/logout", handleLogout(sessions, cfg, relayLogger))
		}

		group.GET("/healthz", publicRateLimitMiddleware(publicLimiter, relayLogger), handleHealthCheck)
		group.GET("/readyz", publicRateLimitMiddleware(publicLimiter, relayLogger), handleReadyCheck(store, relayLogger))

		metricsNets := parseNetworks(cfg.Server.MetricsAllowedNetworks, relayLogger)
		group.GET("/metrics/prometheus",
			metricsNetworkMiddleware(metricsNets, relayLogger),
			publicRateLimitMiddleware(publicLimiter, relayLogger),
			gin.WrapH(promhttp.Handler()),
		)
	}

	relayLogger.Infow("Relay service registered",
		"websocket_endpoint", cfg.Server.PathPrefix+"/ws",
		"login_endpoint", cfg.Server.PathPrefix+"/api/login",
		"health_endpoints", cfg.Server.PathPrefix+"/healthz, "+cfg.Server.PathPrefix+"/readyz",
		"metrics_endpoint", cfg.Server.PathPrefix+"/metrics/prometheus",
	)

	return nil
}

// handleLogin resolves the requested display name against the online roster
// and binds it to the caller's session. The response carries the final,
// possibly suffixed, name; the identity takes effect when the client's
// WebSocket connection joins.
func handleLogin(sessions *session.Manager, reg *registry.Registry, limiter *ratelimit.EventLimiter, cfg *config.Config, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !limiter.Allow(clientIP) {
			setRetryAfter(c, limiter.RetryAfter(clientIP))
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			httperrors.RespondTooManyRequests(c)
			return
		}

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			httperrors.RespondBadRequest(c, httperrors.MsgInvalidRequest)
			return
		}

		desired := strings.TrimSpace(req.Username)
		if desired == "" {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			httperrors.RespondBadRequest(c, constants.ErrMsgUsernameRequired)
			return
		}
		if len(desired) > constants.MaxUsernameLength {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			httperrors.RespondBadRequest(c, fmt.Sprintf("username exceeds maximum length of %d", constants.MaxUsernameLength))
			return
		}

		var existing session.Session
		if cookie, err := c.Cookie(cfg.Session.CookieName); err == nil {
			if sess, ok := sessions.Resolve(cookie); ok {
				existing = sess
			}
		}

		sess, cookieValue, err := sessions.Login(desired, existing, reg.Snapshot())
		if err != nil {
			util.LogError(logger, "http", "bind session name", err)
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			httperrors.RespondInternalError(c)
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.Session.CookieName, cookieValue,
			int(cfg.Session.Lifetime.Seconds()), "/", "", cfg.Session.CookieSecure, true)

		metrics.LoginsTotal.WithLabelValues("ok").Inc()
		c.JSON(constants.StatusOK, gin.H{"username": sess.Name})
	}
}

// handleLogout deletes the caller's session record and expires the cookie.
// Without a valid cookie it is a no-op success.
func handleLogout(sessions *session.Manager, cfg *config.Config, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cookie, err := c.Cookie(cfg.Session.CookieName); err == nil {
			sessions.Logout(cookie)
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.Session.CookieName, "", -1, "/", "", cfg.Session.CookieSecure, true)
		c.JSON(constants.StatusOK, gin.H{"status": "logged_out"})
	}
}

// handleHealthCheck is the liveness probe: if we can respond, we are alive.
func handleHealthCheck(c *gin.Context) {
	c.JSON(constants.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyCheck is the readiness probe. The relay is ready when the
// session store is writable; everything else is in-memory.
func handleReadyCheck(store *session.FileStore, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]interface{})
		allReady := true

		ctx, cancel := util.NewTimeoutContext(constants.HealthCheckTimeout)
		defer cancel()

		if err := pingStore(ctx, store); err != nil {
			logger.Warnw("Session store health check failed", "error", err)
			checks["session_store"] = map[string]interface{}{
				"status": "not ready",
				"reason": "Session store writability check failed",
			}
			allReady = false
		} else {
			checks["session_store"] = map[string]interface{}{
				"status": "ready",
			}
		}

		status := "ready"
		statusCode := constants.StatusOK
		if !allReady {
			status = "not ready"
			statusCode = constants.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

// pingStore bounds the store writability probe so a hung filesystem cannot
// stall the readiness endpoint.
func pingStore(ctx context.Context, store *session.FileStore) error {
	done := make(chan error, 1)
	go func() { done <- store.Ping() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the relay service: background limiters stop
// and all WebSocket connections are closed within the context deadline.
func Shutdown(ctx context.Context) error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()

	if globalLogger != nil {
		globalLogger.Infow("Starting graceful shutdown of relay service")
	}

	if globalLoginLimiter != nil {
		globalLoginLimiter.StopCleanup()
	}
	if globalPublicLimiter != nil {
		globalPublicLimiter.StopCleanup()
	}

	if globalWSHandler != nil {
		if err := globalWSHandler.Shutdown(ctx); err != nil {
			if globalLogger != nil {
				globalLogger.Warnw("WebSocket handler shutdown error", "error", err)
			}
			return err
		}
	}

	if globalLogger != nil {
		globalLogger.Infow("Relay service shutdown complete")
	}
	return nil
}

// securityHeadersMiddleware adds standard HTTP security headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// metricsMiddleware records HTTP request duration for Prometheus monitoring.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"endpoint": c.FullPath(),
			"method":   c.Request.Method,
		}).Observe(time.Since(start).Seconds())
	}
}

// publicRateLimitMiddleware limits public endpoints (healthz, readyz,
// metrics) by client IP to prevent abuse.
func publicRateLimitMiddleware(limiter *ratelimit.EventLimiter, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !limiter.Allow(clientIP) {
			logger.Debugw("Public endpoint rate limit exceeded", "client_ip", clientIP, "path", c.Request.URL.Path)
			setRetryAfter(c, limiter.RetryAfter(clientIP))
			c.JSON(constants.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": constants.ErrMsgRateLimitExceeded,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setRetryAfter writes a Retry-After header, rounded up to whole seconds.
func setRetryAfter(c *gin.Context, retry time.Duration) {
	seconds := int((retry + time.Second - 1) / time.Second)
	if seconds < constants.MinRetryAfterSeconds {
		seconds = constants.MinRetryAfterSeconds
	}
	c.Header(constants.HeaderRetryAfter, fmt.Sprintf("%d", seconds))
}

// validateSecret checks the signing secret strength.
func validateSecret(secret []byte) error {
	if len(secret) < constants.MinSecretLength {
		return fmt.Errorf(
			"signing secret must be at least %d bytes (got %d); "+
				"delete the secret key file to regenerate one",
			constants.MinSecretLength, len(secret))
	}

	lower := strings.ToLower(string(secret))
	for _, weak := range constants.WeakSecrets {
		if strings.Contains(lower, weak) {
			return fmt.Errorf(
				"signing secret appears to be weak (contains %q); "+
					"use a cryptographically random secret, e.g. openssl rand -hex 32",
				weak)
		}
	}
	return nil
}

// parseNetworks parses a list of CIDR network strings, skipping invalid ones.
func parseNetworks(cidrs []string, logger *zap.SugaredLogger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warnw("Invalid CIDR in metrics allowed networks", "cidr", cidr, "error", err)
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// metricsNetworkMiddleware restricts the metrics endpoint to configured
// networks. With none configured all clients are allowed.
func metricsNetworkMiddleware(allowedNets []*net.IPNet, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(allowedNets) == 0 {
			c.Next()
			return
		}

		clientIP := net.ParseIP(c.ClientIP())
		if clientIP == nil {
			logger.Warnw("Could not parse client IP for metrics access", "ip", c.ClientIP())
			httperrors.RespondForbidden(c)
			c.Abort()
			return
		}

		for _, ipNet := range allowedNets {
			if ipNet.Contains(clientIP) {
				c.Next()
				return
			}
		}

		logger.Warnw("Metrics access denied from unauthorized network", "client_ip", c.ClientIP())
		httperrors.RespondForbidden(c)
		c.Abort()
	}
}

// NewHTTPServer builds the standalone HTTP server with sane timeouts.
// WebSocket upgrades bypass ReadTimeout/WriteTimeout once hijacked, so the
// values only bound the initial HTTP exchange.
func NewHTTPServer(r http.Handler, port int) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  constants.HTTPReadTimeout,
		WriteTimeout: constants.HTTPWriteTimeout,
		IdleTimeout:  constants.HTTPIdleTimeout,
	}
}
