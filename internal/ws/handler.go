// Package ws owns the WebSocket side of the relay: the HTTP upgrade, the
// connection lifecycle, and the dispatch of wire events to the identity
// registry, the presence broadcaster, and the message router.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lanrelay/relay/internal/constants"
	"github.com/lanrelay/relay/internal/event"
	"github.com/lanrelay/relay/internal/metrics"
	"github.com/lanrelay/relay/internal/presence"
	"github.com/lanrelay/relay/internal/ratelimit"
	"github.com/lanrelay/relay/internal/registry"
	"github.com/lanrelay/relay/internal/relayerrors"
	"github.com/lanrelay/relay/internal/router"
	"github.com/lanrelay/relay/internal/session"
	"github.com/lanrelay/relay/internal/util"
)

// upgrader configures the WebSocket upgrade.
// SECURITY: on anything but a trusted LAN this service should sit behind a
// reverse proxy that terminates TLS. CheckOrigin is set per handler instance.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options configures a Handler.
type Options struct {
	CookieName     string
	MaxMessageSize int64
	MaxConnsPerIP  int
	EventRateLimit int
	RateWindow     time.Duration
	AllowedOrigins []string
}

// Handler upgrades HTTP requests to WebSocket connections and drives the
// connection lifecycle.
type Handler struct {
	sessions *session.Manager
	reg      *registry.Registry
	presence *presence.Broadcaster
	router   *router.Router
	logger   *zap.SugaredLogger

	cookieName     string
	maxMessageSize int64
	allowedOrigins map[string]bool

	connLimiter  *ratelimit.ConnectionLimiter
	eventLimiter *ratelimit.EventLimiter

	// conns tracks live connections for shutdown and guards against double
	// cleanup on disconnect.
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHandler creates a WebSocket handler wired to the given collaborators.
func NewHandler(sessions *session.Manager, reg *registry.Registry, pres *presence.Broadcaster, rtr *router.Router, logger *zap.SugaredLogger, opts Options) *Handler {
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		allowed[origin] = true
	}

	h := &Handler{
		sessions:       sessions,
		reg:            reg,
		presence:       pres,
		router:         rtr,
		logger:         logger.With("component", "ws"),
		cookieName:     opts.CookieName,
		maxMessageSize: opts.MaxMessageSize,
		allowedOrigins: allowed,
		connLimiter:    ratelimit.NewConnectionLimiter(opts.MaxConnsPerIP),
		eventLimiter:   ratelimit.NewEventLimiter(opts.RateWindow, opts.EventRateLimit),
		conns:          make(map[*Conn]struct{}),
	}
	h.eventLimiter.StartCleanup()
	return h
}

// checkOrigin validates the Origin header of an upgrade request. With no
// origins configured all origins are accepted, which is the LAN deployment
// mode.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if h.allowedOrigins[origin] {
		return true
	}

	h.logger.Warnw("Rejected upgrade from disallowed origin", "origin", origin)
	return false
}

// HandleWebSocket upgrades the request and starts the connection lifecycle:
// resolve the session cookie, upgrade, register with presence, start the
// pumps, then run the connect identity attempt.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	addr := clientIP(r)
	if !h.connLimiter.Allow(addr) {
		h.logger.Warnw("Connection limit exceeded", "remote", addr)
		http.Error(w, constants.ErrMsgRateLimitExceeded, http.StatusTooManyRequests)
		return
	}

	// A missing or invalid cookie is not an error: the connection simply
	// starts anonymous and is told to log in.
	var sid string
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		if sess, ok := h.sessions.Resolve(cookie.Value); ok {
			sid = sess.SID
		}
	}

	localUpgrader := upgrader
	localUpgrader.CheckOrigin = h.checkOrigin

	wsConn, err := localUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.connLimiter.Release(addr)
		util.LogError(h.logger, "ws", "upgrade connection", err, "remote", addr)
		return
	}
	wsConn.SetReadLimit(h.maxMessageSize)

	c := newConn(wsConn, sid, addr)

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.presence.Add(c)
	metrics.WebSocketConnections.Inc()

	h.logger.Infow("WebSocket connection established", "conn_id", c.id, "remote", addr)

	util.SafeGo(h.logger, "writePump", c.writePump)
	util.SafeGo(h.logger, "readPump", func() { c.readPump(h) })

	h.handleConnect(c)
}

// handleConnect runs the connect-time identity attempt. A connection that
// cannot auto-identify is told to log in and still receives the roster so the
// login screen can show who is online.
func (h *Handler) handleConnect(c *Conn) {
	if !h.identify(c) {
		h.sendEvent(c, event.UserList, event.UserListPayload{Users: h.reg.Snapshot()})
	}
}

// identify attempts to claim the connection's stored display name. On success
// the usual announcement set goes out: auto_login to the connection,
// user_joined to everyone else, the fresh roster to all. Returns false when
// the connection stays anonymous.
func (h *Handler) identify(c *Conn) bool {
	sess, ok := h.sessions.Lookup(c.sid)
	if !ok || sess.Name == "" {
		h.sendEvent(c, event.RequestLogin, nil)
		return false
	}

	res, err := h.reg.Claim(c, sess.Name, c.sid)
	if err != nil {
		// A different browser session owns the name. The stored name stays
		// in this session's record; the user picks another at the login
		// screen, which overwrites it.
		h.logger.Infow("Stored name held by another session", "username", sess.Name, "conn_id", c.id)
		h.sendEvent(c, event.RequestLogin, nil)
		return false
	}

	if res.Outcome == registry.OutcomeTakeover {
		if evicted, ok := res.Evicted.(*Conn); ok {
			// The superseded connection keeps its transport but lost its
			// identity; tell it to show the login screen.
			h.sendEvent(evicted, event.RequestLogin, nil)
			h.logger.Infow("Connection superseded by reconnect",
				"username", sess.Name, "old_conn_id", evicted.id, "new_conn_id", c.id)
		}
	}

	h.sendEvent(c, event.AutoLogin, event.UsernamePayload{Username: sess.Name})
	h.presence.Broadcast(event.UserJoined, event.UsernamePayload{Username: sess.Name}, c)
	h.presence.Broadcast(event.UserList, event.UserListPayload{Users: h.reg.Snapshot()})

	h.logger.Infow("User identified", "username", sess.Name, "conn_id", c.id)
	return true
}

// dispatch decodes one inbound frame and routes it to its lifecycle handler.
// A panic while handling an event is recovered here: the offending connection
// gets a generic notice and stays open.
func (h *Handler) dispatch(c *Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic recovered in event dispatch",
				"conn_id", c.id, "panic", fmt.Sprintf("%v", r))
			metrics.DispatchErrors.Inc()
			h.sendSystem(c, relayerrors.ErrInternal(nil).UserMessage())
		}
	}()

	if !h.eventLimiter.Allow(c.id) {
		h.sendSystem(c, constants.ErrMsgRateLimitExceeded)
		return
	}

	ev, err := event.Decode(raw)
	if err != nil {
		var unknown *event.ErrUnknownEvent
		if errors.As(err, &unknown) {
			// Unknown events are ignored, tolerating newer clients.
			h.logger.Debugw("Ignoring unknown event", "event", unknown.Event, "conn_id", c.id)
			return
		}
		h.sendSystem(c, relayerrors.ErrInvalidPayload(err).UserMessage())
		return
	}

	metrics.EventsReceived.WithLabelValues(string(eventNameOf(ev))).Inc()

	switch ev := ev.(type) {
	case event.JoinEvent:
		h.identify(c)

	case event.LogoutEvent:
		h.handleLogout(c)

	case event.PrivateMessageEvent:
		if err := h.router.SendPrivateMessage(c, ev.To, ev.Text); err != nil {
			var relayErr *relayerrors.RelayError
			if errors.As(err, &relayErr) {
				h.sendSystem(c, relayErr.UserMessage())
			} else {
				h.sendSystem(c, relayerrors.ErrInternal(err).UserMessage())
			}
		}

	case event.TypingEvent:
		h.router.SendTyping(c, ev.To, ev.IsTyping)

	case event.GetUserListEvent:
		h.sendEvent(c, event.UserList, event.UserListPayload{Users: h.reg.Snapshot()})
	}
}

// handleLogout releases the connection's identity, clears the persisted name
// so the next connect does not auto-identify, and announces the departure.
// Logging out while anonymous still acknowledges.
func (h *Handler) handleLogout(c *Conn) {
	if name, freed := h.reg.Release(c); freed {
		if c.sid != "" {
			h.sessions.ClearName(c.sid)
		}
		h.presence.Broadcast(event.UserLeft, event.UsernamePayload{Username: name})
		h.presence.Broadcast(event.UserList, event.UserListPayload{Users: h.reg.Snapshot()})
		h.logger.Infow("User logged out", "username", name, "conn_id", c.id)
	}
	h.sendEvent(c, event.LogoutOK, nil)
}

// handleDisconnect tears down a closed connection: presence, limiters,
// registry bindings, and the departure announcement if the connection was
// identified. Runs exactly once per connection.
func (h *Handler) handleDisconnect(c *Conn) {
	h.mu.Lock()
	if _, tracked := h.conns[c]; !tracked {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	h.mu.Unlock()

	c.closing.Store(true)
	close(c.send)

	h.presence.Remove(c)
	h.connLimiter.Release(c.remoteAddr)
	h.eventLimiter.Forget(c.id)
	metrics.WebSocketConnections.Dec()

	// An evicted connection holds nothing, so a takeover's old transport
	// closing here never announces the new owner's departure.
	if name, freed := h.reg.Release(c); freed {
		h.presence.Broadcast(event.UserLeft, event.UsernamePayload{Username: name})
		h.presence.Broadcast(event.UserList, event.UserListPayload{Users: h.reg.Snapshot()})
		h.logger.Infow("User disconnected", "username", name, "conn_id", c.id)
	} else {
		h.logger.Debugw("Anonymous connection closed", "conn_id", c.id)
	}
}

// Shutdown closes every live connection with a going-away frame, honoring the
// context deadline.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.eventLimiter.StopCleanup()

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.logger.Infow("Closing WebSocket connections", "count", len(conns))

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.closeGoingAway("server shutting down")
			c.Close()
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.logger.Warnw("Shutdown deadline exceeded", "remaining", len(conns))
		return ctx.Err()
	}
}

// sendEvent encodes and queues a server event for one connection.
func (h *Handler) sendEvent(c *Conn, name event.Name, payload interface{}) {
	if !c.SafeSend(event.MustEncode(name, payload)) {
		h.logger.Debugw("Dropped outbound event", "event", name, "conn_id", c.id)
	}
}

// sendSystem queues a system notice for one connection.
func (h *Handler) sendSystem(c *Conn, text string) {
	h.sendEvent(c, event.System, event.SystemPayload{Text: text})
}

// eventNameOf maps a decoded client event back to its wire name for metrics.
func eventNameOf(ev event.ClientEvent) event.Name {
	switch ev.(type) {
	case event.JoinEvent:
		return event.Join
	case event.LogoutEvent:
		return event.Logout
	case event.PrivateMessageEvent:
		return event.PrivateMessage
	case event.TypingEvent:
		return event.Typing
	case event.GetUserListEvent:
		return event.GetUserList
	default:
		return ""
	}
}

// clientIP extracts the peer address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
