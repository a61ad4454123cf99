package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// pongWait is the time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending ping messages (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// writeWait is the time allowed to write a message to the peer
	writeWait = 10 * time.Second
)

// Conn is one live WebSocket connection. It implements the connection handle
// used by the registry, the presence broadcaster, and the router.
//
// The handle is born on upgrade and dies on disconnect; IDs are never reused.
// Identity is not stored here: the registry owns the connection-to-name
// binding.
type Conn struct {
	ws *websocket.Conn

	// id uniquely identifies this connection for its lifetime.
	id string

	// sid is the browser session token carried by the cookie at upgrade
	// time. Empty for cookie-less connections, which can never auto-identify.
	sid string

	// remoteAddr is the client IP, held for the connection limiter release.
	remoteAddr string

	// send is the buffered channel for outbound frames.
	send chan []byte

	// closing is set before the send channel closes so SafeSend never
	// panics on a closed channel.
	closing atomic.Bool

	// mu serializes direct writes to ws (close handshake vs writePump).
	mu sync.Mutex
}

func newConn(ws *websocket.Conn, sid, remoteAddr string) *Conn {
	return &Conn{
		ws:         ws,
		id:         uuid.New().String(),
		sid:        sid,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, 256),
	}
}

// ID returns the unique connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// SafeSend queues an outbound frame without blocking. It returns false if the
// connection is closing or its buffer is full; such frames are dropped, never
// retried.
func (c *Conn) SafeSend(data []byte) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears down the underlying transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return c.ws.Close()
	}
	return nil
}

// closeGoingAway sends a close frame announcing server shutdown.
func (c *Conn) closeGoingAway(reason string) {
	c.write(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
}

// write performs one transport write under the connection mutex. The
// websocket package allows at most one concurrent writer.
func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

// readPump reads frames from the peer and hands them to the handler's
// dispatcher. It owns the read side: deadlines, the pong handler, and the
// disconnect cleanup.
func (c *Conn) readPump(h *Handler) {
	defer func() {
		h.handleDisconnect(c)
		c.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warnw("Unexpected connection close", "conn_id", c.id, "error", err)
			} else {
				h.logger.Debugw("Connection closing", "conn_id", c.id)
			}
			return
		}

		h.dispatch(c, raw)
	}
}

// writePump writes queued frames to the peer and keeps the heartbeat alive.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
