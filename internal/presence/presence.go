// Package presence tracks the set of live connections and fans server events
// out to them. It is deliberately independent of the identity registry: every
// open transport connection participates in broadcasts, identified or not.
package presence

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lanrelay/relay/internal/event"
	"github.com/lanrelay/relay/internal/metrics"
)

// Conn is a connection that accepts outbound frames without blocking.
// A false return means the frame was dropped (connection closing or slow);
// broadcasts are best-effort and never retried.
type Conn interface {
	SafeSend(data []byte) bool
}

// Broadcaster holds the live connection set.
type Broadcaster struct {
	mu     sync.RWMutex
	conns  map[Conn]struct{}
	logger *zap.SugaredLogger
}

// New creates an empty broadcaster.
func New(logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		conns:  make(map[Conn]struct{}),
		logger: logger.With("component", "presence"),
	}
}

// Add registers a live connection for future broadcasts.
func (b *Broadcaster) Add(conn Conn) {
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
}

// Remove drops a connection from the broadcast set. Safe to call repeatedly.
func (b *Broadcaster) Remove(conn Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
}

// Count returns the number of live connections.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Broadcast encodes the event once and sends it to every live connection
// except those listed in exclude. The connection set is snapshotted under the
// lock and the sends happen outside it, so a slow client never serializes
// identity operations behind its write buffer.
func (b *Broadcaster) Broadcast(name event.Name, payload interface{}, exclude ...Conn) {
	data, err := event.Encode(name, payload)
	if err != nil {
		b.logger.Errorw("Failed to encode broadcast", "event", name, "error", err)
		return
	}

	b.mu.RLock()
	targets := make([]Conn, 0, len(b.conns))
	for conn := range b.conns {
		targets = append(targets, conn)
	}
	b.mu.RUnlock()

	skip := make(map[Conn]struct{}, len(exclude))
	for _, conn := range exclude {
		skip[conn] = struct{}{}
	}

	sent := 0
	for _, conn := range targets {
		if _, excluded := skip[conn]; excluded {
			continue
		}
		if conn.SafeSend(data) {
			sent++
		}
	}

	metrics.BroadcastsSent.WithLabelValues(string(name)).Inc()
	b.logger.Debugw("Broadcast sent", "event", name, "recipients", sent)
}
