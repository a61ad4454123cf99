// Package ratelimit provides rate limiting for WebSocket connections and
// inbound events. Connections are capped per client IP; events are limited per
// connection with a sliding window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/lanrelay/relay/internal/constants"
)

// ConnectionLimiter caps the number of concurrent connections per client IP.
type ConnectionLimiter struct {
	connections map[string]int // client IP -> connection count
	maxPerIP    int
	mu          sync.RWMutex
}

// NewConnectionLimiter creates a connection limiter allowing maxPerIP
// concurrent connections from one address.
func NewConnectionLimiter(maxPerIP int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
	}
}

// Allow reserves a connection slot for addr. Every successful Allow must be
// paired with a Release when the connection ends.
func (cl *ConnectionLimiter) Allow(addr string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	count := cl.connections[addr]
	if count >= cl.maxPerIP {
		return false
	}

	cl.connections[addr] = count + 1
	return true
}

// Release frees a connection slot for addr.
func (cl *ConnectionLimiter) Release(addr string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if count, ok := cl.connections[addr]; ok {
		if count <= 1 {
			delete(cl.connections, addr)
		} else {
			cl.connections[addr] = count - 1
		}
	}
}

// Count returns the current connection count for addr.
func (cl *ConnectionLimiter) Count(addr string) int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.connections[addr]
}

// EventLimiter limits the rate of inbound events per connection using a
// sliding window.
type EventLimiter struct {
	events map[string][]time.Time // connection ID -> event timestamps
	window time.Duration
	limit  int
	mu     sync.RWMutex

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	cleanupWg       sync.WaitGroup
}

// NewEventLimiter creates an event limiter allowing limit events per window
// for each connection.
func NewEventLimiter(window time.Duration, limit int) *EventLimiter {
	return &EventLimiter{
		events:          make(map[string][]time.Time),
		window:          window,
		limit:           limit,
		cleanupInterval: constants.DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
}

// Allow records an event for connID and reports whether it is within the
// window limit. Rejected events are not recorded.
func (el *EventLimiter) Allow(connID string) bool {
	el.mu.Lock()
	defer el.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-el.window)

	var recent []time.Time
	for _, t := range el.events[connID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= el.limit {
		el.events[connID] = recent
		return false
	}

	el.events[connID] = append(recent, now)
	return true
}

// RetryAfter returns how long until the next event from connID would be
// allowed, or zero if one is allowed now.
func (el *EventLimiter) RetryAfter(connID string) time.Duration {
	el.mu.RLock()
	defer el.mu.RUnlock()

	now := time.Now()
	cutoff := now.Add(-el.window)

	var oldest time.Time
	inWindow := 0
	for _, t := range el.events[connID] {
		if t.After(cutoff) {
			inWindow++
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
	}
	if inWindow < el.limit {
		return 0
	}

	retryAfter := oldest.Add(el.window).Sub(now)
	if retryAfter < 0 {
		return 0
	}
	return retryAfter
}

// Forget drops the event history for connID. Called on disconnect so the map
// does not accumulate dead connections between cleanups.
func (el *EventLimiter) Forget(connID string) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.events, connID)
}

// Cleanup removes expired events across all connections.
func (el *EventLimiter) Cleanup() {
	el.mu.Lock()
	defer el.mu.Unlock()

	cutoff := time.Now().Add(-el.window)
	for connID, events := range el.events {
		var recent []time.Time
		for _, t := range events {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}

		if len(recent) == 0 {
			delete(el.events, connID)
		} else {
			el.events[connID] = recent
		}
	}
}

// StartCleanup starts a background goroutine that periodically removes
// expired events.
func (el *EventLimiter) StartCleanup() {
	el.cleanupWg.Add(1)
	go func() {
		defer el.cleanupWg.Done()
		ticker := time.NewTicker(el.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				el.Cleanup()
			case <-el.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine and waits for it to finish. Safe to
// call more than once.
func (el *EventLimiter) StopCleanup() {
	el.stopOnce.Do(func() {
		close(el.stopCleanup)
	})
	el.cleanupWg.Wait()
}
