// Package registry implements the identity registry: the authoritative
// in-memory mapping between live connections, display names, and session
// tokens. It is the single source of truth for who is online.
//
// All operations execute under one mutex so the bidirectional maps are never
// observably out of sync. Operations are O(1) map lookups and never block
// while holding the lock; notification fan-out belongs to callers, outside
// the lock.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/lanrelay/relay/internal/metrics"
)

// ErrNameInUse is returned when a claim is rejected because a different
// session already holds the display name. The registry state is unchanged.
var ErrNameInUse = errors.New("display name is in use by another session")

// Conn is the live transport connection handle bound to identities.
// Implementations must be comparable; a handle ceases to exist on disconnect
// and is never reused.
type Conn interface {
	ID() string
}

// ClaimOutcome describes how a successful claim changed the registry.
type ClaimOutcome int

const (
	// OutcomeBound means the name was unowned and is now bound to the connection.
	OutcomeBound ClaimOutcome = iota
	// OutcomeTakeover means a previous connection presenting the same session
	// token was evicted and the name rebound.
	OutcomeTakeover
	// OutcomeNoop means the connection already held the name.
	OutcomeNoop
)

// ClaimResult reports the outcome of a claim. Evicted is non-nil only for
// OutcomeTakeover; the evicted connection's bindings are gone but its
// transport is not closed here.
type ClaimResult struct {
	Outcome ClaimOutcome
	Evicted Conn
}

// Registry holds the connection/name/token bindings.
type Registry struct {
	mu          sync.Mutex
	connToName  map[Conn]string
	nameToConn  map[string]Conn
	nameToToken map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		connToName:  make(map[Conn]string),
		nameToConn:  make(map[string]Conn),
		nameToToken: make(map[string]string),
	}
}

// Claim binds conn to name, authorized by token.
//
// If name is unowned, it is bound. If conn already holds name, the claim is a
// no-op success (the stored token is refreshed). If a different connection
// holds name and its stored token equals token, that connection is evicted
// and name rebinds to conn — a reconnect from the same browser session. If
// the tokens differ, the claim fails with ErrNameInUse and nothing changes.
func (r *Registry) Claim(conn Conn, name, token string) (ClaimResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, owned := r.nameToConn[name]
	if owned && owner == conn {
		r.nameToToken[name] = token
		metrics.ClaimsTotal.WithLabelValues("noop").Inc()
		return ClaimResult{Outcome: OutcomeNoop}, nil
	}

	var evicted Conn
	if owned {
		if r.nameToToken[name] != token {
			metrics.ClaimsTotal.WithLabelValues("conflict").Inc()
			return ClaimResult{}, ErrNameInUse
		}
		// Same session token: evict the stale connection's bindings. Its
		// transport stays open; the lifecycle layer decides what to tell it.
		delete(r.connToName, owner)
		evicted = owner
	}

	// A connection can hold at most one name; drop any previous binding.
	if prev, ok := r.connToName[conn]; ok && prev != name {
		delete(r.nameToConn, prev)
		delete(r.nameToToken, prev)
	}

	r.connToName[conn] = name
	r.nameToConn[name] = conn
	r.nameToToken[name] = token

	metrics.OnlineUsers.Set(float64(len(r.nameToConn)))

	if evicted != nil {
		metrics.ClaimsTotal.WithLabelValues("takeover").Inc()
		return ClaimResult{Outcome: OutcomeTakeover, Evicted: evicted}, nil
	}
	metrics.ClaimsTotal.WithLabelValues("bound").Inc()
	return ClaimResult{Outcome: OutcomeBound}, nil
}

// Release removes all bindings for conn. It returns the freed name, or
// ok=false if the connection held nothing. Safe to call repeatedly.
func (r *Registry) Release(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.connToName[conn]
	if !ok {
		return "", false
	}

	delete(r.connToName, conn)
	delete(r.nameToConn, name)
	delete(r.nameToToken, name)

	metrics.OnlineUsers.Set(float64(len(r.nameToConn)))
	return name, true
}

// Lookup resolves a display name to its live connection.
func (r *Registry) Lookup(name string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.nameToConn[name]
	return conn, ok
}

// WhoHolds resolves a connection to its display name.
func (r *Registry) WhoHolds(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.connToName[conn]
	return name, ok
}

// Snapshot returns the sorted set of all currently bound display names.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.nameToConn))
	for name := range r.nameToConn {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
