// Package session implements the session token issuer and the persisted
// session collaborator: a signed browser cookie carrying an opaque session ID,
// backed by a file store mapping session IDs to display names.
//
// The cookie proves continuity of identity across reconnects; the store is
// authoritative, so clearing it on logout invalidates stale cookies without
// any cookie round-trip.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is a resolved browser session: the opaque token plus the display
// name it currently owns, if any.
type Session struct {
	SID  string
	Name string
}

// Manager issues, resolves, and clears browser sessions.
type Manager struct {
	codec  *CookieCodec
	store  *FileStore
	logger *zap.SugaredLogger
}

// NewManager creates a session manager over the given signing secret and store.
func NewManager(secret []byte, lifetime time.Duration, store *FileStore, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		codec:  NewCookieCodec(secret, lifetime),
		store:  store,
		logger: logger.With("component", "session"),
	}
}

// Resolve turns a cookie value into the live session, consulting the store.
// It returns ok=false for absent, invalid, expired, or cleared sessions —
// all of which mean the connection starts anonymous.
func (m *Manager) Resolve(cookieValue string) (Session, bool) {
	if cookieValue == "" {
		return Session{}, false
	}

	sid, _, err := m.codec.Decode(cookieValue)
	if err != nil {
		m.logger.Debugw("Rejected session cookie", "error", err)
		return Session{}, false
	}

	rec, ok := m.store.Get(sid)
	if !ok {
		// Signed cookie for a session the store no longer knows (logged out
		// or store wiped). Keep the sid so login can reuse it.
		return Session{SID: sid}, true
	}
	return Session{SID: sid, Name: rec.Username}, true
}

// Lookup returns the stored session for sid. Unlike Resolve it consults only
// the store, so callers holding a verified sid see name changes made after
// their cookie was issued.
func (m *Manager) Lookup(sid string) (Session, bool) {
	if sid == "" {
		return Session{}, false
	}
	rec, ok := m.store.Get(sid)
	if !ok {
		return Session{}, false
	}
	return Session{SID: sid, Name: rec.Username}, true
}

// Login binds a disambiguated display name to the caller's session, creating
// the session on first contact, and returns the session plus a fresh signed
// cookie value.
func (m *Manager) Login(desired string, existing Session, online []string) (Session, string, error) {
	final := Disambiguate(desired, existing.Name, online)

	sid := existing.SID
	if sid == "" {
		sid = uuid.New().String()
	}

	if err := m.store.Put(Record{SID: sid, Username: final}); err != nil {
		return Session{}, "", fmt.Errorf("persist session: %w", err)
	}

	cookieValue, err := m.codec.Encode(sid, final)
	if err != nil {
		return Session{}, "", err
	}

	m.logger.Infow("HTTP login", "username", final, "sid_prefix", sidPrefix(sid))
	return Session{SID: sid, Name: final}, cookieValue, nil
}

// Logout clears the session's persisted identity entirely so a later
// transport connect does not auto-identify. Unknown sessions are a no-op.
func (m *Manager) Logout(cookieValue string) {
	sid, _, err := m.codec.Decode(cookieValue)
	if err != nil {
		return
	}
	if err := m.store.Delete(sid); err != nil {
		m.logger.Warnw("Failed to delete session record", "error", err, "sid_prefix", sidPrefix(sid))
		return
	}
	m.logger.Infow("HTTP logout", "sid_prefix", sidPrefix(sid))
}

// ClearName removes only the display name association, keeping the session ID
// alive. Used by the in-band logout event.
func (m *Manager) ClearName(sid string) {
	if err := m.store.ClearName(sid); err != nil {
		m.logger.Warnw("Failed to clear session name", "error", err, "sid_prefix", sidPrefix(sid))
	}
}

// Store exposes the backing store for readiness checks.
func (m *Manager) Store() *FileStore {
	return m.store
}

// sidPrefix returns a short log-safe prefix of a session ID. Full session
// tokens are authorization proof and must never be logged.
func sidPrefix(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
