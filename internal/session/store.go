package session

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/lanrelay/relay/internal/util"
)

// Record is the server-side state for one browser session.
type Record struct {
	SID       string    `json:"sid"`
	Username  string    `json:"username,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// validSID guards filenames: session IDs are UUIDs, anything else is rejected
// before touching the filesystem.
var validSID = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// FileStore persists session records as one JSON file per session ID, the
// moral equivalent of a filesystem session backend. An in-memory map fronts
// the files so reads on the hot path never hit disk.
type FileStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Record
}

// NewFileStore opens (and creates if needed) the store directory and loads
// existing records into memory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session store dir: %w", err)
	}

	s := &FileStore{
		dir:   dir,
		cache: make(map[string]*Record),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read session store dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue // unreadable record; session will be recreated on next login
		}
		var rec Record
		if err := util.UnmarshalJSON(data, &rec); err != nil || rec.SID == "" {
			continue
		}
		s.cache[rec.SID] = &rec
	}
	return nil
}

func (s *FileStore) path(sid string) string {
	return filepath.Join(s.dir, sid+".json")
}

// Get returns the record for sid, or ok=false if none exists.
func (s *FileStore) Get(sid string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cache[sid]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Put creates or replaces the record for sid and flushes it to disk.
func (s *FileStore) Put(rec Record) error {
	if !validSID.MatchString(rec.SID) {
		return fmt.Errorf("invalid session ID %q", rec.SID)
	}
	rec.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := util.MarshalJSON(&rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := os.WriteFile(s.path(rec.SID), data, 0o600); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	s.cache[rec.SID] = &rec
	return nil
}

// ClearName removes the username from the record so a later transport connect
// does not auto-identify. The session ID itself survives. A missing record is
// a no-op.
func (s *FileStore) ClearName(sid string) error {
	s.mu.Lock()
	rec, ok := s.cache[sid]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	cleared := *rec
	cleared.Username = ""
	return s.Put(cleared)
}

// Delete removes the record entirely. A missing record is a no-op.
func (s *FileStore) Delete(sid string) error {
	if !validSID.MatchString(sid) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, sid)
	if err := os.Remove(s.path(sid)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session record: %w", err)
	}
	return nil
}

// Ping verifies the store directory is writable; used by the readiness probe.
func (s *FileStore) Ping() error {
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("session store not writable: %w", err)
	}
	return os.Remove(probe)
}
