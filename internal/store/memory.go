package store

import (
	"sync"

	"medirep-gateway/internal/session"
)

// Entry bundles the per-session state the gateway keeps alive: the
// conversation itself and its voice capture pipeline.
type Entry struct {
	Session  *session.Session
	Recorder *session.Recorder
	Device   *session.UploadDevice
}

// Memory holds the live sessions. Nothing here survives a restart; the
// session lifecycle is the page lifecycle.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) Get(sessionID string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	return e, ok
}

// GetOrCreate returns the existing entry for the session or installs the
// one produced by create. Concurrent callers for the same ID get the same
// entry.
func (m *Memory) GetOrCreate(sessionID string, create func() *Entry) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[sessionID]; ok {
		return e
	}
	e := create()
	m.entries[sessionID] = e
	return e
}

func (m *Memory) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
