package pty

import (
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/tandemterm/host/internal/errors"
)

// Manager tracks the pseudo-terminal sessions running in this process and
// exposes the two operations the synchronization hub consumes: SendInput
// and Resize. Both report failures as coded errors; the hub logs and
// swallows them.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Create allocates a session with a random UUID and registers it. The
// session is not started; the caller sets OnOutput and calls Start.
func (m *Manager) Create() *Session {
	return m.CreateWithID(uuid.New().String())
}

// CreateWithID allocates and registers a session with a specific id,
// replacing any previous session under that id. Useful for the default
// "main" session and for tests.
func (m *Manager) CreateWithID(id string) *Session {
	s := NewSession(id)
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id, or nil if none is registered.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Remove unregisters a session without stopping it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SendInput writes raw bytes to the session's PTY. Implements the hub's
// Terminal interface.
func (m *Manager) SendInput(sessionID string, data []byte) error {
	s := m.Get(sessionID)
	if s == nil {
		return apperrors.SessionNotFound(sessionID)
	}
	_, err := s.Write(data)
	return err
}

// Resize changes the session's PTY geometry. Implements the hub's Terminal
// interface. Resizing an unknown or exited session returns a coded error
// that callers treat as a non-fatal no-op.
func (m *Manager) Resize(sessionID string, rows, cols int) error {
	s := m.Get(sessionID)
	if s == nil {
		return apperrors.SessionNotFound(sessionID)
	}
	return s.Resize(rows, cols)
}

// CloseAll stops every session and waits for the processes to exit. Called
// on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		if !s.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = s.Stop()
			<-s.Done()
		}(s)
	}
	wg.Wait()
}
