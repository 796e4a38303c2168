package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/querypad/querypad-backend/internal/queries/domain"
)

// Manager owns the live edit sessions, keyed by an opaque session id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open registers a session and returns its id.
func (m *Manager) Open(s *Session) string {
	id := uuid.New().String()

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return id
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Close tears down a session and forgets it. In-flight save or fork
// results for the session are dropped when they resolve.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
