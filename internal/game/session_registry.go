// internal/game/session_registry.go
package game

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// SessionRegistry tracks one live connection per user, independent of room
// membership. Out-of-band events (admin balance changes) reach online users
// through it even when they are not seated anywhere.
type SessionRegistry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*websocket.Conn
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{conns: make(map[uuid.UUID]*websocket.Conn)}
}

// Register binds the user's current connection, replacing any previous one.
func (s *SessionRegistry) Register(userID uuid.UUID, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[userID] = conn
}

// Unregister drops the binding, but only if conn is still the registered one;
// a stale disconnect must not evict a newer connection.
func (s *SessionRegistry) Unregister(userID uuid.UUID, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[userID] == conn {
		delete(s.conns, userID)
	}
}

// Get returns the user's live connection, if any.
func (s *SessionRegistry) Get(userID uuid.UUID) (*websocket.Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.conns[userID]
	return conn, ok
}
