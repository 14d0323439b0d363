// internal/game/room_store.go
package game

import (
	"sync"

	"github.com/google/uuid"
)

// RoomStore is an in-memory registry of live rooms keyed by room ID. Rooms
// remove themselves via their OnEmpty hook.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*Room)}
}

// Add registers the room and wires its OnEmpty hook to this store.
func (s *RoomStore) Add(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.OnEmpty = s.Delete
	s.rooms[r.ID] = r
}

func (s *RoomStore) Get(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

func (s *RoomStore) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Each calls fn for every live room. fn must not call back into the store.
func (s *RoomStore) Each(fn func(*Room)) {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()
	for _, r := range rooms {
		fn(r)
	}
}

// FindByUser returns the room the user is currently seated in, if any.
func (s *RoomStore) FindByUser(userID uuid.UUID) (*Room, bool) {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()
	for _, r := range rooms {
		if r.HasPlayer(userID) {
			return r, true
		}
	}
	return nil, false
}

// Count returns the number of live rooms.
func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
