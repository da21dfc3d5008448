package memory

import (
	"sync"

	"github.com/Scofield321/cipherford/internal/app"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Room),
	}
}

func (s *RoomStore) GetOrCreate(roomCode string) *app.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomCode]; ok {
		return room
	}
	room := app.NewRoom(roomCode)
	s.rooms[roomCode] = room
	return room
}

func (s *RoomStore) Get(roomCode string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomCode]
	return room, ok
}

func (s *RoomStore) DeleteIfEmpty(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomCode]
	if !ok {
		return
	}
	if room.IsEmpty() {
		delete(s.rooms, roomCode)
	}
}
