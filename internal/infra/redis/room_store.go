package redis

import (
	"context"
	"sync"
	"time"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Rooms still live in a local map to reuse the in-process fan-out; Redis
// holds a liveness marker per room so other instances and operators can see
// which rooms have listeners here.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), liveKey(roomCode), "1", s.ttl).Err()
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
		_ = s.client.Del(context.Background(), liveKey(roomCode)).Err()
	}
}

// Refresh extends the liveness marker of every local room.
func (s *RoomStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	s.mu.RUnlock()
	if len(codes) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, code := range codes {
		pipe.Set(ctx, liveKey(code), "1", s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func liveKey(roomCode string) string {
	return "cipherford:room:live:" + roomCode
}
