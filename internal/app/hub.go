package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Scofield321/cipherford/internal/domain"
)

const subscriberBuffer = 16

// RoomRepository abstracts how live rooms are tracked (in-memory, Redis, etc).
type RoomRepository interface {
	GetOrCreate(roomCode string) *Room
	Get(roomCode string) (*Room, bool)
	DeleteIfEmpty(roomCode string)
}

// Hub is the in-process Broadcaster: one Room per room code, each fanning
// events out to the connections subscribed to it.
type Hub struct {
	rooms   RoomRepository
	logger  *slog.Logger
	metrics *Metrics

	// mu serializes room membership changes against room deletion.
	mu sync.Mutex
}

func NewHub(rooms RoomRepository, logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{rooms: rooms, logger: logger, metrics: metrics}
}

// Subscribe joins userID to the broadcast group of roomCode. The caller must
// invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(roomCode, userID string) (<-chan domain.Event, func()) {
	roomCode = normalizeRoomCode(roomCode)

	h.mu.Lock()
	room := h.rooms.GetOrCreate(roomCode)
	ch := room.subscribe(userID)
	h.mu.Unlock()
	h.metrics.subscribersChanged(1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			room.unsubscribe(ch)
			if room.IsEmpty() {
				h.rooms.DeleteIfEmpty(roomCode)
			}
			h.mu.Unlock()
			h.metrics.subscribersChanged(-1)
		})
	}
	return ch, cancel
}

// BroadcastToRoom delivers event to every subscriber of roomCode except
// event.ExcludeUser. Rooms without subscribers drop the event.
func (h *Hub) BroadcastToRoom(_ context.Context, roomCode string, event domain.Event) {
	roomCode = normalizeRoomCode(roomCode)
	room, ok := h.rooms.Get(roomCode)
	if !ok {
		h.logger.Debug("no subscribers, dropping event", "room", roomCode, "event", event.Type)
		return
	}
	if event.Room == "" {
		event.Room = roomCode
	}
	delivered := room.publish(event)
	h.logger.Debug("event dispatched", "room", roomCode, "event", event.Type, "delivered", delivered)
}

// Occupancy reports how many subscribers roomCode currently has.
func (h *Hub) Occupancy(roomCode string) int {
	room, ok := h.rooms.Get(normalizeRoomCode(roomCode))
	if !ok {
		return 0
	}
	return room.Size()
}

// Room is the broadcast group of a single match.
type Room struct {
	code        string
	mu          sync.RWMutex
	subscribers map[chan domain.Event]string
}

// NewRoom is exported for infrastructure layers that track rooms.
func NewRoom(code string) *Room {
	return &Room{
		code:        code,
		subscribers: make(map[chan domain.Event]string),
	}
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) subscribe(userID string) chan domain.Event {
	ch := make(chan domain.Event, subscriberBuffer)
	r.mu.Lock()
	r.subscribers[ch] = userID
	r.mu.Unlock()
	return ch
}

func (r *Room) unsubscribe(ch chan domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[ch]; ok {
		delete(r.subscribers, ch)
		close(ch)
	}
}

func (r *Room) publish(event domain.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for ch, userID := range r.subscribers {
		if event.ExcludeUser != "" && userID == event.ExcludeUser {
			continue
		}
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop its oldest pending event to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
				continue
			}
		}
		delivered++
	}
	return delivered
}

// IsEmpty reports whether the room has no subscribers.
func (r *Room) IsEmpty() bool {
	return r.Size() == 0
}

func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}
