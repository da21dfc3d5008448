package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "cipherford:room:"

// Broadcaster publishes room events on Redis pub/sub so every instance can
// deliver them to its own subscribers. Pair it with Relay on each instance.
type Broadcaster struct {
	client *redis.Client
	logger *slog.Logger
}

func NewBroadcaster(client *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{client: client, logger: logger}
}

type wireEvent struct {
	Type        domain.EventType `json:"type"`
	Room        string           `json:"room"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	ExcludeUser string           `json:"excludeUser,omitempty"`
}

// BroadcastToRoom is best effort: publish failures are logged, not returned.
func (b *Broadcaster) BroadcastToRoom(ctx context.Context, roomCode string, event domain.Event) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		b.logger.Error("encode room event", "room", roomCode, "event", event.Type, "error", err)
		return
	}
	msg, err := json.Marshal(wireEvent{
		Type:        event.Type,
		Room:        roomCode,
		Payload:     payload,
		ExcludeUser: event.ExcludeUser,
	})
	if err != nil {
		b.logger.Error("encode room event", "room", roomCode, "event", event.Type, "error", err)
		return
	}
	if err := b.client.Publish(ctx, roomChannelPrefix+roomCode, msg).Err(); err != nil {
		b.logger.Warn("publish room event", "room", roomCode, "event", event.Type, "error", err)
	}
}

// Relay forwards every published room event to local until ctx is done.
func (b *Broadcaster) Relay(ctx context.Context, local app.Broadcaster) error {
	sub := b.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer sub.Close()

	// wait for the subscription to be confirmed before reporting readiness
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("room relay subscribed", "pattern", roomChannelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			room := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			if strings.HasPrefix(room, "live:") {
				continue
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("decode room event", "channel", msg.Channel, "error", err)
				continue
			}
			local.BroadcastToRoom(ctx, room, domain.Event{
				Type:        ev.Type,
				Room:        room,
				Payload:     ev.Payload,
				ExcludeUser: ev.ExcludeUser,
			})
		}
	}
}
