package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const fanoutChannel = "club-engine:events"

type fanoutFrame struct {
	RoomID string          `json:"room_id"`
	Raw    json.RawMessage `json:"raw"`
}

// RedisFanout publishes broadcasts through a redis channel so orchestration
// instances sharing the database also share their websocket audiences.
// Each instance's subscriber re-delivers frames to its local hub; delivery
// stays fire-and-forget end to end.
type RedisFanout struct {
	hub    *Hub
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisFanout(hub *Hub, rdb *redis.Client, logger *slog.Logger) *RedisFanout {
	return &RedisFanout{hub: hub, rdb: rdb, logger: logger}
}

func (f *RedisFanout) BroadcastToRoom(roomID string, message interface{}) {
	var envelope Message
	if m, ok := message.(Message); ok {
		envelope = m
	} else {
		envelope = Message{Payload: message}
	}
	envelope.RoomID = roomID

	raw, err := json.Marshal(envelope)
	if err != nil {
		f.logger.Error("failed to marshal broadcast", slog.String("room", roomID), slog.Any("error", err))
		return
	}

	frame, err := json.Marshal(fanoutFrame{RoomID: roomID, Raw: raw})
	if err != nil {
		f.logger.Error("failed to marshal fanout frame", slog.Any("error", err))
		return
	}
	if err := f.rdb.Publish(context.Background(), fanoutChannel, frame).Err(); err != nil {
		// Fall back to local-only delivery; the broadcast channel is a
		// best-effort side channel, never a correctness signal.
		f.logger.Warn("redis publish failed, delivering locally only", slog.Any("error", err))
		f.hub.Deliver(roomID, raw)
	}
}

// Run subscribes to the fanout channel and re-delivers frames locally until
// the context is cancelled. Publishes from this instance come back through
// the subscription too, which is how local clients receive them.
func (f *RedisFanout) Run(ctx context.Context) {
	sub := f.rdb.Subscribe(ctx, fanoutChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame fanoutFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				f.logger.Warn("dropping malformed fanout frame", slog.Any("error", err))
				continue
			}
			f.hub.Deliver(frame.RoomID, frame.Raw)
		}
	}
}
