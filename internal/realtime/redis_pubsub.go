package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "felicity:chat:"
	publishTimeout = 5 * time.Second
)

// envelope is what travels over a room's Redis channel.
type envelope struct {
	Room   uuid.UUID       `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

func decodeEnvelope(room uuid.UUID, raw string) (*envelope, error) {
	var e envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	if e.Event == "" {
		return nil, errors.New("missing event name")
	}
	if e.Room != room {
		return nil, fmt.Errorf("envelope for room %s on channel of %s", e.Room, room)
	}
	return &e, nil
}

// RedisPubSub fans chat room events out to every API instance over Redis pub/sub.
// It implements RoomPublisher and RoomSubscriber.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for chat rooms.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// ChannelFor returns the Redis channel of an event's chat room.
func ChannelFor(eventID uuid.UUID) string {
	return channelPrefix + eventID.String()
}

// PublishRoomEvent publishes event to every instance holding the room.
func (r *RedisPubSub) PublishRoomEvent(eventID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(envelope{Room: eventID, Event: event, Data: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode room event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, ChannelFor(eventID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// SubscribeRoom starts relaying the room's channel to handler until the returned cancel is called.
func (r *RedisPubSub) SubscribeRoom(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, stop := context.WithCancel(context.Background())
	sub := r.client.Subscribe(ctx, ChannelFor(eventID))
	// wait for the subscription confirmation so no publish after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		stop()
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ChannelFor(eventID), err)
	}
	go r.relay(ctx, eventID, sub, handler)
	return stop, nil
}

func (r *RedisPubSub) relay(ctx context.Context, eventID uuid.UUID, sub *redis.PubSub, handler func(event string, payload []byte)) {
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
			e, err := decodeEnvelope(eventID, msg.Payload)
			if err != nil {
				r.logger.Warn("dropping room message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handler(e.Event, e.Data)
		}
	}
}
