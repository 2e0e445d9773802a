// Package realtime relays event chat over websockets. Each event has one room; with Redis
// configured, room traffic goes through pub/sub so every instance delivers it exactly once.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// RoomPublisher publishes a room event for every instance.
type RoomPublisher interface {
	PublishRoomEvent(eventID uuid.UUID, event string, payload []byte) error
}

// RoomSubscriber subscribes to a room's channel and invokes handler for incoming events.
type RoomSubscriber interface {
	SubscribeRoom(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains event_id -> set of connections and broadcasts messages.
type Hub struct {
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RoomPublisher
	redisSub RoomSubscriber
}

// NewHub creates a hub. Pass nil publisher and subscriber for a single-instance deployment.
func NewHub(logger *zap.Logger, pub RoomPublisher, sub RoomSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    pub,
		redisSub: sub,
	}
}

func (h *Hub) distributed() bool {
	return h.redis != nil && h.redisSub != nil
}

// Register adds a client to its event room. The first client of a room starts its Redis subscription.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.distributed() {
			eventID := c.EventID
			cancel, err := h.redisSub.SubscribeRoom(eventID, func(event string, payload []byte) {
				h.Broadcast(eventID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("room subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
			} else {
				h.subs[eventID] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Unregister removes a client and closes its send channel. The last client cancels the room subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

func encode(event string, payload any) (WSMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return WSMessage{Event: event, Data: v}, nil
	case []byte:
		return WSMessage{Event: event, Data: v}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Event: event, Data: data}, nil
}

// Broadcast sends a message to the clients of a room on this instance only.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Warn("encode room event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			// slow consumer, drop
		}
	}
}

// Publish delivers a room event to every instance. With Redis configured the subscription
// callback performs the local broadcast, so local clients are not sent the event twice.
func (h *Hub) Publish(eventID uuid.UUID, event string, payload any) {
	if !h.distributed() {
		h.Broadcast(eventID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encode room event failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishRoomEvent(eventID, event, data); err != nil {
		h.logger.Warn("room publish failed, delivering locally", zap.String("event_id", eventID.String()), zap.Error(err))
		h.Broadcast(eventID, event, json.RawMessage(data))
	}
}

// RoomSize returns the number of clients connected to a room on this instance.
func (h *Hub) RoomSize(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// SendToClient sends a message to a single client of a room.
func (h *Hub) SendToClient(eventID uuid.UUID, clientID string, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.rooms[eventID][clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
