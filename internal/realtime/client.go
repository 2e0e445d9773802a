package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/pkg/response"
)

const (
	maxFrameSize = 8192
	opTimeout    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Chat is the message service the relay persists and authorizes through.
type Chat interface {
	Join(ctx context.Context, eventID uuid.UUID, actor models.Actor) (*models.Event, error)
	Send(ctx context.Context, eventID uuid.UUID, actor models.Actor, body string) (*models.Message, error)
	Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error
	TogglePin(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Message, error)
}

// TokenValidator resolves a bearer token to the calling actor.
type TokenValidator func(token string) (models.Actor, error)

// Client represents a single WebSocket connection in an event room.
type Client struct {
	ID      string
	EventID uuid.UUID
	Actor   models.Actor
	hub     *Hub
	chat    Chat
	conn    *websocket.Conn
	send    chan WSMessage
	logger  *zap.Logger
}

// ServeWs handles GET /ws?event_id=&token=: it authorizes the caller for the event's chat,
// upgrades the connection and runs the client loop.
func ServeWs(hub *Hub, chat Chat, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		eventIDStr := c.Query("event_id")
		token := c.Query("token")
		if eventIDStr == "" || token == "" {
			response.BadRequest(c, "event_id and token required")
			return
		}
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			response.BadRequest(c, "invalid event_id")
			return
		}
		actor, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		if _, err := chat.Join(c.Request.Context(), eventID, actor); err != nil {
			response.Error(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:      uuid.New().String(),
			EventID: eventID,
			Actor:   actor,
			hub:     hub,
			chat:    chat,
			conn:    conn,
			send:    make(chan WSMessage, sendBuffer),
			logger:  logger,
		}
		hub.Register(client)
		hub.SendToClient(eventID, client.ID, "joined", map[string]any{"event_id": eventID, "room_size": hub.RoomSize(eventID)})
		go client.writePump()
		client.readPump()
	}
}

type sendPayload struct {
	Message string `json:"message"`
}

type messageRef struct {
	MessageID uuid.UUID `json:"message_id"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		if err := c.handle(msg); err != nil {
			e := apperr.As(err)
			text := e.Message
			if e.Kind == apperr.KindInternal {
				c.logger.Error("chat operation failed", zap.String("event", msg.Event), zap.Error(err))
				text = "internal error"
			}
			c.hub.SendToClient(c.EventID, c.ID, "message_error", map[string]string{"error": text, "code": e.Code})
		}
	}
}

// handle runs one client frame. Successful operations are broadcast by the chat service.
func (c *Client) handle(msg WSMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Event {
	case "send_message":
		var p sendPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return apperr.ErrInvalidInput.With("invalid message payload")
		}
		_, err := c.chat.Send(ctx, c.EventID, c.Actor, p.Message)
		return err
	case "delete_message", "toggle_pin":
		var ref messageRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.MessageID == uuid.Nil {
			return apperr.ErrInvalidInput.With("message_id required")
		}
		if msg.Event == "delete_message" {
			return c.chat.Delete(ctx, ref.MessageID, c.Actor)
		}
		_, err := c.chat.TogglePin(ctx, ref.MessageID, c.Actor)
		return err
	case "ping":
		c.hub.SendToClient(c.EventID, c.ID, "pong", nil)
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
