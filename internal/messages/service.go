// Package messages implements the per-event discussion forum: history, posting, deletion and pinning.
// Access is limited to the event's organizer, admins and participants registered for the event.
package messages

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// Room events broadcast to connected clients.
const (
	EventNewMessage    = "new_message"
	EventDeleted       = "message_deleted"
	EventPinToggled    = "message_pin_toggled"
	defaultHistorySize = 200
)

// Broadcaster fans a room event out to the clients connected to an event's chat.
type Broadcaster interface {
	Publish(eventID uuid.UUID, event string, payload any)
}

// Service implements the chat operations.
type Service struct {
	store  *store.Store
	rooms  Broadcaster
	logger *zap.Logger
}

// NewService creates a message service. rooms may be nil, in which case nothing is broadcast.
func NewService(st *store.Store, rooms Broadcaster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, rooms: rooms, logger: logger}
}

// SetBroadcaster sets the room broadcaster after construction.
func (s *Service) SetBroadcaster(rooms Broadcaster) {
	s.rooms = rooms
}

func (s *Service) publish(eventID uuid.UUID, event string, payload any) {
	if s.rooms != nil {
		s.rooms.Publish(eventID, event, payload)
	}
}

// Join checks that the actor may read and post in the event's chat and returns the event.
func (s *Service) Join(ctx context.Context, eventID uuid.UUID, actor models.Actor) (*models.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, apperr.Internal("load event", err)
	}
	if ev.ManagedBy(actor) {
		return ev, nil
	}
	reg, err := s.store.Registrations.FindActive(ctx, eventID, actor.ID)
	if err != nil {
		return nil, apperr.Internal("load registration", err)
	}
	if reg == nil {
		return nil, apperr.ErrChatForbidden.With("you must be registered for this event to access the discussion forum")
	}
	return ev, nil
}

// History returns the newest non-deleted messages of an event in chronological order.
func (s *Service) History(ctx context.Context, eventID uuid.UUID, actor models.Actor, limit int) ([]*models.Message, error) {
	if _, err := s.Join(ctx, eventID, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultHistorySize {
		limit = defaultHistorySize
	}
	list, err := s.store.Messages.ListByEvent(ctx, eventID, limit)
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}
	if list == nil {
		list = []*models.Message{}
	}
	return list, nil
}

// Send posts a message and broadcasts it to the room.
func (s *Service) Send(ctx context.Context, eventID uuid.UUID, actor models.Actor, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" || len([]rune(body)) > models.MaxMessageLength {
		return nil, apperr.ErrInvalidInput.With("message must be 1 to 1000 characters")
	}
	if _, err := s.Join(ctx, eventID, actor); err != nil {
		return nil, err
	}
	sender, err := s.store.Users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Internal("load sender", err)
	}
	m := &models.Message{
		EventID:    eventID,
		SenderID:   actor.ID,
		SenderName: sender.DisplayName(),
		SenderRole: actor.Role,
		Body:       body,
	}
	if err := s.store.Messages.Create(ctx, m); err != nil {
		return nil, apperr.Internal("create message", err)
	}
	s.publish(eventID, EventNewMessage, m)
	return m, nil
}

// messageFor loads a live message and checks it belongs to a chat the actor may moderate.
func (s *Service) messageFor(ctx context.Context, id uuid.UUID, actor models.Actor, allowSender bool) (*models.Message, error) {
	m, err := s.store.Messages.GetByID(ctx, id)
	if err != nil || m.IsDeleted {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrMessageNotFound
		}
		return nil, apperr.Internal("load message", err)
	}
	if allowSender && m.SenderID == actor.ID {
		return m, nil
	}
	ev, err := s.store.Events.GetByID(ctx, m.EventID)
	if err != nil {
		return nil, apperr.Internal("load event", err)
	}
	if !ev.ManagedBy(actor) {
		return nil, apperr.ErrChatForbidden.With("only the event organizer can moderate messages")
	}
	return m, nil
}

// Delete soft-deletes a message. Allowed for its sender, the event organizer and admins.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	m, err := s.messageFor(ctx, id, actor, true)
	if err != nil {
		return err
	}
	if err := s.store.Messages.SoftDelete(ctx, id); err != nil {
		return apperr.Internal("delete message", err)
	}
	s.logger.Info("message deleted", zap.String("message_id", id.String()), zap.String("by", actor.ID.String()))
	s.publish(m.EventID, EventDeleted, map[string]any{"message_id": id})
	return nil
}

// TogglePin pins or unpins a message. Allowed for the event organizer and admins.
func (s *Service) TogglePin(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Message, error) {
	if _, err := s.messageFor(ctx, id, actor, false); err != nil {
		return nil, err
	}
	m, err := s.store.Messages.TogglePin(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrMessageNotFound
		}
		return nil, apperr.Internal("toggle pin", err)
	}
	s.publish(m.EventID, EventPinToggled, map[string]any{"message_id": id, "is_pinned": m.IsPinned})
	return m, nil
}
