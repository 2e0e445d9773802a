package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessageLength is the maximum chat message length in characters.
const MaxMessageLength = 1000

// Message is an event-scoped chat entry.
type Message struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole Role      `json:"sender_role"`
	Body       string    `json:"message"`
	IsPinned   bool      `json:"is_pinned"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
