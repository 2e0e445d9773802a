// Package memory is an in-process Entity Store. A single mutex serializes every
// operation, and guarded operations validate everything before mutating.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// DB holds all records of the in-memory backend.
type DB struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*models.User
	events        map[uuid.UUID]*models.Event
	registrations map[uuid.UUID]*models.Registration
	teams         map[uuid.UUID]*models.Team
	messages      map[uuid.UUID]*models.Message
	resets        map[uuid.UUID]*models.PasswordResetRequest
	logs          []*models.NotificationLog
	now           func() time.Time
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		users:         make(map[uuid.UUID]*models.User),
		events:        make(map[uuid.UUID]*models.Event),
		registrations: make(map[uuid.UUID]*models.Registration),
		teams:         make(map[uuid.UUID]*models.Team),
		messages:      make(map[uuid.UUID]*models.Message),
		resets:        make(map[uuid.UUID]*models.PasswordResetRequest),
		now:           time.Now,
	}
}

// New returns a store backed by a fresh in-memory database.
func New() *store.Store {
	return NewDB().Store()
}

// Store exposes the database through the store interfaces.
func (db *DB) Store() *store.Store {
	return &store.Store{
		Users:            &userRepo{db},
		Events:           &eventRepo{db},
		Registrations:    &registrationRepo{db},
		Teams:            &teamRepo{db},
		Messages:         &messageRepo{db},
		PasswordResets:   &resetRepo{db},
		NotificationLogs: &logRepo{db},
	}
}

func (db *DB) activeRegistration(eventID, userID uuid.UUID) *models.Registration {
	for _, r := range db.registrations {
		if r.EventID == eventID && r.UserID == userID && r.IsActive() {
			return r
		}
	}
	return nil
}

func (db *DB) ticketTaken(ticketID string) bool {
	for _, r := range db.registrations {
		if r.TicketID == ticketID {
			return true
		}
	}
	return false
}

// activeMembership returns the team holding an accepted membership of userID for eventID,
// ignoring the team with id skip.
func (db *DB) activeMembership(eventID, userID, skip uuid.UUID) *models.Team {
	for _, t := range db.teams {
		if t.ID == skip || t.EventID != eventID || t.Status == models.TeamCancelled {
			continue
		}
		if t.IsActiveMember(userID) {
			return t
		}
	}
	return nil
}

// referenced reports whether any registration or team, cancelled or not, points at eventID.
func (db *DB) referenced(eventID uuid.UUID) bool {
	for _, r := range db.registrations {
		if r.EventID == eventID {
			return true
		}
	}
	for _, t := range db.teams {
		if t.EventID == eventID {
			return true
		}
	}
	return false
}
