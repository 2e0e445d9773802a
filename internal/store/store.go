// Package store defines the Entity Store used by the domain services.
// Implementations live in the postgres and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRegistration is a uniqueness violation on the active (event, user) registration.
	ErrDuplicateRegistration = errors.New("duplicate active registration")
	// ErrDuplicateTicket is a uniqueness violation on the ticket id.
	ErrDuplicateTicket = errors.New("duplicate ticket id")
	// ErrDuplicateInviteCode is a uniqueness violation on the team invite code.
	ErrDuplicateInviteCode = errors.New("duplicate invite code")
	// ErrDuplicateMembership means the user already has an accepted membership in a team for the event.
	ErrDuplicateMembership = errors.New("duplicate team membership")
	// ErrDuplicateEmail is a uniqueness violation on the user email.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrConflict means a guarded update did not apply because the row no longer matched.
	ErrConflict = errors.New("conditional update not applied")
)

// Reservation describes the seat and stock an individual registration takes.
// Check runs against the locked, current event before anything is written.
type Reservation struct {
	Quantity int
	Check    func(e *models.Event) error
}

// Users persists platform users.
type Users interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)
	CountByRole(ctx context.Context) (map[models.Role]int, error)
	Follow(ctx context.Context, userID, organizerID uuid.UUID) error
	Unfollow(ctx context.Context, userID, organizerID uuid.UUID) error
}

// Events persists events. Update runs fn on a locked copy and persists it only if fn succeeds.
type Events interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, f models.EventFilter) ([]*models.Event, error)
	Update(ctx context.Context, id uuid.UUID, fn func(e *models.Event) error) (*models.Event, error)
	// DeleteDraft removes a draft event that no registration or team refers to. Returns ErrConflict otherwise.
	DeleteDraft(ctx context.Context, id uuid.UUID) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
	CountByOrganizer(ctx context.Context) (map[uuid.UUID]int, error)
	CountByStatus(ctx context.Context) (map[models.EventStatus]int, error)
}

// Registrations persists registrations together with the event counters they affect.
type Registrations interface {
	// CreateIndividual atomically checks res against the event, inserts reg, increments the
	// registration count, takes res.Quantity from stock and locks the custom form.
	CreateIndividual(ctx context.Context, reg *models.Registration, res Reservation) (*models.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByTicketID(ctx context.Context, ticketID string) (*models.Registration, error)
	FindActive(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, f models.RegistrationFilter) ([]*models.RegistrationDetail, error)
	// Cancel runs fn on the locked registration, then marks it cancelled and releases its seat and stock.
	Cancel(ctx context.Context, id uuid.UUID, fn func(r *models.Registration) error, reason string, at time.Time) (*models.Registration, error)
	// MarkAttendance marks the registration attended and appends scan, only if it is not yet marked
	// and its status allows attendance. Returns ErrConflict otherwise.
	MarkAttendance(ctx context.Context, id uuid.UUID, scan models.ScanEntry) (*models.Registration, error)
	// AppendScan records a rejected scan attempt.
	AppendScan(ctx context.Context, id uuid.UUID, scan models.ScanEntry) error
	UpdatePayment(ctx context.Context, id uuid.UUID, fn func(r *models.Registration) error) (*models.Registration, error)
	AttendanceCounts(ctx context.Context, eventID uuid.UUID) (total, attended int, err error)
	CountActive(ctx context.Context) (int, error)
}

// Teams persists teams and their ordered member lists.
type Teams interface {
	Create(ctx context.Context, t *models.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetByInviteCode(ctx context.Context, code string) (*models.Team, error)
	FindActiveForUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Team, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Team, error)
	// Update runs fn on the locked team and its event, then persists the team.
	Update(ctx context.Context, id uuid.UUID, fn func(t *models.Team, e *models.Event) error) (*models.Team, error)
	// Finalize runs fn on the locked team and event; fn returns the registrations to create.
	// The registrations, the team and the event count are written as one unit.
	Finalize(ctx context.Context, id uuid.UUID, fn func(t *models.Team, e *models.Event) ([]*models.Registration, error)) (*models.Team, []*models.Registration, error)
}

// Messages persists event chat messages.
type Messages interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]*models.Message, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	TogglePin(ctx context.Context, id uuid.UUID) (*models.Message, error)
}

// PasswordResets persists organizer password reset requests.
type PasswordResets interface {
	// Create returns ErrConflict when the organizer already has a pending request.
	Create(ctx context.Context, r *models.PasswordResetRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PasswordResetRequest, error)
	List(ctx context.Context, status models.ResetStatus) ([]*models.PasswordResetRequest, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]*models.PasswordResetRequest, error)
	Review(ctx context.Context, id uuid.UUID, fn func(r *models.PasswordResetRequest) error) (*models.PasswordResetRequest, error)
}

// NotificationLogs persists notification delivery attempts.
type NotificationLogs interface {
	Create(ctx context.Context, l *models.NotificationLog) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.NotificationLog, error)
}

// Store bundles every repository of one backend.
type Store struct {
	Users            Users
	Events           Events
	Registrations    Registrations
	Teams            Teams
	Messages         Messages
	PasswordResets   PasswordResets
	NotificationLogs NotificationLogs
}
