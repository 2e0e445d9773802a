// Package tickets validates scanned tickets and marks attendance at most once per registration.
package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/pkg/utils"
)

// QRSize is the edge length in pixels of rendered ticket QR codes.
const QRSize = 256

// Service implements ticket validation and attendance reporting.
type Service struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a ticket service.
func NewService(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// Admission is a successfully validated ticket.
type Admission struct {
	Registration     *models.Registration `json:"registration"`
	ParticipantName  string               `json:"participant_name"`
	ParticipantEmail string               `json:"participant_email"`
}

// managedEvent loads the event and checks that the actor organizes it or is an admin.
func (s *Service) managedEvent(ctx context.Context, eventID uuid.UUID, actor models.Actor) (*models.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, apperr.Internal("load event", err)
	}
	if !ev.ManagedBy(actor) {
		return nil, apperr.ErrNotEventOwner
	}
	return ev, nil
}

// ValidateAndMark validates ticketID for eventID and marks attendance. A second scan of an
// attended ticket fails with AlreadyScanned. Every attempt on an existing ticket is logged
// in its scan history.
func (s *Service) ValidateAndMark(ctx context.Context, ticketID string, eventID uuid.UUID, scanner models.Actor) (*Admission, error) {
	if _, err := s.managedEvent(ctx, eventID, scanner); err != nil {
		return nil, err
	}
	reg, err := s.store.Registrations.GetByTicketID(ctx, utils.NormalizeTicketID(ticketID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrTicketNotFound
		}
		return nil, apperr.Internal("load ticket", err)
	}

	scan := models.ScanEntry{ScannedAt: s.now(), ScannedBy: scanner.ID, EventID: eventID}
	switch {
	case reg.EventID != eventID:
		s.reject(ctx, reg, scan, models.ScanWrongEvent)
		return nil, apperr.ErrWrongEvent
	case reg.Status != models.RegistrationRegistered && reg.Status != models.RegistrationAttended:
		s.reject(ctx, reg, scan, models.ScanInvalidStatus)
		return nil, apperr.ErrInvalidStatus.With("registration status is " + string(reg.Status))
	case reg.Attendance.Marked:
		s.reject(ctx, reg, scan, models.ScanAlreadyScanned)
		return nil, apperr.ErrAlreadyScanned
	}

	scan.Result = models.ScanMarked
	marked, err := s.store.Registrations.MarkAttendance(ctx, reg.ID, scan)
	if err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, apperr.Internal("mark attendance", err)
		}
		// lost a race: re-read to tell a concurrent scan from a concurrent cancellation
		cur, gerr := s.store.Registrations.GetByID(ctx, reg.ID)
		if gerr == nil && !cur.Attendance.Marked {
			s.reject(ctx, cur, scan, models.ScanInvalidStatus)
			return nil, apperr.ErrInvalidStatus.With("registration status is " + string(cur.Status))
		}
		s.reject(ctx, reg, scan, models.ScanAlreadyScanned)
		return nil, apperr.ErrAlreadyScanned
	}

	a := &Admission{Registration: marked}
	if u, err := s.store.Users.GetByID(ctx, marked.UserID); err == nil {
		a.ParticipantName, a.ParticipantEmail = u.DisplayName(), u.Email
	}
	s.logger.Info("attendance marked",
		zap.String("ticket_id", marked.TicketID),
		zap.String("event_id", eventID.String()),
		zap.String("scanned_by", scanner.ID.String()),
	)
	return a, nil
}

// reject records a failed scan attempt. Failures to record are logged, not returned.
func (s *Service) reject(ctx context.Context, reg *models.Registration, scan models.ScanEntry, result models.ScanResult) {
	scan.Result = result
	if err := s.store.Registrations.AppendScan(ctx, reg.ID, scan); err != nil {
		s.logger.Warn("record scan attempt failed", zap.String("ticket_id", reg.TicketID), zap.Error(err))
	}
}

// Report summarizes attendance for one event. Cancelled registrations are not counted.
type Report struct {
	EventID        uuid.UUID                    `json:"event_id"`
	EventName      string                       `json:"event_name"`
	Total          int                          `json:"total_registrations"`
	Attended       int                          `json:"attended"`
	NotAttended    int                          `json:"not_attended"`
	AttendanceRate float64                      `json:"attendance_rate"`
	Registrations  []*models.RegistrationDetail `json:"registrations"`
}

// AttendanceReport returns attendance statistics and per-registration rows for an event.
func (s *Service) AttendanceReport(ctx context.Context, eventID uuid.UUID, actor models.Actor) (*Report, error) {
	ev, err := s.managedEvent(ctx, eventID, actor)
	if err != nil {
		return nil, err
	}
	total, attended, err := s.store.Registrations.AttendanceCounts(ctx, eventID)
	if err != nil {
		return nil, apperr.Internal("count attendance", err)
	}
	list, err := s.store.Registrations.ListByEvent(ctx, eventID, models.RegistrationFilter{})
	if err != nil {
		return nil, apperr.Internal("list registrations", err)
	}
	r := &Report{
		EventID:       ev.ID,
		EventName:     ev.Name,
		Total:         total,
		Attended:      attended,
		NotAttended:   total - attended,
		Registrations: list,
	}
	if total > 0 {
		r.AttendanceRate = float64(attended*10000/total) / 100
	}
	return r, nil
}

type qrPayload struct {
	TicketID       string    `json:"ticket_id"`
	EventID        uuid.UUID `json:"event_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
}

// QRCode renders the ticket as a PNG QR code. Visible to the ticket holder, the event organizer and admins.
func (s *Service) QRCode(ctx context.Context, ticketID string, actor models.Actor) ([]byte, error) {
	reg, err := s.store.Registrations.GetByTicketID(ctx, utils.NormalizeTicketID(ticketID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrTicketNotFound
		}
		return nil, apperr.Internal("load ticket", err)
	}
	if reg.UserID != actor.ID {
		if _, err := s.managedEvent(ctx, reg.EventID, actor); err != nil {
			if errors.Is(err, apperr.ErrNotEventOwner) {
				return nil, apperr.ErrNotRegistrationOwner
			}
			return nil, err
		}
	}
	content, err := json.Marshal(qrPayload{TicketID: reg.TicketID, EventID: reg.EventID, RegistrationID: reg.ID})
	if err != nil {
		return nil, apperr.Internal("encode qr payload", err)
	}
	png, err := qrcode.Encode(string(content), qrcode.Medium, QRSize)
	if err != nil {
		return nil, apperr.Internal("render qr code", err)
	}
	return png, nil
}
