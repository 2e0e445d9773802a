package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

type registrationRepo struct{ db *DB }

func (r *registrationRepo) CreateIndividual(_ context.Context, reg *models.Registration, res store.Reservation) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ev, ok := r.db.events[reg.EventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if res.Check != nil {
		if err := res.Check(ev.Clone()); err != nil {
			return nil, err
		}
	}
	if !ev.HasRoomFor(1) {
		return nil, store.ErrConflict
	}
	if res.Quantity > 0 && (ev.Merchandise == nil || ev.Merchandise.StockQuantity < res.Quantity) {
		return nil, store.ErrConflict
	}
	if r.db.activeRegistration(reg.EventID, reg.UserID) != nil {
		return nil, store.ErrDuplicateRegistration
	}
	if r.db.ticketTaken(reg.TicketID) {
		return nil, store.ErrDuplicateTicket
	}

	r.db.insertRegistration(reg)
	ev.RegistrationCount++
	if res.Quantity > 0 {
		ev.Merchandise.StockQuantity -= res.Quantity
	}
	if ev.HasCustomForm() {
		ev.CustomForm.IsLocked = true
	}
	ev.UpdatedAt = r.db.now()
	return ev.Clone(), nil
}

func (db *DB) insertRegistration(reg *models.Registration) {
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.UpdatedAt = db.now()
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = reg.UpdatedAt
	}
	db.registrations[reg.ID] = reg.Clone()
}

func (r *registrationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registrations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return reg.Clone(), nil
}

func (r *registrationRepo) GetByTicketID(_ context.Context, ticketID string) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, reg := range r.db.registrations {
		if reg.TicketID == ticketID {
			return reg.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *registrationRepo) FindActive(_ context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if reg := r.db.activeRegistration(eventID, userID); reg != nil {
		return reg.Clone(), nil
	}
	return nil, nil
}

func (r *registrationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var list []*models.Registration
	for _, reg := range r.db.registrations {
		if reg.UserID == userID {
			list = append(list, reg.Clone())
		}
	}
	sortRegistrations(list)
	return list, nil
}

func (r *registrationRepo) ListByEvent(_ context.Context, eventID uuid.UUID, f models.RegistrationFilter) ([]*models.RegistrationDetail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var regs []*models.Registration
	for _, reg := range r.db.registrations {
		if reg.EventID != eventID {
			continue
		}
		if f.Status != "" && reg.Status != f.Status {
			continue
		}
		if f.Attended != nil && reg.Attendance.Marked != *f.Attended {
			continue
		}
		regs = append(regs, reg)
	}
	sortRegistrations(regs)
	q := strings.ToLower(strings.TrimSpace(f.Search))
	var list []*models.RegistrationDetail
	for _, reg := range regs {
		d := &models.RegistrationDetail{Registration: *reg.Clone()}
		if u, ok := r.db.users[reg.UserID]; ok {
			d.ParticipantName = u.DisplayName()
			d.ParticipantEmail = u.Email
		}
		if q != "" && !strings.Contains(strings.ToLower(d.ParticipantName+" "+d.ParticipantEmail+" "+d.TicketID), q) {
			continue
		}
		list = append(list, d)
	}
	return list, nil
}

func sortRegistrations(list []*models.Registration) {
	sort.Slice(list, func(i, j int) bool { return list[i].RegisteredAt.After(list[j].RegisteredAt) })
}

func (r *registrationRepo) Cancel(_ context.Context, id uuid.UUID, fn func(reg *models.Registration) error, reason string, at time.Time) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registrations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := fn(reg.Clone()); err != nil {
		return nil, err
	}
	if !reg.IsActive() {
		return nil, store.ErrConflict
	}
	reg.Status = models.RegistrationCancelled
	reg.CancelledAt = &at
	reg.CancellationReason = reason
	reg.UpdatedAt = r.db.now()
	if ev, ok := r.db.events[reg.EventID]; ok {
		if ev.RegistrationCount > 0 {
			ev.RegistrationCount--
		}
		if reg.Merchandise != nil && ev.Merchandise != nil {
			ev.Merchandise.StockQuantity += reg.Merchandise.Quantity
		}
		ev.UpdatedAt = reg.UpdatedAt
	}
	return reg.Clone(), nil
}

func (r *registrationRepo) MarkAttendance(_ context.Context, id uuid.UUID, scan models.ScanEntry) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registrations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if reg.Attendance.Marked || (reg.Status != models.RegistrationRegistered && reg.Status != models.RegistrationAttended) {
		return nil, store.ErrConflict
	}
	at := scan.ScannedAt
	by := scan.ScannedBy
	reg.Attendance.Marked = true
	reg.Attendance.MarkedAt = &at
	reg.Attendance.MarkedBy = &by
	reg.Attendance.ScanCount++
	reg.Attendance.ScanHistory = append(reg.Attendance.ScanHistory, scan)
	reg.Status = models.RegistrationAttended
	reg.UpdatedAt = r.db.now()
	return reg.Clone(), nil
}

func (r *registrationRepo) AppendScan(_ context.Context, id uuid.UUID, scan models.ScanEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registrations[id]
	if !ok {
		return store.ErrNotFound
	}
	reg.Attendance.ScanCount++
	reg.Attendance.ScanHistory = append(reg.Attendance.ScanHistory, scan)
	return nil
}

func (r *registrationRepo) UpdatePayment(_ context.Context, id uuid.UUID, fn func(reg *models.Registration) error) (*models.Registration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registrations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := reg.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	reg.Payment = next.Payment
	reg.Status = next.Status
	reg.UpdatedAt = r.db.now()
	return reg.Clone(), nil
}

func (r *registrationRepo) AttendanceCounts(_ context.Context, eventID uuid.UUID) (total, attended int, err error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, reg := range r.db.registrations {
		if reg.EventID != eventID || !reg.IsActive() {
			continue
		}
		total++
		if reg.Attendance.Marked {
			attended++
		}
	}
	return total, attended, nil
}

func (r *registrationRepo) CountActive(_ context.Context) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, reg := range r.db.registrations {
		if reg.IsActive() {
			n++
		}
	}
	return n, nil
}
