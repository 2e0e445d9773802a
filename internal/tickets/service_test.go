package tickets

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/internal/store/memory"
)

type fixture struct {
	st        *store.Store
	svc       *Service
	organizer models.Actor
	event     *models.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	org := &models.User{Email: "club@example.com", Role: models.RoleOrganizer, OrganizerName: "Club",
		Category: models.CategoryCultural, ContactEmail: "club@example.com", IsActive: true}
	require.NoError(t, st.Users.Create(ctx, org))
	f := &fixture{st: st, svc: NewService(st, nil), organizer: models.Actor{ID: org.ID, Role: models.RoleOrganizer}}
	f.event = f.newEvent(t)
	return f
}

func (f *fixture) newEvent(t *testing.T) *models.Event {
	t.Helper()
	now := time.Now()
	ev := &models.Event{
		OrganizerID:          f.organizer.ID,
		Name:                 "Open Mic",
		Type:                 models.EventTypeNormal,
		Status:               models.EventOngoing,
		Eligibility:          models.EligibilityAll,
		RegistrationDeadline: now.Add(-time.Hour),
		StartDate:            now.Add(-time.Hour),
		EndDate:              now.Add(time.Hour),
	}
	require.NoError(t, f.st.Events.Create(context.Background(), ev))
	return ev
}

func (f *fixture) register(t *testing.T, ev *models.Event, ticket string) *models.Registration {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleParticipant,
		FirstName: "Ada", LastName: "L", ParticipantType: models.ParticipantIIIT, IsActive: true}
	require.NoError(t, f.st.Users.Create(context.Background(), u))
	reg := &models.Registration{
		EventID:      ev.ID,
		UserID:       u.ID,
		Status:       models.RegistrationRegistered,
		TicketID:     ticket,
		Payment:      models.PaymentPlan(0),
		RegisteredAt: time.Now(),
	}
	_, err := f.st.Registrations.CreateIndividual(context.Background(), reg, store.Reservation{})
	require.NoError(t, err)
	return reg
}

func TestValidate_MarksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, f.event, "FEL-20260101-AAAAAA")

	a, err := f.svc.ValidateAndMark(ctx, " fel-20260101-aaaaaa ", f.event.ID, f.organizer)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, a.Registration.ID)
	assert.Equal(t, "Ada L", a.ParticipantName)
	assert.Equal(t, models.RegistrationAttended, a.Registration.Status)
	assert.True(t, a.Registration.Attendance.Marked)
	require.NotNil(t, a.Registration.Attendance.MarkedBy)
	assert.Equal(t, f.organizer.ID, *a.Registration.Attendance.MarkedBy)

	_, err = f.svc.ValidateAndMark(ctx, reg.TicketID, f.event.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrAlreadyScanned)

	stored, err := f.st.Registrations.GetByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attendance.ScanCount)
	require.Len(t, stored.Attendance.ScanHistory, 2)
	assert.Equal(t, models.ScanMarked, stored.Attendance.ScanHistory[0].Result)
	assert.Equal(t, models.ScanAlreadyScanned, stored.Attendance.ScanHistory[1].Result)

	total, attended, err := f.st.Registrations.AttendanceCounts(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, attended)
}

func TestValidate_ConcurrentScans(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, f.event, "FEL-20260101-BBBBBB")

	const scanners = 10
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ValidateAndMark(context.Background(), reg.TicketID, f.event.ID, f.organizer)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrAlreadyScanned)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)

	stored, err := f.st.Registrations.GetByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, scanners, stored.Attendance.ScanCount)
}

func TestValidate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.newEvent(t)
	reg := f.register(t, f.event, "FEL-20260101-CCCCCC")

	_, err := f.svc.ValidateAndMark(ctx, "FEL-20260101-000000", f.event.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrTicketNotFound)

	_, err = f.svc.ValidateAndMark(ctx, reg.TicketID, other.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrWrongEvent)

	_, err = f.svc.ValidateAndMark(ctx, reg.TicketID, f.event.ID, models.Actor{ID: uuid.New(), Role: models.RoleOrganizer})
	assert.ErrorIs(t, err, apperr.ErrNotEventOwner)

	_, err = f.svc.ValidateAndMark(ctx, reg.TicketID, uuid.New(), f.organizer)
	assert.ErrorIs(t, err, apperr.ErrEventNotFound)

	_, err = f.st.Registrations.Cancel(ctx, reg.ID, func(*models.Registration) error { return nil }, "changed plans", time.Now())
	require.NoError(t, err)
	_, err = f.svc.ValidateAndMark(ctx, reg.TicketID, f.event.ID, f.organizer)
	assert.ErrorIs(t, err, apperr.ErrInvalidStatus)

	stored, err := f.st.Registrations.GetByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Attendance.Marked)
	require.Len(t, stored.Attendance.ScanHistory, 2)
	assert.Equal(t, models.ScanWrongEvent, stored.Attendance.ScanHistory[0].Result)
	assert.Equal(t, models.ScanInvalidStatus, stored.Attendance.ScanHistory[1].Result)
}

func TestValidate_AdminMayScan(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, f.event, "FEL-20260101-DDDDDD")
	_, err := f.svc.ValidateAndMark(context.Background(), reg.TicketID, f.event.ID, models.Actor{ID: uuid.New(), Role: models.RoleAdmin})
	assert.NoError(t, err)
}

func TestAttendanceReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, f.event, "FEL-20260101-EEEEE1")
	f.register(t, f.event, "FEL-20260101-EEEEE2")
	f.register(t, f.event, "FEL-20260101-EEEEE3")

	_, err := f.svc.ValidateAndMark(ctx, a.TicketID, f.event.ID, f.organizer)
	require.NoError(t, err)

	r, err := f.svc.AttendanceReport(ctx, f.event.ID, f.organizer)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 1, r.Attended)
	assert.Equal(t, 2, r.NotAttended)
	assert.InDelta(t, 33.33, r.AttendanceRate, 0.001)
	assert.Len(t, r.Registrations, 3)

	_, err = f.svc.AttendanceReport(ctx, f.event.ID, models.Actor{ID: uuid.New(), Role: models.RoleOrganizer})
	assert.ErrorIs(t, err, apperr.ErrNotEventOwner)
}

func TestQRCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, f.event, "FEL-20260101-FFFFFF")

	png, err := f.svc.QRCode(ctx, reg.TicketID, models.Actor{ID: reg.UserID, Role: models.RoleParticipant})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = f.svc.QRCode(ctx, reg.TicketID, f.organizer)
	assert.NoError(t, err)

	_, err = f.svc.QRCode(ctx, reg.TicketID, models.Actor{ID: uuid.New(), Role: models.RoleParticipant})
	assert.ErrorIs(t, err, apperr.ErrNotRegistrationOwner)

	_, err = f.svc.QRCode(ctx, "FEL-00000000-000000", f.organizer)
	assert.ErrorIs(t, err, apperr.ErrTicketNotFound)
}
