package messages

import (
	"context"
	"strings"
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

type published struct {
	eventID uuid.UUID
	event   string
}

type fakeRooms struct {
	mu  sync.Mutex
	got []published
}

func (f *fakeRooms) Publish(eventID uuid.UUID, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, published{eventID, event})
}

type chatFixture struct {
	st        *store.Store
	svc       *Service
	rooms     *fakeRooms
	event     *models.Event
	organizer models.Actor
	attendee  models.Actor
	outsider  models.Actor
}

func newChat(t *testing.T) *chatFixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	rooms := &fakeRooms{}
	f := &chatFixture{st: st, svc: NewService(st, rooms, nil), rooms: rooms}

	org := &models.User{Email: "club@example.com", Role: models.RoleOrganizer, OrganizerName: "Quiz Club",
		Category: models.CategoryLiterary, ContactEmail: "club@example.com", IsActive: true}
	require.NoError(t, st.Users.Create(ctx, org))
	f.organizer = models.Actor{ID: org.ID, Role: models.RoleOrganizer}

	now := time.Now()
	f.event = &models.Event{OrganizerID: org.ID, Name: "Quiz Night", Type: models.EventTypeNormal,
		Status: models.EventPublished, Eligibility: models.EligibilityAll,
		RegistrationDeadline: now.Add(time.Hour), StartDate: now.Add(2 * time.Hour), EndDate: now.Add(3 * time.Hour)}
	require.NoError(t, st.Events.Create(ctx, f.event))

	for _, a := range []*models.Actor{&f.attendee, &f.outsider} {
		u := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleParticipant,
			FirstName: "Quiz", LastName: "Fan", ParticipantType: models.ParticipantNonIIIT, IsActive: true}
		require.NoError(t, st.Users.Create(ctx, u))
		*a = models.Actor{ID: u.ID, Role: models.RoleParticipant}
	}
	reg := &models.Registration{EventID: f.event.ID, UserID: f.attendee.ID, Status: models.RegistrationRegistered,
		TicketID: "FEL-20260101-ABCDEF", Payment: models.PaymentPlan(0)}
	_, err := st.Registrations.CreateIndividual(ctx, reg, store.Reservation{})
	require.NoError(t, err)
	return f
}

func TestChat_Access(t *testing.T) {
	f := newChat(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, f.event.ID, f.attendee)
	assert.NoError(t, err)
	_, err = f.svc.Join(ctx, f.event.ID, f.organizer)
	assert.NoError(t, err)
	_, err = f.svc.Join(ctx, f.event.ID, models.Actor{ID: uuid.New(), Role: models.RoleAdmin})
	assert.NoError(t, err)
	_, err = f.svc.Join(ctx, f.event.ID, f.outsider)
	assert.ErrorIs(t, err, apperr.ErrChatForbidden)
	_, err = f.svc.Join(ctx, uuid.New(), f.attendee)
	assert.ErrorIs(t, err, apperr.ErrEventNotFound)

	_, err = f.svc.Send(ctx, f.event.ID, f.outsider, "hi")
	assert.ErrorIs(t, err, apperr.ErrChatForbidden)
}

func TestChat_SendAndHistory(t *testing.T) {
	f := newChat(t)
	ctx := context.Background()

	m, err := f.svc.Send(ctx, f.event.ID, f.attendee, "  when does it start?  ")
	require.NoError(t, err)
	assert.Equal(t, "when does it start?", m.Body)
	assert.Equal(t, "Quiz Fan", m.SenderName)
	_, err = f.svc.Send(ctx, f.event.ID, f.organizer, "at 6")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, f.event.ID, f.attendee, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.Send(ctx, f.event.ID, f.attendee, strings.Repeat("x", models.MaxMessageLength+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	list, err := f.svc.History(ctx, f.event.ID, f.attendee, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.Len(t, f.rooms.got, 2)
	assert.Equal(t, EventNewMessage, f.rooms.got[0].event)
	assert.Equal(t, f.event.ID, f.rooms.got[0].eventID)
}

func TestChat_Moderation(t *testing.T) {
	f := newChat(t)
	ctx := context.Background()
	mine, err := f.svc.Send(ctx, f.event.ID, f.attendee, "first")
	require.NoError(t, err)
	other, err := f.svc.Send(ctx, f.event.ID, f.organizer, "rules")
	require.NoError(t, err)

	_, err = f.svc.TogglePin(ctx, other.ID, f.attendee)
	assert.ErrorIs(t, err, apperr.ErrChatForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, other.ID, f.attendee), apperr.ErrChatForbidden)

	pinned, err := f.svc.TogglePin(ctx, other.ID, f.organizer)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)
	unpinned, err := f.svc.TogglePin(ctx, other.ID, f.organizer)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)

	require.NoError(t, f.svc.Delete(ctx, mine.ID, f.attendee))
	assert.ErrorIs(t, f.svc.Delete(ctx, mine.ID, f.organizer), apperr.ErrMessageNotFound)

	list, err := f.svc.History(ctx, f.event.ID, f.organizer, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	events := make([]string, 0, len(f.rooms.got))
	for _, p := range f.rooms.got {
		events = append(events, p.event)
	}
	assert.Equal(t, []string{EventNewMessage, EventNewMessage, EventPinToggled, EventPinToggled, EventDeleted}, events)
}
