package clubs

import (
	"context"
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

func organizer(t *testing.T, st *store.Store, name string, cat models.OrganizerCategory, active bool) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@clubs.example.com", Role: models.RoleOrganizer, OrganizerName: name,
		Category: cat, ContactEmail: "contact@clubs.example.com", IsActive: active, IsApproved: true}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return u
}

func participant(t *testing.T, st *store.Store) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@students.example.com", Role: models.RoleParticipant,
		FirstName: "Asha", LastName: "Rao", ParticipantType: models.ParticipantIIIT, IsActive: true}
	require.NoError(t, st.Users.Create(context.Background(), u))
	return u
}

func event(t *testing.T, st *store.Store, org uuid.UUID, name string, status models.EventStatus, fee int) *models.Event {
	t.Helper()
	now := time.Now()
	e := &models.Event{OrganizerID: org, Name: name, Type: models.EventTypeNormal, Status: status,
		Eligibility: models.EligibilityAll, RegistrationFee: fee,
		RegistrationDeadline: now.Add(time.Hour), StartDate: now.Add(2 * time.Hour), EndDate: now.Add(3 * time.Hour)}
	require.NoError(t, st.Events.Create(context.Background(), e))
	return e
}

func TestClubs_DirectoryAndFollow(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewService(st, nil)

	zeta := organizer(t, st, "Zeta Dance", models.CategoryCultural, true)
	alpha := organizer(t, st, "alpha Coders", models.CategoryTechnical, true)
	gone := organizer(t, st, "Old Club", models.CategoryTechnical, false)
	p := participant(t, st)
	viewer := &models.Actor{ID: p.ID, Role: models.RoleParticipant}

	list, err := svc.List(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, alpha.ID, list[0].ID)
	assert.Equal(t, zeta.ID, list[1].ID)

	tech, err := svc.List(ctx, models.CategoryTechnical, nil)
	require.NoError(t, err)
	require.Len(t, tech, 1)
	assert.Equal(t, alpha.ID, tech[0].ID)

	require.NoError(t, svc.Follow(ctx, p.ID, zeta.ID))
	require.NoError(t, svc.Follow(ctx, p.ID, zeta.ID))
	assert.ErrorIs(t, svc.Follow(ctx, p.ID, gone.ID), apperr.ErrUserNotFound)
	assert.ErrorIs(t, svc.Follow(ctx, p.ID, p.ID), apperr.ErrUserNotFound)

	following, err := svc.Following(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, zeta.ID, following[0].ID)

	list, err = svc.List(ctx, "", viewer)
	require.NoError(t, err)
	assert.False(t, list[0].Followed)
	assert.True(t, list[1].Followed)

	require.NoError(t, svc.Unfollow(ctx, p.ID, zeta.ID))
	following, err = svc.Following(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestClubs_DetailShowsOpenEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewService(st, nil)
	org := organizer(t, st, "Robotics", models.CategoryTechnical, true)
	event(t, st, org.ID, "Draft Build", models.EventDraft, 0)
	event(t, st, org.ID, "Bot Wars", models.EventPublished, 0)
	event(t, st, org.ID, "Line Follower", models.EventOngoing, 0)
	event(t, st, org.ID, "Last Year", models.EventClosed, 0)

	d, err := svc.Get(ctx, org.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Robotics", d.Name)
	assert.Equal(t, 2, d.EventCount)
	for _, e := range d.Events {
		assert.Contains(t, []models.EventStatus{models.EventPublished, models.EventOngoing}, e.Status)
	}

	_, err = svc.Get(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestClubs_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewService(st, nil)
	org := organizer(t, st, "Chess Club", models.CategoryOther, true)
	p := participant(t, st)

	name := "  Chess Society "
	cat := models.CategorySports
	hook := "https://discord.com/api/webhooks/123456/abc-DEF_9"
	prof, err := svc.UpdateProfile(ctx, org.ID, ProfilePatch{OrganizerName: &name, Category: &cat, DiscordWebhook: &hook})
	require.NoError(t, err)
	assert.Equal(t, "Chess Society", prof.OrganizerName)
	assert.Equal(t, models.CategorySports, prof.Category)
	assert.Equal(t, hook, prof.DiscordWebhook)

	bad := "https://example.com/hook"
	_, err = svc.UpdateProfile(ctx, org.ID, ProfilePatch{DiscordWebhook: &bad})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	badCat := models.OrganizerCategory("Gaming")
	_, err = svc.UpdateProfile(ctx, org.ID, ProfilePatch{Category: &badCat})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	empty := ""
	_, err = svc.UpdateProfile(ctx, p.ID, ProfilePatch{FirstName: &empty})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	college := "IIIT Hyderabad"
	prof, err = svc.UpdateProfile(ctx, p.ID, ProfilePatch{
		CollegeName: &college,
		Interests:   []string{"robotics", " Robotics", "music", ""},
		// organizer fields are ignored for participants
		OrganizerName: &name,
	})
	require.NoError(t, err)
	assert.Equal(t, college, prof.CollegeName)
	assert.Equal(t, []string{"robotics", "music"}, prof.Interests)
	assert.Empty(t, prof.OrganizerName)
	assert.Equal(t, models.ParticipantIIIT, prof.ParticipantType)
}

func TestClubs_Stats(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := NewService(st, nil)
	org := organizer(t, st, "Music Club", models.CategoryCultural, true)
	free := event(t, st, org.ID, "Open Mic", models.EventPublished, 0)
	paid := event(t, st, org.ID, "Concert", models.EventPublished, 200)

	register := func(e *models.Event, status models.PaymentStatus) *models.Registration {
		r := &models.Registration{EventID: e.ID, UserID: participant(t, st).ID, Status: models.RegistrationRegistered,
			TicketID: "FEL-20260101-" + uuid.NewString()[:6], Payment: models.PaymentPlan(e.RegistrationFee)}
		r.Payment.Status = status
		_, err := st.Registrations.CreateIndividual(ctx, r, store.Reservation{})
		require.NoError(t, err)
		return r
	}
	a := register(free, models.PaymentCompleted)
	register(free, models.PaymentCompleted)
	register(paid, models.PaymentCompleted)
	register(paid, models.PaymentPending)

	_, err := st.Registrations.MarkAttendance(ctx, a.ID, models.ScanEntry{ScannedAt: time.Now(), ScannedBy: org.ID,
		EventID: free.ID, Result: models.ScanMarked})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 4, stats.TotalRegistrations)
	assert.Equal(t, 1, stats.TotalAttendance)
	assert.Equal(t, 200, stats.TotalRevenue)
	assert.Equal(t, 25.0, stats.AttendanceRate)
	assert.Len(t, stats.Events, 2)
}
