package teams

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/internal/store/memory"
)

type outbox struct {
	mu   sync.Mutex
	list []notify.Notification
}

func (o *outbox) Send(_ context.Context, n notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, n)
	return nil
}

type env struct {
	st        *store.Store
	svc       *Service
	out       *outbox
	notifier  *notify.Dispatcher
	organizer *models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	out := &outbox{}
	d := notify.NewDispatcher(out, time.Second, nil)
	org := &models.User{Email: "club@example.com", Role: models.RoleOrganizer, OrganizerName: "Club",
		Category: models.CategoryTechnical, ContactEmail: "club@example.com", IsActive: true}
	require.NoError(t, st.Users.Create(context.Background(), org))
	return &env{st: st, svc: NewService(st, d, "FEL", nil), out: out, notifier: d, organizer: org}
}

func (e *env) participant(t *testing.T) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@example.com", Role: models.RoleParticipant,
		FirstName: "Team", LastName: "Player", ParticipantType: models.ParticipantIIIT, IsActive: true}
	require.NoError(t, e.st.Users.Create(context.Background(), u))
	return u
}

func (e *env) teamEvent(t *testing.T, min, max int, mutate func(ev *models.Event)) *models.Event {
	t.Helper()
	now := time.Now()
	ev := &models.Event{
		OrganizerID:          e.organizer.ID,
		Name:                 "Hackathon",
		Type:                 models.EventTypeNormal,
		Status:               models.EventPublished,
		Eligibility:          models.EligibilityAll,
		RegistrationDeadline: now.Add(24 * time.Hour),
		StartDate:            now.Add(48 * time.Hour),
		EndDate:              now.Add(72 * time.Hour),
		IsTeamEvent:          true,
		MinTeamSize:          min,
		MaxTeamSize:          max,
	}
	if mutate != nil {
		mutate(ev)
	}
	require.NoError(t, e.st.Events.Create(context.Background(), ev))
	return ev
}

func (e *env) reload(t *testing.T, id uuid.UUID) *models.Event {
	t.Helper()
	ev, err := e.st.Events.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ev
}

func TestTeam_CreateJoinFinalize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 2, 4, nil)
	leader, member := e.participant(t), e.participant(t)

	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Byte Me")
	require.NoError(t, err)
	assert.Equal(t, 1, team.CurrentSize)
	assert.Equal(t, 4, team.RequiredSize)
	assert.Equal(t, models.TeamForming, team.Status)
	assert.Regexp(t, `^TEAM-[0-9A-F]{8}$`, team.InviteCode)

	joined, err := e.svc.Join(ctx, " "+team.InviteCode+" ", member.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.CurrentSize)
	assert.False(t, joined.IsFinalized)

	final, regs, err := e.svc.Finalize(ctx, team.ID, leader.ID)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.True(t, final.IsFinalized)
	assert.Equal(t, models.TeamRegistered, final.Status)
	assert.NotNil(t, final.RegisteredAt)
	assert.Equal(t, leader.ID, regs[0].UserID)
	assert.Equal(t, member.ID, regs[1].UserID)
	for _, r := range regs {
		require.NotNil(t, r.TeamID)
		assert.Equal(t, team.ID, *r.TeamID)
		assert.Equal(t, models.RegistrationRegistered, r.Status)
	}
	assert.NotEqual(t, regs[0].TicketID, regs[1].TicketID)
	assert.Equal(t, 2, e.reload(t, ev.ID).RegistrationCount)

	e.notifier.Wait()
	require.Len(t, e.out.list, 2)
	for _, n := range e.out.list {
		assert.Equal(t, notify.KindTeamRegistered, n.Kind)
		assert.Equal(t, "Byte Me", n.Data["team_name"])
	}
}

func TestTeam_FinalizeBelowMinimum(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 2, 4, nil)
	leader := e.participant(t)

	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Solo")
	require.NoError(t, err)

	_, regs, err := e.svc.Finalize(ctx, team.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrBelowMinimumSize)
	assert.Empty(t, regs)
	assert.Equal(t, 0, e.reload(t, ev.ID).RegistrationCount)

	stored, err := e.st.Teams.GetByID(ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFinalized)
}

func TestTeam_FinalizeRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 3, func(ev *models.Event) {
		l := 1
		ev.RegistrationLimit = &l
	})
	leader, member := e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Duo")
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, team.InviteCode, member.ID)
	require.NoError(t, err)

	_, _, err = e.svc.Finalize(ctx, team.ID, member.ID)
	assert.ErrorIs(t, err, apperr.ErrNotLeader)

	_, _, err = e.svc.Finalize(ctx, team.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrLimitReached)
	assert.Equal(t, 0, e.reload(t, ev.ID).RegistrationCount)
}

func TestTeam_FinalizeRejectsRegisteredMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 2, 4, nil)
	leader, member, late := e.participant(t), e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Overlap")
	require.NoError(t, err)
	for _, u := range []*models.User{member, late} {
		_, err = e.svc.Join(ctx, team.InviteCode, u.ID)
		require.NoError(t, err)
	}

	solo := &models.Registration{EventID: ev.ID, UserID: late.ID, Status: models.RegistrationRegistered,
		TicketID: "FEL-20260101-0000AA", RegisteredAt: time.Now()}
	_, err = e.st.Registrations.CreateIndividual(ctx, solo, store.Reservation{})
	require.NoError(t, err)

	_, regs, err := e.svc.Finalize(ctx, team.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)
	assert.Empty(t, regs)

	stored, err := e.st.Teams.GetByID(ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFinalized)
	assert.Equal(t, models.TeamForming, stored.Status)
	for _, u := range []*models.User{leader, member} {
		active, err := e.st.Registrations.FindActive(ctx, ev.ID, u.ID)
		require.NoError(t, err)
		assert.Nil(t, active)
	}
	assert.Equal(t, 1, e.reload(t, ev.ID).RegistrationCount)
}

func TestTeam_ConcurrentFinalizeOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 2, 2, nil)
	leader, member := e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Race")
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, team.InviteCode, member.ID)
	require.NoError(t, err)

	const attempts = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.svc.Finalize(ctx, team.ID, leader.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				bad = append(bad, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	for _, err := range bad {
		assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	}
	assert.Equal(t, 2, e.reload(t, ev.ID).RegistrationCount)
}

func TestTeam_JoinRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 2, nil)
	leader, member, extra := e.participant(t), e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Pair")
	require.NoError(t, err)

	_, err = e.svc.Join(ctx, "TEAM-00000000", member.ID)
	assert.ErrorIs(t, err, apperr.ErrInviteCodeNotFound)

	_, err = e.svc.Join(ctx, team.InviteCode, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyInTeam)

	full, err := e.svc.Join(ctx, team.InviteCode, member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TeamComplete, full.Status)

	_, err = e.svc.Join(ctx, team.InviteCode, extra.ID)
	assert.ErrorIs(t, err, apperr.ErrTeamFull)
}

func TestTeam_OneTeamPerEvent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 4, nil)
	a, b := e.participant(t), e.participant(t)

	_, err := e.svc.Create(ctx, ev.ID, a.ID, "A")
	require.NoError(t, err)
	teamB, err := e.svc.Create(ctx, ev.ID, b.ID, "B")
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, ev.ID, a.ID, "A again")
	assert.ErrorIs(t, err, apperr.ErrAlreadyInOtherTeam)

	_, err = e.svc.Join(ctx, teamB.InviteCode, a.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyInOtherTeam)

	stored, err := e.st.Teams.GetByID(ctx, teamB.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentSize)

	other := e.teamEvent(t, 1, 4, nil)
	_, err = e.svc.Create(ctx, other.ID, a.ID, "Elsewhere")
	assert.NoError(t, err)
}

func TestTeam_CreateRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.participant(t)

	solo := e.teamEvent(t, 0, 0, func(ev *models.Event) { ev.IsTeamEvent = false })
	_, err := e.svc.Create(ctx, solo.ID, u.ID, "X")
	assert.ErrorIs(t, err, apperr.ErrNotTeamEvent)

	draft := e.teamEvent(t, 1, 2, func(ev *models.Event) { ev.Status = models.EventDraft })
	_, err = e.svc.Create(ctx, draft.ID, u.ID, "X")
	assert.ErrorIs(t, err, apperr.ErrRegistrationClosed)

	closed := e.teamEvent(t, 1, 2, func(ev *models.Event) { ev.RegistrationDeadline = time.Now().Add(-time.Hour) })
	_, err = e.svc.Create(ctx, closed.ID, u.ID, "X")
	assert.ErrorIs(t, err, apperr.ErrDeadlinePassed)

	open := e.teamEvent(t, 1, 2, nil)
	_, err = e.svc.Create(ctx, open.ID, u.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = e.svc.Create(ctx, uuid.New(), u.ID, "X")
	assert.ErrorIs(t, err, apperr.ErrEventNotFound)
}

func TestTeam_MembershipChangesKeepSize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 3, nil)
	leader, m1, m2 := e.participant(t), e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Trio")
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, team.InviteCode, m1.ID)
	require.NoError(t, err)
	full, err := e.svc.Join(ctx, team.InviteCode, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, full.CurrentSize)
	assert.Equal(t, models.TeamComplete, full.Status)

	_, err = e.svc.RemoveMember(ctx, team.ID, m1.ID, m2.ID)
	assert.ErrorIs(t, err, apperr.ErrNotLeader)
	_, err = e.svc.RemoveMember(ctx, team.ID, leader.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrCannotRemoveLeader)

	after, err := e.svc.RemoveMember(ctx, team.ID, leader.ID, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.CurrentSize)
	assert.Equal(t, models.TeamForming, after.Status)
	assert.Len(t, after.AcceptedMembers(), after.CurrentSize)

	_, err = e.svc.RemoveMember(ctx, team.ID, leader.ID, m2.ID)
	assert.ErrorIs(t, err, apperr.ErrMemberNotFound)

	left, err := e.svc.Leave(ctx, team.ID, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, left.CurrentSize)

	_, err = e.svc.Leave(ctx, team.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrCannotRemoveLeader)

	rejoined, err := e.svc.Join(ctx, team.InviteCode, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rejoined.CurrentSize)
	assert.Len(t, rejoined.Members, 3)
}

func TestTeam_CancelFreesMembers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 3, nil)
	leader, member := e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Short lived")
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, team.InviteCode, member.ID)
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, team.ID, member.ID)
	assert.ErrorIs(t, err, apperr.ErrNotLeader)

	cancelled, err := e.svc.Cancel(ctx, team.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TeamCancelled, cancelled.Status)
	assert.Equal(t, 0, cancelled.CurrentSize)

	_, err = e.svc.Join(ctx, team.InviteCode, e.participant(t).ID)
	assert.ErrorIs(t, err, apperr.ErrTeamCancelled)

	_, err = e.svc.Create(ctx, ev.ID, member.ID, "Fresh start")
	assert.NoError(t, err)
}

func TestTeam_FinalizedIsFrozen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 3, nil)
	leader, member := e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Done")
	require.NoError(t, err)
	_, err = e.svc.Join(ctx, team.InviteCode, member.ID)
	require.NoError(t, err)
	_, _, err = e.svc.Finalize(ctx, team.ID, leader.ID)
	require.NoError(t, err)

	_, err = e.svc.Join(ctx, team.InviteCode, e.participant(t).ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	_, err = e.svc.RemoveMember(ctx, team.ID, leader.ID, member.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	_, err = e.svc.Leave(ctx, team.ID, member.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	_, err = e.svc.Cancel(ctx, team.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	_, _, err = e.svc.Finalize(ctx, team.ID, leader.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	assert.Equal(t, 2, e.reload(t, ev.ID).RegistrationCount)
}

func TestTeam_GetVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 3, nil)
	leader, outsider := e.participant(t), e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Private")
	require.NoError(t, err)

	v, err := e.svc.Get(ctx, team.ID, models.Actor{ID: leader.ID, Role: models.RoleParticipant})
	require.NoError(t, err)
	assert.Equal(t, "Hackathon", v.EventName)
	require.Len(t, v.MemberViews, 1)
	assert.True(t, v.MemberViews[0].IsLeader)
	assert.Equal(t, leader.Email, v.MemberViews[0].Email)

	_, err = e.svc.Get(ctx, team.ID, models.Actor{ID: outsider.ID, Role: models.RoleParticipant})
	assert.ErrorIs(t, err, apperr.ErrNotTeamMember)

	_, err = e.svc.Get(ctx, team.ID, models.Actor{ID: e.organizer.ID, Role: models.RoleOrganizer})
	assert.NoError(t, err)

	_, err = e.svc.Get(ctx, uuid.New(), models.Actor{ID: leader.ID, Role: models.RoleParticipant})
	assert.ErrorIs(t, err, apperr.ErrTeamNotFound)

	mine, err := e.svc.ListMine(ctx, leader.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestTeam_ShareInvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.teamEvent(t, 1, 3, nil)
	leader := e.participant(t)
	team, err := e.svc.Create(ctx, ev.ID, leader.ID, "Inviters")
	require.NoError(t, err)

	n, err := e.svc.ShareInvite(ctx, team.ID, leader.ID, []string{"a@example.com", leader.Email, "b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e.notifier.Wait()
	require.Len(t, e.out.list, 2)
	assert.Equal(t, notify.KindTeamInvite, e.out.list[0].Kind)
	assert.Equal(t, team.InviteCode, e.out.list[0].Data["invite_code"])

	_, err = e.svc.ShareInvite(ctx, team.ID, uuid.New(), []string{"a@example.com"})
	assert.ErrorIs(t, err, apperr.ErrNotLeader)
	_, err = e.svc.ShareInvite(ctx, team.ID, leader.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
