// Package teams implements team formation for team events: create, join by invite code,
// leader finalization into per-member registrations, and membership changes before that.
package teams

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/pkg/utils"
)

const (
	// maxCodeAttempts bounds invite code and ticket id re-rolls on collision.
	maxCodeAttempts = 5
	maxTeamName     = 100
	maxInvites      = 10
)

// Service implements the team operations.
type Service struct {
	store        *store.Store
	notifier     *notify.Dispatcher
	ticketPrefix string
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a team service.
func NewService(st *store.Store, notifier *notify.Dispatcher, ticketPrefix string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, notifier: notifier, ticketPrefix: ticketPrefix, logger: logger, now: time.Now}
}

func (s *Service) loadEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrEventNotFound
		}
		return nil, apperr.Internal("load event", err)
	}
	return ev, nil
}

// Create starts a team led by leaderID. The leader is its first accepted member.
func (s *Service) Create(ctx context.Context, eventID, leaderID uuid.UUID, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTeamName {
		return nil, apperr.ErrInvalidInput.With("team name is required (max 100 characters)")
	}
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case !ev.IsTeamEvent:
		return nil, apperr.ErrNotTeamEvent
	case ev.Status != models.EventPublished:
		return nil, apperr.ErrRegistrationClosed
	case now.After(ev.RegistrationDeadline):
		return nil, apperr.ErrDeadlinePassed
	}
	existing, err := s.store.Teams.FindActiveForUser(ctx, eventID, leaderID)
	if err != nil {
		return nil, apperr.Internal("load team", err)
	}
	if existing != nil {
		return nil, apperr.ErrAlreadyInOtherTeam
	}

	t := &models.Team{
		Name:         name,
		EventID:      eventID,
		LeaderID:     leaderID,
		Members:      []models.TeamMember{{UserID: leaderID, Status: models.MemberAccepted, JoinedAt: now}},
		Status:       models.TeamForming,
		RequiredSize: ev.MaxTeamSize,
	}
	t.Recount()
	for i := 0; i < maxCodeAttempts; i++ {
		if t.InviteCode, err = utils.InviteCode(); err != nil {
			return nil, apperr.Internal("generate invite code", err)
		}
		err = s.store.Teams.Create(ctx, t)
		switch {
		case err == nil:
			s.logger.Info("team created",
				zap.String("team_id", t.ID.String()),
				zap.String("event_id", eventID.String()),
				zap.String("leader_id", leaderID.String()),
			)
			return t, nil
		case errors.Is(err, store.ErrDuplicateInviteCode):
			t.ID = uuid.Nil
			continue
		case errors.Is(err, store.ErrDuplicateMembership):
			return nil, apperr.ErrAlreadyInOtherTeam
		default:
			return nil, apperr.Internal("create team", err)
		}
	}
	return nil, apperr.Internal("generate invite code", errors.New("too many invite code collisions"))
}

// Join adds userID to the team with the given invite code as an accepted member.
// Reaching the required size does not finalize the team.
func (s *Service) Join(ctx context.Context, inviteCode string, userID uuid.UUID) (*models.Team, error) {
	code := utils.NormalizeInviteCode(inviteCode)
	if code == "" {
		return nil, apperr.ErrInvalidInput.With("invite code is required")
	}
	found, err := s.store.Teams.GetByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrInviteCodeNotFound
		}
		return nil, apperr.Internal("load team", err)
	}
	now := s.now()
	t, err := s.store.Teams.Update(ctx, found.ID, func(t *models.Team, ev *models.Event) error {
		switch {
		case t.Status == models.TeamCancelled:
			return apperr.ErrTeamCancelled
		case t.IsFinalized:
			return apperr.ErrAlreadyFinalized
		case now.After(ev.RegistrationDeadline):
			return apperr.ErrDeadlinePassed
		case t.CurrentSize >= t.RequiredSize:
			return apperr.ErrTeamFull
		case t.IsActiveMember(userID):
			return apperr.ErrAlreadyInTeam
		}
		if m := t.Member(userID); m != nil {
			m.Status, m.JoinedAt, m.RespondedAt = models.MemberAccepted, now, &now
		} else {
			t.Members = append(t.Members, models.TeamMember{UserID: userID, Status: models.MemberAccepted, JoinedAt: now, RespondedAt: &now})
		}
		t.Recount()
		return nil
	})
	if err != nil {
		return nil, s.mapTeamErr(err, "join team")
	}
	s.logger.Info("team joined", zap.String("team_id", t.ID.String()), zap.String("user_id", userID.String()), zap.Int("current_size", t.CurrentSize))
	return t, nil
}

func (s *Service) mapTeamErr(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.ErrTeamNotFound
	case errors.Is(err, store.ErrDuplicateMembership):
		return apperr.ErrAlreadyInOtherTeam
	default:
		return apperr.Wrap(err, op)
	}
}

// Finalize registers every accepted member of the team. Only the leader may finalize, only once.
// The registrations, the team and the event count are written as one unit.
func (s *Service) Finalize(ctx context.Context, teamID, userID uuid.UUID) (*models.Team, []*models.Registration, error) {
	var (
		t    *models.Team
		regs []*models.Registration
		ev   *models.Event
		err  error
	)
	for i := 0; i < maxCodeAttempts; i++ {
		t, regs, err = s.store.Teams.Finalize(ctx, teamID, func(t *models.Team, e *models.Event) ([]*models.Registration, error) {
			ev = e
			return s.finalize(t, e, userID)
		})
		if !errors.Is(err, store.ErrDuplicateTicket) {
			break
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		return nil, nil, apperr.ErrAlreadyFinalized
	case errors.Is(err, store.ErrDuplicateRegistration):
		return nil, nil, apperr.ErrAlreadyRegistered.With("a team member is already registered for this event")
	case errors.Is(err, store.ErrDuplicateTicket):
		return nil, nil, apperr.Internal("generate ticket id", err)
	default:
		return nil, nil, s.mapTeamErr(err, "finalize team")
	}

	s.logger.Info("team finalized",
		zap.String("team_id", teamID.String()),
		zap.String("event_id", t.EventID.String()),
		zap.Int("registrations", len(regs)),
	)
	s.notifyRegistered(ctx, t, ev, regs)
	return t, regs, nil
}

// finalize checks the locked team and builds one registration per accepted member.
func (s *Service) finalize(t *models.Team, ev *models.Event, userID uuid.UUID) ([]*models.Registration, error) {
	switch {
	case t.LeaderID != userID:
		return nil, apperr.ErrNotLeader
	case t.IsFinalized:
		return nil, apperr.ErrAlreadyFinalized
	case t.Status == models.TeamCancelled:
		return nil, apperr.ErrTeamCancelled
	case t.CurrentSize < ev.MinTeamSize:
		return nil, apperr.ErrBelowMinimumSize
	case !ev.HasRoomFor(t.CurrentSize):
		return nil, apperr.ErrLimitReached
	}
	now := s.now()
	members := t.AcceptedMembers()
	regs := make([]*models.Registration, 0, len(members))
	for _, id := range members {
		ticket, err := utils.TicketID(s.ticketPrefix, now)
		if err != nil {
			return nil, err
		}
		teamID := t.ID
		regs = append(regs, &models.Registration{
			EventID:      ev.ID,
			UserID:       id,
			TeamID:       &teamID,
			Status:       models.RegistrationRegistered,
			TicketID:     ticket,
			Payment:      models.PaymentPlan(ev.RegistrationFee),
			RegisteredAt: now,
		})
	}
	t.IsFinalized = true
	t.Status = models.TeamRegistered
	t.RegisteredAt = &now
	return regs, nil
}

// notifyRegistered sends one confirmation per member. Each send is independent.
func (s *Service) notifyRegistered(ctx context.Context, t *models.Team, ev *models.Event, regs []*models.Registration) {
	ns := make([]notify.Notification, 0, len(regs))
	for _, reg := range regs {
		u, err := s.store.Users.GetByID(ctx, reg.UserID)
		if err != nil {
			s.logger.Warn("load team member for notification", zap.String("user_id", reg.UserID.String()), zap.Error(err))
			continue
		}
		n := notify.Email(notify.KindTeamRegistered, u.Email, map[string]string{
			"name":       u.DisplayName(),
			"team_name":  t.Name,
			"event_name": ev.Name,
			"ticket_id":  reg.TicketID,
		})
		id := reg.ID
		ns = append(ns, n.ForEvent(ev.ID, &id))
	}
	s.notifier.Dispatch(ns...)
}

// RemoveMember removes a member before finalization. Only the leader may remove, and not themselves.
func (s *Service) RemoveMember(ctx context.Context, teamID, leaderID, memberID uuid.UUID) (*models.Team, error) {
	now := s.now()
	t, err := s.store.Teams.Update(ctx, teamID, func(t *models.Team, _ *models.Event) error {
		switch {
		case t.LeaderID != leaderID:
			return apperr.ErrNotLeader
		case t.IsFinalized:
			return apperr.ErrAlreadyFinalized
		case t.Status == models.TeamCancelled:
			return apperr.ErrTeamCancelled
		case memberID == t.LeaderID:
			return apperr.ErrCannotRemoveLeader
		}
		m := t.Member(memberID)
		if m == nil || m.Status == models.MemberRemoved {
			return apperr.ErrMemberNotFound
		}
		m.Status, m.RespondedAt = models.MemberRemoved, &now
		t.Recount()
		return nil
	})
	if err != nil {
		return nil, s.mapTeamErr(err, "remove member")
	}
	return t, nil
}

// Leave removes the caller from a team before finalization. The leader cannot leave.
func (s *Service) Leave(ctx context.Context, teamID, userID uuid.UUID) (*models.Team, error) {
	now := s.now()
	t, err := s.store.Teams.Update(ctx, teamID, func(t *models.Team, _ *models.Event) error {
		switch {
		case t.LeaderID == userID:
			return apperr.ErrCannotRemoveLeader.With("the leader cannot leave, cancel the team instead")
		case !t.IsActiveMember(userID):
			return apperr.ErrNotTeamMember
		case t.IsFinalized:
			return apperr.ErrAlreadyFinalized
		}
		m := t.Member(userID)
		m.Status, m.RespondedAt = models.MemberRemoved, &now
		t.Recount()
		return nil
	})
	if err != nil {
		return nil, s.mapTeamErr(err, "leave team")
	}
	return t, nil
}

// Cancel disbands a team before finalization. Every member is removed, freeing them to join another team.
func (s *Service) Cancel(ctx context.Context, teamID, leaderID uuid.UUID) (*models.Team, error) {
	now := s.now()
	t, err := s.store.Teams.Update(ctx, teamID, func(t *models.Team, _ *models.Event) error {
		switch {
		case t.LeaderID != leaderID:
			return apperr.ErrNotLeader
		case t.IsFinalized:
			return apperr.ErrAlreadyFinalized
		case t.Status == models.TeamCancelled:
			return apperr.ErrTeamCancelled
		}
		for i := range t.Members {
			if t.Members[i].Status != models.MemberRemoved {
				t.Members[i].Status, t.Members[i].RespondedAt = models.MemberRemoved, &now
			}
		}
		t.Status = models.TeamCancelled
		t.Recount()
		return nil
	})
	if err != nil {
		return nil, s.mapTeamErr(err, "cancel team")
	}
	s.logger.Info("team cancelled", zap.String("team_id", teamID.String()))
	return t, nil
}

// MemberView is a team member with display details.
type MemberView struct {
	models.TeamMember
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsLeader bool   `json:"is_leader"`
}

// View is a team with its event name and member details.
type View struct {
	*models.Team
	EventName   string       `json:"event_name"`
	MemberViews []MemberView `json:"member_details"`
}

// Get returns a team to its members, the event organizer or an admin.
func (s *Service) Get(ctx context.Context, teamID uuid.UUID, actor models.Actor) (*View, error) {
	t, err := s.store.Teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, s.mapTeamErr(err, "load team")
	}
	ev, err := s.loadEvent(ctx, t.EventID)
	if err != nil {
		return nil, err
	}
	if m := t.Member(actor.ID); (m == nil || m.Status == models.MemberRemoved) && !ev.ManagedBy(actor) {
		return nil, apperr.ErrNotTeamMember
	}
	return s.view(ctx, t, ev), nil
}

func (s *Service) view(ctx context.Context, t *models.Team, ev *models.Event) *View {
	v := &View{Team: t, EventName: ev.Name, MemberViews: make([]MemberView, 0, len(t.Members))}
	for _, m := range t.Members {
		mv := MemberView{TeamMember: m, IsLeader: m.UserID == t.LeaderID}
		if u, err := s.store.Users.GetByID(ctx, m.UserID); err == nil {
			mv.Name, mv.Email = u.DisplayName(), u.Email
		}
		v.MemberViews = append(v.MemberViews, mv)
	}
	return v
}

// ListMine returns the teams the user belongs to, newest first.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]*models.Team, error) {
	list, err := s.store.Teams.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list teams", err)
	}
	return list, nil
}

// ShareInvite emails the team's invite code. Recipients still join through Join.
func (s *Service) ShareInvite(ctx context.Context, teamID, leaderID uuid.UUID, emails []string) (int, error) {
	if len(emails) == 0 || len(emails) > maxInvites {
		return 0, apperr.ErrInvalidInput.With("provide between 1 and 10 email addresses")
	}
	t, err := s.store.Teams.GetByID(ctx, teamID)
	if err != nil {
		return 0, s.mapTeamErr(err, "load team")
	}
	switch {
	case t.LeaderID != leaderID:
		return 0, apperr.ErrNotLeader
	case t.IsFinalized:
		return 0, apperr.ErrAlreadyFinalized
	case t.Status == models.TeamCancelled:
		return 0, apperr.ErrTeamCancelled
	}
	ev, err := s.loadEvent(ctx, t.EventID)
	if err != nil {
		return 0, err
	}
	leader, err := s.store.Users.GetByID(ctx, leaderID)
	if err != nil {
		return 0, apperr.Internal("load leader", err)
	}
	ns := make([]notify.Notification, 0, len(emails))
	for _, to := range emails {
		to = strings.TrimSpace(to)
		if to == "" || strings.EqualFold(to, leader.Email) {
			continue
		}
		n := notify.Email(notify.KindTeamInvite, to, map[string]string{
			"leader_name": leader.DisplayName(),
			"team_name":   t.Name,
			"event_name":  ev.Name,
			"invite_code": t.InviteCode,
		})
		ns = append(ns, n.ForEvent(ev.ID, nil))
	}
	s.notifier.Dispatch(ns...)
	return len(ns), nil
}
