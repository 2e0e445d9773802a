// Package clubs serves the organizer directory, participant follows and the
// self-service profile of participants and organizers.
package clubs

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
)

// webhookRegex matches Discord incoming webhook URLs.
var webhookRegex = regexp.MustCompile(`^https://(discord\.com|discordapp\.com)/api/webhooks/\d+/[\w-]+$`)

const maxInterests = 20

// Service implements the club directory and profile operations.
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService creates a clubs service.
func NewService(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// Club is the directory entry of an organizer.
type Club struct {
	models.UserPublic
	Followed bool `json:"followed"`
}

// Detail is an organizer with its upcoming and running events.
type Detail struct {
	Club
	Events     []*models.Event `json:"events"`
	EventCount int             `json:"event_count"`
}

// List returns active organizers sorted by name, optionally narrowed to one category.
// viewer marks the clubs the caller follows; pass nil for anonymous callers.
func (s *Service) List(ctx context.Context, category models.OrganizerCategory, viewer *models.Actor) ([]Club, error) {
	orgs, err := s.store.Users.ListByRole(ctx, models.RoleOrganizer)
	if err != nil {
		return nil, apperr.Wrap(err, "list organizers")
	}
	follower := s.follower(ctx, viewer)
	clubs := make([]Club, 0, len(orgs))
	for _, o := range orgs {
		if !o.IsActive || (category != "" && o.Category != category) {
			continue
		}
		clubs = append(clubs, Club{UserPublic: o.ToPublic(), Followed: follower != nil && follower.Follows(o.ID)})
	}
	sort.Slice(clubs, func(i, j int) bool {
		return strings.ToLower(clubs[i].Name) < strings.ToLower(clubs[j].Name)
	})
	return clubs, nil
}

// Get returns an active organizer with its Published and Ongoing events.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewer *models.Actor) (*Detail, error) {
	org, err := s.activeOrganizer(ctx, id)
	if err != nil {
		return nil, err
	}
	evs, err := s.store.Events.List(ctx, models.EventFilter{
		OrganizerIDs: []uuid.UUID{id},
		Statuses:     []models.EventStatus{models.EventPublished, models.EventOngoing},
	})
	if err != nil {
		return nil, apperr.Wrap(err, "list events")
	}
	if evs == nil {
		evs = []*models.Event{}
	}
	follower := s.follower(ctx, viewer)
	return &Detail{
		Club:       Club{UserPublic: org.ToPublic(), Followed: follower != nil && follower.Follows(id)},
		Events:     evs,
		EventCount: len(evs),
	}, nil
}

func (s *Service) follower(ctx context.Context, viewer *models.Actor) *models.User {
	if viewer == nil || viewer.Role != models.RoleParticipant {
		return nil
	}
	u, err := s.store.Users.GetByID(ctx, viewer.ID)
	if err != nil {
		return nil
	}
	return u
}

func (s *Service) activeOrganizer(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.Users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUserNotFound.With("organizer not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load organizer")
	}
	if u.Role != models.RoleOrganizer || !u.IsActive {
		return nil, apperr.ErrUserNotFound.With("organizer not found")
	}
	return u, nil
}

// Follow adds an active organizer to the participant's followed clubs. Following twice is a no-op.
func (s *Service) Follow(ctx context.Context, userID, organizerID uuid.UUID) error {
	if _, err := s.activeOrganizer(ctx, organizerID); err != nil {
		return err
	}
	if err := s.store.Users.Follow(ctx, userID, organizerID); err != nil {
		return mapUserErr(err)
	}
	return nil
}

// Unfollow removes an organizer from the participant's followed clubs.
func (s *Service) Unfollow(ctx context.Context, userID, organizerID uuid.UUID) error {
	if err := s.store.Users.Unfollow(ctx, userID, organizerID); err != nil {
		return mapUserErr(err)
	}
	return nil
}

// Following lists the organizers the participant follows that are still active.
func (s *Service) Following(ctx context.Context, userID uuid.UUID) ([]Club, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	clubs := make([]Club, 0, len(u.FollowedClubs))
	for _, id := range u.FollowedClubs {
		org, err := s.store.Users.GetByID(ctx, id)
		if err != nil || !org.IsActive {
			continue
		}
		clubs = append(clubs, Club{UserPublic: org.ToPublic(), Followed: true})
	}
	return clubs, nil
}

func mapUserErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	return apperr.Wrap(err, "update user")
}

// Profile returns the caller's own account, including fields hidden from other users.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return newProfile(u), nil
}

// Profile is a user's self view. The Discord webhook is only ever shown to its organizer.
type Profile struct {
	*models.User
	DiscordWebhook string `json:"discord_webhook,omitempty"`
}

func newProfile(u *models.User) *Profile {
	return &Profile{User: u, DiscordWebhook: u.DiscordWebhook}
}

// ProfilePatch holds the editable profile fields. Nil fields are left unchanged;
// fields of the other role are ignored. Email, role and participant type never change here.
type ProfilePatch struct {
	FirstName     *string  `json:"first_name"`
	LastName      *string  `json:"last_name"`
	CollegeName   *string  `json:"college_name"`
	ContactNumber *string  `json:"contact_number"`
	Interests     []string `json:"interests"`

	OrganizerName  *string                   `json:"organizer_name"`
	Category       *models.OrganizerCategory `json:"category"`
	Description    *string                   `json:"description"`
	ContactEmail   *string                   `json:"contact_email"`
	DiscordWebhook *string                   `json:"discord_webhook"`
}

// UpdateProfile applies patch to the caller's account.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*Profile, error) {
	u, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&u.ContactNumber, patch.ContactNumber)
	switch u.Role {
	case models.RoleParticipant:
		set(&u.FirstName, patch.FirstName)
		set(&u.LastName, patch.LastName)
		set(&u.CollegeName, patch.CollegeName)
		if patch.Interests != nil {
			u.Interests = cleanInterests(patch.Interests)
		}
	case models.RoleOrganizer:
		set(&u.OrganizerName, patch.OrganizerName)
		set(&u.Description, patch.Description)
		if patch.ContactEmail != nil {
			u.ContactEmail = strings.ToLower(strings.TrimSpace(*patch.ContactEmail))
		}
		if patch.Category != nil {
			u.Category = *patch.Category
		}
		if patch.DiscordWebhook != nil {
			hook := strings.TrimSpace(*patch.DiscordWebhook)
			if hook != "" && !webhookRegex.MatchString(hook) {
				return nil, apperr.ErrInvalidInput.With("discord_webhook must be a Discord webhook URL")
			}
			u.DiscordWebhook = hook
		}
	}
	if len(u.Interests) > maxInterests {
		return nil, apperr.ErrInvalidInput.With("at most 20 interests")
	}
	if err := u.Validate(); err != nil {
		return nil, apperr.ErrInvalidInput.With(err.Error())
	}
	if err := s.store.Users.Update(ctx, u); err != nil {
		return nil, mapUserErr(err)
	}
	s.logger.Info("profile updated", zap.String("user_id", userID.String()), zap.String("role", string(u.Role)))
	return s.Profile(ctx, userID)
}

func cleanInterests(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// EventStats is one event's line in the organizer dashboard.
type EventStats struct {
	EventID       uuid.UUID          `json:"event_id"`
	Name          string             `json:"name"`
	Status        models.EventStatus `json:"status"`
	Registrations int                `json:"registrations"`
	Attended      int                `json:"attended"`
	Revenue       int                `json:"revenue"`
}

// Stats is the organizer dashboard summary.
type Stats struct {
	TotalEvents        int          `json:"total_events"`
	TotalRegistrations int          `json:"total_registrations"`
	TotalAttendance    int          `json:"total_attendance"`
	TotalRevenue       int          `json:"total_revenue"`
	AttendanceRate     float64      `json:"attendance_rate"`
	Events             []EventStats `json:"events"`
}

// Stats summarizes an organizer's events. Revenue counts completed payments of active registrations.
func (s *Service) Stats(ctx context.Context, organizerID uuid.UUID) (*Stats, error) {
	evs, err := s.store.Events.List(ctx, models.EventFilter{OrganizerIDs: []uuid.UUID{organizerID}})
	if err != nil {
		return nil, apperr.Wrap(err, "list events")
	}
	st := &Stats{TotalEvents: len(evs), Events: make([]EventStats, 0, len(evs))}
	for _, e := range evs {
		regs, err := s.store.Registrations.ListByEvent(ctx, e.ID, models.RegistrationFilter{})
		if err != nil {
			return nil, apperr.Wrap(err, "list registrations")
		}
		line := EventStats{EventID: e.ID, Name: e.Name, Status: e.Status}
		for _, r := range regs {
			if !r.IsActive() {
				continue
			}
			line.Registrations++
			if r.Attendance.Marked {
				line.Attended++
			}
			if r.Payment.Status == models.PaymentCompleted {
				line.Revenue += r.Payment.Amount
			}
		}
		st.TotalRegistrations += line.Registrations
		st.TotalAttendance += line.Attended
		st.TotalRevenue += line.Revenue
		st.Events = append(st.Events, line)
	}
	if st.TotalRegistrations > 0 {
		st.AttendanceRate = math.Round(float64(st.TotalAttendance)/float64(st.TotalRegistrations)*10000) / 100
	}
	return st, nil
}
