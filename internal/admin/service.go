// Package admin provisions organizer accounts, reviews organizer password
// reset requests and reports platform totals.
package admin

import (
	"context"
	"errors"
	"sort"
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

// Service implements the admin operations and the organizer side of password resets.
type Service struct {
	store    *store.Store
	notifier *notify.Dispatcher
	logger   *zap.Logger
	now      func() time.Time
	password func() (string, error)
	hash     func(string) (string, error)
}

// NewService creates an admin service.
func NewService(st *store.Store, notifier *notify.Dispatcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		password: utils.GeneratePassword,
		hash:     utils.HashPassword,
	}
}

// CreateOrganizerInput is the body for POST /admin/organizers.
type CreateOrganizerInput struct {
	Email         string                   `json:"email" binding:"required,email"`
	OrganizerName string                   `json:"organizer_name" binding:"required"`
	Category      models.OrganizerCategory `json:"category" binding:"required"`
	Description   string                   `json:"description"`
	ContactEmail  string                   `json:"contact_email"`
	ContactNumber string                   `json:"contact_number"`
}

// Provisioned is a new organizer with its generated password. The password is only ever returned here.
type Provisioned struct {
	Organizer models.UserPublic `json:"organizer"`
	Password  string            `json:"password"`
}

// CreateOrganizer provisions an active, approved organizer account with a generated password
// and emails the credentials to the login address.
func (s *Service) CreateOrganizer(ctx context.Context, in CreateOrganizerInput) (*Provisioned, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	contact := strings.ToLower(strings.TrimSpace(in.ContactEmail))
	if contact == "" {
		contact = email
	}
	u := &models.User{
		Email:         email,
		Role:          models.RoleOrganizer,
		OrganizerName: strings.TrimSpace(in.OrganizerName),
		Category:      in.Category,
		Description:   strings.TrimSpace(in.Description),
		ContactEmail:  contact,
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		IsActive:      true,
		IsApproved:    true,
	}
	if err := u.Validate(); err != nil {
		return nil, apperr.ErrInvalidInput.With(err.Error())
	}
	plain, err := s.password()
	if err != nil {
		return nil, apperr.Internal("generate password", err)
	}
	if u.Password, err = s.hash(plain); err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	if err := s.store.Users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, apperr.Wrap(err, "create organizer")
	}
	s.logger.Info("organizer created", zap.String("organizer_id", u.ID.String()), zap.String("name", u.OrganizerName))
	s.notifier.Dispatch(notify.Email(notify.KindOrganizerWelcome, u.Email, map[string]string{
		"organizer_name": u.OrganizerName,
		"email":          u.Email,
		"password":       plain,
	}))
	return &Provisioned{Organizer: u.ToPublic(), Password: plain}, nil
}

// OrganizerSummary is an organizer row of the admin listing.
type OrganizerSummary struct {
	models.UserPublic
	EventCount int        `json:"event_count"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

// ListOrganizers returns every organizer, active or not, newest first, with its event count.
func (s *Service) ListOrganizers(ctx context.Context) ([]OrganizerSummary, error) {
	orgs, err := s.store.Users.ListByRole(ctx, models.RoleOrganizer)
	if err != nil {
		return nil, apperr.Wrap(err, "list organizers")
	}
	counts, err := s.store.Events.CountByOrganizer(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "count events")
	}
	list := make([]OrganizerSummary, 0, len(orgs))
	for _, o := range orgs {
		list = append(list, OrganizerSummary{UserPublic: o.ToPublic(), EventCount: counts[o.ID], LastLogin: o.LastLogin})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// SetOrganizerActive deactivates or reactivates an organizer. Deactivated organizers
// cannot log in and disappear from the club directory; their events are kept.
func (s *Service) SetOrganizerActive(ctx context.Context, id uuid.UUID, active bool) (*models.UserPublic, error) {
	u, err := s.organizer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users.SetActive(ctx, id, active); err != nil {
		return nil, apperr.Wrap(err, "update organizer")
	}
	u.IsActive = active
	s.logger.Info("organizer active flag changed", zap.String("organizer_id", id.String()), zap.Bool("active", active))
	pub := u.ToPublic()
	return &pub, nil
}

func (s *Service) organizer(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.Users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUserNotFound.With("organizer not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load organizer")
	}
	if u.Role != models.RoleOrganizer {
		return nil, apperr.ErrUserNotFound.With("organizer not found")
	}
	return u, nil
}

// RequestReset files a password reset request for an organizer. Only one may be pending at a time.
func (s *Service) RequestReset(ctx context.Context, organizerID uuid.UUID, reason string) (*models.PasswordResetRequest, error) {
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < models.MinResetReasonLength {
		return nil, apperr.ErrInvalidInput.With("reason must be at least 10 characters")
	}
	if _, err := s.organizer(ctx, organizerID); err != nil {
		return nil, err
	}
	req := &models.PasswordResetRequest{OrganizerID: organizerID, Reason: reason, Status: models.ResetPending}
	if err := s.store.PasswordResets.Create(ctx, req); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.ErrResetPending
		}
		return nil, apperr.Wrap(err, "create reset request")
	}
	s.logger.Info("password reset requested", zap.String("organizer_id", organizerID.String()))
	return req, nil
}

// MyResets lists an organizer's own reset requests, newest first.
func (s *Service) MyResets(ctx context.Context, organizerID uuid.UUID) ([]*models.PasswordResetRequest, error) {
	list, err := s.store.PasswordResets.ListByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, apperr.Wrap(err, "list reset requests")
	}
	return list, nil
}

// ResetView is a reset request joined with its organizer.
type ResetView struct {
	*models.PasswordResetRequest
	OrganizerName  string `json:"organizer_name"`
	OrganizerEmail string `json:"organizer_email"`
}

// ListResets lists reset requests, optionally narrowed by status, newest first.
func (s *Service) ListResets(ctx context.Context, status models.ResetStatus) ([]ResetView, error) {
	list, err := s.store.PasswordResets.List(ctx, status)
	if err != nil {
		return nil, apperr.Wrap(err, "list reset requests")
	}
	out := make([]ResetView, 0, len(list))
	for _, r := range list {
		v := ResetView{PasswordResetRequest: r}
		if u, err := s.store.Users.GetByID(ctx, r.OrganizerID); err == nil {
			v.OrganizerName, v.OrganizerEmail = u.DisplayName(), u.Email
		}
		out = append(out, v)
	}
	return out, nil
}

// ReviewInput is an admin decision on a reset request.
type ReviewInput struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment"`
}

// ReviewReset approves or rejects a pending request. Approval sets a newly generated password;
// either outcome is emailed to the organizer.
func (s *Service) ReviewReset(ctx context.Context, id uuid.UUID, adminID uuid.UUID, in ReviewInput) (*models.PasswordResetRequest, error) {
	var plain, hashed string
	if in.Approve {
		var err error
		if plain, err = s.password(); err != nil {
			return nil, apperr.Internal("generate password", err)
		}
		if hashed, err = s.hash(plain); err != nil {
			return nil, apperr.Internal("hash password", err)
		}
	}
	at := s.now()
	req, err := s.store.PasswordResets.Review(ctx, id, func(r *models.PasswordResetRequest) error {
		if r.Status != models.ResetPending {
			return apperr.ErrResetAlreadyHandled
		}
		r.Status = models.ResetRejected
		if in.Approve {
			r.Status = models.ResetApproved
		}
		r.AdminComment = strings.TrimSpace(in.Comment)
		r.ReviewedBy = &adminID
		r.ReviewedAt = &at
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrResetNotFound
		}
		return nil, apperr.Wrap(err, "review reset request")
	}
	if in.Approve {
		if err := s.store.Users.UpdatePassword(ctx, req.OrganizerID, hashed); err != nil {
			return nil, apperr.Wrap(err, "update password")
		}
	}
	s.logger.Info("password reset reviewed",
		zap.String("request_id", id.String()),
		zap.String("status", string(req.Status)),
		zap.String("admin_id", adminID.String()),
	)
	if u, err := s.store.Users.GetByID(ctx, req.OrganizerID); err == nil {
		s.notifier.Dispatch(notify.Email(notify.KindPasswordReset, u.Email, map[string]string{
			"status":   strings.ToLower(string(req.Status)),
			"password": plain,
			"comment":  req.AdminComment,
		}))
	}
	return req, nil
}

// Stats are the platform-wide totals for the admin dashboard.
type Stats struct {
	Users               map[models.Role]int        `json:"users"`
	Events              map[models.EventStatus]int `json:"events"`
	TotalEvents         int                        `json:"total_events"`
	ActiveRegistrations int                        `json:"active_registrations"`
	PendingResets       int                        `json:"pending_resets"`
}

// Stats returns user counts per role, event counts per status and the number of active registrations.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.store.Users.CountByRole(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "count users")
	}
	events, err := s.store.Events.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "count events")
	}
	regs, err := s.store.Registrations.CountActive(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "count registrations")
	}
	pending, err := s.store.PasswordResets.List(ctx, models.ResetPending)
	if err != nil {
		return nil, apperr.Wrap(err, "list reset requests")
	}
	st := &Stats{Users: users, Events: events, ActiveRegistrations: regs, PendingResets: len(pending)}
	for _, n := range events {
		st.TotalEvents += n
	}
	return st, nil
}

// EnsureAdmin creates the admin account on startup unless a user with that email already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.store.Users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	hashed, err := s.hash(password)
	if err != nil {
		return err
	}
	u := &models.User{Email: email, Password: hashed, Role: models.RoleAdmin, FirstName: "Platform", LastName: "Admin",
		IsActive: true, IsApproved: true}
	if err := s.store.Users.Create(ctx, u); err != nil && !errors.Is(err, store.ErrDuplicateEmail) {
		return err
	}
	s.logger.Info("admin account seeded", zap.String("email", email))
	return nil
}
