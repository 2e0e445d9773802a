package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store"
	"github.com/Pmjarvis/felicity-ems/pkg/utils"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Service implements signup, login and account lookups.
type Service struct {
	users  store.Users
	jwt    *JWTService
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an auth service.
func NewService(users store.Users, jwt *JWTService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, jwt: jwt, logger: logger, now: time.Now}
}

// SignupInput is the body for POST /auth/register. Only participants sign up themselves.
type SignupInput struct {
	Email           string                 `json:"email" binding:"required,email"`
	Password        string                 `json:"password" binding:"required,min=6"`
	FirstName       string                 `json:"first_name" binding:"required"`
	LastName        string                 `json:"last_name" binding:"required"`
	ParticipantType models.ParticipantType `json:"participant_type" binding:"required"`
	CollegeName     string                 `json:"college_name"`
	ContactNumber   string                 `json:"contact_number"`
	Interests       []string               `json:"interests"`
}

// Session is a token together with the account it was issued for.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup creates a participant account and logs it in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	if len(in.Password) < MinPasswordLength {
		return nil, apperr.ErrInvalidInput.With("password must be at least 6 characters")
	}
	u := &models.User{
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Role:            models.RoleParticipant,
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		ParticipantType: in.ParticipantType,
		CollegeName:     strings.TrimSpace(in.CollegeName),
		ContactNumber:   strings.TrimSpace(in.ContactNumber),
		Interests:       in.Interests,
		IsActive:        true,
		IsApproved:      true,
	}
	if err := u.Validate(); err != nil {
		return nil, apperr.ErrInvalidInput.With(err.Error())
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	u.Password = hash
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, apperr.Wrap(err, "create user")
	}
	s.logger.Info("participant signed up", zap.String("user_id", u.ID.String()), zap.String("type", string(u.ParticipantType)))
	return s.session(u)
}

// Login checks the credentials and issues a token. Deactivated accounts are refused.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load user")
	}
	if !utils.CheckPassword(password, u.Password) {
		return nil, apperr.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, apperr.ErrAccountDisabled
	}
	at := s.now()
	if err := s.users.TouchLogin(ctx, u.ID, at); err != nil {
		s.logger.Warn("record last login failed", zap.String("user_id", u.ID.String()), zap.Error(err))
	} else {
		u.LastLogin = &at
	}
	return s.session(u)
}

func (s *Service) session(u *models.User) (*Session, error) {
	token, err := s.jwt.Generate(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, apperr.Internal("generate token", err)
	}
	return &Session{Token: token, User: u}, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load user")
	}
	return u, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.Me(ctx, id)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(current, u.Password) {
		return apperr.ErrInvalidCredentials.With("current password is incorrect")
	}
	if len(next) < MinPasswordLength {
		return apperr.ErrInvalidInput.With("password must be at least 6 characters")
	}
	hash, err := utils.HashPassword(next)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return apperr.Wrap(err, "update password")
	}
	s.logger.Info("password changed", zap.String("user_id", id.String()))
	return nil
}

// IsActive reports whether the account still exists and is active.
func (s *Service) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsActive, nil
}
