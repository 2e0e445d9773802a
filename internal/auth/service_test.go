package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
	"github.com/Pmjarvis/felicity-ems/internal/store/memory"
)

func newService() *Service {
	return NewService(memory.New().Users, NewJWTService("test-secret", 1), nil)
}

func signupInput(email string) SignupInput {
	return SignupInput{Email: email, Password: "hunter22", FirstName: "Ravi", LastName: "K",
		ParticipantType: models.ParticipantIIIT, Interests: []string{"music"}}
}

func TestSignupAndLogin(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	sess, err := svc.Signup(ctx, signupInput("Ravi@Students.Example.com"))
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, models.RoleParticipant, sess.User.Role)
	assert.Equal(t, "ravi@students.example.com", sess.User.Email)

	claims, err := svc.jwt.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)

	_, err = svc.Signup(ctx, signupInput("ravi@students.example.com"))
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)

	bad := signupInput("x@students.example.com")
	bad.ParticipantType = "Alumni"
	_, err = svc.Signup(ctx, bad)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	login, err := svc.Login(ctx, "RAVI@students.example.com", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, login.User.LastLogin)

	_, err = svc.Login(ctx, "ravi@students.example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@students.example.com", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	me, err := svc.Me(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"music"}, me.Interests)
	_, err = svc.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestLogin_DisabledAccount(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sess, err := svc.Signup(ctx, signupInput("gone@students.example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.users.SetActive(ctx, sess.User.ID, false))

	_, err = svc.Login(ctx, "gone@students.example.com", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrAccountDisabled)

	active, err := svc.IsActive(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.False(t, active)
	active, err = svc.IsActive(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, active)
}

func TestChangePassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sess, err := svc.Signup(ctx, signupInput("pw@students.example.com"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, sess.User.ID, "wrong", "newpass1"), apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, svc.ChangePassword(ctx, sess.User.ID, "hunter22", "short"), apperr.ErrInvalidInput)
	require.NoError(t, svc.ChangePassword(ctx, sess.User.ID, "hunter22", "newpass1"))

	_, err = svc.Login(ctx, "pw@students.example.com", "hunter22")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "pw@students.example.com", "newpass1")
	assert.NoError(t, err)
}
