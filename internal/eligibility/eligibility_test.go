package eligibility

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openEvent() *models.Event {
	limit := 10
	return &models.Event{
		ID:                   uuid.New(),
		Type:                 models.EventTypeNormal,
		Status:               models.EventPublished,
		Eligibility:          models.EligibilityAll,
		RegistrationDeadline: now.Add(time.Hour),
		StartDate:            now.Add(2 * time.Hour),
		EndDate:              now.Add(3 * time.Hour),
		RegistrationLimit:    &limit,
		RegistrationCount:    3,
	}
}

func participant(pt models.ParticipantType) *models.User {
	return &models.User{ID: uuid.New(), Role: models.RoleParticipant, ParticipantType: pt}
}

func TestCanRegister(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(e *models.Event)
		user       *models.User
		registered bool
		want       *apperr.Error
	}{
		{name: "open event", user: participant(models.ParticipantIIIT)},
		{name: "ongoing is open", mutate: func(e *models.Event) { e.Status = models.EventOngoing }, user: participant(models.ParticipantIIIT)},
		{name: "draft", mutate: func(e *models.Event) { e.Status = models.EventDraft }, user: participant(models.ParticipantIIIT), want: apperr.ErrNotOpen},
		{name: "closed", mutate: func(e *models.Event) { e.Status = models.EventClosed }, user: participant(models.ParticipantIIIT), want: apperr.ErrNotOpen},
		{name: "deadline passed", mutate: func(e *models.Event) { e.RegistrationDeadline = now.Add(-time.Second) }, user: participant(models.ParticipantIIIT), want: apperr.ErrDeadlinePassed},
		{name: "deadline is inclusive", mutate: func(e *models.Event) { e.RegistrationDeadline = now }, user: participant(models.ParticipantIIIT)},
		{name: "limit reached", mutate: func(e *models.Event) { e.RegistrationCount = 10 }, user: participant(models.ParticipantIIIT), want: apperr.ErrLimitReached},
		{name: "no limit", mutate: func(e *models.Event) { e.RegistrationLimit = nil; e.RegistrationCount = 1000 }, user: participant(models.ParticipantIIIT)},
		{name: "iiit only rejects non-iiit", mutate: func(e *models.Event) { e.Eligibility = models.EligibilityIIIT }, user: participant(models.ParticipantNonIIIT), want: apperr.ErrNotEligible},
		{name: "non-iiit only rejects iiit", mutate: func(e *models.Event) { e.Eligibility = models.EligibilityNonIIIT }, user: participant(models.ParticipantIIIT), want: apperr.ErrNotEligible},
		{name: "iiit only accepts iiit", mutate: func(e *models.Event) { e.Eligibility = models.EligibilityIIIT }, user: participant(models.ParticipantIIIT)},
		{name: "team event", mutate: func(e *models.Event) { e.IsTeamEvent = true }, user: participant(models.ParticipantIIIT), want: apperr.ErrUseTeamRegistration},
		{name: "already registered", user: participant(models.ParticipantIIIT), registered: true, want: apperr.ErrAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := openEvent()
			if tt.mutate != nil {
				tt.mutate(e)
			}
			d := CanRegister(e, tt.user, now, tt.registered)
			if tt.want == nil {
				assert.True(t, d.OK)
				assert.NoError(t, d.Err())
				return
			}
			assert.False(t, d.OK)
			assert.Equal(t, tt.want.Code, d.Reason.Code)
			assert.ErrorIs(t, d.Err(), tt.want)
		})
	}
}

func TestCanRegister_ShortCircuitsInOrder(t *testing.T) {
	e := openEvent()
	e.Status = models.EventDraft
	e.RegistrationDeadline = now.Add(-time.Hour)
	e.RegistrationCount = 10
	e.IsTeamEvent = true

	d := CanRegister(e, participant(models.ParticipantNonIIIT), now, true)
	assert.Equal(t, apperr.ErrNotOpen.Code, d.Reason.Code)

	e.Status = models.EventPublished
	d = CanRegister(e, participant(models.ParticipantNonIIIT), now, true)
	assert.Equal(t, apperr.ErrDeadlinePassed.Code, d.Reason.Code)

	e.RegistrationDeadline = now.Add(time.Hour)
	d = CanRegister(e, participant(models.ParticipantNonIIIT), now, true)
	assert.Equal(t, apperr.ErrLimitReached.Code, d.Reason.Code)
}

func TestCanRegister_DoesNotMutate(t *testing.T) {
	e := openEvent()
	before := *e
	CanRegister(e, participant(models.ParticipantIIIT), now, false)
	assert.Equal(t, before, *e)
}
