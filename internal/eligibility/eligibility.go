// Package eligibility decides whether a user may register individually for an event.
// It performs no I/O so the decision can be re-derived from plain values.
package eligibility

import (
	"time"

	"github.com/Pmjarvis/felicity-ems/internal/apperr"
	"github.com/Pmjarvis/felicity-ems/internal/models"
)

// Decision is the result of CanRegister. Reason is nil when OK is true.
type Decision struct {
	OK     bool
	Reason *apperr.Error
}

// Err returns the rejection as an error, or nil.
func (d Decision) Err() error {
	if d.OK {
		return nil
	}
	return d.Reason
}

func reject(reason *apperr.Error) Decision {
	return Decision{Reason: reason}
}

// CanRegister runs the registration checks in order and stops at the first failure:
// open status, deadline, capacity, eligibility class, team event, duplicate.
func CanRegister(e *models.Event, u *models.User, now time.Time, alreadyRegistered bool) Decision {
	if !e.IsOpen() {
		return reject(apperr.ErrNotOpen)
	}
	if now.After(e.RegistrationDeadline) {
		return reject(apperr.ErrDeadlinePassed)
	}
	if e.IsFull() {
		return reject(apperr.ErrLimitReached)
	}
	if !Matches(e.Eligibility, u.ParticipantType) {
		return reject(apperr.ErrNotEligible)
	}
	if e.IsTeamEvent {
		return reject(apperr.ErrUseTeamRegistration)
	}
	if alreadyRegistered {
		return reject(apperr.ErrAlreadyRegistered)
	}
	return Decision{OK: true}
}

// Matches reports whether a participant classification satisfies an eligibility class.
// An empty class is treated as All.
func Matches(class models.Eligibility, pt models.ParticipantType) bool {
	switch class {
	case models.EligibilityAll, "":
		return true
	case models.EligibilityIIIT:
		return pt == models.ParticipantIIIT
	case models.EligibilityNonIIIT:
		return pt == models.ParticipantNonIIIT
	}
	return false
}
