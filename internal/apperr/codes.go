package apperr

// Codes shared across services. Messages are the user-facing defaults.
var (
	ErrInvalidInput = Validation("InvalidInput", "invalid input")

	// eligibility
	ErrNotOpen             = State("NotOpen", "event is not open for registration")
	ErrDeadlinePassed      = State("DeadlinePassed", "registration deadline has passed")
	ErrLimitReached        = Conflict("LimitReached", "registration limit reached")
	ErrNotEligible         = Forbidden("NotEligible", "you are not eligible for this event")
	ErrUseTeamRegistration = State("UseTeamRegistration", "this is a team event, register through a team")
	ErrAlreadyRegistered   = Conflict("AlreadyRegistered", "already registered for this event")

	// registration
	ErrInsufficientStock     = Conflict("InsufficientStock", "insufficient stock")
	ErrPurchaseLimitExceeded = Validation("PurchaseLimitExceeded", "requested quantity exceeds purchase limit")
	ErrInvalidSelection      = Validation("InvalidSelection", "invalid merchandise selection")
	ErrMissingFormField      = Validation("MissingFormField", "a required form field is missing")
	ErrRegistrationNotFound  = NotFound("RegistrationNotFound", "registration not found")
	ErrNotRegistrationOwner  = Forbidden("NotRegistrationOwner", "not your registration")
	ErrCannotCancel          = State("CannotCancel", "registration cannot be cancelled in its current status")
	ErrNoPaymentDue          = State("NoPaymentDue", "registration has no payment to review")
	ErrStorageConflict       = Conflict("StorageConflict", "concurrent update detected, please retry")

	// teams
	ErrNotTeamEvent        = Validation("NotTeamEvent", "event is not a team event")
	ErrRegistrationClosed  = State("RegistrationClosed", "event registration is closed")
	ErrTeamFull            = Conflict("TeamFull", "team is full")
	ErrAlreadyInTeam       = Conflict("AlreadyInTeam", "already a member of this team")
	ErrAlreadyInOtherTeam  = Conflict("AlreadyInOtherTeam", "already in a team for this event")
	ErrNotLeader           = Forbidden("NotLeader", "only the team leader can do this")
	ErrAlreadyFinalized    = Conflict("AlreadyFinalized", "team is already finalized")
	ErrBelowMinimumSize    = State("BelowMinimumSize", "team is below the minimum size")
	ErrTeamNotFound        = NotFound("TeamNotFound", "team not found")
	ErrInviteCodeNotFound  = NotFound("InviteCodeNotFound", "invalid invite code")
	ErrMemberNotFound      = NotFound("MemberNotFound", "member not found in team")
	ErrCannotRemoveLeader  = Validation("CannotRemoveLeader", "the leader cannot be removed")
	ErrNotTeamMember       = Forbidden("NotTeamMember", "not a member of this team")
	ErrTeamCancelled       = State("TeamCancelled", "team has been cancelled")

	// events
	ErrEventNotFound         = NotFound("EventNotFound", "event not found")
	ErrNotEventOwner         = Forbidden("NotEventOwner", "not the organizer of this event")
	ErrFormLocked            = State("FormLocked", "custom form is locked after the first registration")
	ErrCannotDeletePublished = State("CannotDeletePublished", "only draft events can be deleted")
	ErrInvalidDates          = Validation("InvalidDates", "dates must satisfy deadline <= start <= end")
	ErrInvalidTeamSize       = Validation("InvalidTeamSize", "team events need 1 <= min team size <= max team size")
	ErrLimitBelowCount       = Validation("LimitBelowCount", "registration limit is below current registrations")
	ErrFieldNotEditable      = State("FieldNotEditable", "field cannot be changed in the event's current status")

	// tickets
	ErrTicketNotFound = NotFound("TicketNotFound", "ticket not found")
	ErrWrongEvent     = Validation("WrongEvent", "ticket belongs to a different event")
	ErrInvalidStatus  = State("InvalidStatus", "registration status does not allow attendance")
	ErrAlreadyScanned = State("AlreadyScanned", "ticket has already been scanned")

	// users
	ErrUserNotFound        = NotFound("UserNotFound", "user not found")
	ErrEmailTaken          = Conflict("EmailTaken", "email already registered")
	ErrInvalidCredentials  = Validation("InvalidCredentials", "invalid email or password")
	ErrAccountDisabled     = Forbidden("AccountDisabled", "account is disabled")
	ErrForbiddenRole       = Forbidden("ForbiddenRole", "insufficient permissions")
	ErrResetPending        = Conflict("ResetPending", "a password reset request is already pending")
	ErrResetNotFound       = NotFound("ResetNotFound", "password reset request not found")
	ErrResetAlreadyHandled = State("ResetAlreadyHandled", "password reset request already reviewed")

	// messages
	ErrMessageNotFound = NotFound("MessageNotFound", "message not found")
	ErrChatForbidden   = Forbidden("ChatForbidden", "not allowed in this event's chat")
)

// With returns a copy of e with a more specific message.
func (e *Error) With(message string) *Error {
	c := *e
	c.Message = message
	return &c
}
