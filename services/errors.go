package services

import "errors"

// Errors shared across services and the HTTP mapping layer. User-visible
// messages stay short and typed; anything not listed here is logged with
// full context and reported to the caller as an opaque internal error.
var (
	// Lookups
	ErrNotFound           = errors.New("requested resource not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTableNotFound      = errors.New("table not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrClubNotFound       = errors.New("club not found")

	// Validation and business rules
	ErrValidationFailed           = errors.New("validation failed")
	ErrTournamentNameRequired     = errors.New("tournament name is required")
	ErrTournamentInvalidCapacity  = errors.New("tournament capacity out of bounds")
	ErrTournamentStartTimeNeeded  = errors.New("tournament start time is required")
	ErrTournamentInvalidSchedule  = errors.New("invalid blind schedule")
	ErrNotEnoughPlayers           = errors.New("at least two confirmed players are required to start")
	ErrPasswordTooShort           = errors.New("password is too short")

	// State-machine guards
	ErrInvalidState       = errors.New("operation not allowed in current tournament state")
	ErrScheduleExhausted  = errors.New("blind schedule exhausted")
	ErrRegistrationClosed = errors.New("registration closed")
	ErrTournamentFull     = errors.New("tournament full")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrNotSeated          = errors.New("player is not seated at this table")

	// Concurrency
	ErrConflict = errors.New("concurrent update conflict, retry")

	// Authentication and authorization
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email address is already in use")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("operation not allowed for the current user")
	ErrNotClubMember      = errors.New("club membership required")

	// Collaborators
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)
