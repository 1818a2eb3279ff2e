package scheduling

import "errors"

var (
	// ErrInvalidState is returned when a lifecycle transition is requested
	// on an appointment whose status does not allow it.
	ErrInvalidState = errors.New("appointment is in a state that does not allow this operation")

	// ErrValidation covers malformed or missing request input.
	ErrValidation = errors.New("invalid request data")

	ErrSlotTaken    = errors.New("requested slot is already booked")
	ErrPastDate     = errors.New("date is in the past")
	ErrDateTooFar   = errors.New("date is beyond the booking horizon")
	ErrUnauthorized = errors.New("unauthorized")
)
