package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed input. It is always detected
	// before the store is touched.
	ErrValidation = errors.New("validation failed")

	// ErrSlotUnavailable is returned when a create or reschedule collides with
	// an existing appointment.
	ErrSlotUnavailable = errors.New("time slot is not available")

	// ErrOutOfHours is returned when a candidate falls outside the clinic's
	// operating window.
	ErrOutOfHours = errors.New("outside clinic operating hours")

	// ErrNotFound is returned when an appointment does not exist in the clinic.
	ErrNotFound = errors.New("appointment not found")

	// ErrResourceBusy is returned when the resource locks could not be taken
	// before the caller's deadline.
	ErrResourceBusy = errors.New("scheduling resources busy")
)

// SlotUnavailableError carries the appointments that blocked a write.
type SlotUnavailableError struct {
	Conflicts []*Appointment
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("%s: %d conflicting appointment(s)", ErrSlotUnavailable.Error(), len(e.Conflicts))
}

func (e *SlotUnavailableError) Unwrap() error {
	return ErrSlotUnavailable
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
