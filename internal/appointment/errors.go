package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrSchedulingConflict      = errors.New("scheduling conflict")
	ErrDoctorNotVerified       = errors.New("doctor is not verified to accept bookings")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidInput            = errors.New("invalid input")

	ErrSlotAlreadyBooked = &ConflictError{Reason: ReasonSlotBooked}

	// ErrStatusChanged means the appointment left the status it was read in
	// before the write landed.
	ErrStatusChanged = fmt.Errorf("%w: appointment status changed concurrently", ErrInvalidStatusTransition)
)

// Reasons carried by ConflictError. They are shown to end users.
const (
	ReasonInPast               = "appointment time is in the past"
	ReasonDoctorUnavailable    = "doctor is not available at this time"
	ReasonNotWorkingDay        = "doctor does not work on this day"
	ReasonOutsideWorkingHours  = "outside working hours"
	ReasonDayOff               = "doctor is unavailable on this date"
	ReasonOutsideOverrideHours = "outside the doctor's hours for this date"
	ReasonSlotBooked           = "slot already booked"
	ReasonOverlapsAppointment  = "overlaps another appointment"
	ReasonSlotBeingBooked      = "slot is currently being booked, please retry"
	ReasonEndsAfterMidnight    = "appointment would end after midnight"
)

// ConflictError is a scheduling conflict naming the rule that was violated.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "scheduling conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error {
	return ErrSchedulingConflict
}

func conflict(reason string) error {
	return &ConflictError{Reason: reason}
}

func conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictReason extracts the user facing reason from a conflict error.
func ConflictReason(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return err.Error()
}
