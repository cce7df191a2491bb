package appointment

import "fmt"

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown appointment status %q", ErrInvalidInput, s)
	}
	return st, nil
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// HoldsSlot reports whether an appointment in this status still occupies
// its doctor slot.
func (s AppointmentStatus) HoldsSlot() bool {
	return s != StatusCancelled && s != StatusNoShow
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	return nil
}
