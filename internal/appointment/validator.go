package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckBookingTime decides whether a booking may be placed for the doctor at
// date+at, evaluated now. It returns nil, a *ConflictError naming the failed
// rule, or an infrastructure error. Existing bookings are not consulted.
//
// Rules are checked in order and the first failure wins: past, the doctor's
// general availability, the weekly schedule, then the date override.
func (s *Service) CheckBookingTime(ctx context.Context, doctorID uuid.UUID, date time.Time, at Clock) error {
	date = CivilDate(date)

	if !At(date, at, s.cfg.Location).After(s.now()) {
		return conflict(ReasonInPast)
	}

	available, err := s.appointments.IsDoctorGenerallyAvailable(ctx, doctorID, date, at)
	if err != nil {
		return fmt.Errorf("check doctor availability: %w", err)
	}
	if !available {
		return conflict(ReasonDoctorUnavailable)
	}

	schedules, err := s.schedules.GetSchedules(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	sched := scheduleFor(schedules, ISOWeekday(date))
	if sched == nil || !sched.IsWorking {
		return conflict(ReasonNotWorkingDay)
	}
	if !sched.Contains(at) {
		return conflictf("%s (%s-%s)", ReasonOutsideWorkingHours, sched.StartTime, sched.EndTime)
	}

	overrides, err := s.schedules.GetAvailabilityOverrides(ctx, doctorID, date, date)
	if err != nil {
		return fmt.Errorf("load availability overrides: %w", err)
	}
	ov := overrideFor(overrides, date)
	if ov == nil {
		return nil
	}
	if !ov.IsAvailable {
		if ov.Reason != nil && *ov.Reason != "" {
			return conflictf("%s: %s", ReasonDayOff, *ov.Reason)
		}
		return conflict(ReasonDayOff)
	}
	if (ov.StartTime != nil && at < *ov.StartTime) || (ov.EndTime != nil && at >= *ov.EndTime) {
		start, end := ov.Window(*sched)
		return conflictf("%s (%s-%s)", ReasonOutsideOverrideHours, start, end)
	}

	return nil
}

// ValidateBookingTime is the boolean form of CheckBookingTime. Conflicts
// yield false; infrastructure errors are returned as is.
func (s *Service) ValidateBookingTime(ctx context.Context, doctorID uuid.UUID, date time.Time, at Clock) (bool, error) {
	err := s.CheckBookingTime(ctx, doctorID, date, at)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSchedulingConflict):
		return false, nil
	default:
		return false, err
	}
}
