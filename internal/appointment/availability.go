package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	slotReasonBooked     = "Booked"
	dayReasonNotWorking  = "Not a working day"
	dayReasonUnavailable = "Unavailable"
	dayReasonNoHours     = "No working hours"
	dayReasonFullyBooked = "Fully booked"
)

// ResolveAvailability returns one entry per calendar day in [from, to].
func (s *Service) ResolveAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]DayAvailability, error) {
	from, to = CivilDate(from), CivilDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from date is after to date", ErrInvalidInput)
	}
	days := int(to.Sub(from)/(24*time.Hour)) + 1
	if s.cfg.MaxAvailabilityDays > 0 && days > s.cfg.MaxAvailabilityDays {
		return nil, fmt.Errorf("%w: at most %d days per request", ErrInvalidInput, s.cfg.MaxAvailabilityDays)
	}

	if _, err := s.schedules.IsDoctorVerified(ctx, doctorID); err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	schedules, err := s.schedules.GetSchedules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	overrides, err := s.schedules.GetAvailabilityOverrides(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load availability overrides: %w", err)
	}

	result := make([]DayAvailability, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		sched := scheduleFor(schedules, ISOWeekday(d))
		ov := overrideFor(overrides, d)

		var appts []Appointment
		if sched != nil && sched.IsWorking && (ov == nil || ov.IsAvailable) {
			appts, err = s.appointments.GetByDoctorAndDate(ctx, doctorID, d)
			if err != nil {
				return nil, fmt.Errorf("load appointments for %s: %w", d.Format(DateLayout), err)
			}
		}

		result = append(result, BuildDayAvailability(d, sched, ov, appts))
	}

	return result, nil
}

// BuildDayAvailability turns one day's schedule row, override and bookings
// into its slot list. It does no I/O.
//
// Slots step by the schedule's slot duration from the window start while the
// start is before the window end. When the duration does not divide the
// window, the last slot is kept and ends at the window end.
func BuildDayAvailability(date time.Time, sched *DoctorSchedule, ov *AvailabilityOverride, appts []Appointment) DayAvailability {
	date = CivilDate(date)
	day := DayAvailability{
		Date:      date,
		DayOfWeek: ISOWeekday(date),
		Slots:     []TimeSlot{},
	}

	if sched == nil || !sched.IsWorking || sched.SlotDurationMinutes <= 0 || sched.StartTime >= sched.EndTime {
		day.Reason = dayReasonNotWorking
		return day
	}
	day.IsWorkingDay = true

	if ov != nil && !ov.IsAvailable {
		reason := ov.ReasonOr(dayReasonUnavailable)
		day.Reason = reason
		day.Slots = walkSlots(sched.StartTime, sched.EndTime, sched.SlotDuration(), func(_, _ Clock) (bool, string) {
			return false, reason
		})
		return day
	}

	start, end := sched.StartTime, sched.EndTime
	if ov != nil {
		start, end = ov.Window(*sched)
	}
	if start >= end {
		day.Reason = dayReasonNoHours
		return day
	}

	live := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status.HoldsSlot() {
			live = append(live, a)
		}
	}

	day.Slots = walkSlots(start, end, sched.SlotDuration(), func(from, to Clock) (bool, string) {
		for _, a := range live {
			if a.Overlaps(from, to) {
				return false, slotReasonBooked
			}
		}
		return true, ""
	})

	for _, sl := range day.Slots {
		if sl.IsAvailable {
			day.IsAvailable = true
			break
		}
	}
	if !day.IsAvailable {
		day.Reason = dayReasonFullyBooked
	}

	return day
}

func walkSlots(start, end Clock, step time.Duration, status func(from, to Clock) (bool, string)) []TimeSlot {
	var slots []TimeSlot
	for t := start; t < end; t = t.Add(step) {
		slotEnd := t.Add(step)
		if slotEnd > end {
			slotEnd = end
		}
		ok, reason := status(t, slotEnd)
		slots = append(slots, TimeSlot{StartTime: t, EndTime: slotEnd, IsAvailable: ok, Reason: reason})
	}
	return slots
}

func scheduleFor(schedules []DoctorSchedule, weekday int) *DoctorSchedule {
	for i := range schedules {
		if schedules[i].DayOfWeek == weekday {
			return &schedules[i]
		}
	}
	return nil
}

func overrideFor(overrides []AvailabilityOverride, date time.Time) *AvailabilityOverride {
	date = CivilDate(date)
	for i := range overrides {
		if CivilDate(overrides[i].Date).Equal(date) {
			return &overrides[i]
		}
	}
	return nil
}
