package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusNoShow    AppointmentStatus = "No-show"
)

type MeetingMode string

const (
	MeetingModeUnspecified MeetingMode = ""
	MeetingModeOnline      MeetingMode = "Online"
	MeetingModeOffline     MeetingMode = "Offline"
)

type Doctor struct {
	ID                uuid.UUID
	Name              string
	Specialty         *string
	Verified          bool
	AcceptingBookings bool
}

// DoctorSchedule is the recurring working window for one weekday.
type DoctorSchedule struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	DayOfWeek           int // ISO: 1=Monday .. 7=Sunday
	IsWorking           bool
	StartTime           Clock
	EndTime             Clock
	SlotDurationMinutes int
}

func (s DoctorSchedule) SlotDuration() time.Duration {
	return time.Duration(s.SlotDurationMinutes) * time.Minute
}

// Contains reports whether c lies in [StartTime, EndTime).
func (s DoctorSchedule) Contains(c Clock) bool {
	return c >= s.StartTime && c < s.EndTime
}

// AvailabilityOverride replaces the recurring schedule for a single date.
type AvailabilityOverride struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time
	IsAvailable bool
	StartTime   *Clock
	EndTime     *Clock
	Reason      *string
}

// Window narrows the schedule window to the override's bounds. A missing
// bound keeps the schedule's.
func (o AvailabilityOverride) Window(s DoctorSchedule) (Clock, Clock) {
	start, end := s.StartTime, s.EndTime
	if o.StartTime != nil && *o.StartTime > start {
		start = *o.StartTime
	}
	if o.EndTime != nil && *o.EndTime < end {
		end = *o.EndTime
	}
	return start, end
}

func (o AvailabilityOverride) ReasonOr(fallback string) string {
	if o.Reason != nil && *o.Reason != "" {
		return *o.Reason
	}
	return fallback
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	FacilityID      *uuid.UUID
	Date            time.Time
	AppointmentTime Clock
	EndTime         Clock
	AppointmentType string
	Purpose         string
	Notes           string
	Status          AppointmentStatus
	MeetingMode     MeetingMode
	MeetingLink     *string
	CreatedBy       string
	ModifiedBy      string
	CreatedDate     time.Time
	ModifiedDate    time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.AppointmentTime)
}

// Overlaps reports whether the appointment intersects [start, end). An
// appointment without a later end occupies its start minute only.
func (a Appointment) Overlaps(start, end Clock) bool {
	aEnd := a.EndTime
	if aEnd <= a.AppointmentTime {
		aEnd = a.AppointmentTime.Add(time.Minute)
	}
	return a.AppointmentTime < end && start < aEnd
}

// TimeSlot is computed per request and never stored.
type TimeSlot struct {
	StartTime   Clock  `json:"start_time"`
	EndTime     Clock  `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
	Reason      string `json:"reason,omitempty"`
}

type DayAvailability struct {
	Date         time.Time  `json:"-"`
	DayOfWeek    int        `json:"day_of_week"`
	IsWorkingDay bool       `json:"is_working_day"`
	IsAvailable  bool       `json:"is_available"`
	Reason       string     `json:"reason,omitempty"`
	Slots        []TimeSlot `json:"slots"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
