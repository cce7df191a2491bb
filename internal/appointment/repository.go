package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
)

// ScheduleRepository reads the doctor's recurring schedule, date overrides
// and verification state. It is read-only from this package's point of view.
type ScheduleRepository interface {
	GetSchedules(ctx context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error)
	GetAvailabilityOverrides(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]AvailabilityOverride, error)

	// IsDoctorVerified returns ErrDoctorNotFound for an unknown doctor.
	IsDoctorVerified(ctx context.Context, doctorID uuid.UUID) (bool, error)
}

// AppointmentRepository contains all appointment storage the service needs.
type AppointmentRepository interface {
	GetByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error)
	// GetByDoctorAndDate returns every appointment of the doctor on date,
	// whatever its status.
	GetByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// IsDoctorGenerallyAvailable is the doctor-wide on/off switch, independent
	// of the weekly schedule. Unknown doctors yield ErrDoctorNotFound.
	IsDoctorGenerallyAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, at Clock) (bool, error)

	// Add and Update return ErrSlotAlreadyBooked when another live
	// appointment holds the same doctor, date and time. Update only writes
	// while the stored status is still expected and otherwise returns
	// ErrStatusChanged.
	Add(ctx context.Context, a *Appointment) (*Appointment, error)
	Update(ctx context.Context, a *Appointment, expected AppointmentStatus) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
