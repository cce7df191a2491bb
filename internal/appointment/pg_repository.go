package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	pgUniqueViolation    = "23505"
	appointmentSlotIndex = "appointments_doctor_slot_uq"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgRepository implements ScheduleRepository and AppointmentRepository on
// PostgreSQL.
type PgRepository struct {
	db  DBTX
	loc *time.Location
}

// NewPgRepository returns a repository that interprets appointment dates and
// times in loc when comparing them with instants such as blackout windows.
func NewPgRepository(db DBTX, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{db: db, loc: loc}
}

// Helpers

func pgTime(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func clockFromPg(t pgtype.Time) Clock {
	return Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func optionalClock(t pgtype.Time) *Clock {
	if !t.Valid {
		return nil
	}
	c := clockFromPg(t)
	return &c
}

func isSlotTaken(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == appointmentSlotIndex
}

func scanSchedule(row pgx.Row) (*DoctorSchedule, error) {
	var s DoctorSchedule
	var start, end pgtype.Time

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.DayOfWeek,
		&s.IsWorking,
		&start,
		&end,
		&s.SlotDurationMinutes,
	)
	if err != nil {
		return nil, err
	}

	s.StartTime = clockFromPg(start)
	s.EndTime = clockFromPg(end)
	return &s, nil
}

func scanOverride(row pgx.Row) (*AvailabilityOverride, error) {
	var o AvailabilityOverride
	var start, end pgtype.Time
	var reason *string

	err := row.Scan(
		&o.ID,
		&o.DoctorID,
		&o.Date,
		&o.IsAvailable,
		&start,
		&end,
		&reason,
	)
	if err != nil {
		return nil, err
	}

	o.Date = CivilDate(o.Date)
	o.StartTime = optionalClock(start)
	o.EndTime = optionalClock(end)
	o.Reason = reason
	return &o, nil
}

const appointmentColumns = `
	id, patient_id, doctor_id, facility_id, appointment_date, appointment_time, end_time,
	appointment_type, purpose, notes, status, meeting_mode, meeting_link,
	created_by, modified_by, created_date, modified_date`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var doctorID, facilityID *uuid.UUID
	var start, end pgtype.Time
	var status, mode string
	var link *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&doctorID,
		&facilityID,
		&a.Date,
		&start,
		&end,
		&a.AppointmentType,
		&a.Purpose,
		&a.Notes,
		&status,
		&mode,
		&link,
		&a.CreatedBy,
		&a.ModifiedBy,
		&a.CreatedDate,
		&a.ModifiedDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if doctorID != nil {
		a.DoctorID = *doctorID
	}
	a.FacilityID = facilityID
	a.Date = CivilDate(a.Date)
	a.AppointmentTime = clockFromPg(start)
	a.EndTime = clockFromPg(end)
	a.Status = AppointmentStatus(status)
	a.MeetingMode = MeetingMode(mode)
	a.MeetingLink = link
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ScheduleRepository

func (r *PgRepository) GetSchedules(ctx context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, day_of_week, is_working, start_time, end_time, slot_duration_minutes
		FROM doctor_schedules
		WHERE doctor_id = $1 AND active
		ORDER BY day_of_week
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DoctorSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetAvailabilityOverrides(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]AvailabilityOverride, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, date, is_available, start_time, end_time, reason
		FROM doctor_availability_overrides
		WHERE doctor_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, doctorID, CivilDate(from), CivilDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}

	return result, rows.Err()
}

func (r *PgRepository) IsDoctorVerified(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	var verified bool
	err := r.db.QueryRow(ctx, `SELECT verified FROM doctors WHERE id = $1`, doctorID).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrDoctorNotFound
	}
	return verified, err
}

// AppointmentRepository

func (r *PgRepository) GetByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date BETWEEN $1 AND $2
		ORDER BY appointment_date, appointment_time
	`, CivilDate(from), CivilDate(to))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY appointment_time
	`, doctorID, CivilDate(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// IsDoctorGenerallyAvailable is false when the doctor has stopped accepting
// bookings or a blackout window covers the instant.
func (r *PgRepository) IsDoctorGenerallyAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, at Clock) (bool, error) {
	var available bool
	err := r.db.QueryRow(ctx, `
		SELECT d.accepting_bookings AND NOT EXISTS (
			SELECT 1 FROM doctor_blackouts b
			WHERE b.doctor_id = d.id AND b.starts_at <= $2 AND b.ends_at > $2
		)
		FROM doctors d
		WHERE d.id = $1
	`, doctorID, At(date, at, r.loc)).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrDoctorNotFound
	}
	return available, err
}

func (r *PgRepository) Add(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, facility_id, appointment_date, appointment_time, end_time,
			appointment_type, purpose, notes, status, meeting_mode, meeting_link,
			created_by, modified_by, created_date, modified_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			COALESCE($16, now()), COALESCE($17, now()))
		RETURNING `+appointmentColumns,
		id, a.PatientID, nullableUUID(a.DoctorID), a.FacilityID, CivilDate(a.Date), pgTime(a.AppointmentTime), pgTime(a.EndTime),
		a.AppointmentType, a.Purpose, a.Notes, string(a.Status), string(a.MeetingMode), a.MeetingLink,
		a.CreatedBy, a.ModifiedBy, nullableTime(a.CreatedDate), nullableTime(a.ModifiedDate),
	)

	created, err := scanAppointment(row)
	if err != nil {
		if isSlotTaken(err) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment, expected AppointmentStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET facility_id = $2,
		    appointment_date = $3,
		    appointment_time = $4,
		    end_time = $5,
		    appointment_type = $6,
		    purpose = $7,
		    notes = $8,
		    status = $9,
		    meeting_mode = $10,
		    meeting_link = $11,
		    modified_by = $12,
		    modified_date = COALESCE($13, now()),
		    doctor_id = $14
		WHERE id = $1 AND status = $15
	`, a.ID, a.FacilityID, CivilDate(a.Date), pgTime(a.AppointmentTime), pgTime(a.EndTime),
		a.AppointmentType, a.Purpose, a.Notes, string(a.Status), string(a.MeetingMode), a.MeetingLink,
		a.ModifiedBy, nullableTime(a.ModifiedDate), nullableUUID(a.DoctorID), string(expected))
	if err != nil {
		if isSlotTaken(err) {
			return ErrSlotAlreadyBooked
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check appointment: %w", err)
		}
		if exists {
			return ErrStatusChanged
		}
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
