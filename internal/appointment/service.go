package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
	redisclient "github.com/zaming3007/swp391-HIVSystem-sub004/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

const (
	defaultAppointmentDuration = 30 * time.Minute
	noShowLookbackDays         = 7
)

type Service struct {
	schedules    ScheduleRepository
	appointments AppointmentRepository
	locker       redisclient.Locker
	links        MeetingLinkProvider
	cfg          config.Config
	log          zerolog.Logger
	now          func() time.Time
}

func NewService(
	schedules ScheduleRepository,
	appointments AppointmentRepository,
	locker redisclient.Locker,
	links MeetingLinkProvider,
	cfg config.Config,
	log zerolog.Logger,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AppointmentDuration <= 0 {
		cfg.AppointmentDuration = defaultAppointmentDuration
	}
	if links == nil {
		links = StaticMeetingLink(cfg.MeetingLinkURL)
	}
	return &Service{
		schedules:    schedules,
		appointments: appointments,
		locker:       locker,
		links:        links,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

type CreateAppointmentInput struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	FacilityID      *uuid.UUID
	Date            time.Time
	Time            Clock
	Duration        time.Duration // zero means the configured default
	AppointmentType string
	Purpose         string
	Notes           string
	MeetingMode     MeetingMode // unspecified means detect from Purpose
	CreatedBy       string
}

// UpdateAppointmentInput carries a partial update. Nil fields are left alone.
type UpdateAppointmentInput struct {
	DoctorID        *uuid.UUID
	Date            *time.Time
	Time            *Clock
	Status          *AppointmentStatus
	FacilityID      *uuid.UUID
	AppointmentType *string
	Purpose         *string
	Notes           *string
	MeetingMode     *MeetingMode
	ModifiedBy      string
}

// CreateAppointment books the doctor at in.Date/in.Time. The booking rules
// are checked first, then the slot is re-checked and inserted under the
// doctor slot lock.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil || in.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient and doctor are required", ErrInvalidInput)
	}
	if !validMode(in.MeetingMode) {
		return nil, fmt.Errorf("%w: unknown meeting mode %q", ErrInvalidInput, in.MeetingMode)
	}

	date := CivilDate(in.Date)
	if err := s.CheckBookingTime(ctx, in.DoctorID, date, in.Time); err != nil {
		return nil, err
	}

	verified, err := s.schedules.IsDoctorVerified(ctx, in.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !verified {
		return nil, ErrDoctorNotVerified
	}

	duration := in.Duration
	if duration <= 0 {
		duration = s.cfg.AppointmentDuration
	}
	end, err := endOf(in.Time, duration)
	if err != nil {
		return nil, err
	}

	now := s.now()
	appt := &Appointment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		FacilityID:      in.FacilityID,
		Date:            date,
		AppointmentTime: in.Time,
		EndTime:         end,
		AppointmentType: in.AppointmentType,
		Purpose:         in.Purpose,
		Notes:           in.Notes,
		Status:          StatusScheduled,
		CreatedBy:       in.CreatedBy,
		ModifiedBy:      in.CreatedBy,
		CreatedDate:     now,
		ModifiedDate:    now,
	}

	mode := in.MeetingMode
	if mode == MeetingModeUnspecified {
		mode = DetectMeetingMode(in.Purpose)
	}
	if err := s.applyMeetingMode(ctx, appt, mode); err != nil {
		return nil, fmt.Errorf("meeting link: %w", err)
	}

	var created *Appointment
	err = s.withSlotLock(ctx, in.DoctorID, date, in.Time, func(lockCtx context.Context) error {
		if err := s.ensureSlotFree(lockCtx, in.DoctorID, date, in.Time, end, uuid.Nil); err != nil {
			return err
		}
		added, err := s.appointments.Add(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = added
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":    created.DoctorID.String(),
		"patient_id":   created.PatientID.String(),
		"date":         created.Date.Format(DateLayout),
		"time":         created.AppointmentTime.String(),
		"meeting_mode": created.MeetingMode,
	})

	return created, nil
}

// UpdateAppointment applies a partial update. A new doctor, date or time is
// treated as a reschedule and goes through the same checks as a new booking,
// keeping the appointment's duration. Appointments without a doctor skip the
// booking checks.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in UpdateAppointmentInput) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	prev := appt.Status
	var changed []string

	if in.Status != nil && *in.Status != appt.Status {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown appointment status %q", ErrInvalidInput, *in.Status)
		}
		if err := checkTransition(appt.Status, *in.Status); err != nil {
			return nil, err
		}
	}

	newDoctor, newDate, newTime := appt.DoctorID, appt.Date, appt.AppointmentTime
	if in.DoctorID != nil {
		newDoctor = *in.DoctorID
	}
	if in.Date != nil {
		newDate = CivilDate(*in.Date)
	}
	if in.Time != nil {
		newTime = *in.Time
	}
	reschedule := newDoctor != appt.DoctorID ||
		!newDate.Equal(CivilDate(appt.Date)) ||
		newTime != appt.AppointmentTime
	bookable := reschedule && newDoctor != uuid.Nil

	if reschedule {
		if appt.Status != StatusScheduled || (in.Status != nil && *in.Status != StatusScheduled) {
			return nil, fmt.Errorf("%w: only scheduled appointments can be rescheduled", ErrInvalidStatusTransition)
		}
		if bookable {
			if err := s.CheckBookingTime(ctx, newDoctor, newDate, newTime); err != nil {
				return nil, err
			}
		}
		if newDoctor != appt.DoctorID {
			if newDoctor != uuid.Nil {
				verified, err := s.schedules.IsDoctorVerified(ctx, newDoctor)
				if err != nil {
					return nil, fmt.Errorf("load doctor: %w", err)
				}
				if !verified {
					return nil, ErrDoctorNotVerified
				}
			}
			changed = append(changed, "doctor_id")
		}
		end, err := endOf(newTime, appt.Duration())
		if err != nil {
			return nil, err
		}
		appt.DoctorID, appt.Date, appt.AppointmentTime, appt.EndTime = newDoctor, newDate, newTime, end
		changed = append(changed, "date", "time")
	}

	if in.Status != nil && *in.Status != appt.Status {
		appt.Status = *in.Status
		changed = append(changed, "status")
	}
	if in.FacilityID != nil {
		appt.FacilityID = in.FacilityID
		changed = append(changed, "facility_id")
	}
	if in.AppointmentType != nil {
		appt.AppointmentType = *in.AppointmentType
		changed = append(changed, "appointment_type")
	}
	if in.Purpose != nil {
		appt.Purpose = *in.Purpose
		changed = append(changed, "purpose")
	}
	if in.Notes != nil {
		appt.Notes = *in.Notes
		changed = append(changed, "notes")
	}

	mode := MeetingModeUnspecified
	switch {
	case in.MeetingMode != nil:
		if !validMode(*in.MeetingMode) {
			return nil, fmt.Errorf("%w: unknown meeting mode %q", ErrInvalidInput, *in.MeetingMode)
		}
		mode = *in.MeetingMode
	case in.Purpose != nil:
		mode = DetectMeetingMode(*in.Purpose)
	}
	if mode == MeetingModeUnspecified && in.Notes != nil {
		// replaced notes must still carry the current mode's text
		mode = appt.MeetingMode
	}
	if mode != MeetingModeUnspecified {
		if mode != appt.MeetingMode {
			changed = append(changed, "meeting_mode")
		}
		if err := s.applyMeetingMode(ctx, appt, mode); err != nil {
			return nil, fmt.Errorf("meeting link: %w", err)
		}
	}

	appt.ModifiedBy = in.ModifiedBy
	appt.ModifiedDate = s.now()

	save := func(ctx context.Context) error {
		if err := s.appointments.Update(ctx, appt, prev); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	}
	if bookable {
		err = s.withSlotLock(ctx, appt.DoctorID, appt.Date, appt.AppointmentTime, func(lockCtx context.Context) error {
			if err := s.ensureSlotFree(lockCtx, appt.DoctorID, appt.Date, appt.AppointmentTime, appt.EndTime, appt.ID); err != nil {
				return err
			}
			return save(lockCtx)
		})
	} else {
		err = save(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentUpdated, map[string]any{
		"changed": changed,
		"status":  appt.Status,
	})

	return appt, nil
}

// CancelAppointment moves a Scheduled appointment to Cancelled and records
// the reason in its notes. Cancelling twice is an invalid transition.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason, by string) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	prev := appt.Status
	if err := checkTransition(prev, StatusCancelled); err != nil {
		return nil, err
	}

	appt.Status = StatusCancelled
	if reason = strings.TrimSpace(reason); reason != "" {
		appt.Notes = appendNoteLine(appt.Notes, "Cancelled: "+reason)
	}
	appt.ModifiedBy = by
	appt.ModifiedDate = s.now()

	if err := s.appointments.Update(ctx, appt, prev); err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"reason": reason,
	})

	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns every appointment dated within [from, to].
func (s *Service) ListAppointments(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	from, to = CivilDate(from), CivilDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: from date is after to date", ErrInvalidInput)
	}
	appts, err := s.appointments.GetByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// MarkNoShows moves Scheduled appointments that ended more than grace ago to
// No-show. It is meant to be called periodically by the worker and returns
// how many appointments it changed.
func (s *Service) MarkNoShows(ctx context.Context, grace time.Duration) (int, error) {
	now := s.now()
	today := DateOf(now, s.cfg.Location)

	appts, err := s.appointments.GetByDateRange(ctx, today.AddDate(0, 0, -noShowLookbackDays), today)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for i := range appts {
		appt := &appts[i]
		if appt.Status != StatusScheduled {
			continue
		}
		if !At(appt.Date, appt.EndTime, s.cfg.Location).Add(grace).Before(now) {
			continue
		}

		appt.Status = StatusNoShow
		appt.ModifiedBy = "system"
		appt.ModifiedDate = now
		err := s.appointments.Update(ctx, appt, StatusScheduled)
		if errors.Is(err, ErrStatusChanged) {
			s.log.Debug().Str("appointment_id", appt.ID.String()).Msg("appointment changed status before no-show sweep, skipping")
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark appointment as no-show")
			continue
		}
		marked++
		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
			"reason": "worker",
		})
	}

	return marked, nil
}

// withSlotLock runs fn under the slot lock. Without a locker fn runs
// directly and only the database unique index guards the slot.
func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, date time.Time, at Clock, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithSlotLock(ctx, slotKey(doctorID, date, at), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return conflict(ReasonSlotBeingBooked)
	}
	return err
}

// ensureSlotFree fails when a live appointment other than exclude starts at
// the same time or overlaps [start, end).
func (s *Service) ensureSlotFree(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end Clock, exclude uuid.UUID) error {
	existing, err := s.appointments.GetByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return fmt.Errorf("check booked slots: %w", err)
	}
	for _, a := range existing {
		if a.ID == exclude || !a.Status.HoldsSlot() {
			continue
		}
		if a.AppointmentTime == start {
			return ErrSlotAlreadyBooked
		}
		if a.Overlaps(start, end) {
			return conflictf("%s (%s-%s)", ReasonOverlapsAppointment, a.AppointmentTime, a.EndTime)
		}
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.appointments.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func slotKey(doctorID uuid.UUID, date time.Time, at Clock) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, date.Format(DateLayout), at)
}

func endOf(start Clock, d time.Duration) (Clock, error) {
	if d < time.Minute {
		return 0, fmt.Errorf("%w: appointment duration must be at least one minute", ErrInvalidInput)
	}
	end := start.Add(d)
	if end > minutesPerDay {
		return 0, conflict(ReasonEndsAfterMidnight)
	}
	return end, nil
}

func validMode(m MeetingMode) bool {
	switch m {
	case MeetingModeUnspecified, MeetingModeOnline, MeetingModeOffline:
		return true
	}
	return false
}
