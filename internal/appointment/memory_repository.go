package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Blackout is a period during which a doctor takes no bookings at all.
type Blackout struct {
	DoctorID uuid.UUID
	StartsAt time.Time
	EndsAt   time.Time
}

// MemoryRepository is an in-process implementation of both repository
// ports. It enforces the same one-live-booking-per-slot rule as the
// appointments_doctor_slot_uq index.
type MemoryRepository struct {
	mu           sync.RWMutex
	loc          *time.Location
	doctors      map[uuid.UUID]Doctor
	blackouts    []Blackout
	schedules    map[uuid.UUID][]DoctorSchedule
	overrides    map[uuid.UUID][]AvailabilityOverride
	appointments map[uuid.UUID]Appointment
	events       []EventLog
}

func NewMemoryRepository(loc *time.Location) *MemoryRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryRepository{
		loc:          loc,
		doctors:      make(map[uuid.UUID]Doctor),
		schedules:    make(map[uuid.UUID][]DoctorSchedule),
		overrides:    make(map[uuid.UUID][]AvailabilityOverride),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepository) AddBlackout(b Blackout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blackouts = append(m.blackouts, b)
}

// PutSchedule replaces the doctor's row for s.DayOfWeek.
func (m *MemoryRepository) PutSchedule(s DoctorSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	rows := m.schedules[s.DoctorID]
	for i := range rows {
		if rows[i].DayOfWeek == s.DayOfWeek {
			rows[i] = s
			return
		}
	}
	m.schedules[s.DoctorID] = append(rows, s)
}

// PutOverride replaces the doctor's override for o.Date.
func (m *MemoryRepository) PutOverride(o AvailabilityOverride) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Date = CivilDate(o.Date)
	rows := m.overrides[o.DoctorID]
	for i := range rows {
		if rows[i].Date.Equal(o.Date) {
			rows[i] = o
			return
		}
	}
	m.overrides[o.DoctorID] = append(rows, o)
}

// Events returns a copy of every event inserted so far.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}

func (m *MemoryRepository) GetSchedules(_ context.Context, doctorID uuid.UUID) ([]DoctorSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]DoctorSchedule(nil), m.schedules[doctorID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (m *MemoryRepository) GetAvailabilityOverrides(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]AvailabilityOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = CivilDate(from), CivilDate(to)
	var out []AvailabilityOverride
	for _, o := range m.overrides[doctorID] {
		if !o.Date.Before(from) && !o.Date.After(to) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryRepository) IsDoctorVerified(_ context.Context, doctorID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.doctors[doctorID]
	if !ok {
		return false, ErrDoctorNotFound
	}
	return d.Verified, nil
}

func (m *MemoryRepository) GetByDateRange(_ context.Context, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = CivilDate(from), CivilDate(to)
	var out []Appointment
	for _, a := range m.appointments {
		if !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) GetByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date = CivilDate(date)
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) IsDoctorGenerallyAvailable(_ context.Context, doctorID uuid.UUID, date time.Time, at Clock) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.doctors[doctorID]
	if !ok {
		return false, ErrDoctorNotFound
	}
	if !d.AcceptingBookings {
		return false, nil
	}

	instant := At(date, at, m.loc)
	for _, b := range m.blackouts {
		if b.DoctorID == doctorID && !instant.Before(b.StartsAt) && instant.Before(b.EndsAt) {
			return false, nil
		}
	}
	return true, nil
}

func (m *MemoryRepository) Add(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *a
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Date = CivilDate(stored.Date)
	if m.slotTaken(stored) {
		return nil, ErrSlotAlreadyBooked
	}

	m.appointments[stored.ID] = stored
	return &stored, nil
}

func (m *MemoryRepository) Update(_ context.Context, a *Appointment, expected AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if current.Status != expected {
		return ErrStatusChanged
	}
	stored := *a
	stored.Date = CivilDate(stored.Date)
	if m.slotTaken(stored) {
		return ErrSlotAlreadyBooked
	}

	m.appointments[stored.ID] = stored
	return nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

// slotTaken must be called with mu held.
func (m *MemoryRepository) slotTaken(a Appointment) bool {
	if !a.Status.HoldsSlot() {
		return false
	}
	for id, other := range m.appointments {
		if id != a.ID &&
			other.DoctorID == a.DoctorID &&
			other.Date.Equal(a.Date) &&
			other.AppointmentTime == a.AppointmentTime &&
			other.Status.HoldsSlot() {
			return true
		}
	}
	return false
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Date.Equal(appts[j].Date) {
			return appts[i].Date.Before(appts[j].Date)
		}
		return appts[i].AppointmentTime < appts[j].AppointmentTime
	})
}
