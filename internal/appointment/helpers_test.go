package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
	redisclient "github.com/zaming3007/swp391-HIVSystem-sub004/internal/redis"
)

const testLink = "https://meet.example.com/room"

var (
	// 2030-01-07 is a Monday.
	monday  = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
	tuesday = monday.AddDate(0, 0, 1)
	sunday  = monday.AddDate(0, 0, 6)
	testNow = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
)

// fakeLocker serialises per key in-process. busy keys report contention.
type fakeLocker struct {
	mu   sync.Mutex
	busy map[string]bool
	keys []string
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	if l.busy[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.mu.Unlock()
	return fn(ctx)
}

type fixture struct {
	svc    *Service
	repo   *MemoryRepository
	locker *fakeLocker
	doctor uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository(time.UTC)
	doctor := uuid.New()
	repo.AddDoctor(Doctor{ID: doctor, Name: "Dr. Test", Verified: true, AcceptingBookings: true})
	for day := 1; day <= 5; day++ {
		repo.PutSchedule(DoctorSchedule{
			DoctorID:            doctor,
			DayOfWeek:           day,
			IsWorking:           true,
			StartTime:           NewClock(8, 0),
			EndTime:             NewClock(12, 0),
			SlotDurationMinutes: 30,
		})
	}

	locker := &fakeLocker{busy: map[string]bool{}}
	cfg := config.Config{
		Location:            time.UTC,
		AppointmentDuration: 30 * time.Minute,
		MeetingLinkURL:      testLink,
		MaxAvailabilityDays: 62,
	}
	svc := NewService(repo, repo, locker, nil, cfg, zerolog.Nop())
	svc.now = func() time.Time { return testNow }

	return &fixture{svc: svc, repo: repo, locker: locker, doctor: doctor}
}

func (f *fixture) book(t *testing.T, date time.Time, at Clock, purpose string) *Appointment {
	t.Helper()
	a, err := f.svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		PatientID: uuid.New(),
		DoctorID:  f.doctor,
		Date:      date,
		Time:      at,
		Purpose:   purpose,
		CreatedBy: "test",
	})
	if err != nil {
		t.Fatalf("book %s %s: %v", date.Format(DateLayout), at, err)
	}
	return a
}

func ptr[T any](v T) *T { return &v }
