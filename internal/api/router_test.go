package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
)

// 2099-01-05 is a Monday, far enough ahead to never be in the past.
const testMonday = "2099-01-05"

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testServer struct {
	handler    http.Handler
	doctor     uuid.UUID
	unverified uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := appointment.NewMemoryRepository(time.UTC)
	doctor, unverified := uuid.New(), uuid.New()
	repo.AddDoctor(appointment.Doctor{ID: doctor, Verified: true, AcceptingBookings: true})
	repo.AddDoctor(appointment.Doctor{ID: unverified, AcceptingBookings: true})
	for _, id := range []uuid.UUID{doctor, unverified} {
		repo.PutSchedule(appointment.DoctorSchedule{
			DoctorID:            id,
			DayOfWeek:           1,
			IsWorking:           true,
			StartTime:           appointment.NewClock(8, 0),
			EndTime:             appointment.NewClock(12, 0),
			SlotDurationMinutes: 30,
		})
	}

	svc := appointment.NewService(repo, repo, passLocker{}, nil, config.Config{
		Location:            time.UTC,
		MeetingLinkURL:      "https://meet.example.com/room",
		MaxAvailabilityDays: 31,
	}, zerolog.Nop())

	rdb, _ := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })

	handler := NewRouter(RouterConfig{
		Service:  svc,
		Postgres: pingFunc(func(context.Context) error { return nil }),
		Redis:    rdb,
		Logger:   zerolog.Nop(),
		Env:      "test",
	})

	return &testServer{handler: handler, doctor: doctor, unverified: unverified}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (s *testServer) create(t *testing.T, doctor uuid.UUID, at, purpose string) *httptest.ResponseRecorder {
	return s.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID: uuid.NewString(),
		DoctorID:  doctor.String(),
		Date:      testMonday,
		Time:      at,
		Purpose:   purpose,
		CreatedBy: "api-test",
	})
}

func TestAvailabilityEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.create(t, s.doctor, "09:00", "").Code)

	rec := s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/availability?from=2099-01-05&to=2099-01-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	days := decode[[]map[string]any](t, rec)
	require.Len(t, days, 2)
	assert.Equal(t, testMonday, days[0]["date"])
	assert.Equal(t, true, days[0]["is_working_day"])

	slots := days[0]["slots"].([]any)
	require.Len(t, slots, 8)
	booked := slots[2].(map[string]any)
	assert.Equal(t, "09:00", booked["start_time"])
	assert.Equal(t, false, booked["is_available"])
	assert.Equal(t, "Booked", booked["reason"])

	assert.Equal(t, "Not a working day", days[1]["reason"])
}

func TestAvailabilityEndpoint_BadInput(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/doctors/not-a-uuid/availability?from=2099-01-05&to=2099-01-06", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/availability?from=05/01/2099&to=2099-01-06", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_from", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/availability?from=2099-01-06&to=2099-01-05", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/availability?from=2099-01-05&to=2099-01-06", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "doctor_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestBookingCheckEndpoint(t *testing.T) {
	s := newTestServer(t)
	base := "/doctors/" + s.doctor.String() + "/booking-check?date=" + testMonday

	rec := s.do(t, http.MethodGet, base+"&time=09:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[BookingCheckResponse](t, rec).Available)

	rec = s.do(t, http.MethodGet, base+"&time=13:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[BookingCheckResponse](t, rec)
	assert.False(t, got.Available)
	assert.Contains(t, got.Reason, appointment.ReasonOutsideWorkingHours)

	rec = s.do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/booking-check?date="+testMonday+"&time=09:00", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.create(t, s.doctor, "09:00", "Tư vấn trực tuyến")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "Scheduled", appt.Status)
	assert.Equal(t, appointment.NewClock(9, 30), appt.EndTime)
	assert.Equal(t, "Online", appt.MeetingMode)
	require.NotNil(t, appt.MeetingLink)
	assert.Contains(t, appt.Notes, *appt.MeetingLink)

	rec = s.create(t, s.doctor, "09:00", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_already_booked", decode[ErrorResponse](t, rec).Error)

	rec = s.create(t, s.unverified, "09:00", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.create(t, s.doctor, "07:00", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "scheduling_conflict", decode[ErrorResponse](t, rec).Error)

	rec = s.create(t, s.doctor, "9am", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	s.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestUpdateAndCancelEndpoints(t *testing.T) {
	s := newTestServer(t)
	created := decode[AppointmentResponse](t, s.create(t, s.doctor, "09:00", "online"))
	path := "/appointments/" + created.ID.String()

	rec := s.do(t, http.MethodPatch, path, UpdateAppointmentRequest{
		Time:    ptr("10:00"),
		Purpose: ptr("Khám tại phòng khám"),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[AppointmentResponse](t, rec)
	assert.Equal(t, appointment.NewClock(10, 0), updated.AppointmentTime)
	assert.Equal(t, "Offline", updated.MeetingMode)
	assert.Nil(t, updated.MeetingLink)
	assert.Contains(t, updated.Notes, appointment.OfflineNotice)

	rec = s.do(t, http.MethodPatch, path, UpdateAppointmentRequest{Status: ptr("Pending")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path+"/cancel", CancelAppointmentRequest{Reason: "Patient request"})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "Cancelled", cancelled.Status)
	assert.Contains(t, cancelled.Notes, "Cancelled: Patient request")

	rec = s.do(t, http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cancelled", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestListAppointmentsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.create(t, s.doctor, "10:00", "")
	s.create(t, s.doctor, "08:30", "")

	rec := s.do(t, http.MethodGet, "/appointments?from="+testMonday+"&to="+testMonday, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	appts := decode[[]AppointmentResponse](t, rec)
	require.Len(t, appts, 2)
	assert.Equal(t, appointment.NewClock(8, 30), appts[0].AppointmentTime)

	rec = s.do(t, http.MethodGet, "/appointments?from="+testMonday, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })

	pgUp := true
	handler := NewRouter(RouterConfig{
		Postgres: pingFunc(func(context.Context) error {
			if pgUp {
				return nil
			}
			return errors.New("connection refused")
		}),
		Redis:  rdb,
		Logger: zerolog.Nop(),
		Env:    "test",
	})
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectPing().SetVal("PONG")
	rec = get("/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)

	mock.ExpectPing().SetErr(errors.New("redis down"))
	rec = get("/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode[ReadinessResponse](t, rec).Status)

	pgUp = false
	mock.ExpectPing().SetVal("PONG")
	rec = get("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decode[ReadinessResponse](t, rec).Dependencies["postgres"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
