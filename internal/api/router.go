package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
)

// AppointmentService is the part of *appointment.Service the handlers use.
type AppointmentService interface {
	ResolveAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.DayAvailability, error)
	CheckBookingTime(ctx context.Context, doctorID uuid.UUID, date time.Time, at appointment.Clock) error
	CreateAppointment(ctx context.Context, in appointment.CreateAppointmentInput) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, in appointment.UpdateAppointmentInput) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, reason, by string) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
}

type RouterConfig struct {
	Service  AppointmentService
	Postgres Pinger
	Redis    RedisPinger
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(accessLog(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/availability", availabilityHandler(cfg.Service))
		r.Get("/booking-check", bookingCheckHandler(cfg.Service))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Service))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	})

	return r
}
