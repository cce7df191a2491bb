package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
)

func availabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		from, ok := dateQuery(w, r, "from")
		if !ok {
			return
		}
		to, ok := dateQuery(w, r, "to")
		if !ok {
			return
		}

		days, err := svc.ResolveAvailability(r.Context(), doctorID, from, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]DayAvailabilityResponse, 0, len(days))
		for _, d := range days {
			resp = append(resp, DayAvailabilityResponse{
				Date:            d.Date.Format(appointment.DateLayout),
				DayAvailability: d,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookingCheckHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r, "date")
		if !ok {
			return
		}
		at, err := appointment.ParseClock(r.URL.Query().Get("time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}

		err = svc.CheckBookingTime(r.Context(), doctorID, date, at)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, BookingCheckResponse{Available: true})
		case errors.Is(err, appointment.ErrSchedulingConflict):
			writeJSON(w, http.StatusOK, BookingCheckResponse{Reason: appointment.ConflictReason(err)})
		default:
			handleServiceError(w, r, err)
		}
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		zerolog.Ctx(r.Context()).Info().
			Str("appointment_id", appt.ID.String()).
			Str("doctor_id", appt.DoctorID.String()).
			Msg("appointment created")

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, ok := dateQuery(w, r, "from")
		if !ok {
			return
		}
		to, ok := dateQuery(w, r, "to")
		if !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), from, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := svc.CancelAppointment(r.Context(), id, req.Reason, req.CancelledBy)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		zerolog.Ctx(r.Context()).Info().
			Str("appointment_id", appt.ID.String()).
			Str("reason", req.Reason).
			Msg("appointment cancelled")

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (req CreateAppointmentRequest) toInput() (appointment.CreateAppointmentInput, error) {
	var in appointment.CreateAppointmentInput

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return in, errors.New("patient_id must be a valid UUID")
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return in, errors.New("doctor_id must be a valid UUID")
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		return in, err
	}
	at, err := appointment.ParseClock(req.Time)
	if err != nil {
		return in, err
	}
	if req.DurationMinutes < 0 {
		return in, errors.New("duration_minutes must not be negative")
	}

	in = appointment.CreateAppointmentInput{
		PatientID:       patientID,
		DoctorID:        doctorID,
		Date:            date,
		Time:            at,
		Duration:        time.Duration(req.DurationMinutes) * time.Minute,
		AppointmentType: req.AppointmentType,
		Purpose:         req.Purpose,
		Notes:           req.Notes,
		MeetingMode:     appointment.MeetingMode(req.MeetingMode),
		CreatedBy:       req.CreatedBy,
	}
	if req.FacilityID != nil {
		facilityID, err := uuid.Parse(*req.FacilityID)
		if err != nil {
			return in, errors.New("facility_id must be a valid UUID")
		}
		in.FacilityID = &facilityID
	}
	return in, nil
}

func (req UpdateAppointmentRequest) toInput() (appointment.UpdateAppointmentInput, error) {
	in := appointment.UpdateAppointmentInput{
		AppointmentType: req.AppointmentType,
		Purpose:         req.Purpose,
		Notes:           req.Notes,
		ModifiedBy:      req.ModifiedBy,
	}

	if req.DoctorID != nil {
		id, err := uuid.Parse(*req.DoctorID)
		if err != nil {
			return in, errors.New("doctor_id must be a valid UUID")
		}
		in.DoctorID = &id
	}
	if req.FacilityID != nil {
		id, err := uuid.Parse(*req.FacilityID)
		if err != nil {
			return in, errors.New("facility_id must be a valid UUID")
		}
		in.FacilityID = &id
	}
	if req.Date != nil {
		date, err := appointment.ParseDate(*req.Date)
		if err != nil {
			return in, err
		}
		in.Date = &date
	}
	if req.Time != nil {
		at, err := appointment.ParseClock(*req.Time)
		if err != nil {
			return in, err
		}
		in.Time = &at
	}
	if req.Status != nil {
		status, err := appointment.ParseStatus(*req.Status)
		if err != nil {
			return in, err
		}
		in.Status = &status
	}
	if req.MeetingMode != nil {
		mode := appointment.MeetingMode(*req.MeetingMode)
		in.MeetingMode = &mode
	}
	return in, nil
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, fmt.Sprintf("%s must be a valid UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

func dateQuery(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	d, err := appointment.ParseDate(r.URL.Query().Get(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, err.Error())
		return time.Time{}, false
	}
	return d, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotVerified):
		writeError(w, http.StatusForbidden, "doctor_not_verified", err.Error())
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", appointment.ConflictReason(err))
	case errors.Is(err, appointment.ErrSchedulingConflict):
		writeError(w, http.StatusConflict, "scheduling_conflict", appointment.ConflictReason(err))
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
