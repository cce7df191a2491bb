package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID       string  `json:"patient_id"`
	DoctorID        string  `json:"doctor_id"`
	FacilityID      *string `json:"facility_id,omitempty"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	AppointmentType string  `json:"appointment_type"`
	Purpose         string  `json:"purpose"`
	Notes           string  `json:"notes"`
	MeetingMode     string  `json:"meeting_mode,omitempty"`
	CreatedBy       string  `json:"created_by"`
}

// UpdateAppointmentRequest is a partial update; absent fields are unchanged.
type UpdateAppointmentRequest struct {
	DoctorID        *string `json:"doctor_id,omitempty"`
	Date            *string `json:"date,omitempty"`
	Time            *string `json:"time,omitempty"`
	Status          *string `json:"status,omitempty"`
	FacilityID      *string `json:"facility_id,omitempty"`
	AppointmentType *string `json:"appointment_type,omitempty"`
	Purpose         *string `json:"purpose,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	MeetingMode     *string `json:"meeting_mode,omitempty"`
	ModifiedBy      string  `json:"modified_by"`
}

type CancelAppointmentRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

type AppointmentResponse struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	DoctorID        *uuid.UUID        `json:"doctor_id,omitempty"`
	FacilityID      *uuid.UUID        `json:"facility_id,omitempty"`
	Date            string            `json:"date"`
	AppointmentTime appointment.Clock `json:"appointment_time"`
	EndTime         appointment.Clock `json:"end_time"`
	AppointmentType string            `json:"appointment_type"`
	Purpose         string            `json:"purpose"`
	Notes           string            `json:"notes"`
	Status          string            `json:"status"`
	MeetingMode     string            `json:"meeting_mode,omitempty"`
	MeetingLink     *string           `json:"meeting_link,omitempty"`
	CreatedBy       string            `json:"created_by"`
	ModifiedBy      string            `json:"modified_by"`
	CreatedDate     time.Time         `json:"created_date"`
	ModifiedDate    time.Time         `json:"modified_date"`
}

type DayAvailabilityResponse struct {
	Date string `json:"date"`
	appointment.DayAvailability
}

type BookingCheckResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		FacilityID:      a.FacilityID,
		Date:            a.Date.Format(appointment.DateLayout),
		AppointmentTime: a.AppointmentTime,
		EndTime:         a.EndTime,
		AppointmentType: a.AppointmentType,
		Purpose:         a.Purpose,
		Notes:           a.Notes,
		Status:          string(a.Status),
		MeetingMode:     string(a.MeetingMode),
		MeetingLink:     a.MeetingLink,
		CreatedBy:       a.CreatedBy,
		ModifiedBy:      a.ModifiedBy,
		CreatedDate:     a.CreatedDate,
		ModifiedDate:    a.ModifiedDate,
	}
	if a.DoctorID != uuid.Nil {
		id := a.DoctorID
		resp.DoctorID = &id
	}
	return resp
}
