package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-appointment-scheduling/internal/weather"
)

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	ClinicID        string    `json:"clinic_id"`
	DoctorID        string    `json:"doctor_id"`
	Specialty       string    `json:"specialty"`
	Type            string    `json:"type"`
	AppointmentDate time.Time `json:"appointment_date"`
	Duration        *int      `json:"duration"`
	Status          string    `json:"status"`
}

// UpdateAppointmentRequest holds the fields a PUT may change. Absent fields
// keep their stored value.
type UpdateAppointmentRequest struct {
	Specialty       *string    `json:"specialty"`
	Type            *string    `json:"type"`
	AppointmentDate *time.Time `json:"appointment_date"`
	Duration        *int       `json:"duration"`
	Status          *string    `json:"status"`
}

func (req UpdateAppointmentRequest) patch() appointment.Patch {
	p := appointment.Patch{
		Specialty:       req.Specialty,
		AppointmentDate: req.AppointmentDate,
		Duration:        req.Duration,
	}
	if req.Type != nil {
		t := appointment.AppointmentType(*req.Type)
		p.Type = &t
	}
	if req.Status != nil {
		s := appointment.AppointmentStatus(*req.Status)
		p.Status = &s
	}
	return p
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	Specialty       string    `json:"specialty"`
	Type            string    `json:"type"`
	AppointmentDate time.Time `json:"appointment_date"`
	EndsAt          time.Time `json:"ends_at"`
	Duration        int       `json:"duration"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ClinicID:        a.ClinicID,
		DoctorID:        a.DoctorID,
		Specialty:       a.Specialty,
		Type:            string(a.Type),
		AppointmentDate: a.AppointmentDate,
		EndsAt:          a.EndsAt(),
		Duration:        a.Duration,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

type SlotResponse struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration int       `json:"duration"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	ClinicID uuid.UUID      `json:"clinic_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

func toSlotResponse(w scheduling.Window) SlotResponse {
	return SlotResponse{
		Start:    w.Start,
		End:      w.End,
		Duration: int(w.Duration() / time.Minute),
	}
}

type WeatherResponse struct {
	Appointment  AppointmentResponse `json:"appointment"`
	Weather      *weather.Forecast   `json:"weather,omitempty"`
	WeatherError string              `json:"weather_error,omitempty"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}
