package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// respondServiceError translates a service error into its HTTP response.
// Unknown errors are logged and answered with a generic 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validErr *appointment.ValidationError

	switch {
	case errors.As(err, &validErr):
		writeError(w, http.StatusBadRequest, "validation_failed", "validation failed", validErr.Fields...)
	case errors.Is(err, appointment.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", "Appointment date cannot be in the past")
	case errors.Is(err, appointment.ErrTooFarFuture):
		writeError(w, http.StatusBadRequest, "too_far_in_future",
			fmt.Sprintf("Appointment date cannot be more than %d days in the future", h.horizonDays))
	case errors.Is(err, appointment.ErrPatientConflict):
		writeError(w, http.StatusBadRequest, "patient_conflict", "Patient already has an appointment at that time")
	case errors.Is(err, appointment.ErrDoctorConflict):
		writeError(w, http.StatusBadRequest, "doctor_conflict", "Doctor already has an appointment at that time")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_status_transition", "Appointment status cannot change from its current state")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "Appointment not found")
	case errors.Is(err, appointment.ErrSubjectBusy):
		writeError(w, http.StatusConflict, "subject_busy", "Patient or doctor is currently being booked, please retry")
	case errors.Is(err, appointment.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "concurrent_update", "Appointment was modified concurrently, please retry")
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
