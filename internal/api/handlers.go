package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

type Handler struct {
	svc         *appointment.Service
	log         *zap.Logger
	horizonDays int
}

func NewHandler(svc *appointment.Service, log *zap.Logger, horizonDays int) *Handler {
	return &Handler{svc: svc, log: log, horizonDays: horizonDays}
}

// decodeBody reports false after writing the 400 response itself.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "missing_request_body", "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// parseUUID accepts an empty string as uuid.Nil so required-field
// validation can report it alongside the others.
func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Status != "" && req.Status != string(appointment.StatusPending) {
		writeError(w, http.StatusBadRequest, "validation_failed", "validation failed",
			"status must be pending for a new appointment")
		return
	}

	patientID, ok := parseUUID(w, req.PatientID, "patient_id")
	if !ok {
		return
	}
	clinicID, ok := parseUUID(w, req.ClinicID, "clinic_id")
	if !ok {
		return
	}
	doctorID, ok := parseUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}

	appt, err := h.svc.Book(r.Context(), appointment.Draft{
		PatientID:       patientID,
		ClinicID:        clinicID,
		DoctorID:        doctorID,
		Specialty:       req.Specialty,
		Type:            appointment.AppointmentType(req.Type),
		AppointmentDate: req.AppointmentDate,
		Duration:        req.Duration,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f appointment.Filter

	if raw := q.Get("status"); raw != "" {
		status := appointment.AppointmentStatus(raw)
		if !status.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be one of pending, completed, cancelled, no_show")
			return
		}
		f.Status = &status
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		start, errFrom := time.Parse(time.RFC3339, from)
		end, errTo := time.Parse(time.RFC3339, to)
		if errFrom != nil || errTo != nil || !start.Before(end) {
			writeError(w, http.StatusBadRequest, "invalid_range", "from and to must be RFC3339 timestamps with from before to")
			return
		}
		f.Window = &scheduling.Window{Start: start, End: end}
	}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(list))
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	doctorID, err := uuid.Parse(q.Get("doctor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	clinicID, err := uuid.Parse(q.Get("clinic_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
		return
	}
	date, err := scheduling.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted as YYYY-MM-DD")
		return
	}

	slots, err := h.svc.ListAvailable(r.Context(), doctorID, clinicID, date)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := AvailabilityResponse{
		DoctorID: doctorID,
		ClinicID: clinicID,
		Date:     date.String(),
		Slots:    []SlotResponse{},
	}
	for slot := range slots {
		resp.Slots = append(resp.Slots, toSlotResponse(slot))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handler) GetAppointmentWeather(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.GetWithWeather(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, WeatherResponse{
		Appointment:  toAppointmentResponse(result.Appointment),
		Weather:      result.Weather,
		WeatherError: result.WeatherError,
	})
}

func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.Update(r.Context(), id, req.patch())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

// transitionHandler serves the PUT /appointments/{id}/<action> routes.
func (h *Handler) transitionHandler(action appointment.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := h.svc.Transition(r.Context(), id, action)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

// listBy serves the /appointments/<subject>/{id} routes.
func (h *Handler) listBy(list func(ctx context.Context, id uuid.UUID) ([]appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		result, err := list(r.Context(), id)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(result))
	}
}
