package appointment

import (
	"errors"
	"strings"

	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrPatientConflict     = errors.New("patient already has an appointment at that time")
	ErrDoctorConflict      = errors.New("doctor already has an appointment at that time")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrSubjectBusy         = errors.New("patient or doctor is currently being booked, please retry")
	ErrConcurrentUpdate    = errors.New("appointment was modified concurrently, please retry")

	ErrPastDate     = scheduling.ErrPastDate
	ErrTooFarFuture = scheduling.ErrTooFarFuture
)

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}
