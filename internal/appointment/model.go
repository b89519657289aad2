package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

type AppointmentType string

const (
	TypeConsult  AppointmentType = "consult"
	TypeFollowUp AppointmentType = "follow_up"
	TypeRevision AppointmentType = "revision"
)

func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsult, TypeFollowUp, TypeRevision:
		return true
	}
	return false
}

// Durations are in minutes. DefaultDuration is used when a draft does not
// carry one; nothing may last longer than MaxDuration.
const (
	DefaultDuration = 30
	MaxDuration     = 24 * 60
)

var durationMessage = fmt.Sprintf("duration must be between 1 and %d minutes", MaxDuration)

func validDuration(minutes int) bool {
	return minutes > 0 && minutes <= MaxDuration
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	DoctorID        uuid.UUID
	Specialty       string
	Type            AppointmentType
	AppointmentDate time.Time
	Duration        int // minutes
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) EndsAt() time.Time {
	return a.AppointmentDate.Add(time.Duration(a.Duration) * time.Minute)
}

func (a Appointment) Window() scheduling.Window {
	return scheduling.Window{Start: a.AppointmentDate, End: a.EndsAt()}
}

type Clinic struct {
	ID        uuid.UUID
	Name      string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Draft is a booking request before it becomes an Appointment. Duration and
// Type are optional.
type Draft struct {
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	DoctorID        uuid.UUID
	Specialty       string
	Type            AppointmentType
	AppointmentDate time.Time
	Duration        *int
}

func (d Draft) Validate() error {
	var fields []string
	if d.PatientID == uuid.Nil {
		fields = append(fields, "patient_id is required")
	}
	if d.ClinicID == uuid.Nil {
		fields = append(fields, "clinic_id is required")
	}
	if d.DoctorID == uuid.Nil {
		fields = append(fields, "doctor_id is required")
	}
	if strings.TrimSpace(d.Specialty) == "" {
		fields = append(fields, "specialty is required")
	}
	if d.Type != "" && !d.Type.IsValid() {
		fields = append(fields, "type must be one of consult, follow_up, revision")
	}
	if d.AppointmentDate.IsZero() {
		fields = append(fields, "appointment_date is required")
	}
	if d.Duration != nil && !validDuration(*d.Duration) {
		fields = append(fields, durationMessage)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// newAppointment builds the pending appointment a validated draft describes.
func (d Draft) newAppointment(defaultDuration int) Appointment {
	a := Appointment{
		PatientID:       d.PatientID,
		ClinicID:        d.ClinicID,
		DoctorID:        d.DoctorID,
		Specialty:       strings.TrimSpace(d.Specialty),
		Type:            d.Type,
		AppointmentDate: d.AppointmentDate,
		Duration:        defaultDuration,
		Status:          StatusPending,
	}
	if a.Type == "" {
		a.Type = TypeConsult
	}
	if d.Duration != nil {
		a.Duration = *d.Duration
	}
	return a
}

// Patch carries the fields an update changes; nil means unchanged.
type Patch struct {
	Specialty       *string
	Type            *AppointmentType
	AppointmentDate *time.Time
	Duration        *int
	Status          *AppointmentStatus
}

func (p Patch) IsEmpty() bool {
	return p.Specialty == nil && p.Type == nil && p.AppointmentDate == nil &&
		p.Duration == nil && p.Status == nil
}

// Normalize trims free-text fields so every repository stores the same value.
func (p Patch) Normalize() Patch {
	if p.Specialty != nil {
		trimmed := strings.TrimSpace(*p.Specialty)
		p.Specialty = &trimmed
	}
	return p
}

// MovesWindow reports whether applying p can change the booked interval.
func (p Patch) MovesWindow() bool {
	return p.AppointmentDate != nil || p.Duration != nil
}

func (p Patch) Validate() error {
	if p.IsEmpty() {
		return &ValidationError{Fields: []string{"no fields to update"}}
	}

	var fields []string
	if p.Specialty != nil && strings.TrimSpace(*p.Specialty) == "" {
		fields = append(fields, "specialty cannot be empty")
	}
	if p.Type != nil && !p.Type.IsValid() {
		fields = append(fields, "type must be one of consult, follow_up, revision")
	}
	if p.AppointmentDate != nil && p.AppointmentDate.IsZero() {
		fields = append(fields, "appointment_date cannot be empty")
	}
	if p.Duration != nil && !validDuration(*p.Duration) {
		fields = append(fields, durationMessage)
	}
	if p.Status != nil && !p.Status.IsValid() {
		fields = append(fields, "status must be one of pending, completed, cancelled, no_show")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Apply returns a with p merged in.
func (p Patch) Apply(a Appointment) Appointment {
	if p.Specialty != nil {
		a.Specialty = strings.TrimSpace(*p.Specialty)
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.AppointmentDate != nil {
		a.AppointmentDate = *p.AppointmentDate
	}
	if p.Duration != nil {
		a.Duration = *p.Duration
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	return a
}

// Filter narrows Find. Zero fields do not filter. Window keeps appointments
// whose interval overlaps it.
type Filter struct {
	PatientID        *uuid.UUID
	DoctorID         *uuid.UUID
	ClinicID         *uuid.UUID
	Status           *AppointmentStatus
	ExcludeCancelled bool
	Window           *scheduling.Window
	Limit            int
	Offset           int
}
