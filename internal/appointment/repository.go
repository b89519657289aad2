package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	Find(ctx context.Context, f Filter) ([]Appointment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Insert stores a and returns it with ID and timestamps assigned.
	Insert(ctx context.Context, a Appointment) (*Appointment, error)

	// UpdateByID applies patch only while the stored status still equals
	// from. ErrAppointmentNotFound is returned when no row matched.
	UpdateByID(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)

	// Read-only collaborators
	FindWorkshifts(ctx context.Context, doctorID, clinicID uuid.UUID) ([]scheduling.Workshift, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
