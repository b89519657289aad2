package appointment

import (
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

// Scope selects whose bookings a conflict check looks at.
type Scope int

const (
	ScopePatient Scope = iota
	ScopeDoctor
)

func (s Scope) subject(a Appointment) uuid.UUID {
	if s == ScopePatient {
		return a.PatientID
	}
	return a.DoctorID
}

func (s Scope) err() error {
	if s == ScopePatient {
		return ErrPatientConflict
	}
	return ErrDoctorConflict
}

// HasConflict reports whether w overlaps a non-cancelled candidate belonging
// to subjectID within scope. The candidate with id excludeID is skipped so
// an appointment never conflicts with its own stored record.
func HasConflict(scope Scope, subjectID uuid.UUID, w scheduling.Window, candidates []Appointment, excludeID uuid.UUID) bool {
	for _, c := range candidates {
		if c.Status == StatusCancelled || c.ID == excludeID {
			continue
		}
		if scope.subject(c) != subjectID {
			continue
		}
		if w.Overlaps(c.Window()) {
			return true
		}
	}
	return false
}

// CheckConflicts runs the patient check and then the doctor check for a.
func CheckConflicts(a Appointment, candidates []Appointment) error {
	for _, scope := range []Scope{ScopePatient, ScopeDoctor} {
		if HasConflict(scope, scope.subject(a), a.Window(), candidates, a.ID) {
			return scope.err()
		}
	}
	return nil
}
