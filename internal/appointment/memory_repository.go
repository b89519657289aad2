package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

// MemoryRepository keeps everything in process memory. It backs the
// "memory" store driver and the tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]Appointment
	workshifts   []scheduling.Workshift
	clinics      map[uuid.UUID]Clinic
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]Appointment),
		clinics:      make(map[uuid.UUID]Clinic),
		now:          time.Now,
	}
}

func (r *MemoryRepository) AddWorkshift(s scheduling.Workshift) scheduling.Workshift {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.workshifts = append(r.workshifts, s)
	return s
}

func (r *MemoryRepository) AddClinic(c Clinic) Clinic {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	r.clinics[c.ID] = c
	return c
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func matches(a Appointment, f Filter) bool {
	switch {
	case f.PatientID != nil && a.PatientID != *f.PatientID,
		f.DoctorID != nil && a.DoctorID != *f.DoctorID,
		f.ClinicID != nil && a.ClinicID != *f.ClinicID,
		f.Status != nil && a.Status != *f.Status,
		f.ExcludeCancelled && a.Status == StatusCancelled,
		f.Window != nil && !f.Window.Overlaps(a.Window()):
		return false
	}
	return true
}

func (r *MemoryRepository) Find(ctx context.Context, f Filter) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Appointment, 0)
	for _, a := range r.appointments {
		if matches(a, f) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AppointmentDate.Equal(result[j].AppointmentDate) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].AppointmentDate.Before(result[j].AppointmentDate)
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []Appointment{}, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, a Appointment) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := r.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateByID(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a = patch.Apply(a)
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	return r.UpdateByID(ctx, id, from, Patch{Status: &to})
}

func (r *MemoryRepository) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return false, nil
	}
	delete(r.appointments, id)
	return true, nil
}

func (r *MemoryRepository) FindWorkshifts(ctx context.Context, doctorID, clinicID uuid.UUID) ([]scheduling.Workshift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []scheduling.Workshift
	for _, s := range r.workshifts {
		if s.DoctorID == doctorID && s.ClinicID == clinicID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *MemoryRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}
