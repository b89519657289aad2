package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-appointment-scheduling/internal/weather"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
)

var transitionEvents = map[Action]string{
	ActionCancel:   EventAppointmentCancelled,
	ActionComplete: EventAppointmentCompleted,
	ActionNoShow:   EventAppointmentNoShow,
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	loc     *time.Location
	clock   scheduling.Clock
	log     *zap.Logger
	metrics *metrics.Collector
	weather weather.Provider
}

type Option func(*Service)

func WithClock(c scheduling.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithWeather(p weather.Provider) Option {
	return func(s *Service) { s.weather = p }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		loc:    cfg.Location(),
		clock:  scheduling.SystemClock{},
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the time zone calendar dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func subjectKeys(a Appointment) []string {
	return []string{
		"patient:" + a.PatientID.String(),
		"doctor:" + a.DoctorID.String(),
	}
}

// withSubjects runs fn while holding the patient and doctor locks of a, so
// the conflict check and the write that follows it cannot interleave with
// another booking for either subject.
func (s *Service) withSubjects(ctx context.Context, a Appointment, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.locker.WithSubjectLocks(ctx, subjectKeys(a), func(lockCtx context.Context) error {
		s.metrics.ObserveLockWait(time.Since(start).Seconds())
		return fn(lockCtx)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSubjectBusy
	}
	return err
}

// checkConflicts loads the non-cancelled bookings overlapping a for its
// patient and then its doctor.
func (s *Service) checkConflicts(ctx context.Context, a Appointment) error {
	w := a.Window()

	for _, scope := range []Scope{ScopePatient, ScopeDoctor} {
		subject := scope.subject(a)
		f := Filter{ExcludeCancelled: true, Window: &w}
		if scope == ScopePatient {
			f.PatientID = &subject
		} else {
			f.DoctorID = &subject
		}

		candidates, err := s.repo.Find(ctx, f)
		if err != nil {
			return fmt.Errorf("load bookings for conflict check: %w", err)
		}
		if HasConflict(scope, subject, w, candidates, a.ID) {
			return scope.err()
		}
	}
	return nil
}

// Book validates d and stores it as a new pending appointment.
func (s *Service) Book(ctx context.Context, d Draft) (*Appointment, error) {
	created, err := s.book(ctx, d)
	s.metrics.ObserveBooking("book", outcome(err))
	return created, err
}

func (s *Service) book(ctx context.Context, d Draft) (*Appointment, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	a := d.newAppointment(s.cfg.DefaultDuration)

	if err := scheduling.ValidateWindow(a.AppointmentDate, s.clock.Now(), s.cfg.BookingHorizon); err != nil {
		return nil, err
	}

	var created *Appointment
	err := s.withSubjects(ctx, a, func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, a); err != nil {
			return err
		}

		appt, err := s.repo.Insert(lockCtx, a)
		if err != nil {
			if errors.Is(err, ErrPatientConflict) || errors.Is(err, ErrDoctorConflict) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"patient_id":       created.PatientID.String(),
		"doctor_id":        created.DoctorID.String(),
		"clinic_id":        created.ClinicID.String(),
		"appointment_date": created.AppointmentDate,
		"duration":         created.Duration,
	})

	return created, nil
}

// Update merges patch into the stored appointment. A changed date or
// duration is checked against the calendar rules and other bookings. A
// status in patch must be a legal transition from the current status.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Appointment, error) {
	updated, action, err := s.update(ctx, id, patch)
	s.metrics.ObserveBooking("update", outcome(err))
	if action != "" {
		s.metrics.ObserveTransition(string(action), outcome(err))
	}
	return updated, err
}

// update returns the status action the patch carried, if any, alongside the
// result.
func (s *Service) update(ctx context.Context, id uuid.UUID, patch Patch) (*Appointment, Action, error) {
	patch = patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, "", err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, "", wrapLoadErr(err)
	}

	var (
		updated *Appointment
		from    AppointmentStatus
		action  Action
	)
	err = s.withSubjects(ctx, *current, func(lockCtx context.Context) error {
		// Reload so the checks below see the state the write will guard on.
		current, err := s.repo.FindByID(lockCtx, id)
		if err != nil {
			return wrapLoadErr(err)
		}
		from = current.Status

		if patch.Status != nil && *patch.Status != current.Status {
			action, err = ActionFor(current.Status, *patch.Status)
			if err != nil {
				return err
			}
		} else {
			patch.Status = nil
		}

		merged := patch.Apply(*current)
		if patch.MovesWindow() {
			if err := scheduling.ValidateWindow(merged.AppointmentDate, s.clock.Now(), s.cfg.BookingHorizon); err != nil {
				return err
			}
			if merged.Status != StatusCancelled {
				if err := s.checkConflicts(lockCtx, merged); err != nil {
					return err
				}
			}
		}

		appt, err := s.repo.UpdateByID(lockCtx, id, current.Status, patch)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return s.staleWriteErr(lockCtx, id)
			}
			if errors.Is(err, ErrPatientConflict) || errors.Is(err, ErrDoctorConflict) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = appt
		return nil
	})
	if err != nil {
		return nil, action, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentUpdated, map[string]any{
		"status":           updated.Status,
		"appointment_date": updated.AppointmentDate,
		"duration":         updated.Duration,
	})
	if action != "" {
		s.logEvent(ctx, updated.ID, transitionEvents[action], map[string]any{
			"from": from,
			"to":   updated.Status,
		})
	}

	return updated, action, nil
}

// staleWriteErr explains a conditional write that matched no row.
func (s *Service) staleWriteErr(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return wrapLoadErr(err)
	}
	return ErrConcurrentUpdate
}

// Transition applies action to the appointment's status.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action Action) (*Appointment, error) {
	updated, err := s.transition(ctx, id, action)
	s.metrics.ObserveTransition(string(action), outcome(err))
	return updated, err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action) (*Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapLoadErr(err)
	}

	to, err := Transition(appt.Status, action)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Another request won the race; it can only have left pending.
			if _, loadErr := s.repo.FindByID(ctx, id); loadErr != nil {
				return nil, wrapLoadErr(loadErr)
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, updated.ID, transitionEvents[action], map[string]any{
		"from": appt.Status,
		"to":   to,
	})

	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, ActionCancel)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, ActionComplete)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, id, ActionNoShow)
}

// Delete removes the appointment and returns it as it was last stored.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapLoadErr(err)
	}

	ok, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete appointment: %w", err)
	}
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{
		"status":           appt.Status,
		"appointment_date": appt.AppointmentDate,
	})
	return appt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapLoadErr(err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Appointment, error) {
	if f.Limit < 0 {
		f.Limit = 0
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	result, err := s.repo.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return result, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.List(ctx, Filter{PatientID: &patientID})
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.List(ctx, Filter{DoctorID: &doctorID})
}

func (s *Service) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]Appointment, error) {
	return s.List(ctx, Filter{ClinicID: &clinicID})
}

// ResolveShift returns the doctor's working hours at the clinic on date.
// ok is false when no shift applies.
func (s *Service) ResolveShift(ctx context.Context, doctorID, clinicID uuid.UUID, date scheduling.Date) (scheduling.Window, bool, error) {
	shifts, err := s.repo.FindWorkshifts(ctx, doctorID, clinicID)
	if err != nil {
		return scheduling.Window{}, false, fmt.Errorf("load workshifts: %w", err)
	}
	w, ok := scheduling.ResolveShift(shifts, date, s.loc)
	return w, ok, nil
}

// ListAvailable returns the free slots of the doctor at the clinic on date.
// A day without a workshift yields an empty sequence.
func (s *Service) ListAvailable(ctx context.Context, doctorID, clinicID uuid.UUID, date scheduling.Date) (iter.Seq[scheduling.Window], error) {
	shift, ok, err := s.ResolveShift(ctx, doctorID, clinicID, date)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSlotQuery(ok)
	if !ok {
		return func(func(scheduling.Window) bool) {}, nil
	}

	bookings, err := s.repo.Find(ctx, Filter{
		DoctorID:         &doctorID,
		ClinicID:         &clinicID,
		ExcludeCancelled: true,
		Window:           &shift,
	})
	if err != nil {
		return nil, fmt.Errorf("load bookings for slots: %w", err)
	}

	booked := make([]scheduling.Window, 0, len(bookings))
	for _, b := range bookings {
		booked = append(booked, b.Window())
	}

	return scheduling.GenerateSlots(shift, booked, s.cfg.SlotGranularity), nil
}

// AppointmentWeather is an appointment plus the forecast at its clinic. When the
// forecast could not be obtained WeatherError says why.
type AppointmentWeather struct {
	Appointment  Appointment
	Weather      *weather.Forecast
	WeatherError string
}

// GetWithWeather never fails because of the weather lookup; only a missing
// appointment or a storage error is returned as an error.
func (s *Service) GetWithWeather(ctx context.Context, id uuid.UUID) (*AppointmentWeather, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &AppointmentWeather{Appointment: *appt}
	if s.weather == nil {
		result.WeatherError = "weather lookup is not configured"
		return result, nil
	}

	clinic, err := s.repo.GetClinicByID(ctx, appt.ClinicID)
	if err != nil {
		s.log.Warn("clinic lookup for weather failed", zap.String("clinic_id", appt.ClinicID.String()), zap.Error(err))
		result.WeatherError = "clinic location unknown"
		return result, nil
	}

	forecast, err := s.weather.Forecast(ctx, clinic.Latitude, clinic.Longitude, appt.AppointmentDate)
	if err != nil {
		s.log.Warn("weather lookup failed", zap.String("appointment_id", id.String()), zap.Error(err))
		result.WeatherError = err.Error()
		return result, nil
	}

	result.Weather = forecast
	return result, nil
}

func wrapLoadErr(err error) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	return fmt.Errorf("load appointment: %w", err)
}

func outcome(err error) string {
	var validErr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validErr):
		return "invalid"
	case errors.Is(err, ErrPastDate), errors.Is(err, ErrTooFarFuture):
		return "calendar"
	case errors.Is(err, ErrPatientConflict):
		return "patient_conflict"
	case errors.Is(err, ErrDoctorConflict):
		return "doctor_conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrSubjectBusy), errors.Is(err, ErrConcurrentUpdate):
		return "contended"
	}
	return "error"
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
