package appointment

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-appointment-scheduling/internal/weather"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func testConfig() config.Config {
	return config.Config{
		SlotGranularity: 15 * time.Minute,
		BookingHorizon:  30 * day,
		DefaultDuration: DefaultDuration,
		TimeZone:        "UTC",
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	opts = append([]Option{WithClock(scheduling.FixedClock(now))}, opts...)
	svc := NewService(repo, redisclient.NewLocalSubjectLocker(0, 0), testConfig(), zap.NewNop(), opts...)
	return svc, repo
}

func draftAt(at time.Time) Draft {
	return Draft{
		PatientID:       uuid.New(),
		ClinicID:        uuid.New(),
		DoctorID:        uuid.New(),
		Specialty:       "family_medicine",
		AppointmentDate: at,
	}
}

func intPtr(v int) *int { return &v }

func TestService_Book(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	appt, err := svc.Book(ctx, draftAt(now.Add(day)))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, DefaultDuration, appt.Duration)
	assert.Equal(t, TypeConsult, appt.Type)

	stored, err := svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, stored.ID)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
}

func TestService_BookValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Book(context.Background(), Draft{Duration: intPtr(0), Type: "surgery"})

	var validErr *ValidationError
	require.ErrorAs(t, err, &validErr)
	assert.Contains(t, validErr.Fields, "patient_id is required")
	assert.Contains(t, validErr.Fields, "appointment_date is required")
	assert.Contains(t, validErr.Fields, "duration must be between 1 and 1440 minutes")
	assert.Contains(t, validErr.Fields, "type must be one of consult, follow_up, revision")
}

func TestService_BookDurationBounds(t *testing.T) {
	ctx := context.Background()
	tomorrow := now.Add(day)

	for _, minutes := range []int{-5, 0, MaxDuration + 1, 200_000_000} {
		svc, repo := newTestService(t)
		d := draftAt(tomorrow)
		d.Duration = intPtr(minutes)

		_, err := svc.Book(ctx, d)
		var validErr *ValidationError
		require.ErrorAs(t, err, &validErr, "duration %d", minutes)

		all, _ := repo.Find(ctx, Filter{})
		assert.Empty(t, all)
	}

	svc, _ := newTestService(t)
	long := draftAt(tomorrow)
	long.Duration = intPtr(MaxDuration)
	appt, err := svc.Book(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, tomorrow.Add(day), appt.EndsAt())

	next := draftAt(tomorrow.Add(time.Hour))
	next.DoctorID = long.DoctorID
	_, err = svc.Book(ctx, next)
	assert.ErrorIs(t, err, ErrDoctorConflict)
}

func TestService_BookCalendarRules(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, draftAt(now.Add(-day)))
	assert.ErrorIs(t, err, ErrPastDate)

	_, err = svc.Book(ctx, draftAt(now.Add(31*day)))
	assert.ErrorIs(t, err, ErrTooFarFuture)

	all, _ := repo.Find(ctx, Filter{})
	assert.Empty(t, all, "rejected bookings must not be stored")

	_, err = svc.Book(ctx, draftAt(now.Add(30*day)))
	assert.NoError(t, err)

	_, err = svc.Book(ctx, draftAt(now))
	assert.NoError(t, err)
}

func TestService_BookConflicts(t *testing.T) {
	ctx := context.Background()
	tomorrow := now.Add(day)

	t.Run("same patient", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		_, err := svc.Book(ctx, first)
		require.NoError(t, err)

		second := draftAt(tomorrow.Add(15 * time.Minute))
		second.PatientID = first.PatientID
		_, err = svc.Book(ctx, second)
		assert.ErrorIs(t, err, ErrPatientConflict)
	})

	t.Run("same doctor", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		_, err := svc.Book(ctx, first)
		require.NoError(t, err)

		second := draftAt(tomorrow.Add(15 * time.Minute))
		second.DoctorID = first.DoctorID
		_, err = svc.Book(ctx, second)
		assert.ErrorIs(t, err, ErrDoctorConflict)
	})

	t.Run("both scopes report the patient", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		_, err := svc.Book(ctx, first)
		require.NoError(t, err)

		second := first
		second.AppointmentDate = tomorrow.Add(10 * time.Minute)
		_, err = svc.Book(ctx, second)
		assert.ErrorIs(t, err, ErrPatientConflict)
	})

	t.Run("touching intervals do not conflict", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		_, err := svc.Book(ctx, first)
		require.NoError(t, err)

		second := first
		second.AppointmentDate = tomorrow.Add(30 * time.Minute)
		_, err = svc.Book(ctx, second)
		assert.NoError(t, err)
	})

	t.Run("cancelled bookings do not block", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		appt, err := svc.Book(ctx, first)
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, appt.ID)
		require.NoError(t, err)

		_, err = svc.Book(ctx, first)
		assert.NoError(t, err)
	})
}

func TestService_BookConcurrentSameDoctor(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	doctor := uuid.New()
	at := now.Add(2 * day)

	const attempts = 25
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := draftAt(at.Add(time.Duration(i%3) * 5 * time.Minute))
			d.DoctorID = doctor
			_, errs[i] = svc.Book(ctx, d)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDoctorConflict)
	}
	assert.Equal(t, 1, succeeded)

	booked, err := repo.Find(ctx, Filter{DoctorID: &doctor})
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestService_NoOverlapAfterRandomOperations(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	patients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	doctors := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	clinic := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ids []uuid.UUID
	for i := 0; i < 200; i++ {
		d := Draft{
			PatientID:       patients[rng.Intn(len(patients))],
			DoctorID:        doctors[rng.Intn(len(doctors))],
			ClinicID:        clinic,
			Specialty:       "dermatology",
			AppointmentDate: now.Add(day + time.Duration(rng.Intn(48))*15*time.Minute),
			Duration:        intPtr(15 * (1 + rng.Intn(4))),
		}
		move := now.Add(day + time.Duration(rng.Intn(48))*15*time.Minute)
		wg.Add(1)
		go func() {
			defer wg.Done()
			appt, err := svc.Book(ctx, d)
			if err != nil {
				return
			}
			mu.Lock()
			ids = append(ids, appt.ID)
			mu.Unlock()
			_, _ = svc.Update(ctx, appt.ID, Patch{AppointmentDate: &move})
		}()
	}
	wg.Wait()
	require.NotEmpty(t, ids)

	all, err := repo.Find(ctx, Filter{ExcludeCancelled: true})
	require.NoError(t, err)
	for i, a := range all {
		for _, b := range all[i+1:] {
			if !a.Window().Overlaps(b.Window()) {
				continue
			}
			assert.NotEqual(t, a.PatientID, b.PatientID, "patient double-booked: %s %s", a.ID, b.ID)
			assert.NotEqual(t, a.DoctorID, b.DoctorID, "doctor double-booked: %s %s", a.ID, b.ID)
		}
	}
}

func TestService_ListAvailable(t *testing.T) {
	ctx := context.Background()
	doctor, clinic := uuid.New(), uuid.New()
	date := scheduling.DateOf(now.Add(day), time.UTC)
	tenAM := date.At(10*60, time.UTC)
	wednesday := date.Weekday()

	setup := func(t *testing.T) (*Service, *MemoryRepository) {
		svc, repo := newTestService(t)
		repo.AddWorkshift(scheduling.Workshift{
			DoctorID: doctor, ClinicID: clinic,
			Weekday: &wednesday, StartMinute: 10 * 60, EndMinute: 12 * 60,
		})
		return svc, repo
	}

	t.Run("one booking leaves seven slots", func(t *testing.T) {
		svc, repo := setup(t)
		_, err := repo.Insert(ctx, Appointment{
			PatientID: uuid.New(), DoctorID: doctor, ClinicID: clinic,
			AppointmentDate: tenAM.Add(-15 * time.Minute), Duration: 30, Status: StatusPending,
		})
		require.NoError(t, err)

		seq, err := svc.ListAvailable(ctx, doctor, clinic, date)
		require.NoError(t, err)
		slots := slices.Collect(seq)

		require.Len(t, slots, 7)
		var covered time.Duration
		for _, s := range slots {
			covered += s.Duration()
		}
		assert.Equal(t, 105*time.Minute, covered)
	})

	t.Run("cancelled and other-clinic bookings are ignored", func(t *testing.T) {
		svc, repo := setup(t)
		_, err := repo.Insert(ctx, Appointment{
			PatientID: uuid.New(), DoctorID: doctor, ClinicID: clinic,
			AppointmentDate: tenAM, Duration: 30, Status: StatusCancelled,
		})
		require.NoError(t, err)
		_, err = repo.Insert(ctx, Appointment{
			PatientID: uuid.New(), DoctorID: doctor, ClinicID: uuid.New(),
			AppointmentDate: tenAM.Add(time.Hour), Duration: 30, Status: StatusPending,
		})
		require.NoError(t, err)

		seq, err := svc.ListAvailable(ctx, doctor, clinic, date)
		require.NoError(t, err)
		assert.Len(t, slices.Collect(seq), 8)
	})

	t.Run("booked slot disappears", func(t *testing.T) {
		svc, _ := setup(t)
		d := draftAt(tenAM.Add(30 * time.Minute))
		d.DoctorID, d.ClinicID = doctor, clinic
		_, err := svc.Book(ctx, d)
		require.NoError(t, err)

		seq, err := svc.ListAvailable(ctx, doctor, clinic, date)
		require.NoError(t, err)
		slots := slices.Collect(seq)
		require.Len(t, slots, 6)
		for _, s := range slots {
			assert.False(t, s.Overlaps(scheduling.NewWindow(tenAM.Add(30*time.Minute), 30*time.Minute)))
		}
	})

	t.Run("no workshift means no slots", func(t *testing.T) {
		svc, _ := setup(t)
		seq, err := svc.ListAvailable(ctx, doctor, clinic, scheduling.DateOf(now.Add(2*day), time.UTC))
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(seq))

		seq, err = svc.ListAvailable(ctx, uuid.New(), clinic, date)
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(seq))
	})
}

func TestService_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("complete twice", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(now.Add(day)))
		require.NoError(t, err)

		done, err := svc.Complete(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, done.Status)

		_, err = svc.Complete(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		stored, err := svc.Get(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, stored.Status)
	})

	t.Run("every action from pending", func(t *testing.T) {
		svc, _ := newTestService(t)
		for action, want := range map[Action]AppointmentStatus{
			ActionCancel:   StatusCancelled,
			ActionComplete: StatusCompleted,
			ActionNoShow:   StatusNoShow,
		} {
			appt, err := svc.Book(ctx, draftAt(now.Add(day)))
			require.NoError(t, err)

			updated, err := svc.Transition(ctx, appt.ID, action)
			require.NoError(t, err)
			assert.Equal(t, want, updated.Status)
		}
	})

	t.Run("terminal states are final", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(now.Add(day)))
		require.NoError(t, err)
		_, err = svc.MarkNoShow(ctx, appt.ID)
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = svc.Complete(ctx, appt.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Cancel(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	tomorrow := now.Add(day)

	t.Run("field update on a past appointment", func(t *testing.T) {
		svc, repo := newTestService(t)
		past, err := repo.Insert(ctx, Appointment{
			PatientID: uuid.New(), DoctorID: uuid.New(), ClinicID: uuid.New(),
			Specialty: "family_medicine", Type: TypeConsult,
			AppointmentDate: now.Add(-day), Duration: 30, Status: StatusPending,
		})
		require.NoError(t, err)

		specialty := "dermatology"
		completed := StatusCompleted
		updated, err := svc.Update(ctx, past.ID, Patch{Specialty: &specialty, Status: &completed})
		require.NoError(t, err)
		assert.Equal(t, "dermatology", updated.Specialty)
		assert.Equal(t, StatusCompleted, updated.Status)
	})

	t.Run("moving within its own window", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)

		later := tomorrow.Add(10 * time.Minute)
		updated, err := svc.Update(ctx, appt.ID, Patch{AppointmentDate: &later})
		require.NoError(t, err)
		assert.Equal(t, later, updated.AppointmentDate)
	})

	t.Run("moving onto another booking", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		_, err := svc.Book(ctx, first)
		require.NoError(t, err)

		second := draftAt(tomorrow.Add(2 * time.Hour))
		second.DoctorID = first.DoctorID
		appt, err := svc.Book(ctx, second)
		require.NoError(t, err)

		target := tomorrow.Add(20 * time.Minute)
		_, err = svc.Update(ctx, appt.ID, Patch{AppointmentDate: &target})
		assert.ErrorIs(t, err, ErrDoctorConflict)

		stored, _ := svc.Get(ctx, appt.ID)
		assert.Equal(t, tomorrow.Add(2*time.Hour), stored.AppointmentDate)
	})

	t.Run("longer duration collides with the patient's next booking", func(t *testing.T) {
		svc, _ := newTestService(t)
		first := draftAt(tomorrow)
		appt, err := svc.Book(ctx, first)
		require.NoError(t, err)

		second := draftAt(tomorrow.Add(time.Hour))
		second.PatientID = first.PatientID
		_, err = svc.Book(ctx, second)
		require.NoError(t, err)

		_, err = svc.Update(ctx, appt.ID, Patch{Duration: intPtr(90)})
		assert.ErrorIs(t, err, ErrPatientConflict)
	})

	t.Run("moving into the past", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)

		past := now.Add(-time.Hour)
		_, err = svc.Update(ctx, appt.ID, Patch{AppointmentDate: &past})
		assert.ErrorIs(t, err, ErrPastDate)
	})

	t.Run("status must follow the state machine", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, appt.ID)
		require.NoError(t, err)

		completed := StatusCompleted
		_, err = svc.Update(ctx, appt.ID, Patch{Status: &completed})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		pending := StatusPending
		_, err = svc.Update(ctx, appt.ID, Patch{Status: &pending})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("duration beyond the maximum", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)

		_, err = svc.Update(ctx, appt.ID, Patch{Duration: intPtr(200_000_000)})
		var validErr *ValidationError
		require.ErrorAs(t, err, &validErr)

		stored, _ := svc.Get(ctx, appt.ID)
		assert.Equal(t, DefaultDuration, stored.Duration)
	})

	t.Run("specialty is trimmed before storage", func(t *testing.T) {
		repo := &recordingRepository{MemoryRepository: NewMemoryRepository()}
		svc := NewService(repo, redisclient.NewLocalSubjectLocker(0, 0), testConfig(), zap.NewNop(), WithClock(scheduling.FixedClock(now)))
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)

		specialty := "  dermatology  "
		updated, err := svc.Update(ctx, appt.ID, Patch{Specialty: &specialty})
		require.NoError(t, err)
		assert.Equal(t, "dermatology", updated.Specialty)

		require.Len(t, repo.patches, 1)
		assert.Equal(t, "dermatology", *repo.patches[0].Specialty)
		assert.Equal(t, "  dermatology  ", specialty)
	})

	t.Run("status change is recorded as a transition", func(t *testing.T) {
		m := metrics.NewCollector("clinic")
		svc, repo := newTestService(t, WithMetrics(m))
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)

		completed := StatusCompleted
		_, err = svc.Update(ctx, appt.ID, Patch{Status: &completed})
		require.NoError(t, err)
		_, err = svc.Update(ctx, appt.ID, Patch{Status: &completed})
		require.NoError(t, err, "same status is not a move")

		var types []string
		for _, ev := range repo.Events() {
			types = append(types, ev.EventType)
		}
		assert.Equal(t, []string{
			EventAppointmentBooked,
			EventAppointmentUpdated,
			EventAppointmentCompleted,
			EventAppointmentUpdated,
		}, types)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("complete", "ok")))

		cancelled := StatusCancelled
		_, err = svc.Update(ctx, appt.ID, Patch{Status: &cancelled})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.BookingsTotal.WithLabelValues("update", "ok")))
	})

	t.Run("empty patch", func(t *testing.T) {
		svc, _ := newTestService(t)
		appt, err := svc.Book(ctx, draftAt(tomorrow))
		require.NoError(t, err)

		_, err = svc.Update(ctx, appt.ID, Patch{})
		var validErr *ValidationError
		assert.ErrorAs(t, err, &validErr)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _ := newTestService(t)
		specialty := "x"
		_, err := svc.Update(ctx, uuid.New(), Patch{Specialty: &specialty})
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestService_Delete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := draftAt(now.Add(day))
	appt, err := svc.Book(ctx, first)
	require.NoError(t, err)
	other, err := svc.Book(ctx, draftAt(now.Add(day)))
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, deleted.ID)
	assert.Equal(t, appt.AppointmentDate, deleted.AppointmentDate)

	_, err = svc.Get(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	all, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, other.ID, all[0].ID)

	// The freed interval can be booked again.
	_, err = svc.Book(ctx, first)
	assert.NoError(t, err)

	_, err = svc.Delete(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestService_ListBySubject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := draftAt(now.Add(day))
	_, err := svc.Book(ctx, d)
	require.NoError(t, err)
	_, err = svc.Book(ctx, draftAt(now.Add(2*day)))
	require.NoError(t, err)

	byPatient, err := svc.ListByPatient(ctx, d.PatientID)
	require.NoError(t, err)
	assert.Len(t, byPatient, 1)

	byDoctor, err := svc.ListByDoctor(ctx, d.DoctorID)
	require.NoError(t, err)
	assert.Len(t, byDoctor, 1)

	byClinic, err := svc.ListByClinic(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, byClinic)
}

type failingRepository struct {
	*MemoryRepository
	err error
}

func (r *failingRepository) Insert(context.Context, Appointment) (*Appointment, error) {
	return nil, r.err
}

func TestService_StorageFailurePropagates(t *testing.T) {
	storageErr := errors.New("connection refused")
	repo := &failingRepository{MemoryRepository: NewMemoryRepository(), err: storageErr}
	svc := NewService(repo, redisclient.NewLocalSubjectLocker(0, 0), testConfig(), zap.NewNop(),
		WithClock(scheduling.FixedClock(now)))

	_, err := svc.Book(context.Background(), draftAt(now.Add(day)))
	require.ErrorIs(t, err, storageErr)
	assert.NotErrorIs(t, err, ErrDoctorConflict)
	assert.NotErrorIs(t, err, ErrPatientConflict)
}

type busyLocker struct{}

func (busyLocker) WithSubjectLocks(context.Context, []string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestService_BookWhileSubjectBusy(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, busyLocker{}, testConfig(), zap.NewNop(), WithClock(scheduling.FixedClock(now)))

	_, err := svc.Book(context.Background(), draftAt(now.Add(day)))
	assert.ErrorIs(t, err, ErrSubjectBusy)

	all, _ := repo.Find(context.Background(), Filter{})
	assert.Empty(t, all)
}

type recordingRepository struct {
	*MemoryRepository
	patches []Patch
}

func (r *recordingRepository) UpdateByID(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error) {
	r.patches = append(r.patches, patch)
	return r.MemoryRepository.UpdateByID(ctx, id, from, patch)
}

type mockWeather struct {
	mock.Mock
}

func (m *mockWeather) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*weather.Forecast, error) {
	args := m.Called(ctx, lat, lon, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*weather.Forecast), args.Error(1)
}

func TestService_GetWithWeather(t *testing.T) {
	ctx := context.Background()

	t.Run("forecast attached", func(t *testing.T) {
		provider := new(mockWeather)
		svc, repo := newTestService(t, WithWeather(provider))
		clinic := repo.AddClinic(Clinic{Name: "Centro", Latitude: 40.4, Longitude: -3.7})

		d := draftAt(now.Add(day))
		d.ClinicID = clinic.ID
		appt, err := svc.Book(ctx, d)
		require.NoError(t, err)

		provider.On("Forecast", mock.Anything, 40.4, -3.7, appt.AppointmentDate).
			Return(&weather.Forecast{TemperatureC: 18, Summary: "clear sky"}, nil)

		result, err := svc.GetWithWeather(ctx, appt.ID)
		require.NoError(t, err)
		require.NotNil(t, result.Weather)
		assert.Equal(t, "clear sky", result.Weather.Summary)
		assert.Empty(t, result.WeatherError)
		provider.AssertExpectations(t)
	})

	t.Run("provider failure does not fail the read", func(t *testing.T) {
		provider := new(mockWeather)
		svc, repo := newTestService(t, WithWeather(provider))
		clinic := repo.AddClinic(Clinic{Name: "Norte"})

		d := draftAt(now.Add(day))
		d.ClinicID = clinic.ID
		appt, err := svc.Book(ctx, d)
		require.NoError(t, err)

		provider.On("Forecast", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, weather.ErrUnavailable)

		result, err := svc.GetWithWeather(ctx, appt.ID)
		require.NoError(t, err)
		assert.Nil(t, result.Weather)
		assert.Contains(t, result.WeatherError, "unavailable")
		assert.Equal(t, appt.ID, result.Appointment.ID)
	})

	t.Run("unknown clinic", func(t *testing.T) {
		provider := new(mockWeather)
		svc, _ := newTestService(t, WithWeather(provider))
		appt, err := svc.Book(ctx, draftAt(now.Add(day)))
		require.NoError(t, err)

		result, err := svc.GetWithWeather(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, "clinic location unknown", result.WeatherError)
		provider.AssertNotCalled(t, "Forecast")
	})

	t.Run("unknown appointment", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.GetWithWeather(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}
