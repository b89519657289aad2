package main

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

var specialties = []string{
	"dermatology",
	"cardiology",
	"family_medicine",
	"orthopedics",
	"endocrinology",
	"neurology",
	"pediatrics",
	"psychiatry",
	"ophthalmology",
	"ent",
}

var durations = []int{15, 30, 30, 45, 60}

type doctor struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Specialty string
}

type plan struct {
	Clinics      []appointment.Clinic
	Doctors      []doctor
	Patients     []uuid.UUID
	Shifts       []scheduling.Workshift
	Appointments []appointment.Appointment
}

// newPlan builds the whole data set in memory. Dates are relative to
// sc.Now: appointments range from a week before it to two weeks after, and
// the past ones carry a terminal status.
func newPlan(f *gofakeit.Faker, sc seedConfig, loc *time.Location) plan {
	var p plan

	for i := 0; i < sc.Clinics; i++ {
		clinic := appointment.Clinic{
			ID:        uuid.New(),
			Name:      f.City() + " Medical Center",
			Latitude:  f.Float64Range(36.0, 43.5),
			Longitude: f.Float64Range(-9.0, 3.0),
		}
		p.Clinics = append(p.Clinics, clinic)

		for j := 0; j < sc.DoctorsPerClinic; j++ {
			d := doctor{
				ID:        uuid.New(),
				ClinicID:  clinic.ID,
				Specialty: specialties[f.Number(0, len(specialties)-1)],
			}
			p.Doctors = append(p.Doctors, d)
			p.Shifts = append(p.Shifts, weeklyShifts(f, d)...)
		}
	}

	for i := 0; i < sc.Patients; i++ {
		p.Patients = append(p.Patients, uuid.New())
	}

	today := scheduling.DateOf(sc.Now, loc)
	p.Shifts = append(p.Shifts, overrideShifts(f, p.Doctors, today, loc)...)
	p.Appointments = planAppointments(f, sc, loc, p)

	return p
}

// weeklyShifts gives a doctor a Monday to Friday recurring shift, starting
// at 8, 9 or 10 and lasting six to eight hours.
func weeklyShifts(f *gofakeit.Faker, d doctor) []scheduling.Workshift {
	start := (8 + f.Number(0, 2)) * 60
	end := start + (6+f.Number(0, 2))*60

	var out []scheduling.Workshift
	for wd := time.Monday; wd <= time.Friday; wd++ {
		weekday := wd
		out = append(out, scheduling.Workshift{
			ID:          uuid.New(),
			DoctorID:    d.ID,
			ClinicID:    d.ClinicID,
			Weekday:     &weekday,
			StartMinute: start,
			EndMinute:   end,
		})
	}
	return out
}

// overrideShifts adds a dated morning shift for a few doctors three days
// from today, replacing their recurring hours on that date.
func overrideShifts(f *gofakeit.Faker, doctors []doctor, today scheduling.Date, loc *time.Location) []scheduling.Workshift {
	day := scheduling.DateOf(today.At(0, loc).AddDate(0, 0, 3), loc)

	var out []scheduling.Workshift
	for _, d := range doctors {
		if f.Number(0, 3) != 0 {
			continue
		}
		start := day.At(7*60, loc)
		end := day.At(12*60, loc)
		out = append(out, scheduling.Workshift{
			ID:       uuid.New(),
			DoctorID: d.ID,
			ClinicID: d.ClinicID,
			StartsAt: &start,
			EndsAt:   &end,
		})
	}
	return out
}

func planAppointments(f *gofakeit.Faker, sc seedConfig, loc *time.Location, p plan) []appointment.Appointment {
	if len(p.Doctors) == 0 || len(p.Patients) == 0 {
		return nil
	}

	today := scheduling.DateOf(sc.Now, loc)
	shiftsByDoctor := make(map[uuid.UUID][]scheduling.Workshift)
	for _, s := range p.Shifts {
		shiftsByDoctor[s.DoctorID] = append(shiftsByDoctor[s.DoctorID], s)
	}

	var out []appointment.Appointment
	// Bounded so sparse shifts cannot loop forever.
	for attempt := 0; len(out) < sc.Appointments && attempt < sc.Appointments*10; attempt++ {
		d := p.Doctors[f.Number(0, len(p.Doctors)-1)]
		date := scheduling.DateOf(today.At(12*60, loc).AddDate(0, 0, f.Number(-7, 14)), loc)

		shift, ok := scheduling.ResolveShift(shiftsByDoctor[d.ID], date, loc)
		if !ok {
			continue
		}

		duration := durations[f.Number(0, len(durations)-1)]
		length := time.Duration(duration) * time.Minute
		steps := int((shift.Duration() - length) / (15 * time.Minute))
		if steps < 0 {
			continue
		}
		start := shift.Start.Add(time.Duration(f.Number(0, steps)) * 15 * time.Minute)

		a := appointment.Appointment{
			ID:              uuid.New(),
			PatientID:       p.Patients[f.Number(0, len(p.Patients)-1)],
			ClinicID:        d.ClinicID,
			DoctorID:        d.ID,
			Specialty:       d.Specialty,
			Type:            []appointment.AppointmentType{appointment.TypeConsult, appointment.TypeFollowUp, appointment.TypeRevision}[f.Number(0, 2)],
			AppointmentDate: start,
			Duration:        duration,
			Status:          statusFor(f, start, sc.Now),
		}
		if a.Status != appointment.StatusCancelled && appointment.CheckConflicts(a, out) != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

func statusFor(f *gofakeit.Faker, start, now time.Time) appointment.AppointmentStatus {
	if !start.Before(now) {
		if f.Number(0, 9) == 0 {
			return appointment.StatusCancelled
		}
		return appointment.StatusPending
	}
	switch n := f.Number(0, 9); {
	case n < 7:
		return appointment.StatusCompleted
	case n < 9:
		return appointment.StatusNoShow
	default:
		return appointment.StatusCancelled
	}
}
