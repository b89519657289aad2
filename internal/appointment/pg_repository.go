package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

// Constraint names from the schema's exclusion constraints.
const (
	constraintPatientOverlap = "appointments_patient_no_overlap"
	constraintDoctorOverlap  = "appointments_doctor_no_overlap"

	sqlstateExclusionViolation = "23P01"
)

const appointmentColumns = `id, patient_id, clinic_id, doctor_id, specialty, type, appointment_date, duration, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ClinicID,
		&a.DoctorID,
		&a.Specialty,
		&a.Type,
		&a.AppointmentDate,
		&a.Duration,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanWorkshift(row pgx.Row) (*scheduling.Workshift, error) {
	var s scheduling.Workshift
	var weekday *int16

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.ClinicID,
		&s.StartsAt,
		&s.EndsAt,
		&weekday,
		&s.StartMinute,
		&s.EndMinute,
	)
	if err != nil {
		return nil, err
	}

	if weekday != nil {
		wd := time.Weekday(*weekday)
		s.Weekday = &wd
	}
	return &s, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic

	err := row.Scan(&c.ID, &c.Name, &c.Latitude, &c.Longitude, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

// mapOverlapViolation turns a storage-level overlap rejection into the same
// error the service returns when its own check catches the conflict.
func mapOverlapViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != sqlstateExclusionViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintPatientOverlap:
		return ErrPatientConflict
	case constraintDoctorOverlap:
		return ErrDoctorConflict
	}
	return err
}

func optionalString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func buildFindQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.PatientID != nil {
		where = append(where, "patient_id = "+arg(*f.PatientID))
	}
	if f.DoctorID != nil {
		where = append(where, "doctor_id = "+arg(*f.DoctorID))
	}
	if f.ClinicID != nil {
		where = append(where, "clinic_id = "+arg(*f.ClinicID))
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}
	if f.ExcludeCancelled {
		where = append(where, "status <> 'cancelled'")
	}
	if f.Window != nil {
		where = append(where, "appointment_date < "+arg(f.Window.End))
		where = append(where, "ends_at > "+arg(f.Window.Start))
	}

	var b strings.Builder
	b.WriteString("SELECT " + appointmentColumns + " FROM appointments")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY appointment_date, id")
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	if f.Offset > 0 {
		b.WriteString(" OFFSET " + arg(f.Offset))
	}
	return b.String(), args
}

// Interface methods

func (r *PgRepository) Find(ctx context.Context, f Filter) ([]Appointment, error) {
	query, args := buildFindQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Insert(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, clinic_id, doctor_id, specialty, type, appointment_date, ends_at, duration, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.ClinicID, a.DoctorID, a.Specialty, string(a.Type),
		a.AppointmentDate, a.EndsAt(), a.Duration, string(a.Status))

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapOverlapViolation(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateByID(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET specialty = COALESCE($3, specialty),
		    type = COALESCE($4, type),
		    appointment_date = COALESCE($5, appointment_date),
		    duration = COALESCE($6, duration),
		    ends_at = COALESCE($5, appointment_date) + make_interval(mins => COALESCE($6, duration)),
		    status = COALESCE($7, status),
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, string(from), patch.Specialty, optionalString(patch.Type),
		patch.AppointmentDate, patch.Duration, optionalString(patch.Status))

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapOverlapViolation(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) FindWorkshifts(ctx context.Context, doctorID, clinicID uuid.UUID) ([]scheduling.Workshift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, clinic_id, starts_at, ends_at, weekday, start_minute, end_minute
		FROM workshifts
		WHERE doctor_id = $1
		  AND clinic_id = $2
	`, doctorID, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []scheduling.Workshift
	for rows.Next() {
		s, err := scanWorkshift(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, latitude, longitude, created_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
