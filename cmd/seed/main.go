package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
	"github.com/hackgods/clinic-appointment-scheduling/internal/scheduling"
)

type seedConfig struct {
	Clinics          int
	DoctorsPerClinic int
	Patients         int
	Appointments     int
	Now              time.Time
	Seed             uint64
	Reset            bool
}

func main() {
	log, err := logger.New("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", zap.Error(err))
	}
	if cfg.StoreDriver != config.StorePostgres {
		log.Fatal("seed needs STORE_DRIVER=postgres")
	}

	sc, err := loadSeedConfig()
	if err != nil {
		log.Fatal("invalid seed config", zap.Error(err))
	}
	log.Info("seed starting",
		zap.Time("now", sc.Now),
		zap.Int("clinics", sc.Clinics),
		zap.Int("doctors_per_clinic", sc.DoctorsPerClinic),
		zap.Int("appointments", sc.Appointments),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	if sc.Reset {
		if _, err := pool.Exec(ctx, `TRUNCATE appointments, workshifts, clinics, event_logs`); err != nil {
			log.Fatal("reset tables", zap.Error(err))
		}
		log.Info("existing data removed")
	}

	faker := gofakeit.New(sc.Seed)
	plan := newPlan(faker, sc, cfg.Location())

	if err := seedClinics(ctx, pool, plan.Clinics); err != nil {
		log.Fatal("seed clinics", zap.Error(err))
	}
	log.Info("clinics seeded", zap.Int("count", len(plan.Clinics)))

	if err := seedWorkshifts(ctx, pool, plan.Shifts); err != nil {
		log.Fatal("seed workshifts", zap.Error(err))
	}
	log.Info("workshifts seeded", zap.Int("count", len(plan.Shifts)))

	inserted, skipped, err := seedAppointments(ctx, appointment.NewPgRepository(pool), plan.Appointments)
	if err != nil {
		log.Fatal("seed appointments", zap.Error(err))
	}
	log.Info("appointments seeded", zap.Int("inserted", inserted), zap.Int("skipped_overlaps", skipped))

	log.Info("seed complete")
}

func loadSeedConfig() (seedConfig, error) {
	sc := seedConfig{
		Clinics:          getInt("SEED_CLINICS", 3),
		DoctorsPerClinic: getInt("SEED_DOCTORS_PER_CLINIC", 4),
		Patients:         getInt("SEED_PATIENTS", 200),
		Appointments:     getInt("SEED_APPOINTMENTS", 300),
		Now:              time.Now(),
		Reset:            os.Getenv("SEED_RESET") == "true",
	}

	if raw := os.Getenv("SEED_NOW"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return sc, fmt.Errorf("SEED_NOW must be RFC3339: %w", err)
		}
		sc.Now = t
	}
	if raw := os.Getenv("SEED_RANDOM_SEED"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return sc, fmt.Errorf("SEED_RANDOM_SEED must be an unsigned integer: %w", err)
		}
		sc.Seed = n
	}

	if sc.Clinics <= 0 || sc.DoctorsPerClinic <= 0 || sc.Patients <= 0 {
		return sc, errors.New("SEED_CLINICS, SEED_DOCTORS_PER_CLINIC and SEED_PATIENTS must be positive")
	}
	return sc, nil
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, clinics []appointment.Clinic) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range clinics {
		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, latitude, longitude, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, c.ID, c.Name, c.Latitude, c.Longitude)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedWorkshifts(ctx context.Context, pool *pgxpool.Pool, shifts []scheduling.Workshift) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range shifts {
		var weekday *int16
		if s.Weekday != nil {
			w := int16(*s.Weekday)
			weekday = &w
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO workshifts (id, doctor_id, clinic_id, starts_at, ends_at, weekday, start_minute, end_minute, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		`, s.ID, s.DoctorID, s.ClinicID, s.StartsAt, s.EndsAt, weekday, s.StartMinute, s.EndMinute)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedAppointments inserts through the repository so the exclusion
// constraints still apply; overlaps with existing data are skipped.
func seedAppointments(ctx context.Context, repo appointment.Repository, list []appointment.Appointment) (inserted, skipped int, err error) {
	for _, a := range list {
		if _, err := repo.Insert(ctx, a); err != nil {
			if errors.Is(err, appointment.ErrPatientConflict) || errors.Is(err, appointment.ErrDoctorConflict) {
				skipped++
				continue
			}
			return inserted, skipped, err
		}
		inserted++
	}
	return inserted, skipped, nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
