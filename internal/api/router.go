package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service     *appointment.Service
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	JWTSecret   string
	HorizonDays int
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", cfg.Metrics.Handler())

	h := NewHandler(cfg.Service, log, cfg.HorizonDays)

	r.Route("/appointments", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Get("/", h.ListAppointments)
		r.Post("/", h.CreateAppointment)
		r.Get("/available", h.ListAvailable)

		r.Get("/patient/{id}", h.listBy(cfg.Service.ListByPatient))
		r.Get("/doctor/{id}", h.listBy(cfg.Service.ListByDoctor))
		r.Get("/clinic/{id}", h.listBy(cfg.Service.ListByClinic))

		r.Get("/{id}", h.GetAppointment)
		r.Get("/{id}/weather", h.GetAppointmentWeather)
		r.Put("/{id}", h.UpdateAppointment)
		r.Delete("/{id}", h.DeleteAppointment)
		r.Put("/{id}/cancel", h.transitionHandler(appointment.ActionCancel))
		r.Put("/{id}/complete", h.transitionHandler(appointment.ActionComplete))
		r.Put("/{id}/noshow", h.transitionHandler(appointment.ActionNoShow))
	})

	return r
}
