package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicbase/appointment-scheduling/internal/appointment"
	"github.com/clinicbase/appointment-scheduling/internal/schedule"
)

type RouterConfig struct {
	Service  *appointment.Service
	Absences *schedule.PgAbsenceRegistry
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
	Logger   zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Slot queries are read-only and need no tenant scoping.
	r.Get("/providers/{id}/slots", getSlotsHandler(cfg.Service))

	// Provider absence administration
	r.Post("/providers/{id}/absences", createAbsenceHandler(cfg.Absences))
	r.Post("/absences/{id}/cancel", cancelAbsenceHandler(cfg.Absences))

	// Appointment endpoints, tenant-scoped
	r.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	})

	return r
}
