package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinicbase/appointment-scheduling/internal/api"
	"github.com/clinicbase/appointment-scheduling/internal/appointment"
	"github.com/clinicbase/appointment-scheduling/internal/clock"
	"github.com/clinicbase/appointment-scheduling/internal/config"
	"github.com/clinicbase/appointment-scheduling/internal/db"
	"github.com/clinicbase/appointment-scheduling/internal/observability/metrics"
	redisclient "github.com/clinicbase/appointment-scheduling/internal/redis"
	"github.com/clinicbase/appointment-scheduling/internal/schedule"
	"github.com/clinicbase/appointment-scheduling/internal/slot"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	initLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	loc := cfg.Location()
	clk := clock.System()

	catalog := schedule.NewPgCatalog(pgPool)
	absences := schedule.NewPgAbsenceRegistry(pgPool)
	ledger := appointment.NewPgLedger(pgPool)
	planner := slot.NewPlanner(catalog, absences, ledger, clk, loc)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	bookingMetrics := metrics.NewBookingMetrics(nil)

	svc := appointment.NewService(appointment.ServiceParams{
		Ledger:       ledger,
		Providers:    catalog,
		Planner:      planner,
		Locker:       locker,
		Clock:        clk,
		Location:     loc,
		PendingCap:   cfg.PatientPendingCap,
		MaxRetries:   cfg.TxMaxRetries,
		RetryBackoff: cfg.TxRetryBackoff,
		Metrics:      bookingMetrics,
		Logger:       log.Logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Absences: absences,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
		Logger:   log.Logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func initLogger(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Str("service", "appointment-scheduling").Logger()
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "appointment-scheduling").
		Logger()
}
