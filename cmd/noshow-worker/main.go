package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinicbase/appointment-scheduling/internal/appointment"
	"github.com/clinicbase/appointment-scheduling/internal/clock"
	"github.com/clinicbase/appointment-scheduling/internal/config"
	"github.com/clinicbase/appointment-scheduling/internal/db"
	"github.com/clinicbase/appointment-scheduling/internal/observability/metrics"
)

// The sweeper flips appointments that were never cancelled and never
// seen into no_show once their start lies past the grace window. That
// frees the patient's pending-capacity without renumbering tokens.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "noshow-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("grace", cfg.NoShowGrace).
		Msg("noshow-worker starting up")

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

	ledger := appointment.NewPgLedger(pgPool)
	svc := appointment.NewService(appointment.ServiceParams{
		Ledger:   ledger,
		Clock:    clock.System(),
		Location: cfg.Location(),
		Metrics:  metrics.NewBookingMetrics(nil),
		Logger:   log.Logger,
	})

	runOnce(rootCtx, svc, cfg.NoShowGrace)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping noshow-worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.NoShowGrace)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, grace time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.MarkOverdueNoShows(runCtx, grace)
	if err != nil {
		log.Error().Err(err).Msg("no-show sweep error")
		return
	}
	log.Info().Int64("updated", n).Dur("took", time.Since(start)).Msg("no-show sweep complete")
}
