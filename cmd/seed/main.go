package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/appointment-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	tenantID := uuid.New()
	log.Printf("seeding tenant %s", tenantID)

	if err := seedProviders(context.Background(), pool, tenantID, 50); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, tenantID, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, count int) error {
	log.Printf("seeding %d providers with weekly schedules", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	durations := []int{15, 20, 30, 45}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		duration := durations[gofakeit.Number(0, len(durations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, tenant_id, name, specialty, is_available, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, $5, now(), now())
		`, id, tenantID, name, spec, duration)
		if err != nil {
			return err
		}

		// Monday through Saturday, 09:00-17:00 with a 13:00-14:00 lunch break.
		for weekday := 1; weekday <= 6; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO provider_schedules (id, provider_id, weekday, start_minute, end_minute, break_start, break_end, is_active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			`, uuid.New(), id, weekday, 9*60, 17*60, 13*60, 14*60)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, tenant_id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, tenantID, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
