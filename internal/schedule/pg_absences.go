package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicbase/appointment-scheduling/internal/db"
	"github.com/clinicbase/appointment-scheduling/pkg/apperror"
)

// PgAbsenceRegistry stores provider leave intervals.
type PgAbsenceRegistry struct {
	pool db.Pool
}

func NewPgAbsenceRegistry(pool db.Pool) *PgAbsenceRegistry {
	return &PgAbsenceRegistry{pool: pool}
}

func scanAbsence(row pgx.Row) (*Absence, error) {
	var a Absence
	var startMinute, endMinute *int

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.StartDate,
		&a.EndDate,
		&a.IsFullDay,
		&startMinute,
		&endMinute,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.StartMinute = startMinute
	a.EndMinute = endMinute
	return &a, nil
}

const absenceColumns = `id, provider_id, start_date, end_date, is_full_day, start_minute, end_minute, status, reason, created_at`

// FullDayAbsence returns an active full-day absence covering date, or nil.
func (r *PgAbsenceRegistry) FullDayAbsence(ctx context.Context, providerID uuid.UUID, date time.Time) (*Absence, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+absenceColumns+`
		FROM absences
		WHERE provider_id = $1
		  AND status = 'active'
		  AND is_full_day = TRUE
		  AND start_date <= $2 AND end_date >= $2
		LIMIT 1
	`, providerID, date)

	a, err := scanAbsence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load full-day absence: %w", err)
	}
	return a, nil
}

// PartialAbsence returns an active partial-day absence covering date, or nil.
func (r *PgAbsenceRegistry) PartialAbsence(ctx context.Context, providerID uuid.UUID, date time.Time) (*Absence, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+absenceColumns+`
		FROM absences
		WHERE provider_id = $1
		  AND status = 'active'
		  AND is_full_day = FALSE
		  AND start_date <= $2 AND end_date >= $2
		LIMIT 1
	`, providerID, date)

	a, err := scanAbsence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load partial absence: %w", err)
	}
	return a, nil
}

// CreateAbsence registers a new leave interval for a provider.
func (r *PgAbsenceRegistry) CreateAbsence(ctx context.Context, a *Absence) (*Absence, error) {
	if a.EndDate.Before(a.StartDate) {
		return nil, apperror.New(apperror.KindValidation, "absence end date precedes start date")
	}
	if !a.IsFullDay {
		if a.StartMinute == nil || a.EndMinute == nil {
			return nil, apperror.New(apperror.KindValidation, "partial-day absence requires start and end times")
		}
		if *a.EndMinute <= *a.StartMinute {
			return nil, apperror.New(apperror.KindValidation, "absence end time must be after start time")
		}
	}

	id := uuid.New()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO absences (id, provider_id, start_date, end_date, is_full_day, start_minute, end_minute, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8, now())
		RETURNING `+absenceColumns+`
	`, id, a.ProviderID, a.StartDate, a.EndDate, a.IsFullDay, a.StartMinute, a.EndMinute, a.Reason)

	return scanAbsence(row)
}

// CancelAbsence deactivates a leave interval.
func (r *PgAbsenceRegistry) CancelAbsence(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE absences
		SET status = 'cancelled'
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return fmt.Errorf("cancel absence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.KindNotFound, "active absence not found")
	}
	return nil
}
