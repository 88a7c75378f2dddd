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

// PgCatalog reads provider records and weekly schedule windows.
type PgCatalog struct {
	pool db.Pool
}

func NewPgCatalog(pool db.Pool) *PgCatalog {
	return &PgCatalog{pool: pool}
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&specialty,
		&p.IsAvailable,
		&p.SlotDurationMinutes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.New(apperror.KindNotFound, "provider not found")
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanWindow(row pgx.Row) (*ScheduleWindow, error) {
	var w ScheduleWindow
	var weekday int
	var breakStart, breakEnd *int

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&weekday,
		&w.StartMinute,
		&w.EndMinute,
		&breakStart,
		&breakEnd,
		&w.IsActive,
	)
	if err != nil {
		return nil, err
	}

	w.Weekday = time.Weekday(weekday)
	w.BreakStart = breakStart
	w.BreakEnd = breakEnd
	return &w, nil
}

func (c *PgCatalog) Provider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, specialty, is_available, slot_duration_minutes, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

// Window returns the provider's schedule window for a weekday, or nil
// when the provider does not work that day.
func (c *PgCatalog) Window(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*ScheduleWindow, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, provider_id, weekday, start_minute, end_minute, break_start, break_end, is_active
		FROM provider_schedules
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int(weekday))

	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load schedule window: %w", err)
	}
	return w, nil
}
