package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbase/appointment-scheduling/internal/db"
	"github.com/clinicbase/appointment-scheduling/pkg/apperror"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"

	providerSlotIndex = "appointments_provider_slot_live_idx"
	patientSlotIndex  = "appointments_patient_slot_live_idx"
)

const appointmentColumns = `id, tenant_id, patient_id, provider_id, date, start_minute, end_minute, status, token_number, reason, notes, cancellation_reason, created_at, updated_at`

// PgLedger is the Postgres appointment store. Every mutation that has
// to observe other rows runs inside one serializable transaction, so
// two concurrent attempts on the same slot cannot both see it free.
type PgLedger struct {
	pool db.Pool
}

func NewPgLedger(pool db.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancellationReason *string

	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.PatientID,
		&a.ProviderID,
		&a.Date,
		&a.StartMinute,
		&a.EndMinute,
		&a.Status,
		&a.TokenNumber,
		&a.Reason,
		&a.Notes,
		&cancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.New(apperror.KindNotFound, "appointment not found")
		}
		return nil, err
	}

	a.CancellationReason = cancellationReason
	return &a, nil
}

// translatePgError maps isolation aborts and partial-unique violations
// onto the error taxonomy; anything else passes through for wrapping.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return apperror.Wrap(apperror.KindTransientConflict, "booking aborted by a concurrent attempt", err)
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case providerSlotIndex:
			return apperror.New(apperror.KindSlotConflict, "slot is already booked for this provider")
		case patientSlotIndex:
			return apperror.New(apperror.KindPatientConflict, "patient already has an appointment at this time")
		}
	}
	return err
}

func (l *PgLedger) withSerializableTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin serializable tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return translatePgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError(err)
	}
	return nil
}

// checkPatientConflict looks for a live appointment the patient already
// holds at the same date and start on any provider. The error message
// names the conflicting provider.
func (l *PgLedger) checkPatientConflict(ctx context.Context, tx pgx.Tx, tenantID, patientID uuid.UUID, date time.Time, startMinute int, excludeID uuid.UUID) error {
	var providerName string
	err := tx.QueryRow(ctx, `
		SELECT p.name
		FROM appointments a
		JOIN providers p ON p.id = a.provider_id
		WHERE a.tenant_id = $1
		  AND a.patient_id = $2
		  AND a.date = $3
		  AND a.start_minute = $4
		  AND a.status NOT IN ('cancelled', 'no_show')
		  AND a.id <> $5
		LIMIT 1
	`, tenantID, patientID, date, startMinute, excludeID).Scan(&providerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("check patient conflict: %w", err)
	}
	return apperror.Newf(apperror.KindPatientConflict,
		"patient already has an appointment with %s at this time", providerName)
}

func (l *PgLedger) checkSlotConflict(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, date time.Time, startMinute int, excludeID uuid.UUID) error {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		  AND start_minute = $3
		  AND status NOT IN ('cancelled', 'no_show')
		  AND id <> $4
		LIMIT 1
	`, providerID, date, startMinute, excludeID).Scan(&existingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("check slot conflict: %w", err)
	}
	return apperror.New(apperror.KindSlotConflict, "slot is already booked for this provider")
}

// nextToken assigns the next queue ticket for (provider, date). The max
// runs over every row regardless of status so cancelled tokens are
// never handed out again.
func (l *PgLedger) nextToken(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, date time.Time) (int, error) {
	var token int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(token_number), 0) + 1
		FROM appointments
		WHERE provider_id = $1 AND date = $2
	`, providerID, date).Scan(&token)
	if err != nil {
		return 0, fmt.Errorf("compute next token: %w", err)
	}
	return token, nil
}

func asOfParts(asOf time.Time) (time.Time, int) {
	y, m, d := asOf.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, asOf.Location())
	minute := asOf.Hour()*60 + asOf.Minute()
	return date, minute
}

func (l *PgLedger) Create(ctx context.Context, cand Candidate) (*Appointment, error) {
	var created *Appointment

	err := l.withSerializableTx(ctx, func(tx pgx.Tx) error {
		if err := l.checkPatientConflict(ctx, tx, cand.TenantID, cand.PatientID, cand.Date, cand.StartMinute, uuid.Nil); err != nil {
			return err
		}
		if err := l.checkSlotConflict(ctx, tx, cand.ProviderID, cand.Date, cand.StartMinute, uuid.Nil); err != nil {
			return err
		}

		asOfDate, asOfMinute := asOfParts(cand.AsOf)
		var pending int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM appointments
			WHERE tenant_id = $1
			  AND patient_id = $2
			  AND status IN ('scheduled', 'confirmed')
			  AND (date > $3 OR (date = $3 AND start_minute > $4))
		`, cand.TenantID, cand.PatientID, asOfDate, asOfMinute).Scan(&pending)
		if err != nil {
			return fmt.Errorf("count pending appointments: %w", err)
		}
		if pending >= cand.PendingCap {
			return apperror.Newf(apperror.KindCapacityExceeded,
				"patient already has %d upcoming appointments (limit %d)", pending, cand.PendingCap)
		}

		token, err := l.nextToken(ctx, tx, cand.ProviderID, cand.Date)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, tenant_id, patient_id, provider_id, date, start_minute, end_minute, status, token_number, reason, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $9, $10, now(), now())
			RETURNING `+appointmentColumns+`
		`, uuid.New(), cand.TenantID, cand.PatientID, cand.ProviderID, cand.Date, cand.StartMinute, cand.EndMinute, token, cand.Reason, cand.Notes)

		created, err = scanAppointment(row)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (l *PgLedger) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStart, newEnd int, asOf time.Time) (*Appointment, error) {
	var updated *Appointment

	err := l.withSerializableTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
		`, id)
		existing, err := scanAppointment(row)
		if err != nil {
			return err
		}
		if existing.Status.Terminal() {
			return apperror.Newf(apperror.KindInvalidState,
				"cannot reschedule a %s appointment", existing.Status)
		}

		if err := l.checkPatientConflict(ctx, tx, existing.TenantID, existing.PatientID, newDate, newStart, id); err != nil {
			return err
		}
		if err := l.checkSlotConflict(ctx, tx, existing.ProviderID, newDate, newStart, id); err != nil {
			return err
		}

		token, err := l.nextToken(ctx, tx, existing.ProviderID, newDate)
		if err != nil {
			return err
		}

		audit := fmt.Sprintf("Rescheduled from %s %s to %s %s on %s",
			existing.Date.Format("2006-01-02"), minuteClock(existing.StartMinute),
			newDate.Format("2006-01-02"), minuteClock(newStart),
			asOf.Format("2006-01-02 15:04"))

		row = tx.QueryRow(ctx, `
			UPDATE appointments
			SET date = $2,
			    start_minute = $3,
			    end_minute = $4,
			    token_number = $5,
			    notes = CASE WHEN notes = '' THEN $6 ELSE notes || E'\n' || $6 END,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+appointmentColumns+`
		`, id, newDate, newStart, newEnd, token, audit)

		updated, err = scanAppointment(row)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (l *PgLedger) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	// Single conditional update; sibling token numbers keep their gaps.
	var cancelledID uuid.UUID
	err := l.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING id
	`, id, reason).Scan(&cancelledID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("cancel appointment: %w", translatePgError(err))
	}

	// No row updated: either missing or already cancelled.
	var status Status
	err = l.pool.QueryRow(ctx, `
		SELECT status FROM appointments WHERE id = $1
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.New(apperror.KindNotFound, "appointment not found")
		}
		return fmt.Errorf("load appointment status: %w", err)
	}
	return apperror.New(apperror.KindAlreadyCancelled, "appointment is already cancelled")
}

func (l *PgLedger) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (l *PgLedger) ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter ListFilter, asOf time.Time, limit, offset int) ([]Appointment, error) {
	asOfDate, asOfMinute := asOfParts(asOf)

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE tenant_id = $1 AND patient_id = $2
	`
	args := []any{tenantID, patientID}

	switch filter {
	case FilterUpcoming:
		query += ` AND (date > $3 OR (date = $3 AND start_minute >= $4))
			ORDER BY date, start_minute`
		args = append(args, asOfDate, asOfMinute)
	case FilterPast:
		query += ` AND (date < $3 OR (date = $3 AND start_minute < $4))
			ORDER BY date DESC, start_minute DESC`
		args = append(args, asOfDate, asOfMinute)
	default:
		query += ` ORDER BY date DESC, start_minute DESC`
	}

	query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, offset)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
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

func (l *PgLedger) BookedStartMinutes(ctx context.Context, providerID uuid.UUID, date time.Time) (map[int]bool, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT start_minute
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		  AND status NOT IN ('cancelled', 'no_show')
	`, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked start minutes: %w", err)
	}
	defer rows.Close()

	booked := make(map[int]bool)
	for rows.Next() {
		var start int
		if err := rows.Scan(&start); err != nil {
			return nil, err
		}
		booked[start] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return booked, nil
}

func (l *PgLedger) MarkOverdueNoShows(ctx context.Context, cutoffDate time.Time, cutoffMinute int) (int64, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'no_show',
		    updated_at = now()
		WHERE status = 'scheduled'
		  AND (date < $1 OR (date = $1 AND start_minute < $2))
	`, cutoffDate, cutoffMinute)
	if err != nil {
		return 0, fmt.Errorf("mark overdue no-shows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
