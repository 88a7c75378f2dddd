package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbase/appointment-scheduling/pkg/apperror"
)

func newMockLedger(t *testing.T) (*PgLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPgLedger(mock), mock
}

func appointmentRow(a Appointment) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "patient_id", "provider_id", "date", "start_minute",
		"end_minute", "status", "token_number", "reason", "notes",
		"cancellation_reason", "created_at", "updated_at",
	}).AddRow(
		a.ID, a.TenantID, a.PatientID, a.ProviderID, a.Date, a.StartMinute,
		a.EndMinute, a.Status, a.TokenNumber, a.Reason, a.Notes,
		a.CancellationReason, a.CreatedAt, a.UpdatedAt,
	)
}

func TestPgLedgerCreate(t *testing.T) {
	ledger, mock := newMockLedger(t)

	cand := Candidate{
		TenantID:    uuid.New(),
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		EndMinute:   570,
		Reason:      "checkup",
		PendingCap:  10,
		AsOf:        time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery(`SELECT p\.name`).
		WithArgs(cand.TenantID, cand.PatientID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM appointments\s+WHERE provider_id`).
		WithArgs(cand.ProviderID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(cand.TenantID, cand.PatientID, cand.AsOf.Truncate(24*time.Hour), 600).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs(cand.ProviderID, cand.Date).
		WillReturnRows(pgxmock.NewRows([]string{"token"}).AddRow(4))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), cand.TenantID, cand.PatientID, cand.ProviderID,
			cand.Date, cand.StartMinute, cand.EndMinute, 4, cand.Reason, cand.Notes).
		WillReturnRows(appointmentRow(Appointment{
			ID:          uuid.New(),
			TenantID:    cand.TenantID,
			PatientID:   cand.PatientID,
			ProviderID:  cand.ProviderID,
			Date:        cand.Date,
			StartMinute: cand.StartMinute,
			EndMinute:   cand.EndMinute,
			Status:      StatusScheduled,
			TokenNumber: 4,
			Reason:      cand.Reason,
		}))
	mock.ExpectCommit()
	mock.ExpectRollback()

	appt, err := ledger.Create(context.Background(), cand)
	require.NoError(t, err)
	assert.Equal(t, 4, appt.TokenNumber)
	assert.Equal(t, StatusScheduled, appt.Status)
}

func TestPgLedgerCreateCapacityExceeded(t *testing.T) {
	ledger, mock := newMockLedger(t)

	cand := Candidate{
		TenantID:    uuid.New(),
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		EndMinute:   570,
		PendingCap:  10,
		AsOf:        time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery(`SELECT p\.name`).
		WithArgs(cand.TenantID, cand.PatientID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM appointments\s+WHERE provider_id`).
		WithArgs(cand.ProviderID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(cand.TenantID, cand.PatientID, cand.AsOf.Truncate(24*time.Hour), 600).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectRollback()

	_, err := ledger.Create(context.Background(), cand)
	assert.True(t, apperror.IsKind(err, apperror.KindCapacityExceeded), "got %v", err)
}

func TestPgLedgerCreatePatientConflictNamesProvider(t *testing.T) {
	ledger, mock := newMockLedger(t)

	cand := Candidate{
		TenantID:    uuid.New(),
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		EndMinute:   570,
		PendingCap:  10,
		AsOf:        time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery(`SELECT p\.name`).
		WithArgs(cand.TenantID, cand.PatientID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Dr. Priya Raman"))
	mock.ExpectRollback()

	_, err := ledger.Create(context.Background(), cand)
	assert.True(t, apperror.IsKind(err, apperror.KindPatientConflict), "got %v", err)
	assert.Contains(t, apperror.MessageOf(err), "Dr. Priya Raman")
}

func TestPgLedgerCreateTranslatesSerializationFailure(t *testing.T) {
	ledger, mock := newMockLedger(t)

	cand := Candidate{
		TenantID:    uuid.New(),
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		PendingCap:  10,
		AsOf:        time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery(`SELECT p\.name`).
		WithArgs(cand.TenantID, cand.PatientID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "serialization failure"})
	mock.ExpectRollback()

	_, err := ledger.Create(context.Background(), cand)
	assert.True(t, apperror.IsKind(err, apperror.KindTransientConflict), "got %v", err)
	assert.True(t, apperror.Retryable(err))
}

func TestPgLedgerCreateTranslatesUniqueViolation(t *testing.T) {
	ledger, mock := newMockLedger(t)

	cand := Candidate{
		TenantID:    uuid.New(),
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		EndMinute:   570,
		PendingCap:  10,
		AsOf:        time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectQuery(`SELECT p\.name`).
		WithArgs(cand.TenantID, cand.PatientID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM appointments\s+WHERE provider_id`).
		WithArgs(cand.ProviderID, cand.Date, cand.StartMinute, uuid.Nil).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(cand.TenantID, cand.PatientID, cand.AsOf.Truncate(24*time.Hour), 600).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs(cand.ProviderID, cand.Date).
		WillReturnRows(pgxmock.NewRows([]string{"token"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), cand.TenantID, cand.PatientID, cand.ProviderID,
			cand.Date, cand.StartMinute, cand.EndMinute, 1, cand.Reason, cand.Notes).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: "appointments_provider_slot_live_idx",
		})
	mock.ExpectRollback()

	_, err := ledger.Create(context.Background(), cand)
	assert.True(t, apperror.IsKind(err, apperror.KindSlotConflict), "got %v", err)
}

func TestPgLedgerCancel(t *testing.T) {
	ledger, mock := newMockLedger(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(id, "patient request").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	err := ledger.Cancel(context.Background(), id, "patient request")
	assert.NoError(t, err)
}

func TestPgLedgerCancelAlreadyCancelled(t *testing.T) {
	ledger, mock := newMockLedger(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(id, "patient request").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT status`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusCancelled))

	err := ledger.Cancel(context.Background(), id, "patient request")
	assert.True(t, apperror.IsKind(err, apperror.KindAlreadyCancelled), "got %v", err)
}

func TestPgLedgerCancelNotFound(t *testing.T) {
	ledger, mock := newMockLedger(t)
	id := uuid.New()

	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(id, "missed").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT status`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	err := ledger.Cancel(context.Background(), id, "missed")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound), "got %v", err)
}

func TestPgLedgerGetByIDNotFound(t *testing.T) {
	ledger, mock := newMockLedger(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM appointments\s+WHERE id`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := ledger.GetByID(context.Background(), id)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound), "got %v", err)
}

func TestPgLedgerMarkOverdueNoShows(t *testing.T) {
	ledger, mock := newMockLedger(t)
	cutoff := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE appointments`).
		WithArgs(cutoff, 600).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := ledger.MarkOverdueNoShows(context.Background(), cutoff, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
