package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger is the appointment store. Mutations run as single atomic units:
// conflict checks, token assignment and the write commit or fail
// together, never as separate unprotected round trips.
type Ledger interface {
	// Create books a slot. Fails with PATIENT_CONFLICT, SLOT_CONFLICT,
	// CAPACITY_EXCEEDED or TRANSIENT_CONFLICT.
	Create(ctx context.Context, cand Candidate) (*Appointment, error)

	// Reschedule moves an appointment to a new slot, recomputing the
	// token for the new date and appending an audit line to notes.
	// Fails with NOT_FOUND, INVALID_STATE, the conflict kinds, or
	// TRANSIENT_CONFLICT.
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStart, newEnd int, asOf time.Time) (*Appointment, error)

	// Cancel marks an appointment cancelled with a reason. Fails with
	// NOT_FOUND or ALREADY_CANCELLED. Sibling tokens are never renumbered.
	Cancel(ctx context.Context, id uuid.UUID, reason string) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	ListByPatient(ctx context.Context, tenantID, patientID uuid.UUID, filter ListFilter, asOf time.Time, limit, offset int) ([]Appointment, error)

	// BookedStartMinutes feeds the slot planner: start minutes of live
	// (non-cancelled, non-no-show) appointments for a provider's day.
	BookedStartMinutes(ctx context.Context, providerID uuid.UUID, date time.Time) (map[int]bool, error)

	// MarkOverdueNoShows flips scheduled appointments whose start lies
	// before cutoff to no_show. Returns the number of rows updated.
	MarkOverdueNoShows(ctx context.Context, cutoff time.Time, cutoffMinute int) (int64, error)
}
