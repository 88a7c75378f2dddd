package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether the status admits no further date/time
// mutation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusNoShow, StatusCompleted:
		return true
	}
	return false
}

// Pending reports whether the appointment still counts against the
// patient's booking cap.
func (s Status) Pending() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Appointment is one booked slot. Date is midnight-normalized; start
// and end are minutes of that day; EndMinute is fixed at creation as
// start plus the provider's slot duration.
type Appointment struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	Date               time.Time
	StartMinute        int
	EndMinute          int
	Status             Status
	TokenNumber        int
	Reason             string
	Notes              string
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Candidate is a validated booking request ready for the ledger.
// AsOf carries the coordinator's clock reading so the capacity count
// of future pending appointments stays deterministic.
type Candidate struct {
	TenantID    uuid.UUID
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	Date        time.Time
	StartMinute int
	EndMinute   int
	Reason      string
	Notes       string
	PendingCap  int
	AsOf        time.Time
}

type ListFilter string

const (
	FilterUpcoming ListFilter = "upcoming"
	FilterPast     ListFilter = "past"
	FilterAll      ListFilter = "all"
)
