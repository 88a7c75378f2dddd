package schedule

import (
	"time"

	"github.com/google/uuid"
)

const DefaultSlotDurationMinutes = 30

type Provider struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Name                string
	Specialty           *string
	IsAvailable         bool
	SlotDurationMinutes int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SlotDuration returns the provider's slot length in minutes, falling
// back to the default when unset.
func (p *Provider) SlotDuration() int {
	if p.SlotDurationMinutes <= 0 {
		return DefaultSlotDurationMinutes
	}
	return p.SlotDurationMinutes
}

// ScheduleWindow is one weekday's working hours, minute-of-day based.
type ScheduleWindow struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	BreakStart  *int
	BreakEnd    *int
	IsActive    bool
}

// Break returns the half-open break interval [start, end). A missing or
// misconfigured break (end before start) reports ok=false.
func (w *ScheduleWindow) Break() (start, end int, ok bool) {
	if w.BreakStart == nil || w.BreakEnd == nil {
		return 0, 0, false
	}
	if *w.BreakEnd < *w.BreakStart {
		return 0, 0, false
	}
	return *w.BreakStart, *w.BreakEnd, true
}

type AbsenceStatus string

const (
	AbsenceActive    AbsenceStatus = "active"
	AbsenceCancelled AbsenceStatus = "cancelled"
)

// Absence is a provider unavailability interval. Date bounds are
// inclusive on both ends, at day granularity.
type Absence struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	StartDate   time.Time
	EndDate     time.Time
	IsFullDay   bool
	StartMinute *int
	EndMinute   *int
	Status      AbsenceStatus
	Reason      string
	CreatedAt   time.Time
}

// Covers reports whether date (midnight-normalized) falls within the
// absence's inclusive date range.
func (a *Absence) Covers(date time.Time) bool {
	return !date.Before(a.StartDate) && !date.After(a.EndDate)
}

// Interval returns the half-open minute interval [start, end) of a
// partial-day absence. Full-day or incomplete rows report ok=false.
func (a *Absence) Interval() (start, end int, ok bool) {
	if a.IsFullDay || a.StartMinute == nil || a.EndMinute == nil {
		return 0, 0, false
	}
	return *a.StartMinute, *a.EndMinute, true
}
