package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/appointment-scheduling/internal/clock"
	"github.com/clinicbase/appointment-scheduling/internal/schedule"
)

// SameDayBookingBufferMinutes is the lead time required before a
// same-day slot may still be offered. Hardcoded pending a decision on
// whether tenants should configure it.
const SameDayBookingBufferMinutes = 15

// Slot is a fixed-duration candidate appointment time within one day.
type Slot struct {
	StartMinute int  `json:"start_minute"`
	EndMinute   int  `json:"end_minute"`
	Available   bool `json:"available"`
}

// Catalog resolves providers and their weekly schedule windows.
type Catalog interface {
	Provider(ctx context.Context, id uuid.UUID) (*schedule.Provider, error)
	Window(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*schedule.ScheduleWindow, error)
}

// AbsenceSource resolves active leave intervals for a date.
type AbsenceSource interface {
	FullDayAbsence(ctx context.Context, providerID uuid.UUID, date time.Time) (*schedule.Absence, error)
	PartialAbsence(ctx context.Context, providerID uuid.UUID, date time.Time) (*schedule.Absence, error)
}

// BookedReader reports which slot starts already hold a live appointment.
type BookedReader interface {
	BookedStartMinutes(ctx context.Context, providerID uuid.UUID, date time.Time) (map[int]bool, error)
}

// Planner overlays a provider's weekly schedule with absences and
// existing bookings to produce the day's candidate slots. It performs
// no writes.
type Planner struct {
	catalog  Catalog
	absences AbsenceSource
	booked   BookedReader
	clock    clock.Clock
	loc      *time.Location
}

func NewPlanner(catalog Catalog, absences AbsenceSource, booked BookedReader, clk clock.Clock, loc *time.Location) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{
		catalog:  catalog,
		absences: absences,
		booked:   booked,
		clock:    clk,
		loc:      loc,
	}
}

// ComputeSlots returns the ordered candidate slots for a provider on a
// date. Past dates, non-working weekdays and full-day absences yield an
// empty list rather than an error.
func (p *Planner) ComputeSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Slot, error) {
	provider, err := p.catalog.Provider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now().In(p.loc)
	today := clock.Midnight(now, p.loc)
	day := clock.CalendarDate(date, p.loc)

	if day.Before(today) {
		return []Slot{}, nil
	}

	window, err := p.catalog.Window(ctx, providerID, day.Weekday())
	if err != nil {
		return nil, err
	}
	if window == nil || !window.IsActive {
		return []Slot{}, nil
	}

	if full, err := p.absences.FullDayAbsence(ctx, providerID, day); err != nil {
		return nil, err
	} else if full != nil {
		return []Slot{}, nil
	}

	partial, err := p.absences.PartialAbsence(ctx, providerID, day)
	if err != nil {
		return nil, err
	}

	booked, err := p.booked.BookedStartMinutes(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	duration := provider.SlotDuration()
	breakStart, breakEnd, hasBreak := window.Break()
	absStart, absEnd, hasAbsence := 0, 0, false
	if partial != nil {
		absStart, absEnd, hasAbsence = partial.Interval()
	}

	sameDay := day.Equal(today)
	cutoff := clock.MinuteOfDay(now, p.loc) + SameDayBookingBufferMinutes

	slots := make([]Slot, 0, (window.EndMinute-window.StartMinute)/duration)
	for cursor := window.StartMinute; cursor+duration <= window.EndMinute; {
		// Break interval is half-open: a slot may start exactly at break end.
		if hasBreak && cursor >= breakStart && cursor < breakEnd {
			cursor = breakEnd
			continue
		}

		if sameDay && cursor < cutoff {
			cursor += duration
			continue
		}

		available := !booked[cursor] &&
			!(hasAbsence && cursor < absEnd && cursor+duration > absStart)

		slots = append(slots, Slot{
			StartMinute: cursor,
			EndMinute:   cursor + duration,
			Available:   available,
		})
		cursor += duration
	}

	return slots, nil
}
