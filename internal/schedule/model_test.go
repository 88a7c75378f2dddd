package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestProviderSlotDurationDefault(t *testing.T) {
	p := &Provider{}
	assert.Equal(t, DefaultSlotDurationMinutes, p.SlotDuration())

	p.SlotDurationMinutes = 15
	assert.Equal(t, 15, p.SlotDuration())
}

func TestWindowBreak(t *testing.T) {
	w := &ScheduleWindow{}
	_, _, ok := w.Break()
	assert.False(t, ok, "no break configured")

	w.BreakStart = intPtr(630)
	w.BreakEnd = intPtr(600)
	_, _, ok = w.Break()
	assert.False(t, ok, "end before start is ignored")

	w.BreakStart = intPtr(600)
	w.BreakEnd = intPtr(630)
	start, end, ok := w.Break()
	assert.True(t, ok)
	assert.Equal(t, 600, start)
	assert.Equal(t, 630, end)
}

func TestAbsenceCoversInclusiveBounds(t *testing.T) {
	a := &Absence{
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC),
	}

	assert.False(t, a.Covers(time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)))
	assert.True(t, a.Covers(a.StartDate))
	assert.True(t, a.Covers(time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)))
	assert.True(t, a.Covers(a.EndDate))
	assert.False(t, a.Covers(time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)))
}

func TestAbsenceInterval(t *testing.T) {
	full := &Absence{IsFullDay: true}
	_, _, ok := full.Interval()
	assert.False(t, ok)

	partial := &Absence{StartMinute: intPtr(660), EndMinute: intPtr(705)}
	start, end, ok := partial.Interval()
	assert.True(t, ok)
	assert.Equal(t, 660, start)
	assert.Equal(t, 705, end)
}
