package clock

import "time"

// Clock abstracts wall-clock reads so slot computation and booking
// validation stay deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns a Clock backed by the real wall clock.
func System() Clock {
	return systemClock{}
}

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock {
	return fixedClock{t: t}
}

type fixedClock struct {
	t time.Time
}

func (f fixedClock) Now() time.Time {
	return f.t
}

// Midnight truncates t to the start of its day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CalendarDate reinterprets t's own calendar date as midnight in loc.
// Unlike Midnight it never converts the instant first, so a date parsed
// in UTC stays on the day the caller named even when loc lies west of
// UTC.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// MinuteOfDay returns the minute offset of t within its day in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
