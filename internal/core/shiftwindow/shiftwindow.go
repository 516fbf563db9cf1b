// Package shiftwindow concretizes a shift contract into absolute time bounds
// for one attendance day. Pure computation, no I/O
package shiftwindow

import (
	"time"

	ptime "punchclock/internal/platform/time"
)

// MaxThreshold stands in for a missing half-day threshold so the HD
// predicate never matches
const MaxThreshold = time.Duration(1<<63 - 1)

// Shift is a per-employee (or auto-matched) shift contract.
// Start and End are wall-clock offsets from midnight; End <= Start marks a
// night shift that rolls over to the next calendar day
type Shift struct {
	Name  string
	Start time.Duration
	End   time.Duration

	ToleranceBeforeStart time.Duration
	ToleranceAfterStart  time.Duration
	GraceAtStart         time.Duration
	GraceAtEnd           time.Duration

	OvertimeBeforeStart time.Duration
	OvertimeAfterEnd    time.Duration

	AbsentThreshold  time.Duration
	FullDayThreshold time.Duration

	// HalfDayThreshold is optional; nil means "never half day"
	HalfDayThreshold *time.Duration

	LunchDuration  time.Duration
	LunchInHalfDay bool
	LunchInFullDay bool
}

// IsNightShift reports whether the shift crosses midnight
func (s Shift) IsNightShift() bool { return s.End <= s.Start }

// Window is the concretized shift instance for one date
type Window struct {
	Name string

	Start time.Time
	End   time.Time

	StartWindow    time.Time
	EndWindow      time.Time
	StartWithGrace time.Time
	EndWithGrace   time.Time

	OvertimeBeforeStart time.Duration
	OvertimeAfterEnd    time.Duration

	AbsentThreshold  time.Duration
	HalfDayThreshold time.Duration
	FullDayThreshold time.Duration

	LunchDuration  time.Duration
	LunchInHalfDay bool
	LunchInFullDay bool
}

// Contains reports whether t falls inside the IN-match window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.StartWindow) && !t.After(w.EndWindow)
}

// Date returns the attendance date the window belongs to
func (w Window) Date(loc *time.Location) time.Time { return ptime.DateOf(w.Start, loc) }

// Calc concretizes s for the punch at t against base date d (midnight in loc).
// Same inputs always produce the same output.
//
// Night shifts starting 18:00 or later claim early-morning punches
// (before 08:00) for the previous day's instance when that instance is
// still running. Midnight shifts (start 00:00) claim 23:00-24:00 punches
// for the next day and keep a fixed one hour start window when no
// tolerance is configured
func Calc(s Shift, t time.Time, d time.Time, loc *time.Location) Window {
	clock := ptime.ClockOf(t, loc)
	effective := ptime.DateOf(d, loc)

	if s.Start == 0 && clock >= 23*time.Hour {
		effective = effective.AddDate(0, 0, 1)
	}

	if s.IsNightShift() && s.Start >= 18*time.Hour && clock < 8*time.Hour {
		prevStartDate := effective.AddDate(0, 0, -1)
		prevEnd := ptime.At(endDate(s, prevStartDate), s.End, loc)
		if t.Before(prevEnd) {
			effective = prevStartDate
		}
	}

	start := ptime.At(effective, s.Start, loc)
	end := ptime.At(endDate(s, effective), s.End, loc)

	startWindow := start.Add(-s.ToleranceBeforeStart)
	if s.Start == 0 && s.ToleranceBeforeStart == 0 {
		startWindow = start.Add(-time.Hour)
	}

	halfDay := MaxThreshold
	if s.HalfDayThreshold != nil {
		halfDay = *s.HalfDayThreshold
	}

	return Window{
		Name:                s.Name,
		Start:               start,
		End:                 end,
		StartWindow:         startWindow,
		EndWindow:           start.Add(s.ToleranceAfterStart),
		StartWithGrace:      start.Add(s.GraceAtStart),
		EndWithGrace:        end.Add(-s.GraceAtEnd),
		OvertimeBeforeStart: s.OvertimeBeforeStart,
		OvertimeAfterEnd:    s.OvertimeAfterEnd,
		AbsentThreshold:     s.AbsentThreshold,
		HalfDayThreshold:    halfDay,
		FullDayThreshold:    s.FullDayThreshold,
		LunchDuration:       s.LunchDuration,
		LunchInHalfDay:      s.LunchInHalfDay,
		LunchInFullDay:      s.LunchInFullDay,
	}
}

// endDate applies the night-shift rollover: the end lands on the next
// calendar day only when the end clock is strictly before the start clock
func endDate(s Shift, startDate time.Time) time.Time {
	if s.IsNightShift() && s.End < s.Start {
		return startDate.AddDate(0, 0, 1)
	}
	return startDate
}
