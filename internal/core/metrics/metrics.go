// Package metrics derives attendance totals and the status classification
// for one aggregate from its shift window and punch pair. Pure computation
package metrics

import (
	"time"

	"punchclock/internal/core/shiftwindow"
)

// Attendance status codes
const (
	StatusPresent           = "P"
	StatusHalfDay           = "HD"
	StatusInsufficientHours = "IH"
	StatusAbsent            = "A"
	StatusMissingPunch      = "MP"
	StatusWeekOff           = "WO"
	StatusWorkedWeekOff     = "WW"
	StatusPaidHoliday       = "PH"
	StatusFlexiHoliday      = "FH"
	StatusWorkedPaidHoliday = "PW"
	StatusWorkedFlexi       = "FW"
)

// HolidayKind is the holiday_type of a HolidayList row; empty means no holiday
type HolidayKind string

// Holiday kinds
const (
	HolidayNone  HolidayKind = ""
	HolidayPaid  HolidayKind = "PH"
	HolidayFlexi HolidayKind = "FH"
)

// Input carries everything the engine needs for one aggregate
type Input struct {
	Window shiftwindow.Window

	// Date is the aggregate's logdate at midnight in the project timezone
	Date time.Time

	// First and Last are the punch pair; zero value means unset
	First time.Time
	Last  time.Time

	// WeekOffs are the employee's weekly-off day indices (0=Monday .. 6=Sunday),
	// already defaulted to the global set when the employee has none
	WeekOffs []int

	Holiday HolidayKind
}

// Result is what gets written back onto the aggregate.
// nil means the column goes NULL
type Result struct {
	TotalTime *time.Duration
	LateEntry *time.Duration
	EarlyExit *time.Duration
	Overtime  *time.Duration
	Status    string
}

// WeekdayIndex maps a date to the 0=Monday .. 6=Sunday convention used by
// employee weekly-off columns
func WeekdayIndex(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// Compute derives metrics and status for in.
// With only one punch set the status is forced to MP and the pair-derived
// fields go NULL; late entry is still computed when the IN punch exists
func Compute(in Input) Result {
	w := in.Window

	if in.First.IsZero() || in.Last.IsZero() {
		r := Result{Status: StatusMissingPunch}
		if !in.First.IsZero() {
			r.LateEntry = positive(in.First.Sub(w.StartWithGrace))
		}
		return r
	}

	raw := in.Last.Sub(in.First)

	var deduct time.Duration
	if raw > 0 && (w.LunchInFullDay || w.LunchInHalfDay) {
		deduct = w.LunchDuration
	}
	total := raw - deduct
	if total < 0 {
		total = 0
	}

	r := Result{
		TotalTime: &total,
		LateEntry: positive(in.First.Sub(w.StartWithGrace)),
		EarlyExit: positive(w.EndWithGrace.Sub(in.Last)),
	}

	otBeforeMark := w.Start.Add(-w.OvertimeBeforeStart)
	otAfterMark := w.End.Add(w.OvertimeAfterEnd)
	var calcOT time.Duration
	if in.First.Before(otBeforeMark) {
		calcOT += otBeforeMark.Sub(in.First)
	}
	if in.Last.After(otAfterMark) {
		calcOT += in.Last.Sub(otAfterMark)
	}

	isWeekOff := false
	wd := WeekdayIndex(in.Date)
	for _, off := range in.WeekOffs {
		if off == wd {
			isWeekOff = true
			break
		}
	}

	switch {
	case in.Holiday != HolidayNone:
		if in.Holiday == HolidayFlexi {
			r.Status = StatusWorkedFlexi
		} else {
			r.Status = StatusWorkedPaidHoliday
		}
		// the whole raw span counts as overtime on a holiday
		r.Overtime = &raw

	case isWeekOff:
		r.Status = StatusWorkedWeekOff
		r.Overtime = &raw

	default:
		switch {
		case total < w.AbsentThreshold:
			r.Status = StatusAbsent
		case total < w.HalfDayThreshold:
			r.Status = StatusHalfDay
		case total < w.FullDayThreshold:
			r.Status = StatusInsufficientHours
		default:
			r.Status = StatusPresent
		}
		r.Overtime = positive(calcOT)
	}

	// downstream reports key off the -L/-E markers
	if r.Status != StatusAbsent && r.Status != StatusMissingPunch {
		switch {
		case r.LateEntry != nil && r.EarlyExit != nil:
			r.Status += "-LE"
		case r.LateEntry != nil:
			r.Status += "-L"
		case r.EarlyExit != nil:
			r.Status += "-E"
		}
	}

	return r
}

// positive returns &d when d > 0, else nil
func positive(d time.Duration) *time.Duration {
	if d > 0 {
		return &d
	}
	return nil
}
