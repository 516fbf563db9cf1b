// Package time contains time related helpers
package time

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// DateOf truncates t to midnight in loc
func DateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// ClockOf returns the wall-clock offset of t since midnight in loc
func ClockOf(t time.Time, loc *time.Location) time.Duration {
	lt := t.In(loc)
	return time.Duration(lt.Hour())*time.Hour +
		time.Duration(lt.Minute())*time.Minute +
		time.Duration(lt.Second())*time.Second
}

// DateIn rebuilds t's own calendar date as midnight in loc.
// Use it for DATE columns, which drivers scan as UTC midnight
func DateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// At combines a calendar date with a wall-clock offset in loc.
// date may carry any time component; only its Y/M/D are used
func At(date time.Time, clock time.Duration, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(clock)
}

// Clock builds a wall-clock offset from hours and minutes
func Clock(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}
