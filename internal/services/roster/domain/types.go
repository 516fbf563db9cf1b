// Package domain defines the reference-data types shared by the punch
// pipeline: employees, shift contracts, holidays, and device direction config
package domain

import (
	"context"
	"strings"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/core/shiftwindow"
	perrors "punchclock/internal/platform/errors"
)

// Direction is the logical direction of a punch
type Direction uint8

// Direction variants
const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionBoth
)

// String returns the lowercase wire form
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "both"
	}
}

// ParseDirection maps a raw direction string to a Direction.
// Matching is case-insensitive and tolerates the device vendors'
// "In Punch"/"Out Punch" spellings
func ParseDirection(raw string) (Direction, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); {
	case s == "in" || strings.HasPrefix(s, "in "):
		return DirectionIn, nil
	case s == "out" || strings.HasPrefix(s, "out "):
		return DirectionOut, nil
	case s == "both":
		return DirectionBoth, nil
	default:
		return DirectionBoth, perrors.DirectionUndeterminedf("direction %q", raw)
	}
}

// Employee is the identity row the processor resolves punches against.
// A nil ShiftName means the employee runs in auto-shift mode
type Employee struct {
	ID        string
	JoinDate  *time.Time
	LeaveDate *time.Time
	ShiftName string

	FirstWeekOff  *int
	SecondWeekOff *int
}

// Covers reports whether date falls inside the employment window.
// Open bounds are treated as unbounded
func (e Employee) Covers(date time.Time) bool {
	if e.JoinDate != nil && date.Before(*e.JoinDate) {
		return false
	}
	if e.LeaveDate != nil && date.After(*e.LeaveDate) {
		return false
	}
	return true
}

// WeekOffs returns the employee's weekly-off day indices, falling back to
// defaults when neither column is set
func (e Employee) WeekOffs(defaults []int) []int {
	if e.FirstWeekOff == nil && e.SecondWeekOff == nil {
		return defaults
	}
	out := make([]int, 0, 2)
	if e.FirstWeekOff != nil {
		out = append(out, *e.FirstWeekOff)
	}
	if e.SecondWeekOff != nil {
		out = append(out, *e.SecondWeekOff)
	}
	return out
}

// DeviceKey identifies a configured device
type DeviceKey struct {
	Shortname string
	Serialno  string
}

// Snapshot is the per-run read-mostly cache of reference data.
// Build one at the start of each run and treat it as immutable
type Snapshot struct {
	Employees map[string]Employee
	Shifts    map[string]shiftwindow.Shift

	// ShiftOrder is every shift sorted by name; auto-shift matching walks it
	// front to back so the first match is deterministic
	ShiftOrder []shiftwindow.Shift

	// Holidays keys are midnight-in-project-timezone dates
	Holidays map[time.Time]metrics.HolidayKind

	Devices map[DeviceKey]Direction
}

// Holiday returns the holiday kind for date, HolidayNone when date is a
// regular working day
func (s *Snapshot) Holiday(date time.Time) metrics.HolidayKind {
	if k, ok := s.Holidays[date]; ok {
		return k
	}
	return metrics.HolidayNone
}

// Repo abstracts the reference-data reads the snapshot is built from
type Repo interface {
	ListEmployees(ctx context.Context) ([]Employee, error)
	ListShifts(ctx context.Context) ([]shiftwindow.Shift, error)
	ListHolidays(ctx context.Context) (map[time.Time]metrics.HolidayKind, error)
	ListDeviceConfigs(ctx context.Context) (map[DeviceKey]Direction, error)
}
