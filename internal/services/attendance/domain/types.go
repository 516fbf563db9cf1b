// Package domain defines the day-keyed attendance aggregate and its storage
// port
package domain

import (
	"context"
	"time"
)

// Aggregate is the per-employee per-day attendance record.
// Zero First/Last mean the punch side is unset; nil durations go NULL
type Aggregate struct {
	EmployeeID string

	// LogDate is midnight in the project timezone; for night shifts it is
	// the shift-start date, not necessarily the punch's calendar date
	LogDate time.Time

	// Shift is a name snapshot; empty on auto-shift orphans
	Shift string

	First time.Time
	Last  time.Time

	InDirection  string
	OutDirection string
	InShortname  string
	OutShortname string

	TotalTime *time.Duration
	LateEntry *time.Duration
	EarlyExit *time.Duration
	Overtime  *time.Duration

	Status string
}

// Repo abstracts the aggregate store. GetForUpdate must take a row-level
// exclusive lock so concurrent ticks serialize per (employee, date)
type Repo interface {
	GetForUpdate(ctx context.Context, employeeID string, date time.Time) (Aggregate, bool, error)

	// Upsert writes the whole aggregate keyed by (employee_id, logdate)
	Upsert(ctx context.Context, a Aggregate) error

	// DeleteAll clears every aggregate; recalculation path only
	DeleteAll(ctx context.Context) error
}
