// Package domain defines the mandays types: duty pairs per day, missed
// punches, and the incremental cursor
package domain

import (
	"context"
	"time"
)

// MaxPairs caps the duty pairs stored per day
const MaxPairs = 10

// Pair is one in/out duty segment. A zero Out marks an open pair
type Pair struct {
	In  time.Time
	Out time.Time
}

// Span returns the worked span of a closed pair
func (p Pair) Span() time.Duration {
	if p.Out.IsZero() {
		return 0
	}
	return p.Out.Sub(p.In)
}

// Day is the mandays row for one employee-day
type Day struct {
	EmployeeID string
	LogDate    time.Time

	// Pairs holds up to MaxPairs closed duty segments
	Pairs []Pair

	TotalHoursWorked time.Duration
}

// Repo abstracts mandays storage and the cursor
type Repo interface {
	// Cursor returns the highest unified-punch id already folded in
	Cursor(ctx context.Context) (int64, error)
	SetCursor(ctx context.Context, id int64) error

	// ListNewPunchDays returns the distinct (employee, date) days touched by
	// punches past the cursor, plus the highest punch id seen
	ListNewPunchDays(ctx context.Context, afterID int64, limit int) ([]DayKey, int64, error)

	// ListDayPunches returns every unified punch time for one employee-day,
	// ascending
	ListDayPunches(ctx context.Context, employeeID string, date time.Time) ([]time.Time, error)

	// UpsertDay replaces the duty-pair row for one employee-day
	UpsertDay(ctx context.Context, d Day) error

	// InsertMissedPunch records an unpaired trailing IN, conflict-ignored
	InsertMissedPunch(ctx context.Context, employeeID string, date, punch time.Time) error

	// MaxPunchIDBefore returns the highest punch id at or before cutoff;
	// used by the bounded soft reset
	MaxPunchIDBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteAll clears mandays rows and missed punches; full reset only
	DeleteAll(ctx context.Context) error
}

// DayKey identifies one employee-day
type DayKey struct {
	EmployeeID string
	Date       time.Time
}
