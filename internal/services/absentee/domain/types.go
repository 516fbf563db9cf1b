// Package domain defines the absentee sweeper's storage port
package domain

import (
	"context"
	"time"
)

// GapRow is one materialized no-punch aggregate
type GapRow struct {
	EmployeeID string
	LogDate    time.Time
	Status     string
}

// Repo abstracts the sweeper's reads and bulk writes
type Repo interface {
	// ExistingEmployees returns the ids that already have an aggregate on date
	ExistingEmployees(ctx context.Context, date time.Time) (map[string]struct{}, error)

	// InsertGaps bulk-inserts rows with conflict-ignore on (employee, logdate)
	InsertGaps(ctx context.Context, rows []GapRow) error
}
