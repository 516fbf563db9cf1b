// Package domain defines the A-WO-A correction audit types and port
package domain

import (
	"context"
	"time"
)

// Triple is an absent, week-off, absent run of three consecutive days
type Triple struct {
	EmployeeID string
	Day1       time.Time
	Day2       time.Time
	Day3       time.Time
}

// Correction is a recorded WO-to-A flip pending re-evaluation
type Correction struct {
	ID int64
	Triple
}

// Repo abstracts the corrector's scans and the audit store
type Repo interface {
	// FindTriples scans aggregates per employee chronologically for
	// consecutive (A, WO, A) runs not already recorded
	FindTriples(ctx context.Context) ([]Triple, error)

	// SetStatus rewrites one aggregate's status in place
	SetStatus(ctx context.Context, employeeID string, date time.Time, status string) error

	// InsertCorrections records flips in the audit store, conflict-ignored
	InsertCorrections(ctx context.Context, triples []Triple) error

	// ListCorrections returns every recorded flip
	ListCorrections(ctx context.Context) ([]Correction, error)

	// Statuses returns date -> status for one employee over dates
	Statuses(ctx context.Context, employeeID string, dates []time.Time) (map[time.Time]string, error)

	// DeleteCorrections removes evaluated audit rows
	DeleteCorrections(ctx context.Context, ids []int64) error

	// DeleteAll clears the audit store; recalculation path only
	DeleteAll(ctx context.Context) error
}
