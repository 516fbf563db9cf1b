// Package domain defines the maintenance port: sequence resets and the
// destructive recalculation truncations
package domain

import "context"

// Repo abstracts the cross-cutting maintenance SQL
type Repo interface {
	// ResetSequences sets every serial id sequence to max(id); returns the
	// number of tables touched
	ResetSequences(ctx context.Context) (int, error)

	// TruncateDerived clears every derived store: aggregates, the processed
	// cursor, mandays, missed punches, the corrections audit, and the
	// mandays cursor
	TruncateDerived(ctx context.Context) error
}
