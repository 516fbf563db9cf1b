// Package service implements the administrative maintenance operations
package service

import (
	"context"

	"punchclock/internal/modkit/repokit"
	"punchclock/internal/platform/logger"
	"punchclock/internal/services/maint/domain"
)

// Sweeper is the absentee re-sweep hook the recalculation path runs after
// truncating derived state
type Sweeper interface {
	Sweep(ctx context.Context, days int) error
}

// Svc implements the maintenance operations
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
}

// New constructs the maintenance service
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo]) *Svc {
	if db == nil {
		panic("maint.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("maint.Service requires a non-nil Repo binder")
	}
	return &Svc{db: db, binder: binder}
}

// ResetSequences realigns serial sequences with their tables
func (s *Svc) ResetSequences(ctx context.Context) error {
	var tables int
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		tables, err = s.binder.Bind(q).ResetSequences(ctx)
		return err
	})
	if err != nil {
		return err
	}
	logger.C(ctx).Info().Int("tables", tables).Msg("sequences reset")
	return nil
}

// ResetAttendance clears every derived store and re-materializes no-punch
// days over the trailing window. Destructive; the next processor run
// rebuilds aggregates from the full punch history
func (s *Svc) ResetAttendance(ctx context.Context, sweeper Sweeper, sweepDays int) error {
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		return s.binder.Bind(q).TruncateDerived(ctx)
	}); err != nil {
		return err
	}
	logger.C(ctx).Warn().Msg("derived attendance state cleared")
	return sweeper.Sweep(ctx, sweepDays)
}
