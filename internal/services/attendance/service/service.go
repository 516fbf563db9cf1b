// Package service implements the attendance processor: the stream consumer
// that reduces unified punches into day-keyed aggregates
package service

import (
	"context"
	"time"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/logger"
	"punchclock/internal/services/attendance/domain"
	punchdom "punchclock/internal/services/punches/domain"
	rosterdom "punchclock/internal/services/roster/domain"
)

// Config carries the processor knobs
type Config struct {
	// BatchSize is the punch chunk consumed per reduction pass
	BatchSize int

	// Loc is the project timezone
	Loc *time.Location
}

// Snapshotter provides the per-run reference-data cache
type Snapshotter interface {
	Snapshot(ctx context.Context) (*rosterdom.Snapshot, error)
	DefaultWeekOffs() []int
}

// Tally is the per-run outcome counters operators see in logs
type Tally struct {
	Processed int
	Skipped   int
}

// Svc is the attendance processor
type Svc struct {
	db      repokit.TxRunner
	agg     repokit.Binder[domain.Repo]
	punches repokit.Binder[punchdom.Repo]
	roster  Snapshotter
	cfg     Config
}

// New constructs the processor
func New(
	db repokit.TxRunner,
	agg repokit.Binder[domain.Repo],
	punches repokit.Binder[punchdom.Repo],
	roster Snapshotter,
	cfg Config,
) *Svc {
	if db == nil {
		panic("attendance.Service requires a non-nil TxRunner")
	}
	if agg == nil || punches == nil {
		panic("attendance.Service requires non-nil binders")
	}
	if roster == nil {
		panic("attendance.Service requires a roster snapshotter")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.Loc == nil {
		cfg.Loc = time.Local
	}
	return &Svc{db: db, agg: agg, punches: punches, roster: roster, cfg: cfg}
}

// Run consumes every unprocessed punch in (log time, id) order.
// Per-punch failures skip the punch and leave it unmarked; the batch's
// processed-cursor additions commit after the batch's reductions.
// Cancellation is honored at batch boundaries only
func (s *Svc) Run(ctx context.Context) error {
	log := logger.C(ctx)

	snap, err := s.roster.Snapshot(ctx)
	if err != nil {
		return err
	}

	var (
		tally  Tally
		cursor punchdom.Cursor
	)
	for {
		if err := ctx.Err(); err != nil {
			log.Info().Int("processed", tally.Processed).Int("skipped", tally.Skipped).
				Msg("run cancelled at batch boundary")
			return nil
		}

		var batch []punchdom.Punch
		if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
			var err error
			batch, err = s.punches.Bind(q).ListUnprocessed(ctx, cursor, s.cfg.BatchSize)
			return err
		}); err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		toMark := make([]int64, 0, len(batch))
		for _, p := range batch {
			cursor = cursor.After(p)

			processed, err := s.handle(ctx, snap, p)
			if err != nil {
				if perrors.IsCode(err, perrors.ErrorCodeInvariantViolation) {
					return err
				}
				log.Warn().Err(err).
					Int64("punch_id", p.ID).
					Str("employee_id", p.EmployeeID).
					Time("log_datetime", p.Time).
					Msg("punch skipped")
				tally.Skipped++
				continue
			}
			if processed {
				toMark = append(toMark, p.ID)
				tally.Processed++
			} else {
				tally.Skipped++
			}
		}

		if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
			return s.punches.Bind(q).MarkProcessed(ctx, toMark)
		}); err != nil {
			log.Error().Err(err).Int("batch", len(toMark)).Msg("processed-cursor write failed")
			return perrors.WrapIf(err, perrors.ErrorCodeBulkWriteFailed, "mark batch processed")
		}

		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	log.Info().Int("processed", tally.Processed).Int("skipped", tally.Skipped).
		Msg("attendance run complete")
	return nil
}

// handle reduces one punch. processed=false with a nil error means the punch
// is silently skipped this run (outside employment window) and stays new
func (s *Svc) handle(ctx context.Context, snap *rosterdom.Snapshot, p punchdom.Punch) (bool, error) {
	emp, ok := snap.Employees[p.EmployeeID]
	if !ok {
		return false, perrors.EmployeeUnknownf("employee %s not on the roster", p.EmployeeID)
	}

	pdate := dateOf(p.Time, s.cfg.Loc)
	if !emp.Covers(pdate) {
		return false, nil
	}

	dir, err := resolveDirection(snap, p)
	if err != nil {
		return false, err
	}

	weekOffs := emp.WeekOffs(s.roster.DefaultWeekOffs())

	switch dir {
	case rosterdom.DirectionIn:
		return s.handleIn(ctx, snap, emp, p, weekOffs)
	case rosterdom.DirectionOut:
		return s.handleOut(ctx, snap, emp, p, weekOffs)
	default:
		return s.handleInOut(ctx, snap, emp, p, weekOffs)
	}
}
