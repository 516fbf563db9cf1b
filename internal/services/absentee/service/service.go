// Package service implements the absentee sweeper: it materializes A/WO and
// holiday aggregates for covered days with no punches
package service

import (
	"context"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/modkit/repokit"
	"punchclock/internal/platform/logger"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/absentee/domain"
	rosterdom "punchclock/internal/services/roster/domain"
)

// Config carries the sweeper knobs
type Config struct {
	// Days is the trailing window swept from today backwards
	Days int

	Loc *time.Location

	// Now is a seam for tests; defaults to time.Now
	Now func() time.Time
}

// Snapshotter provides the per-run reference-data cache
type Snapshotter interface {
	Snapshot(ctx context.Context) (*rosterdom.Snapshot, error)
	DefaultWeekOffs() []int
}

// Svc is the absentee sweeper
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
	roster Snapshotter
	cfg    Config
}

// New constructs the sweeper
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo], roster Snapshotter, cfg Config) *Svc {
	if db == nil {
		panic("absentee.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("absentee.Service requires a non-nil Repo binder")
	}
	if roster == nil {
		panic("absentee.Service requires a roster snapshotter")
	}
	if cfg.Days <= 0 {
		cfg.Days = 400
	}
	if cfg.Loc == nil {
		cfg.Loc = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Svc{db: db, binder: binder, roster: roster, cfg: cfg}
}

// Sweep walks the trailing window newest first and inserts a status row for
// every covered employee-day with no aggregate. Conflict-ignore writes make
// reruns no-ops; an existing row is never overwritten
func (s *Svc) Sweep(ctx context.Context, days int) error {
	if days <= 0 {
		days = s.cfg.Days
	}
	log := logger.C(ctx)

	snap, err := s.roster.Snapshot(ctx)
	if err != nil {
		return err
	}
	defaults := s.roster.DefaultWeekOffs()
	today := ptime.DateOf(s.cfg.Now(), s.cfg.Loc)

	var inserted int
	for i := 0; i < days; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		date := today.AddDate(0, 0, -i)

		err := s.db.Tx(ctx, func(q repokit.Queryer) error {
			r := s.binder.Bind(q)
			existing, err := r.ExistingEmployees(ctx, date)
			if err != nil {
				return err
			}

			var rows []domain.GapRow
			for _, emp := range snap.Employees {
				if !emp.Covers(date) {
					continue
				}
				if _, ok := existing[emp.ID]; ok {
					continue
				}
				rows = append(rows, domain.GapRow{
					EmployeeID: emp.ID,
					LogDate:    date,
					Status:     gapStatus(snap, emp, date, defaults),
				})
			}
			inserted += len(rows)
			return r.InsertGaps(ctx, rows)
		})
		if err != nil {
			return err
		}
	}

	log.Info().Int("days", days).Int("rows", inserted).Msg("absentee sweep complete")
	return nil
}

// gapStatus classifies a no-punch day: holiday type first, then the
// employee's weekly off, then absent
func gapStatus(snap *rosterdom.Snapshot, emp rosterdom.Employee, date time.Time, defaults []int) string {
	if kind := snap.Holiday(date); kind != metrics.HolidayNone {
		return string(kind)
	}
	wd := metrics.WeekdayIndex(date)
	for _, off := range emp.WeekOffs(defaults) {
		if off == wd {
			return metrics.StatusWeekOff
		}
	}
	return metrics.StatusAbsent
}
