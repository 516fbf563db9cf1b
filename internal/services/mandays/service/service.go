// Package service implements the mandays engine: it folds each employee-day's
// punches into ordered duty pairs with split-time totals
package service

import (
	"context"
	"time"

	"punchclock/internal/modkit/repokit"
	"punchclock/internal/platform/logger"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/mandays/domain"
)

// Config carries the mandays knobs
type Config struct {
	// WindowDays is the trailing window a soft reset rewinds over
	WindowDays int

	// DayBatch caps the employee-days refolded per pass
	DayBatch int

	Loc *time.Location

	// Now is a seam for tests; defaults to time.Now
	Now func() time.Time
}

// Svc is the mandays engine
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
	cfg    Config
}

// New constructs the mandays engine
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo], cfg Config) *Svc {
	if db == nil {
		panic("mandays.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("mandays.Service requires a non-nil Repo binder")
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 100
	}
	if cfg.DayBatch <= 0 {
		cfg.DayBatch = 1000
	}
	if cfg.Loc == nil {
		cfg.Loc = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Svc{db: db, binder: binder, cfg: cfg}
}

// Run refolds every employee-day touched by punches past the cursor, then
// advances the cursor so reruns are incremental
func (s *Svc) Run(ctx context.Context) error {
	log := logger.C(ctx)

	var refolded int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var advanced bool
		err := s.db.Tx(ctx, func(q repokit.Queryer) error {
			r := s.binder.Bind(q)

			cursor, err := r.Cursor(ctx)
			if err != nil {
				return err
			}
			days, maxID, err := r.ListNewPunchDays(ctx, cursor, s.cfg.DayBatch)
			if err != nil {
				return err
			}
			if len(days) == 0 {
				return nil
			}

			for _, k := range days {
				if err := s.refoldDay(ctx, r, k); err != nil {
					return err
				}
			}
			refolded += len(days)
			advanced = maxID > cursor
			if advanced {
				return r.SetCursor(ctx, maxID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !advanced {
			break
		}
	}

	log.Info().Int("days", refolded).Msg("mandays run complete")
	return nil
}

// refoldDay rebuilds one employee-day from all of its punches
func (s *Svc) refoldDay(ctx context.Context, r domain.Repo, k domain.DayKey) error {
	times, err := r.ListDayPunches(ctx, k.EmployeeID, k.Date)
	if err != nil {
		return err
	}

	pairs, open := FoldPairs(times)
	day := domain.Day{
		EmployeeID: k.EmployeeID,
		LogDate:    k.Date,
		Pairs:      pairs,
	}
	for _, p := range pairs {
		day.TotalHoursWorked += p.Span()
	}
	if err := r.UpsertDay(ctx, day); err != nil {
		return err
	}
	if !open.IsZero() {
		return r.InsertMissedPunch(ctx, k.EmployeeID, k.Date, open)
	}
	return nil
}

// FoldPairs pairs ascending punch times consecutively (in, out, in, out, ...)
// up to MaxPairs. The second return is the unpaired trailing IN, zero when
// the day closes cleanly
func FoldPairs(times []time.Time) ([]domain.Pair, time.Time) {
	var pairs []domain.Pair
	for i := 0; i+1 < len(times) && len(pairs) < domain.MaxPairs; i += 2 {
		pairs = append(pairs, domain.Pair{In: times[i], Out: times[i+1]})
	}
	if len(times)%2 == 1 && len(pairs) < domain.MaxPairs {
		return pairs, times[len(times)-1]
	}
	return pairs, time.Time{}
}

// SoftReset rewinds the cursor so the trailing window is refolded on the
// next run. Falls back to a full reset when history is shorter than the
// window
func (s *Svc) SoftReset(ctx context.Context) error {
	cutoff := ptime.DateOf(s.cfg.Now(), s.cfg.Loc).AddDate(0, 0, -s.cfg.WindowDays)

	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		id, err := r.MaxPunchIDBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if id == 0 {
			// less history than the window; refold everything
			if err := r.DeleteAll(ctx); err != nil {
				return err
			}
		}
		return r.SetCursor(ctx, id)
	})
}

// FullReset clears every mandays row and the cursor
func (s *Svc) FullReset(ctx context.Context) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		if err := r.DeleteAll(ctx); err != nil {
			return err
		}
		return r.SetCursor(ctx, 0)
	})
}
