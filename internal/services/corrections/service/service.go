// Package service implements the A-WO-A corrector and its reverter.
// The corrector flips the week-off inside an absent sandwich to absent; the
// reverter undoes flips whose neighbours have since changed away from absent
package service

import (
	"context"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/modkit/repokit"
	"punchclock/internal/platform/logger"
	"punchclock/internal/services/corrections/domain"
)

// Svc implements both correction passes
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
}

// New constructs the corrections service
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo]) *Svc {
	if db == nil {
		panic("corrections.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("corrections.Service requires a non-nil Repo binder")
	}
	return &Svc{db: db, binder: binder}
}

// Correct flips every unrecorded (A, WO, A) middle day to A and records the
// flip in the audit store so it stays revertible
func (s *Svc) Correct(ctx context.Context) error {
	var flipped int
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)

		triples, err := r.FindTriples(ctx)
		if err != nil {
			return err
		}
		for _, t := range triples {
			if err := r.SetStatus(ctx, t.EmployeeID, t.Day2, metrics.StatusAbsent); err != nil {
				return err
			}
		}
		flipped = len(triples)
		return r.InsertCorrections(ctx, triples)
	})
	if err != nil {
		return err
	}
	logger.C(ctx).Info().Int("flipped", flipped).Msg("a-wo-a correction pass complete")
	return nil
}

// Revert re-evaluates every recorded flip: when a neighbour day is no longer
// absent and the middle is still the corrected A, the middle goes back to WO
// and the audit row is dropped. Evaluated-but-still-valid rows stay
func (s *Svc) Revert(ctx context.Context) error {
	var reverted int
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)

		corrections, err := r.ListCorrections(ctx)
		if err != nil {
			return err
		}

		var drop []int64
		for _, c := range corrections {
			statuses, err := r.Statuses(ctx, c.EmployeeID, []time.Time{c.Day1, c.Day2, c.Day3})
			if err != nil {
				return err
			}
			s1, ok1 := statuses[c.Day1]
			s2, ok2 := statuses[c.Day2]
			s3, ok3 := statuses[c.Day3]
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			if s2 != metrics.StatusAbsent {
				continue
			}
			if s1 != metrics.StatusAbsent || s3 != metrics.StatusAbsent {
				if err := r.SetStatus(ctx, c.EmployeeID, c.Day2, metrics.StatusWeekOff); err != nil {
					return err
				}
				drop = append(drop, c.ID)
			}
		}
		reverted = len(drop)
		return r.DeleteCorrections(ctx, drop)
	})
	if err != nil {
		return err
	}
	logger.C(ctx).Info().Int("reverted", reverted).Msg("a-wo-a reversal pass complete")
	return nil
}
