package service

import (
	"context"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/core/shiftwindow"
	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/attendance/domain"
	punchdom "punchclock/internal/services/punches/domain"
	rosterdom "punchclock/internal/services/roster/domain"
	rostersvc "punchclock/internal/services/roster/service"
)

func dateOf(t time.Time, loc *time.Location) time.Time { return ptime.DateOf(t, loc) }

func resolveDirection(snap *rosterdom.Snapshot, p punchdom.Punch) (rosterdom.Direction, error) {
	return rostersvc.Resolve(snap, p.Source, p.Direction, p.Shortname, p.Serialno)
}

// matchIn finds the window an IN punch belongs to.
// Fixed shifts re-evaluate against the previous date when an early punch
// misses the nominal window of a night shift. Auto-shift walks the
// deterministic shift order and takes the first window containing the punch;
// ok=false means no shift claims the punch (a successful no-op)
func (s *Svc) matchIn(snap *rosterdom.Snapshot, emp rosterdom.Employee, t time.Time) (shiftwindow.Window, bool, error) {
	pdate := dateOf(t, s.cfg.Loc)

	if emp.ShiftName != "" {
		sh, ok := snap.Shifts[emp.ShiftName]
		if !ok {
			return shiftwindow.Window{}, false,
				perrors.NotFoundf("employee %s references unknown shift %q", emp.ID, emp.ShiftName)
		}
		w := shiftwindow.Calc(sh, t, pdate, s.cfg.Loc)
		if sh.IsNightShift() && t.Before(w.StartWindow) {
			prev := shiftwindow.Calc(sh, t, pdate.AddDate(0, 0, -1), s.cfg.Loc)
			if prev.Contains(t) {
				return prev, true, nil
			}
		}
		return w, true, nil
	}

	for _, sh := range snap.ShiftOrder {
		w := shiftwindow.Calc(sh, t, pdate, s.cfg.Loc)
		if w.Contains(t) {
			return w, true, nil
		}
	}
	return shiftwindow.Window{}, false, nil
}

// handleIn routes an IN punch: plain IN attach, or the two-phase
// in-after-out reconciliation when the day already has an OUT.
// The earliest IN wins; a punch at or after the stored first is
// consumed without effect
func (s *Svc) handleIn(
	ctx context.Context,
	snap *rosterdom.Snapshot,
	emp rosterdom.Employee,
	p punchdom.Punch,
	weekOffs []int,
) (bool, error) {
	w, ok, err := s.matchIn(snap, emp, p.Time)
	if err != nil || !ok {
		// no window claims the punch; consumed without effect
		return err == nil, err
	}
	attDate := w.Date(s.cfg.Loc)

	// phase one: attach the IN and strip OUT-derived state under the row lock
	var (
		hadOut           bool
		outAt            time.Time
		outDir, outShort string
	)
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.agg.Bind(q)
		agg, found, err := r.GetForUpdate(ctx, emp.ID, attDate)
		if err != nil {
			return err
		}
		if !found {
			return r.Upsert(ctx, newInAggregate(emp.ID, attDate, w, p))
		}
		if !agg.First.IsZero() && !p.Time.Before(agg.First) {
			// not an earlier IN; nothing to do
			return nil
		}
		if !agg.Last.IsZero() {
			hadOut, outAt, outDir, outShort = true, agg.Last, agg.OutDirection, agg.OutShortname
			applyEarlierIn(&agg, w, p)
			clearOut(&agg)
			return r.Upsert(ctx, agg)
		}
		applyEarlierIn(&agg, w, p)
		return r.Upsert(ctx, agg)
	}); err != nil {
		return false, err
	}

	// phase two: replay the snapshotted OUT so the latest OUT still wins.
	// A failure here leaves a valid MP aggregate behind
	if hadOut {
		if err := s.applyOut(ctx, snap, emp, outAt, outDir, outShort, weekOffs); err != nil {
			return false, err
		}
	}
	return true, nil
}

// handleOut routes an OUT punch to the best candidate aggregate
func (s *Svc) handleOut(
	ctx context.Context,
	snap *rosterdom.Snapshot,
	emp rosterdom.Employee,
	p punchdom.Punch,
	weekOffs []int,
) (bool, error) {
	if err := s.applyOut(ctx, snap, emp, p.Time, p.Source, p.Shortname, weekOffs); err != nil {
		return false, err
	}
	return true, nil
}

// applyOut is shared by real OUT punches and the in-after-out replay.
// Candidates are the punch date and the previous date, later date first; a
// fixed-shift employee additionally requires the shift-name snapshot to match
func (s *Svc) applyOut(
	ctx context.Context,
	snap *rosterdom.Snapshot,
	emp rosterdom.Employee,
	t time.Time,
	source, shortname string,
	weekOffs []int,
) error {
	pdate := dateOf(t, s.cfg.Loc)
	fixed := emp.ShiftName != ""

	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.agg.Bind(q)

		for _, date := range []time.Time{pdate, pdate.AddDate(0, 0, -1)} {
			agg, found, err := r.GetForUpdate(ctx, emp.ID, date)
			if err != nil {
				return err
			}
			if !found || agg.First.IsZero() {
				continue
			}
			if fixed && agg.Shift != emp.ShiftName {
				continue
			}
			if agg.First.After(t) {
				continue
			}
			if !agg.Last.IsZero() && !agg.Last.Before(t) {
				continue
			}
			agg.Last = t
			agg.OutDirection = source
			agg.OutShortname = shortname
			s.recompute(snap, emp, &agg, weekOffs)
			return r.Upsert(ctx, agg)
		}

		// no candidate: orphan OUT on the punch date
		agg, found, err := r.GetForUpdate(ctx, emp.ID, pdate)
		if err != nil {
			return err
		}
		if !found {
			orphan := domain.Aggregate{
				EmployeeID:   emp.ID,
				LogDate:      pdate,
				Shift:        emp.ShiftName,
				Last:         t,
				OutDirection: source,
				OutShortname: shortname,
				Status:       metrics.StatusMissingPunch,
			}
			return r.Upsert(ctx, orphan)
		}
		if agg.First.IsZero() && (agg.Last.IsZero() || agg.Last.Before(t)) {
			agg.Last = t
			agg.OutDirection = source
			agg.OutShortname = shortname
			agg.Status = metrics.StatusMissingPunch
			return r.Upsert(ctx, agg)
		}
		// existing row can't legally take this OUT; leave it alone
		return nil
	})
}

// handleInOut handles a both-direction device: the aggregate state decides
// whether the punch acts as IN or OUT
func (s *Svc) handleInOut(
	ctx context.Context,
	snap *rosterdom.Snapshot,
	emp rosterdom.Employee,
	p punchdom.Punch,
	weekOffs []int,
) (bool, error) {
	w, ok, err := s.matchIn(snap, emp, p.Time)
	if err != nil || !ok {
		return err == nil, err
	}
	attDate := w.Date(s.cfg.Loc)
	t := p.Time

	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.agg.Bind(q)
		agg, found, err := r.GetForUpdate(ctx, emp.ID, attDate)
		if err != nil {
			return err
		}
		switch {
		case !found:
			return r.Upsert(ctx, newInAggregate(emp.ID, attDate, w, p))

		case agg.First.IsZero() || t.Before(agg.First):
			applyEarlierIn(&agg, w, p)
			if !agg.Last.IsZero() {
				s.recompute(snap, emp, &agg, weekOffs)
			}
			return r.Upsert(ctx, agg)

		case t.Equal(agg.First):
			clearOut(&agg)
			return r.Upsert(ctx, agg)

		case agg.Last.IsZero() || t.After(agg.Last):
			agg.Last = t
			agg.OutDirection = p.Source
			agg.OutShortname = p.Shortname
			s.recompute(snap, emp, &agg, weekOffs)
			return r.Upsert(ctx, agg)
		}
		return nil
	}); err != nil {
		return false, err
	}
	return true, nil
}

// recompute rebuilds the derived metrics and status from the punch pair.
// Aggregates whose shift snapshot can't be resolved stay MP
func (s *Svc) recompute(snap *rosterdom.Snapshot, emp rosterdom.Employee, agg *domain.Aggregate, weekOffs []int) {
	sh, ok := snap.Shifts[agg.Shift]
	if !ok || agg.First.IsZero() || agg.Last.IsZero() {
		return
	}
	w := shiftwindow.Calc(sh, agg.First, agg.LogDate, s.cfg.Loc)
	res := metrics.Compute(metrics.Input{
		Window:   w,
		Date:     agg.LogDate,
		First:    agg.First,
		Last:     agg.Last,
		WeekOffs: weekOffs,
		Holiday:  snap.Holiday(agg.LogDate),
	})
	agg.TotalTime = res.TotalTime
	agg.LateEntry = res.LateEntry
	agg.EarlyExit = res.EarlyExit
	agg.Overtime = res.Overtime
	agg.Status = res.Status
}

// newInAggregate builds the first-punch aggregate for a day
func newInAggregate(employeeID string, date time.Time, w shiftwindow.Window, p punchdom.Punch) domain.Aggregate {
	a := domain.Aggregate{
		EmployeeID:  employeeID,
		LogDate:     date,
		Shift:       w.Name,
		First:       p.Time,
		InDirection: p.Source,
		InShortname: p.Shortname,
		Status:      metrics.StatusMissingPunch,
	}
	if late := p.Time.Sub(w.StartWithGrace); late > 0 {
		a.LateEntry = &late
	}
	return a
}

// applyEarlierIn moves the aggregate's IN side to the (earlier) punch.
// The status stays untouched when an OUT is present; the caller either
// recomputes or clears it
func applyEarlierIn(agg *domain.Aggregate, w shiftwindow.Window, p punchdom.Punch) {
	agg.First = p.Time
	agg.InDirection = p.Source
	agg.InShortname = p.Shortname
	agg.Shift = w.Name
	agg.LateEntry = nil
	if late := p.Time.Sub(w.StartWithGrace); late > 0 {
		agg.LateEntry = &late
	}
	if agg.Last.IsZero() {
		agg.Status = metrics.StatusMissingPunch
	}
}

// clearOut strips the OUT side and everything derived from the pair
func clearOut(agg *domain.Aggregate) {
	agg.Last = time.Time{}
	agg.OutDirection = ""
	agg.OutShortname = ""
	agg.TotalTime = nil
	agg.EarlyExit = nil
	agg.Overtime = nil
	agg.Status = metrics.StatusMissingPunch
}
