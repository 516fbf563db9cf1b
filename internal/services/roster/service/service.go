// Package service builds the per-run reference-data snapshot and resolves
// punch directions against it
package service

import (
	"context"
	"sort"
	"time"

	"punchclock/internal/core/shiftwindow"
	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	punchdom "punchclock/internal/services/punches/domain"
	"punchclock/internal/services/roster/domain"
)

// Config carries the roster knobs
type Config struct {
	// Loc is the project timezone
	Loc *time.Location

	// DefaultWeekOffs applies to employees with no weekly-off columns set
	DefaultWeekOffs []int
}

// Svc loads reference data once per run
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
	cfg    Config
}

// New constructs the roster service
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo], cfg Config) *Svc {
	if db == nil {
		panic("roster.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("roster.Service requires a non-nil Repo binder")
	}
	if cfg.Loc == nil {
		panic("roster.Service requires a timezone")
	}
	return &Svc{db: db, binder: binder, cfg: cfg}
}

// DefaultWeekOffs exposes the configured fallback set
func (s *Svc) DefaultWeekOffs() []int { return s.cfg.DefaultWeekOffs }

// Snapshot loads every reference table in one transaction so a run sees a
// consistent view
func (s *Svc) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)

		employees, err := r.ListEmployees(ctx)
		if err != nil {
			return err
		}
		shifts, err := r.ListShifts(ctx)
		if err != nil {
			return err
		}
		holidays, err := r.ListHolidays(ctx)
		if err != nil {
			return err
		}
		devices, err := r.ListDeviceConfigs(ctx)
		if err != nil {
			return err
		}

		snap.Employees = make(map[string]domain.Employee, len(employees))
		for _, e := range employees {
			snap.Employees[e.ID] = e
		}
		snap.Shifts = make(map[string]shiftwindow.Shift, len(shifts))
		for _, sh := range shifts {
			snap.Shifts[sh.Name] = sh
		}
		snap.ShiftOrder = shifts
		sort.Slice(snap.ShiftOrder, func(i, j int) bool {
			return snap.ShiftOrder[i].Name < snap.ShiftOrder[j].Name
		})
		snap.Holidays = holidays
		snap.Devices = devices
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Resolve maps a punch's raw direction fields to a Direction.
// Manual punches carry their direction literally; device punches go through
// the device config table
func Resolve(snap *domain.Snapshot, source, rawDirection, shortname, serialno string) (domain.Direction, error) {
	if source == punchdom.SourceManual {
		return domain.ParseDirection(rawDirection)
	}
	dir, ok := snap.Devices[domain.DeviceKey{Shortname: shortname, Serialno: serialno}]
	if !ok {
		return domain.DirectionBoth, perrors.DeviceUnconfiguredf(
			"device %s/%s has no direction config", shortname, serialno)
	}
	return dir, nil
}
