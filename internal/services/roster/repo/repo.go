// Package repo provides Postgres bindings for the roster domain.Repo
package repo

import (
	"context"
	"time"

	"punchclock/internal/core/metrics"
	"punchclock/internal/core/shiftwindow"
	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/roster/domain"
)

type (
	// PG is a Postgres binder for domain.Repo
	PG struct {
		// Loc is the project timezone; date columns are rebuilt in it
		Loc *time.Location
	}
	queries struct {
		q   repokit.Queryer
		loc *time.Location
	}
)

var _ domain.Repo = (*queries)(nil)

// NewPG returns a Postgres binder for Repo
func NewPG(loc *time.Location) repokit.Binder[domain.Repo] { return PG{Loc: loc} }

// Bind implements repokit.Binder
func (p PG) Bind(q repokit.Queryer) domain.Repo { return &queries{q: q, loc: p.Loc} }

// ListEmployees loads every employee row
func (r *queries) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := r.q.Query(ctx, `
		SELECT employee_id,
		       date_of_joining,
		       date_of_leaving,
		       COALESCE(shift_name, ''),
		       first_weekly_off,
		       second_weekly_off
		FROM employees
		ORDER BY employee_id
	`)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list employees")
	}
	defer rows.Close()

	var out []domain.Employee
	for rows.Next() {
		var (
			e             domain.Employee
			join, leave   *time.Time
			first, second *int
		)
		if err := rows.Scan(&e.ID, &join, &leave, &e.ShiftName, &first, &second); err != nil {
			return nil, perrors.FromPostgresf(err, "scan employee")
		}
		if join != nil {
			e.JoinDate = ptime.Ptr(ptime.DateIn(*join, r.loc))
		}
		if leave != nil {
			e.LeaveDate = ptime.Ptr(ptime.DateIn(*leave, r.loc))
		}
		e.FirstWeekOff, e.SecondWeekOff = first, second
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListShifts loads every shift contract.
// Clock and interval columns come back as whole seconds
func (r *queries) ListShifts(ctx context.Context) ([]shiftwindow.Shift, error) {
	rows, err := r.q.Query(ctx, `
		SELECT name,
		       EXTRACT(EPOCH FROM start_time)::bigint,
		       EXTRACT(EPOCH FROM end_time)::bigint,
		       EXTRACT(EPOCH FROM COALESCE(tolerance_before_start, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(tolerance_after_start, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(grace_period_at_start, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(grace_period_at_end, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(overtime_threshold_before_start, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(overtime_threshold_after_end, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(absent_threshold, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM half_day_threshold)::bigint,
		       EXTRACT(EPOCH FROM COALESCE(full_day_threshold, '0'::interval))::bigint,
		       EXTRACT(EPOCH FROM COALESCE(lunch_duration, '0'::interval))::bigint,
		       include_lunch_break_in_half_day,
		       include_lunch_break_in_full_day
		FROM shifts
		ORDER BY name
	`)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list shifts")
	}
	defer rows.Close()

	var out []shiftwindow.Shift
	for rows.Next() {
		var (
			s                                    shiftwindow.Shift
			start, end                           int64
			tolBefore, tolAfter, graceS, graceE  int64
			otBefore, otAfter, absent, full, lun int64
			half                                 *int64
		)
		if err := rows.Scan(
			&s.Name, &start, &end,
			&tolBefore, &tolAfter, &graceS, &graceE,
			&otBefore, &otAfter, &absent, &half, &full, &lun,
			&s.LunchInHalfDay, &s.LunchInFullDay,
		); err != nil {
			return nil, perrors.FromPostgresf(err, "scan shift")
		}
		s.Start = time.Duration(start) * time.Second
		s.End = time.Duration(end) * time.Second
		s.ToleranceBeforeStart = time.Duration(tolBefore) * time.Second
		s.ToleranceAfterStart = time.Duration(tolAfter) * time.Second
		s.GraceAtStart = time.Duration(graceS) * time.Second
		s.GraceAtEnd = time.Duration(graceE) * time.Second
		s.OvertimeBeforeStart = time.Duration(otBefore) * time.Second
		s.OvertimeAfterEnd = time.Duration(otAfter) * time.Second
		s.AbsentThreshold = time.Duration(absent) * time.Second
		s.FullDayThreshold = time.Duration(full) * time.Second
		s.LunchDuration = time.Duration(lun) * time.Second
		if half != nil {
			hd := time.Duration(*half) * time.Second
			s.HalfDayThreshold = &hd
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListHolidays loads the holiday calendar keyed by project-timezone dates
func (r *queries) ListHolidays(ctx context.Context) (map[time.Time]metrics.HolidayKind, error) {
	rows, err := r.q.Query(ctx, `SELECT holiday_date, holiday_type FROM holiday_lists`)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list holidays")
	}
	defer rows.Close()

	out := make(map[time.Time]metrics.HolidayKind)
	for rows.Next() {
		var (
			d time.Time
			k string
		)
		if err := rows.Scan(&d, &k); err != nil {
			return nil, perrors.FromPostgresf(err, "scan holiday")
		}
		out[ptime.DateIn(d, r.loc)] = metrics.HolidayKind(k)
	}
	return out, rows.Err()
}

// ListDeviceConfigs loads the device direction map
func (r *queries) ListDeviceConfigs(ctx context.Context) (map[domain.DeviceKey]domain.Direction, error) {
	rows, err := r.q.Query(ctx, `SELECT shortname, serialno, direction_of_use FROM device_configs`)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list device configs")
	}
	defer rows.Close()

	out := make(map[domain.DeviceKey]domain.Direction)
	for rows.Next() {
		var (
			key domain.DeviceKey
			raw string
		)
		if err := rows.Scan(&key.Shortname, &key.Serialno, &raw); err != nil {
			return nil, perrors.FromPostgresf(err, "scan device config")
		}
		dir, err := domain.ParseDirection(raw)
		if err != nil {
			return nil, err
		}
		out[key] = dir
	}
	return out, rows.Err()
}
