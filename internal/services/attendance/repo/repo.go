// Package repo provides Postgres bindings for the attendance domain.Repo
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/attendance/domain"
)

type (
	// PG is a Postgres binder for domain.Repo
	PG struct {
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

// GetForUpdate loads one aggregate under a row-level exclusive lock.
// The lock holds until the surrounding transaction ends
func (r *queries) GetForUpdate(ctx context.Context, employeeID string, date time.Time) (domain.Aggregate, bool, error) {
	var (
		a                      domain.Aggregate
		logdate                time.Time
		first, last            *time.Time
		total, late, early, ot *int64
	)
	err := r.q.QueryRow(ctx, `
		SELECT employee_id, logdate, COALESCE(shift, ''),
		       first_logtime, last_logtime,
		       COALESCE(in_direction, ''), COALESCE(out_direction, ''),
		       COALESCE(in_shortname, ''), COALESCE(out_shortname, ''),
		       EXTRACT(EPOCH FROM total_time)::bigint,
		       EXTRACT(EPOCH FROM late_entry)::bigint,
		       EXTRACT(EPOCH FROM early_exit)::bigint,
		       EXTRACT(EPOCH FROM overtime)::bigint,
		       COALESCE(shift_status, '')
		FROM attendances
		WHERE employee_id = $1 AND logdate = $2
		FOR UPDATE
	`, employeeID, date).Scan(
		&a.EmployeeID, &logdate, &a.Shift,
		&first, &last,
		&a.InDirection, &a.OutDirection,
		&a.InShortname, &a.OutShortname,
		&total, &late, &early, &ot,
		&a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Aggregate{}, false, nil
		}
		return domain.Aggregate{}, false, perrors.FromPostgresf(err, "lock aggregate %s/%s",
			employeeID, date.Format("2006-01-02"))
	}

	a.LogDate = ptime.DateIn(logdate, r.loc)
	if first != nil {
		a.First = first.In(r.loc)
	}
	if last != nil {
		a.Last = last.In(r.loc)
	}
	a.TotalTime = secs(total)
	a.LateEntry = secs(late)
	a.EarlyExit = secs(early)
	a.Overtime = secs(ot)
	return a, true, nil
}

// Upsert writes the whole aggregate, replacing all non-key fields on conflict
func (r *queries) Upsert(ctx context.Context, a domain.Aggregate) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO attendances (
			employee_id, logdate, shift,
			first_logtime, last_logtime,
			in_direction, out_direction, in_shortname, out_shortname,
			total_time, late_entry, early_exit, overtime, shift_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			make_interval(secs => $10::double precision),
			make_interval(secs => $11::double precision),
			make_interval(secs => $12::double precision),
			make_interval(secs => $13::double precision),
			$14
		)
		ON CONFLICT (employee_id, logdate) DO UPDATE SET
			shift         = EXCLUDED.shift,
			first_logtime = EXCLUDED.first_logtime,
			last_logtime  = EXCLUDED.last_logtime,
			in_direction  = EXCLUDED.in_direction,
			out_direction = EXCLUDED.out_direction,
			in_shortname  = EXCLUDED.in_shortname,
			out_shortname = EXCLUDED.out_shortname,
			total_time    = EXCLUDED.total_time,
			late_entry    = EXCLUDED.late_entry,
			early_exit    = EXCLUDED.early_exit,
			overtime      = EXCLUDED.overtime,
			shift_status  = EXCLUDED.shift_status
	`,
		a.EmployeeID, a.LogDate, a.Shift,
		tsOrNil(a.First), tsOrNil(a.Last),
		a.InDirection, a.OutDirection, a.InShortname, a.OutShortname,
		secsOrNil(a.TotalTime), secsOrNil(a.LateEntry),
		secsOrNil(a.EarlyExit), secsOrNil(a.Overtime),
		a.Status,
	); err != nil {
		return perrors.FromPostgresf(err, "upsert aggregate %s/%s",
			a.EmployeeID, a.LogDate.Format("2006-01-02"))
	}
	return nil
}

// DeleteAll clears the aggregate store
func (r *queries) DeleteAll(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM attendances`); err != nil {
		return perrors.FromPostgresf(err, "delete aggregates")
	}
	return nil
}

func secs(v *int64) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v) * time.Second
	return &d
}

func secsOrNil(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

func tsOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
