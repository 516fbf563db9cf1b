// Package repo provides Postgres bindings for the mandays domain.Repo
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/store"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/mandays/domain"
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

// Cursor returns the stored resume point, zero when the row is missing
func (r *queries) Cursor(ctx context.Context) (int64, error) {
	id, err := store.Scalar[int64](ctx, r.q, `SELECT COALESCE(MAX(last_id), 0) FROM last_log_id_mandays`)
	if err != nil {
		return 0, perrors.FromPostgresf(err, "load mandays cursor")
	}
	return id, nil
}

// SetCursor replaces the single-row resume point
func (r *queries) SetCursor(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM last_log_id_mandays`); err != nil {
		return perrors.FromPostgresf(err, "clear mandays cursor")
	}
	if _, err := r.q.Exec(ctx, `INSERT INTO last_log_id_mandays (last_id) VALUES ($1)`, id); err != nil {
		return perrors.FromPostgresf(err, "set mandays cursor")
	}
	return nil
}

// ListNewPunchDays collects the employee-days touched past the cursor
func (r *queries) ListNewPunchDays(ctx context.Context, afterID int64, limit int) ([]domain.DayKey, int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT employee_id,
		       (log_datetime AT TIME ZONE $1)::date AS d,
		       MAX(id)
		FROM all_logs
		WHERE id > $2
		GROUP BY employee_id, d
		ORDER BY MAX(id)
		LIMIT $3
	`, r.loc.String(), afterID, limit)
	if err != nil {
		return nil, 0, perrors.FromPostgresf(err, "list new punch days")
	}
	defer rows.Close()

	var (
		out   []domain.DayKey
		maxID int64
	)
	for rows.Next() {
		var (
			k  domain.DayKey
			d  time.Time
			id int64
		)
		if err := rows.Scan(&k.EmployeeID, &d, &id); err != nil {
			return nil, 0, perrors.FromPostgresf(err, "scan punch day")
		}
		k.Date = ptime.DateIn(d, r.loc)
		if id > maxID {
			maxID = id
		}
		out = append(out, k)
	}
	return out, maxID, rows.Err()
}

// ListDayPunches returns every punch time of one employee-day ascending
func (r *queries) ListDayPunches(ctx context.Context, employeeID string, date time.Time) ([]time.Time, error) {
	out, err := store.Many(ctx, r.q, func(row store.Row) (time.Time, error) {
		var t time.Time
		err := row.Scan(&t)
		return t.In(r.loc), err
	}, `
		SELECT log_datetime
		FROM all_logs
		WHERE employee_id = $1
		  AND (log_datetime AT TIME ZONE $2)::date = $3::date
		ORDER BY log_datetime
	`, employeeID, r.loc.String(), date)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list day punches %s", employeeID)
	}
	return out, nil
}

// UpsertDay replaces one duty-pair row. The ten pair columns are written
// positionally; absent pairs go NULL
func (r *queries) UpsertDay(ctx context.Context, d domain.Day) error {
	cols := make([]string, 0, 2+domain.MaxPairs*3+1)
	cols = append(cols, "employee_id", "logdate")
	args := make([]any, 0, cap(cols))
	args = append(args, d.EmployeeID, d.LogDate)

	for i := 0; i < domain.MaxPairs; i++ {
		n := i + 1
		cols = append(cols,
			fmt.Sprintf("duty_in_%d", n),
			fmt.Sprintf("duty_out_%d", n),
			fmt.Sprintf("total_time_%d", n),
		)
		if i < len(d.Pairs) {
			p := d.Pairs[i]
			args = append(args, p.In, tsOrNil(p.Out), spanOrNil(p))
		} else {
			args = append(args, nil, nil, nil)
		}
	}
	cols = append(cols, "total_hours_worked")
	args = append(args, d.TotalHoursWorked.Seconds())

	ph := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-2)
	for i, c := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
		if strings.HasPrefix(c, "total_time_") || c == "total_hours_worked" {
			ph[i] = fmt.Sprintf("make_interval(secs => $%d::double precision)", i+1)
		}
		if i >= 2 {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO mandays (%s) VALUES (%s)
		ON CONFLICT (employee_id, logdate) DO UPDATE SET %s
	`, strings.Join(cols, ", "), strings.Join(ph, ", "), strings.Join(sets, ", "))

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return perrors.FromPostgresf(err, "upsert mandays %s/%s",
			d.EmployeeID, d.LogDate.Format("2006-01-02"))
	}
	return nil
}

// InsertMissedPunch records an unpaired trailing IN
func (r *queries) InsertMissedPunch(ctx context.Context, employeeID string, date, punch time.Time) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO missed_punches (employee_id, logdate, punch_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (employee_id, logdate, punch_time) DO NOTHING
	`, employeeID, date, punch); err != nil {
		return perrors.FromPostgresf(err, "insert missed punch %s", employeeID)
	}
	return nil
}

// MaxPunchIDBefore returns the soft-reset rewind target
func (r *queries) MaxPunchIDBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	id, err := store.Scalar[int64](ctx, r.q, `
		SELECT COALESCE(MAX(id), 0) FROM all_logs WHERE log_datetime < $1
	`, cutoff)
	if err != nil {
		return 0, perrors.FromPostgresf(err, "max punch id before cutoff")
	}
	return id, nil
}

// DeleteAll clears the mandays view and the missed-punch store
func (r *queries) DeleteAll(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM mandays`); err != nil {
		return perrors.FromPostgresf(err, "delete mandays")
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM missed_punches`); err != nil {
		return perrors.FromPostgresf(err, "delete missed punches")
	}
	return nil
}

func tsOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func spanOrNil(p domain.Pair) *float64 {
	if p.Out.IsZero() {
		return nil
	}
	s := p.Span().Seconds()
	return &s
}
