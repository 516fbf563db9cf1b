// Package repo provides Postgres bindings for the corrections domain.Repo
package repo

import (
	"context"
	"time"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/store"
	ptime "punchclock/internal/platform/time"
	"punchclock/internal/services/corrections/domain"
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

// FindTriples self-joins the aggregate store on consecutive dates to find
// (A, WO, A) runs that have no audit row yet
func (r *queries) FindTriples(ctx context.Context) ([]domain.Triple, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a1.employee_id, a1.logdate, a2.logdate, a3.logdate
		FROM attendances a1
		JOIN attendances a2
		  ON a2.employee_id = a1.employee_id AND a2.logdate = a1.logdate + 1
		JOIN attendances a3
		  ON a3.employee_id = a1.employee_id AND a3.logdate = a1.logdate + 2
		WHERE a1.shift_status = 'A'
		  AND a2.shift_status = 'WO'
		  AND a3.shift_status = 'A'
		  AND NOT EXISTS (
			SELECT 1 FROM awo_corrections c
			WHERE c.employee_id = a1.employee_id AND c.corrected_date = a2.logdate
		  )
		ORDER BY a1.employee_id, a1.logdate
	`)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "find a-wo-a triples")
	}
	defer rows.Close()

	var out []domain.Triple
	for rows.Next() {
		var (
			t          domain.Triple
			d1, d2, d3 time.Time
		)
		if err := rows.Scan(&t.EmployeeID, &d1, &d2, &d3); err != nil {
			return nil, perrors.FromPostgresf(err, "scan triple")
		}
		t.Day1 = ptime.DateIn(d1, r.loc)
		t.Day2 = ptime.DateIn(d2, r.loc)
		t.Day3 = ptime.DateIn(d3, r.loc)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatus rewrites one aggregate's status
func (r *queries) SetStatus(ctx context.Context, employeeID string, date time.Time, status string) error {
	if _, err := r.q.Exec(ctx, `
		UPDATE attendances SET shift_status = $3
		WHERE employee_id = $1 AND logdate = $2
	`, employeeID, date, status); err != nil {
		return perrors.FromPostgresf(err, "set status %s/%s", employeeID, date.Format("2006-01-02"))
	}
	return nil
}

// InsertCorrections records flips in the audit store
func (r *queries) InsertCorrections(ctx context.Context, triples []domain.Triple) error {
	if len(triples) == 0 {
		return nil
	}
	emps := make([]string, len(triples))
	d1 := make([]time.Time, len(triples))
	d2 := make([]time.Time, len(triples))
	d3 := make([]time.Time, len(triples))
	for i, t := range triples {
		emps[i], d1[i], d2[i], d3[i] = t.EmployeeID, t.Day1, t.Day2, t.Day3
	}
	if _, err := r.q.Exec(ctx, `
		INSERT INTO awo_corrections (employee_id, day1_date, corrected_date, day3_date)
		SELECT * FROM unnest($1::text[], $2::date[], $3::date[], $4::date[])
		ON CONFLICT (employee_id, corrected_date) DO NOTHING
	`, emps, d1, d2, d3); err != nil {
		return perrors.BulkWriteFailedf("insert corrections: %v", err)
	}
	return nil
}

// ListCorrections returns every recorded flip
func (r *queries) ListCorrections(ctx context.Context) ([]domain.Correction, error) {
	out, err := store.Many(ctx, r.q, func(row store.Row) (domain.Correction, error) {
		var (
			c          domain.Correction
			d1, d2, d3 time.Time
		)
		if err := row.Scan(&c.ID, &c.EmployeeID, &d1, &d2, &d3); err != nil {
			return c, err
		}
		c.Day1 = ptime.DateIn(d1, r.loc)
		c.Day2 = ptime.DateIn(d2, r.loc)
		c.Day3 = ptime.DateIn(d3, r.loc)
		return c, nil
	}, `
		SELECT id, employee_id, day1_date, corrected_date, day3_date
		FROM awo_corrections
		ORDER BY id
	`)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list corrections")
	}
	return out, nil
}

// Statuses returns date -> status for one employee over dates
func (r *queries) Statuses(ctx context.Context, employeeID string, dates []time.Time) (map[time.Time]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT logdate, COALESCE(shift_status, '')
		FROM attendances
		WHERE employee_id = $1 AND logdate = ANY($2::date[])
	`, employeeID, dates)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "statuses for %s", employeeID)
	}
	defer rows.Close()

	out := make(map[time.Time]string, len(dates))
	for rows.Next() {
		var (
			d time.Time
			s string
		)
		if err := rows.Scan(&d, &s); err != nil {
			return nil, perrors.FromPostgresf(err, "scan status")
		}
		out[ptime.DateIn(d, r.loc)] = s
	}
	return out, rows.Err()
}

// DeleteCorrections removes evaluated audit rows
func (r *queries) DeleteCorrections(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.q.Exec(ctx, `
		DELETE FROM awo_corrections WHERE id = ANY($1::bigint[])
	`, ids); err != nil {
		return perrors.FromPostgresf(err, "delete corrections")
	}
	return nil
}

// DeleteAll clears the audit store
func (r *queries) DeleteAll(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM awo_corrections`); err != nil {
		return perrors.FromPostgresf(err, "clear corrections")
	}
	return nil
}
