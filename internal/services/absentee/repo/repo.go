// Package repo provides Postgres bindings for the absentee domain.Repo
package repo

import (
	"context"
	"time"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/services/absentee/domain"
)

type (
	// PG is a Postgres binder for domain.Repo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

var _ domain.Repo = (*queries)(nil)

// NewPG returns a Postgres binder for Repo
func NewPG() repokit.Binder[domain.Repo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.Repo { return &queries{q: q} }

// ExistingEmployees returns the employee ids that already have a row on date
func (r *queries) ExistingEmployees(ctx context.Context, date time.Time) (map[string]struct{}, error) {
	rows, err := r.q.Query(ctx, `SELECT employee_id FROM attendances WHERE logdate = $1`, date)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "existing aggregates on %s", date.Format("2006-01-02"))
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, perrors.FromPostgresf(err, "scan existing employee")
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// InsertGaps bulk-inserts no-punch rows; existing aggregates always win
func (r *queries) InsertGaps(ctx context.Context, rows []domain.GapRow) error {
	if len(rows) == 0 {
		return nil
	}
	emps := make([]string, len(rows))
	dates := make([]time.Time, len(rows))
	statuses := make([]string, len(rows))
	for i, g := range rows {
		emps[i] = g.EmployeeID
		dates[i] = g.LogDate
		statuses[i] = g.Status
	}
	if _, err := r.q.Exec(ctx, `
		INSERT INTO attendances (employee_id, logdate, shift_status)
		SELECT * FROM unnest($1::text[], $2::date[], $3::text[])
		ON CONFLICT (employee_id, logdate) DO NOTHING
	`, emps, dates, statuses); err != nil {
		return perrors.BulkWriteFailedf("insert absentee rows: %v", err)
	}
	return nil
}
