// Package repo provides Postgres bindings for the punches domain.Repo
package repo

import (
	"context"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/services/punches/domain"
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

// InsertDeviceLog appends one device punch and mirrors it into the unified
// view in the same statement batch
func (r *queries) InsertDeviceLog(ctx context.Context, p domain.Punch) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO logs (id, employee_id, direction, shortname, serialno, log_datetime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.EmployeeID, p.Direction, p.Shortname, p.Serialno, p.Time); err != nil {
		return perrors.FromPostgresf(err, "insert device log")
	}
	return r.upsertUnified(ctx, p, domain.SourceDevice)
}

// InsertManualLog appends one manual punch and mirrors it into the unified view
func (r *queries) InsertManualLog(ctx context.Context, p domain.Punch) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO manual_logs (employee_id, direction, log_datetime)
		VALUES ($1, $2, $3)
	`, p.EmployeeID, p.Direction, p.Time); err != nil {
		return perrors.FromPostgresf(err, "insert manual log")
	}
	return r.upsertUnified(ctx, p, domain.SourceManual)
}

func (r *queries) upsertUnified(ctx context.Context, p domain.Punch, source string) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO all_logs (employee_id, log_datetime, direction, shortname, serialno, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (employee_id, log_datetime, direction, source)
		DO UPDATE SET shortname = EXCLUDED.shortname, serialno = EXCLUDED.serialno
	`, p.EmployeeID, p.Time, p.Direction, p.Shortname, p.Serialno, source); err != nil {
		return perrors.FromPostgresf(err, "upsert unified log")
	}
	return nil
}

// MergeDeviceLogs upserts the device store into the unified view.
// Non-key fields refresh on conflict so device renames propagate
func (r *queries) MergeDeviceLogs(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO all_logs (employee_id, log_datetime, direction, shortname, serialno, source)
		SELECT employee_id, log_datetime, direction, shortname, serialno, $1
		FROM logs
		ON CONFLICT (employee_id, log_datetime, direction, source)
		DO UPDATE SET shortname = EXCLUDED.shortname, serialno = EXCLUDED.serialno
	`, domain.SourceDevice)
	if err != nil {
		return 0, perrors.FromPostgresf(err, "merge device logs")
	}
	return tag.RowsAffected(), nil
}

// MergeManualLogs upserts the manual store into the unified view
func (r *queries) MergeManualLogs(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO all_logs (employee_id, log_datetime, direction, shortname, serialno, source)
		SELECT employee_id, log_datetime, direction, '', '', $1
		FROM manual_logs
		ON CONFLICT (employee_id, log_datetime, direction, source) DO NOTHING
	`, domain.SourceManual)
	if err != nil {
		return 0, perrors.FromPostgresf(err, "merge manual logs")
	}
	return tag.RowsAffected(), nil
}

// ListUnprocessed pages unified punches the processor has not consumed yet.
// Ascending log time keeps reductions order-correct; id breaks ties
func (r *queries) ListUnprocessed(ctx context.Context, after domain.Cursor, limit int) ([]domain.Punch, error) {
	rows, err := r.q.Query(ctx, `
		SELECT al.id, al.employee_id, al.log_datetime, al.direction,
		       COALESCE(al.shortname, ''), COALESCE(al.serialno, ''), al.source
		FROM all_logs al
		WHERE (al.log_datetime, al.id) > ($1, $2)
		  AND NOT EXISTS (SELECT 1 FROM processed_logs pl WHERE pl.id = al.id)
		ORDER BY al.log_datetime, al.id
		LIMIT $3
	`, after.Time, after.ID, limit)
	if err != nil {
		return nil, perrors.FromPostgresf(err, "list unprocessed")
	}
	defer rows.Close()

	var out []domain.Punch
	for rows.Next() {
		var p domain.Punch
		if err := rows.Scan(&p.ID, &p.EmployeeID, &p.Time, &p.Direction,
			&p.Shortname, &p.Serialno, &p.Source); err != nil {
			return nil, perrors.FromPostgresf(err, "scan unprocessed punch")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkProcessed records ids as consumed, ignoring ones already present
func (r *queries) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.q.Exec(ctx, `
		INSERT INTO processed_logs (id)
		SELECT unnest($1::bigint[])
		ON CONFLICT (id) DO NOTHING
	`, ids); err != nil {
		return perrors.BulkWriteFailedf("mark processed: %v", err)
	}
	return nil
}

// ClearProcessed empties the cursor so the next run reprocesses everything
func (r *queries) ClearProcessed(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM processed_logs`); err != nil {
		return perrors.FromPostgresf(err, "clear processed")
	}
	return nil
}
