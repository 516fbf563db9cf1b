// Package repo provides Postgres bindings for the extsync domain.Repo
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/store"
	"punchclock/internal/services/extsync/domain"
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

// LoadCredential reads the singleton upstream configuration row
func (r *queries) LoadCredential(ctx context.Context) (domain.Credential, bool, error) {
	var (
		c    domain.Credential
		kind string
	)
	err := r.q.QueryRow(ctx, `
		SELECT database_type, host, port, name, username, password, table_name,
		       id_field, employeeid_field, direction_field,
		       shortname_field, serialno_field, log_datetime_field
		FROM external_db_credentials
		LIMIT 1
	`).Scan(
		&kind, &c.Host, &c.Port, &c.Name, &c.User, &c.Password, &c.Table,
		&c.Fields.ID, &c.Fields.EmployeeID, &c.Fields.Direction,
		&c.Fields.Shortname, &c.Fields.Serialno, &c.Fields.LogDatetime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credential{}, false, nil
		}
		return domain.Credential{}, false, perrors.FromPostgresf(err, "load upstream credential")
	}
	c.Kind = store.UpstreamKind(kind)
	return c, true, nil
}

// MaxExternalID returns the resume point for id paging
func (r *queries) MaxExternalID(ctx context.Context) (int64, error) {
	id, err := store.Scalar[int64](ctx, r.q, `SELECT COALESCE(MAX(id), 0) FROM logs`)
	if err != nil {
		return 0, perrors.FromPostgresf(err, "max external id")
	}
	return id, nil
}

// UpsertBatch writes one pulled page. On id conflict the non-key fields are
// replaced only when the incoming log time is not older than the stored one
func (r *queries) UpsertBatch(ctx context.Context, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	emps := make([]string, len(rows))
	dirs := make([]string, len(rows))
	shorts := make([]string, len(rows))
	serials := make([]string, len(rows))
	times := make([]time.Time, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		emps[i] = row.EmployeeID
		dirs[i] = row.Direction
		shorts[i] = row.Shortname
		serials[i] = row.Serialno
		times[i] = row.Time
	}

	if _, err := r.q.Exec(ctx, `
		INSERT INTO logs (id, employee_id, direction, shortname, serialno, log_datetime)
		SELECT * FROM unnest(
			$1::bigint[], $2::text[], $3::text[], $4::text[], $5::text[], $6::timestamptz[]
		)
		ON CONFLICT (id) DO UPDATE SET
			employee_id  = EXCLUDED.employee_id,
			direction    = EXCLUDED.direction,
			shortname    = EXCLUDED.shortname,
			serialno     = EXCLUDED.serialno,
			log_datetime = EXCLUDED.log_datetime
		WHERE logs.log_datetime <= EXCLUDED.log_datetime
	`, ids, emps, dirs, shorts, serials, times); err != nil {
		return perrors.BulkWriteFailedf("upsert pulled logs: %v", err)
	}
	return nil
}
