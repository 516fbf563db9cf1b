// Package repo provides Postgres bindings for the maintenance domain.Repo
package repo

import (
	"context"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/services/maint/domain"
)

// serialTables carry a serial/bigserial id whose sequence can drift after
// bulk loads with explicit ids
var serialTables = []string{
	"manual_logs",
	"all_logs",
	"attendances",
	"mandays",
	"missed_punches",
	"awo_corrections",
}

// derivedTables are cleared by the destructive recalculation path
var derivedTables = []string{
	"attendances",
	"processed_logs",
	"mandays",
	"missed_punches",
	"awo_corrections",
	"last_log_id_mandays",
}

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

// ResetSequences realigns every serial sequence with its table's max(id)
func (r *queries) ResetSequences(ctx context.Context) (int, error) {
	var done int
	for _, table := range serialTables {
		if _, err := r.q.Exec(ctx, `
			SELECT setval(
				pg_get_serial_sequence($1, 'id'),
				COALESCE((SELECT MAX(id) FROM `+table+`), 1),
				false
			)
		`, table); err != nil {
			return done, perrors.FromPostgresf(err, "reset sequence for %s", table)
		}
		done++
	}
	return done, nil
}

// TruncateDerived clears every derived store in dependency order
func (r *queries) TruncateDerived(ctx context.Context) error {
	for _, table := range derivedTables {
		if _, err := r.q.Exec(ctx, `DELETE FROM `+table); err != nil {
			return perrors.FromPostgresf(err, "truncate %s", table)
		}
	}
	return nil
}
