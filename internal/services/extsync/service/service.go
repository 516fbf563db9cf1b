// Package service pulls punches from the configured external database into
// the device punch store
package service

import (
	"context"
	"fmt"

	"punchclock/internal/modkit/repokit"
	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/logger"
	"punchclock/internal/platform/store"
	"punchclock/internal/services/extsync/domain"
)

// PageSize is the upstream pull batch, ordered ascending by id
const PageSize = 100000

// Config carries the extsync knobs
type Config struct {
	// Fallback is used when no external_db_credentials row exists.
	// nil means sync is a no-op without a credential row
	Fallback *domain.Credential
}

// Svc implements the external pull
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
	cfg    Config

	// open is a seam for tests
	open func(ctx context.Context, cfg store.UpstreamConfig) (*store.Upstream, error)
}

// New constructs the extsync service
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo], cfg Config) *Svc {
	if db == nil {
		panic("extsync.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("extsync.Service requires a non-nil Repo binder")
	}
	return &Svc{db: db, binder: binder, cfg: cfg, open: store.OpenUpstream}
}

// Sync pulls new upstream rows since the highest already-ingested id.
// Resumable: a failed run leaves the resume point wherever the last
// committed page ended
func (s *Svc) Sync(ctx context.Context) error {
	return s.sync(ctx, false)
}

// SyncAll re-pulls the entire upstream table from id 0. The forward-only
// upsert makes replays safe; already-ingested rows are refreshed in place
func (s *Svc) SyncAll(ctx context.Context) error {
	return s.sync(ctx, true)
}

func (s *Svc) sync(ctx context.Context, fromZero bool) error {
	log := logger.C(ctx)

	var (
		cred domain.Credential
		ok   bool
	)
	if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		cred, ok, err = s.binder.Bind(q).LoadCredential(ctx)
		return err
	}); err != nil {
		return err
	}
	if !ok {
		if s.cfg.Fallback == nil {
			log.Debug().Msg("no upstream configured, skipping external sync")
			return nil
		}
		cred = *s.cfg.Fallback
	}

	up, err := s.open(ctx, cred.UpstreamConfig)
	if err != nil {
		return perrors.SourceUnreachablef("open upstream %s@%s: %v", cred.Name, cred.Host, err)
	}
	defer func() { _ = up.Close() }()

	if err := preflight(ctx, up, cred); err != nil {
		return err
	}

	var last int64
	if !fromZero {
		if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
			var err error
			last, err = s.binder.Bind(q).MaxExternalID(ctx)
			return err
		}); err != nil {
			return err
		}
	}

	var total int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := pull(ctx, up, cred, last, PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		if err := s.db.Tx(ctx, func(q repokit.Queryer) error {
			return s.binder.Bind(q).UpsertBatch(ctx, page)
		}); err != nil {
			return err
		}
		last = page[len(page)-1].ID
		total += len(page)
		log.Info().Int("rows", len(page)).Int64("through_id", last).Msg("pulled upstream page")
		if len(page) < PageSize {
			break
		}
	}

	log.Info().Int("total", total).Msg("external sync complete")
	return nil
}

// preflight verifies the configured table carries all six mapped columns
// before any paging starts
func preflight(ctx context.Context, up *store.Upstream, cred domain.Credential) error {
	rows, err := up.Query(ctx, `
		SELECT column_name FROM information_schema.columns WHERE table_name = $1
	`, cred.Table)
	if err != nil {
		return perrors.SourceUnreachablef("describe %s: %v", cred.Table, err)
	}
	defer rows.Close()

	have := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return perrors.SourceUnreachablef("describe %s: %v", cred.Table, err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return perrors.SourceUnreachablef("describe %s: %v", cred.Table, err)
	}

	f := cred.Fields
	for _, col := range []string{f.ID, f.EmployeeID, f.Direction, f.Shortname, f.Serialno, f.LogDatetime} {
		if !have[col] {
			return perrors.SourceUnreachablef("table %s is missing column %s", cred.Table, col)
		}
	}
	return nil
}

// pull fetches one ascending id page after lastID
func pull(ctx context.Context, up *store.Upstream, cred domain.Credential, lastID int64, limit int) ([]domain.Row, error) {
	f := cred.Fields

	var (
		query string
		args  []any
	)
	if up.Kind == store.UpstreamMSSQL {
		query = fmt.Sprintf(`
			SELECT DISTINCT TOP ($1) %s,
			       COALESCE(CAST(%s AS VARCHAR(64)), ''),
			       COALESCE(CAST(%s AS VARCHAR(64)), ''),
			       COALESCE(CAST(%s AS VARCHAR(64)), ''),
			       COALESCE(CAST(%s AS VARCHAR(64)), ''),
			       %s
			FROM %s WHERE %s > $2 ORDER BY %s
		`, f.ID, f.EmployeeID, f.Direction, f.Shortname, f.Serialno, f.LogDatetime,
			cred.Table, f.ID, f.ID)
		args = []any{limit, lastID}
	} else {
		query = fmt.Sprintf(`
			SELECT DISTINCT %s,
			       COALESCE(%s::text, ''),
			       COALESCE(%s::text, ''),
			       COALESCE(%s::text, ''),
			       COALESCE(%s::text, ''),
			       %s
			FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2
		`, f.ID, f.EmployeeID, f.Direction, f.Shortname, f.Serialno, f.LogDatetime,
			cred.Table, f.ID, f.ID)
		args = []any{lastID, limit}
	}

	rows, err := up.Query(ctx, query, args...)
	if err != nil {
		return nil, perrors.SourceUnreachablef("page %s after id %d: %v", cred.Table, lastID, err)
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		var r domain.Row
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.Direction, &r.Shortname, &r.Serialno, &r.Time); err != nil {
			return nil, perrors.SourceUnreachablef("scan %s row: %v", cred.Table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.SourceUnreachablef("page %s: %v", cred.Table, err)
	}
	return out, nil
}
