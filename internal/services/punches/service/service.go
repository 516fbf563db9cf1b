// Package service provides the punch store operations: single-row ingest and
// the unified-view merge pass
package service

import (
	"context"

	"punchclock/internal/modkit/repokit"
	"punchclock/internal/platform/logger"
	"punchclock/internal/services/punches/domain"
)

// Svc implements punch ingestion and the unified merge
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.Repo]
}

// New constructs the punches service
func New(db repokit.TxRunner, binder repokit.Binder[domain.Repo]) *Svc {
	if db == nil {
		panic("punches.Service requires a non-nil TxRunner")
	}
	if binder == nil {
		panic("punches.Service requires a non-nil Repo binder")
	}
	return &Svc{db: db, binder: binder}
}

// RecordDevice appends one device punch (idempotent under its external id)
func (s *Svc) RecordDevice(ctx context.Context, p domain.Punch) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		return s.binder.Bind(q).InsertDeviceLog(ctx, p)
	})
}

// RecordManual appends one manual punch
func (s *Svc) RecordManual(ctx context.Context, p domain.Punch) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		return s.binder.Bind(q).InsertManualLog(ctx, p)
	})
}

// Merge upserts both source stores into the unified view
func (s *Svc) Merge(ctx context.Context) (domain.MergeResult, error) {
	var res domain.MergeResult
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		n, err := r.MergeDeviceLogs(ctx)
		if err != nil {
			return err
		}
		res.Device = n
		n, err = r.MergeManualLogs(ctx)
		if err != nil {
			return err
		}
		res.Manual = n
		return nil
	})
	if err != nil {
		return domain.MergeResult{}, err
	}
	logger.C(ctx).Info().
		Int64("device", res.Device).
		Int64("manual", res.Manual).
		Msg("unified view merged")
	return res, nil
}
