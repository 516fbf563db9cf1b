// Package pg provides the pgxpool client behind the attendance store,
// with optional query tracing
package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool defaults for a single scheduler process. The workload is
// batch-oriented, so the pool stays small
const (
	DefaultMaxConns int32 = 8
	DefaultSlowMs         = 500
)

// Config configures pgxpool for pg
type Config struct {
	URL      string
	MaxConns int32
	SlowMs   int
}

// PG is a postgres client with pool and optional tracer
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer
	SlowMs int
}

// Open creates a new PG client with the given config, optional tracer, and
// optional pool config mutator. Zero MaxConns/SlowMs fall back to the
// scheduler defaults
func Open(ctx context.Context, cfg Config, tracer QueryTracer, poolCfgMut func(*pgxpool.Config)) (*PG, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = DefaultMaxConns
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if poolCfgMut != nil {
		poolCfgMut(pcfg)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	// negative SlowMs disables slow-query marking entirely
	slow := cfg.SlowMs
	if slow == 0 {
		slow = DefaultSlowMs
	}
	return &PG{
		Pool:   pool,
		Tracer: tracer,
		SlowMs: slow,
	}, nil
}

// Close closes the pool
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}
