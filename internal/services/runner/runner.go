// Package runner drives the periodic sync-process-sweep chain. One logical
// instance runs per process group, enforced by an exclusive lock file
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	perrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/logger"
)

// Job is one named step of the tick chain
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config carries the runner knobs
type Config struct {
	// Tick is the chain interval
	Tick time.Duration

	// Grace extends a tick's deadline past the interval before the chain is
	// cancelled at its next batch boundary
	Grace time.Duration

	// MonitorTick is the health-check interval that reinstates a stalled tick
	MonitorTick time.Duration

	// LockFile is the exclusive lock path; empty defaults under the temp dir
	LockFile string
}

func (c *Config) defaults() {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
	if c.Grace <= 0 {
		c.Grace = 2 * time.Minute
	}
	if c.MonitorTick <= 0 {
		c.MonitorTick = 5 * time.Minute
	}
	if c.LockFile == "" {
		c.LockFile = filepath.Join(os.TempDir(), "punchclock-runner.lock")
	}
}

// Runner sequences jobs on a ticker with per-job fault isolation
type Runner struct {
	cfg  Config
	jobs []Job
	boot []Job

	lastFire time.Time
}

// New constructs a runner over the tick chain. Boot jobs run once before the
// first tick
func New(cfg Config, boot []Job, jobs []Job) *Runner {
	cfg.defaults()
	if len(jobs) == 0 {
		panic("runner requires at least one job")
	}
	return &Runner{cfg: cfg, jobs: jobs, boot: boot}
}

// Run acquires the lock file and ticks until ctx is cancelled.
// A second instance fails fast instead of double-processing
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := logger.Named("runner")

	release, err := r.acquireLock(runID)
	if err != nil {
		return err
	}
	defer release()

	log.Info().Str("run_id", runID).Dur("tick", r.cfg.Tick).Msg("runner started")

	bootCtx := logger.WithRun(ctx, runID, "boot")
	for _, j := range r.boot {
		r.runJob(bootCtx, j)
	}

	tick := time.NewTicker(r.cfg.Tick)
	defer tick.Stop()
	monitor := time.NewTicker(r.cfg.MonitorTick)
	defer monitor.Stop()

	// first chain fires immediately rather than one interval in
	r.fire(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("runner stopping")
			return nil

		case <-tick.C:
			r.fire(ctx)

		case <-monitor.C:
			// the primary tick should have fired within interval plus grace;
			// if it hasn't, reinstate it by firing the chain ourselves
			if stale := time.Since(r.lastFire); stale > r.cfg.Tick+r.cfg.Grace {
				log.Warn().Dur("stale", stale).Msg("tick missing, reinstating")
				tick.Reset(r.cfg.Tick)
				r.fire(ctx)
			}
		}
	}
}

// fire runs the whole chain once. Each job is independently fault-tolerant;
// the chain order is fixed and jobs never overlap
func (r *Runner) fire(ctx context.Context) {
	r.lastFire = time.Now()

	runID := uuid.NewString()
	tickCtx, cancel := context.WithTimeout(ctx, r.cfg.Tick+r.cfg.Grace)
	defer cancel()

	for _, j := range r.jobs {
		if tickCtx.Err() != nil {
			return
		}
		r.runJob(logger.WithRun(tickCtx, runID, j.Name), j)
	}
}

// runJob isolates one job: a panic or error is logged and the chain moves on
func (r *Runner) runJob(ctx context.Context, j Job) {
	log := logger.C(ctx)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("job", j.Name).Msg("job panicked")
		}
	}()

	if err := j.Run(ctx); err != nil {
		log.Error().Err(err).
			Str("job", j.Name).
			Uint16("code", uint16(perrors.CodeOf(err))).
			Dur("took", time.Since(start)).
			Msg("job failed")
		return
	}
	log.Debug().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job done")
}

// acquireLock creates the lock file with O_CREAT|O_EXCL so exactly one
// process group member runs the chain
func (r *Runner) acquireLock(runID string) (func(), error) {
	f, err := os.OpenFile(r.cfg.LockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, perrors.Newf(perrors.ErrorCodeConflict,
				"runner lock %s is held; is another instance running?", r.cfg.LockFile)
		}
		return nil, perrors.Wrapf(err, perrors.ErrorCodeUnknown, "create runner lock %s", r.cfg.LockFile)
	}

	fmt.Fprintf(f, "%s pid=%d\n", runID, os.Getpid())
	_ = f.Close()

	return func() {
		if err := os.Remove(r.cfg.LockFile); err != nil && !os.IsNotExist(err) {
			logger.Named("runner").Error().Err(err).Msg("failed to remove lock file")
		}
	}, nil
}
