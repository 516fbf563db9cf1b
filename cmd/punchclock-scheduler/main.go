// Command punchclock-scheduler runs the minute chain: pull external punches,
// merge, sweep absences, reduce punches into attendance, fold mandays, and
// apply the week-off corrections
package main

import (
	"context"
	"os/signal"
	"syscall"

	"punchclock/internal/app"
	"punchclock/internal/platform/logger"
	"punchclock/internal/services/runner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Boot(ctx)
	if err != nil {
		logger.Get().Panic().Err(err).Msg("boot failed")
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Get().Error().Err(err).Msg("failed to close store")
		}
	}()

	boot := []runner.Job{
		{Name: "reset-sequences", Run: a.Maint.ResetSequences},
		{Name: "absentee-backfill", Run: func(ctx context.Context) error {
			return a.Absentee.Sweep(ctx, a.Settings.AbsenteeDays)
		}},
	}

	jobs := []runner.Job{
		{Name: "external-sync", Run: a.Extsync.Sync},
		{Name: "merge-punches", Run: func(ctx context.Context) error {
			_, err := a.Punches.Merge(ctx)
			return err
		}},
		{Name: "absentee-sweep", Run: func(ctx context.Context) error {
			return a.Absentee.Sweep(ctx, a.Settings.AbsenteeDays)
		}},
		{Name: "attendance", Run: a.Processor.Run},
		{Name: "mandays", Run: a.Mandays.Run},
		{Name: "correct-week-offs", Run: a.Corrections.Correct},
		{Name: "revert-week-offs", Run: a.Corrections.Revert},
	}

	r := runner.New(a.Settings.Runner, boot, jobs)
	if err := r.Run(ctx); err != nil {
		logger.Get().Fatal().Err(err).Msg("runner exited")
	}
}
