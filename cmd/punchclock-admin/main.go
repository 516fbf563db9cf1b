// Command punchclock-admin runs individual pipeline stages and the
// destructive maintenance operations on demand
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"punchclock/internal/app"
	"punchclock/internal/platform/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: punchclock-admin <command> [flags]

commands:
  sync-logs          pull new upstream punches since the last ingested id
  sync-all-logs      re-pull the entire upstream punch table
  merge              merge staged device and manual punches into the unified log
  absentees          materialize no-punch days (-days N, default from env)
  task               run one full chain pass: sync, merge, absentees,
                     attendance, mandays, corrections
  mandays            fold punch pairs into mandays rows
  correct            flip week-offs sandwiched between absences to absent
  revert             undo corrections whose neighbours are no longer absent
  reset-sequences    realign serial sequences with their tables
  reset-attendance   clear all derived state and re-materialize no-punch days
  reset-mandays      rewind the mandays cursor (-full clears the table too)
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

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

	if err := run(ctx, a, cmd, args); err != nil {
		logger.Get().Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "sync-logs":
		return a.Extsync.Sync(ctx)

	case "sync-all-logs":
		return a.Extsync.SyncAll(ctx)

	case "merge":
		_, err := a.Punches.Merge(ctx)
		return err

	case "absentees":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		days := fs.Int("days", a.Settings.AbsenteeDays, "trailing window of days to sweep")
		_ = fs.Parse(args)
		return a.Absentee.Sweep(ctx, *days)

	case "task":
		return chain(ctx, a)

	case "mandays":
		return a.Mandays.Run(ctx)

	case "correct":
		return a.Corrections.Correct(ctx)

	case "revert":
		return a.Corrections.Revert(ctx)

	case "reset-sequences":
		return a.Maint.ResetSequences(ctx)

	case "reset-attendance":
		return a.Maint.ResetAttendance(ctx, a.Absentee, a.Settings.AbsenteeDays)

	case "reset-mandays":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		full := fs.Bool("full", false, "clear mandays rows instead of rewinding the cursor")
		_ = fs.Parse(args)
		if *full {
			return a.Mandays.FullReset(ctx)
		}
		return a.Mandays.SoftReset(ctx)

	default:
		usage()
		return nil
	}
}

// chain runs one pass of the scheduler's tick chain, stopping at the first
// failure so stages never consume a predecessor's partial output
func chain(ctx context.Context, a *app.App) error {
	if err := a.Extsync.Sync(ctx); err != nil {
		return err
	}
	if _, err := a.Punches.Merge(ctx); err != nil {
		return err
	}
	if err := a.Absentee.Sweep(ctx, a.Settings.AbsenteeDays); err != nil {
		return err
	}
	if err := a.Processor.Run(ctx); err != nil {
		return err
	}
	if err := a.Mandays.Run(ctx); err != nil {
		return err
	}
	if err := a.Corrections.Correct(ctx); err != nil {
		return err
	}
	return a.Corrections.Revert(ctx)
}
