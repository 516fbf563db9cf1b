// Package app wires configuration, the store, and every service into one
// process-lifetime value shared by the binaries
package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"punchclock/internal/modkit/repokit"
	"punchclock/internal/platform/config"
	"punchclock/internal/platform/logger"
	"punchclock/internal/platform/store"

	absrepo "punchclock/internal/services/absentee/repo"
	abssvc "punchclock/internal/services/absentee/service"
	attrepo "punchclock/internal/services/attendance/repo"
	attsvc "punchclock/internal/services/attendance/service"
	corrrepo "punchclock/internal/services/corrections/repo"
	corrsvc "punchclock/internal/services/corrections/service"
	extdom "punchclock/internal/services/extsync/domain"
	extrepo "punchclock/internal/services/extsync/repo"
	extsvc "punchclock/internal/services/extsync/service"
	maintrepo "punchclock/internal/services/maint/repo"
	maintsvc "punchclock/internal/services/maint/service"
	mdrepo "punchclock/internal/services/mandays/repo"
	mdsvc "punchclock/internal/services/mandays/service"
	punchrepo "punchclock/internal/services/punches/repo"
	punchsvc "punchclock/internal/services/punches/service"
	rosterrepo "punchclock/internal/services/roster/repo"
	rostersvc "punchclock/internal/services/roster/service"
	"punchclock/internal/services/runner"
)

// Settings are the resolved process knobs
type Settings struct {
	Loc          *time.Location
	BatchSize    int
	AbsenteeDays int
	Runner       runner.Config
}

// App owns the store handle and every constructed service
type App struct {
	Store    *store.Store
	Settings Settings

	Roster      *rostersvc.Svc
	Punches     *punchsvc.Svc
	Extsync     *extsvc.Svc
	Processor   *attsvc.Svc
	Absentee    *abssvc.Svc
	Mandays     *mdsvc.Svc
	Corrections *corrsvc.Svc
	Maint       *maintsvc.Svc
}

// Boot reads the environment, opens the store, and wires the services
func Boot(ctx context.Context) (*App, error) {
	root := config.New()
	logger.Init(logger.FromEnv())
	l := logger.Get()

	pgCfg := root.Prefix("SERVICE_PGSQL_")
	st, err := store.Open(ctx, store.Config{
		AppName: "punchclock",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		return nil, err
	}
	repokit.MustGuard(ctx, st)

	appCfg := root.Prefix("APP_")
	loc := appCfg.MayLocation("TIMEZONE", time.Local)

	attCfg := root.Prefix("ATTENDANCE_")
	absCfg := root.Prefix("ABSENTEE_")
	mdCfg := root.Prefix("MANDAYS_")
	runCfg := root.Prefix("RUNNER_")

	settings := Settings{
		Loc:          loc,
		BatchSize:    attCfg.MayInt("BATCH_SIZE", 5000),
		AbsenteeDays: absCfg.MayInt("DAYS", 400),
		Runner: runner.Config{
			Tick:        runCfg.MayDuration("TICK", time.Minute),
			Grace:       runCfg.MayDuration("GRACE", 2*time.Minute),
			MonitorTick: runCfg.MayDuration("MONITOR_TICK", 5*time.Minute),
			LockFile:    runCfg.MayString("LOCK_FILE", ""),
		},
	}

	roster := rostersvc.New(st.PG, rosterrepo.NewPG(loc), rostersvc.Config{
		Loc:             loc,
		DefaultWeekOffs: weekOffs(attCfg.MayString("DEFAULT_WEEK_OFFS", "6")),
	})

	a := &App{
		Store:    st,
		Settings: settings,
		Roster:   roster,
		Punches:  punchsvc.New(st.PG, punchrepo.NewPG()),
		Extsync: extsvc.New(st.PG, extrepo.NewPG(), extsvc.Config{
			Fallback: extsyncFallback(root.Prefix("EXTSYNC_")),
		}),
		Processor: attsvc.New(st.PG, attrepo.NewPG(loc), punchrepo.NewPG(), roster, attsvc.Config{
			BatchSize: settings.BatchSize,
			Loc:       loc,
		}),
		Absentee: abssvc.New(st.PG, absrepo.NewPG(), roster, abssvc.Config{
			Days: settings.AbsenteeDays,
			Loc:  loc,
		}),
		Mandays: mdsvc.New(st.PG, mdrepo.NewPG(loc), mdsvc.Config{
			WindowDays: mdCfg.MayInt("WINDOW_DAYS", 100),
			Loc:        loc,
		}),
		Corrections: corrsvc.New(st.PG, corrrepo.NewPG(loc)),
		Maint:       maintsvc.New(st.PG, maintrepo.NewPG()),
	}
	return a, nil
}

// Close releases the store
func (a *App) Close(ctx context.Context) error { return a.Store.Close(ctx) }

// weekOffs parses a comma-separated day index list (0=Monday .. 6=Sunday)
func weekOffs(csv string) []int {
	var out []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			logger.Get().Warn().Str("value", part).Msg("ignoring invalid week-off index")
			continue
		}
		out = append(out, n)
	}
	return out
}

// extsyncFallback builds the env-based upstream credential used when no
// external_db_credentials row exists. Returns nil when HOST is unset
func extsyncFallback(cfg config.Conf) *extdom.Credential {
	host := cfg.MayString("HOST", "")
	if host == "" {
		return nil
	}
	c := &extdom.Credential{
		UpstreamConfig: store.UpstreamConfig{
			Kind:     store.UpstreamKind(cfg.MayEnum("KIND", "mssql", "mssql", "postgres")),
			Host:     host,
			Port:     cfg.MayInt("PORT", 1433),
			Name:     cfg.MustString("NAME"),
			User:     cfg.MustString("USER"),
			Password: cfg.MustString("PASSWORD"),
		},
		Table: cfg.MustString("TABLE"),
		Fields: extdom.FieldMap{
			ID:          cfg.MayString("ID_FIELD", "id"),
			EmployeeID:  cfg.MayString("EMPLOYEEID_FIELD", "employeeid"),
			Direction:   cfg.MayString("DIRECTION_FIELD", "direction"),
			Shortname:   cfg.MayString("SHORTNAME_FIELD", "shortname"),
			Serialno:    cfg.MayString("SERIALNO_FIELD", "serialno"),
			LogDatetime: cfg.MayString("LOG_DATETIME_FIELD", "log_datetime"),
		},
	}
	return c
}
