package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"  // registers the "pgx" driver
	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
)

// UpstreamKind selects the driver used to reach an external punch database
type UpstreamKind string

// Supported upstream database kinds
const (
	UpstreamMSSQL    UpstreamKind = "mssql"
	UpstreamPostgres UpstreamKind = "postgres"
)

// UpstreamConfig describes how to reach an external punch database.
// Credentials typically come from the external_db_credentials row, with env
// fallback when no row exists
type UpstreamConfig struct {
	Kind     UpstreamKind
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN renders the driver-specific connection string
func (c UpstreamConfig) DSN() string {
	switch c.Kind {
	case UpstreamMSSQL:
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case UpstreamPostgres:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			c.User, c.Password, c.Host, c.Port, c.Name)
	}
	return ""
}

// Upstream is a read-mostly RowQuerier over a database/sql handle.
// It exists so external sync can page a foreign MSSQL or Postgres database
// through the same seam repos use for the system of record
type Upstream struct {
	DB   *sql.DB
	Kind UpstreamKind
}

// OpenUpstream opens and pings the configured external database
func OpenUpstream(ctx context.Context, cfg UpstreamConfig) (*Upstream, error) {
	var driver string
	switch cfg.Kind {
	case UpstreamMSSQL:
		driver = "sqlserver"
	case UpstreamPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("upstream: unsupported kind %q", cfg.Kind)
	}

	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Upstream{DB: db, Kind: cfg.Kind}, nil
}

// Ping reports upstream readiness
func (u *Upstream) Ping(ctx context.Context) error {
	if u == nil || u.DB == nil {
		return errors.New("upstream: nil handle")
	}
	return u.DB.PingContext(ctx)
}

// Close releases the underlying handle
func (u *Upstream) Close() error {
	if u == nil || u.DB == nil {
		return nil
	}
	return u.DB.Close()
}

// Rebind rewrites $n placeholders into the driver's native form.
// pgx keeps $n; sqlserver wants @pN
func (u *Upstream) Rebind(query string) string {
	if u.Kind != UpstreamMSSQL {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			out = append(out, '@', 'p')
			i++
			for i < len(query) && query[i] >= '0' && query[i] <= '9' {
				out = append(out, query[i])
				i++
			}
			i--
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Exec implements RowQuerier
func (u *Upstream) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	res, err := u.DB.ExecContext(ctx, u.Rebind(query), namedArgs(u.Kind, args)...)
	if err != nil {
		return nil, err
	}
	return sqlTag{res}, nil
}

// Query implements RowQuerier
func (u *Upstream) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rs, err := u.DB.QueryContext(ctx, u.Rebind(query), namedArgs(u.Kind, args)...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{r: rs}, nil
}

// QueryRow implements RowQuerier
func (u *Upstream) QueryRow(ctx context.Context, query string, args ...any) Row {
	return u.DB.QueryRowContext(ctx, u.Rebind(query), namedArgs(u.Kind, args)...)
}

// namedArgs maps positional args to @pN named args for sqlserver
func namedArgs(kind UpstreamKind, args []any) []any {
	if kind != UpstreamMSSQL {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = sql.Named("p"+strconv.Itoa(i+1), a)
	}
	return out
}

// adapters for database/sql to our tiny Rows/CommandTag

type sqlRows struct{ r *sql.Rows }

func (x *sqlRows) Next() bool            { return x.r.Next() }
func (x *sqlRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x *sqlRows) Err() error            { return x.r.Err() }
func (x *sqlRows) Close()                { _ = x.r.Close() }
func (x *sqlRows) Columns() []string {
	cols, err := x.r.Columns()
	if err != nil {
		return nil
	}
	return cols
}

type sqlTag struct{ r sql.Result }

func (t sqlTag) String() string {
	n, _ := t.r.RowsAffected()
	return "EXEC " + strconv.FormatInt(n, 10)
}

func (t sqlTag) RowsAffected() int64 {
	n, _ := t.r.RowsAffected()
	return n
}
