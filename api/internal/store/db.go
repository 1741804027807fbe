package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"
)

var ErrNotFound = sql.ErrNoRows

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DB is a *sql.DB that knows which placeholder style its driver wants.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to postgres://… / postgresql://… through pgx, or to
// sqlite:<path> / file:<path> through modernc sqlite, and runs migrations.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	var (
		d   *DB
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		d, err = openPostgres(dsn)
	case strings.HasPrefix(dsn, "sqlite:"), strings.HasPrefix(dsn, "file:"):
		d, err = openSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %s", Summary(dsn))
	}
	if err != nil {
		return nil, err
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := d.migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func openPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// pool sized for a few dozen rps
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)
	return &DB{DB: db, Dialect: Postgres}, nil
}

func openSQLite(dsn string) (*DB, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer; avoids SQLITE_BUSY under concurrent handlers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	return &DB{DB: db, Dialect: SQLite}, nil
}

// #region schema
var migrations = []string{
	`create table if not exists reports (
	id          text primary key,
	kind        text not null,
	parent_id   text,
	created_at  text not null,
	image_hash  text,
	engine      text not null,
	model       text not null,
	goal        text not null,
	tone        text not null,
	result_json text not null
)`,
	`create index if not exists reports_cache_idx
	on reports (image_hash, engine, model, goal, tone, created_at)`,
}

// #endregion schema

func (d *DB) migrate(ctx context.Context) error {
	for _, q := range migrations {
		if _, err := d.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $1, $2, … for Postgres.
func (d *DB) rebind(q string) string {
	if d.Dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Summary renders a DSN for logs without the password.
func Summary(dsn string) string {
	if strings.HasPrefix(dsn, "sqlite:") || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
