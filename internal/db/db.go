package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB is a database/sql handle that knows which SQL dialect it speaks.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to Postgres (pgx) or SQLite depending on the DSN.
func Open(dsn string) (*DB, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		if source != ":memory:" && !strings.HasPrefix(source, "file:") {
			if err := os.MkdirAll(filepath.Dir(source), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		source = withSQLitePragmas(source)
	}
	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer keeps upserts serialised without SQLITE_BUSY retries
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return &DB{DB: sqlDB, driver: driver}, nil
}

func (d *DB) Driver() string { return d.driver }

func Ping(ctx context.Context, d *DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.PingContext(ctx)
}

func withSQLitePragmas(source string) string {
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	return source + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

const schema = `
CREATE TABLE IF NOT EXISTS vehicle_latest (
    vehicle_id     TEXT PRIMARY KEY,
    lat            DOUBLE PRECISION NOT NULL,
    lng            DOUBLE PRECISION NOT NULL,
    speed_kmh      DOUBLE PRECISION NOT NULL DEFAULT 0,
    route_id       TEXT NOT NULL DEFAULT '',
    observed_at_ns BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS vehicle_latest_observed_idx ON vehicle_latest (observed_at_ns DESC);
CREATE TABLE IF NOT EXISTS routes (
    route_id TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    city     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS stops (
    stop_id  TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    name_en  TEXT NOT NULL,
    name_hi  TEXT NOT NULL DEFAULT '',
    name_pa  TEXT NOT NULL DEFAULT '',
    lat      DOUBLE PRECISION NOT NULL,
    lng      DOUBLE PRECISION NOT NULL,
    sequence INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS stops_route_idx ON stops (route_id, sequence);
`

// EnsureSchema creates the tables the tracker needs if they are missing.
// Statements run one at a time so both drivers see the same thing.
func EnsureSchema(ctx context.Context, d *DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d *DB) rebind(q string) string {
	if d.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
