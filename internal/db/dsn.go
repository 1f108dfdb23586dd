package db

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// ParseDSN maps a configured database URL onto a database/sql driver name
// and data source. postgres:// and postgresql:// go to pgx; sqlite://path,
// file: URIs and bare paths go to the embedded SQLite driver.
func ParseDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if _, err := url.Parse(dsn); err != nil {
			return "", "", err
		}
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite DSN without path")
		}
		return DriverSQLite, path, nil
	case strings.Contains(dsn, "://"):
		return "", "", fmt.Errorf("unsupported database scheme in %q", redact(dsn))
	default:
		return DriverSQLite, dsn, nil
	}
}

// redact hides the password of a URL-style DSN for logging.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
