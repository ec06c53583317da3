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

// ParseDSN maps a store DSN to a database/sql driver name and data source.
// postgres:// and postgresql:// go to pgx unchanged; sqlite://path (or
// sqlite::memory:) goes to modernc sqlite with WAL and a busy timeout.
func ParseDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	if !strings.Contains(dsn, "://") && !strings.HasPrefix(dsn, "sqlite:") {
		// allow missing scheme by prefixing postgres://
		dsn = "postgres://" + dsn
	}
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if _, err := url.Parse(dsn); err != nil {
			return "", "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		return DriverPostgres, dsn, nil
	case dsn == "sqlite::memory:":
		return DriverSQLite, "file::memory:?cache=shared", nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite dsn without path: %q", dsn)
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return DriverSQLite, path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", "", fmt.Errorf("unsupported dsn scheme: %q", dsn)
	}
}
