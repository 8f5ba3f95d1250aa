// Package database opens the SQLite database shared by Heirloom's stores
// and holds the timestamp encoding they agree on.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"
)

// Supported driver names.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// Memory is the path for a private in-memory database.
const Memory = ":memory:"

// TimeFormat is the fixed-width UTC layout used for every timestamp
// column, so lexical ORDER BY matches chronological order.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Open opens the database at path with the named driver, enabling
// foreign keys and a busy timeout. File databases use WAL journaling and
// have their parent directory created.
func Open(driver, path string) (*sql.DB, error) {
	memory := path == Memory
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	dsn, err := DSN(driver, path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is its own database.
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// DSN builds the driver-specific connection string for path.
func DSN(driver, path string) (string, error) {
	wal := path != Memory
	switch driver {
	case DriverModernc:
		params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
		if wal {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
		return "file:" + path + "?" + strings.Join(params, "&"), nil
	case DriverMattn:
		params := []string{"_foreign_keys=on", "_busy_timeout=5000"}
		if wal {
			params = append(params, "_journal_mode=WAL")
		}
		return "file:" + path + "?" + strings.Join(params, "&"), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// FormatTime encodes t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime decodes a stored timestamp. Empty strings yield the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		// Rows written by older tooling may use plain RFC 3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// IsConstraintError reports whether err came from a violated SQLite
// constraint (UNIQUE, FOREIGN KEY, CHECK, NOT NULL). Both drivers
// include "constraint failed" in the message.
func IsConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
