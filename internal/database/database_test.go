package database

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		driver string
		path   string
		want   []string
		reject []string
	}{
		{DriverModernc, "/tmp/h.db", []string{"file:/tmp/h.db?", "foreign_keys(1)", "journal_mode(WAL)"}, nil},
		{DriverModernc, Memory, []string{"foreign_keys(1)"}, []string{"WAL"}},
		{DriverMattn, "/tmp/h.db", []string{"_foreign_keys=on", "_journal_mode=WAL"}, nil},
		{DriverMattn, Memory, []string{"_busy_timeout=5000"}, []string{"WAL"}},
	}
	for _, tt := range tests {
		t.Run(tt.driver+" "+tt.path, func(t *testing.T) {
			got, err := DSN(tt.driver, tt.path)
			if err != nil {
				t.Fatalf("DSN: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN %q missing %q", got, w)
				}
			}
			for _, r := range tt.reject {
				if strings.Contains(got, r) {
					t.Errorf("DSN %q should not contain %q", got, r)
				}
			}
		})
	}

	if _, err := DSN("postgres", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestOpenForeignKeys(t *testing.T) {
	db, err := Open(DriverModernc, Memory)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var on int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if on != 1 {
		t.Errorf("foreign_keys = %d, want 1", on)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "heirloom.db")
	db, err := Open(DriverModernc, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.FixedZone("CST", -6*3600))
	got, err := ParseTime(FormatTime(now))
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}

	if z, err := ParseTime(""); err != nil || !z.IsZero() {
		t.Errorf("empty = %v, %v", z, err)
	}
	if _, err := ParseTime("2026-03-01T12:00:00Z"); err != nil {
		t.Errorf("RFC 3339 fallback: %v", err)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected parse error")
	}
}

func TestTimeOrdering(t *testing.T) {
	a := FormatTime(time.Date(2026, 1, 1, 0, 0, 0, 9, time.UTC))
	b := FormatTime(time.Date(2026, 1, 1, 0, 0, 0, 10, time.UTC))
	if !(a < b) {
		t.Errorf("lexical order broken: %q >= %q", a, b)
	}
}

func TestIsConstraintError(t *testing.T) {
	if !IsConstraintError(errors.New("UNIQUE constraint failed: persons.id")) {
		t.Error("expected constraint error")
	}
	if IsConstraintError(errors.New("disk I/O error")) || IsConstraintError(nil) {
		t.Error("unexpected constraint error")
	}
}
