// Package legacy is the domain store for legacy playthroughs: people,
// generations, goals, catalogs and the links between them.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/heirloom/internal/database"
)

var (
	// ErrNotFound is returned when a lookup matches no row, or when a
	// legacy exists but is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrConstraint wraps a violated uniqueness or foreign-key
	// constraint.
	ErrConstraint = errors.New("constraint violation")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read and write the domain supports. The Store's
// embedded Queries run directly against the database; WithTx hands its
// callback a Queries bound to a transaction.
type Queries struct {
	q   querier
	now func() time.Time
}

// Store is the SQLite-backed domain store. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	*Queries
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a domain store on an open database. The schema is
// created automatically on first use.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		Queries: &Queries{q: db, now: time.Now},
		db:      db,
		logger:  logger,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate legacy schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS legacies (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_legacies_user ON legacies(user_id);

	CREATE TABLE IF NOT EXISTS generations (
		id           TEXT PRIMARY KEY,
		legacy_id    TEXT NOT NULL REFERENCES legacies(id) ON DELETE CASCADE,
		number       INTEGER NOT NULL,
		name         TEXT NOT NULL,
		is_current   INTEGER NOT NULL DEFAULT 0,
		started_at   TEXT NOT NULL,
		completed_at TEXT,
		UNIQUE (legacy_id, number)
	);

	CREATE TABLE IF NOT EXISTS goals (
		id            TEXT PRIMARY KEY,
		generation_id TEXT NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
		text          TEXT NOT NULL,
		required      INTEGER NOT NULL DEFAULT 1,
		completed     INTEGER NOT NULL DEFAULT 0,
		completed_at  TEXT,
		position      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goals_generation ON goals(generation_id, position);

	CREATE TABLE IF NOT EXISTS persons (
		id            TEXT PRIMARY KEY,
		legacy_id     TEXT NOT NULL REFERENCES legacies(id) ON DELETE CASCADE,
		generation_id TEXT REFERENCES generations(id) ON DELETE SET NULL,
		name          TEXT NOT NULL,
		category      TEXT NOT NULL,
		life_stage    TEXT NOT NULL,
		in_household  INTEGER NOT NULL DEFAULT 1,
		is_heir       INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_persons_legacy ON persons(legacy_id);

	CREATE TABLE IF NOT EXISTS traits (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS skills (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
		max_level  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS careers (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
		max_level  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS aspirations (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS person_traits (
		person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		trait_id  TEXT NOT NULL REFERENCES traits(id),
		PRIMARY KEY (person_id, trait_id)
	);
	CREATE TABLE IF NOT EXISTS person_skills (
		person_id  TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		skill_id   TEXT NOT NULL REFERENCES skills(id),
		level      INTEGER NOT NULL CHECK (level >= 0),
		updated_at TEXT NOT NULL,
		PRIMARY KEY (person_id, skill_id)
	);
	CREATE TABLE IF NOT EXISTS person_careers (
		person_id    TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		career_id    TEXT NOT NULL REFERENCES careers(id),
		level        INTEGER NOT NULL CHECK (level >= 1),
		is_current   INTEGER NOT NULL DEFAULT 0,
		completed    INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		joined_at    TEXT NOT NULL,
		PRIMARY KEY (person_id, career_id)
	);
	CREATE TABLE IF NOT EXISTS person_aspirations (
		person_id     TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		aspiration_id TEXT NOT NULL REFERENCES aspirations(id),
		completed     INTEGER NOT NULL DEFAULT 0,
		completed_at  TEXT,
		started_at    TEXT NOT NULL,
		PRIMARY KEY (person_id, aspiration_id)
	);

	CREATE TABLE IF NOT EXISTS relationships (
		id         TEXT PRIMARY KEY,
		person_a   TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		person_b   TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		type       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (person_a, person_b, type),
		CHECK (person_a <> person_b)
	);

	CREATE TABLE IF NOT EXISTS life_events (
		id          TEXT PRIMARY KEY,
		person_id   TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		event_type  TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_life_events_person ON life_events(person_id, occurred_at);

	CREATE TABLE IF NOT EXISTS achievements (
		id          TEXT PRIMARY KEY,
		legacy_id   TEXT NOT NULL REFERENCES legacies(id) ON DELETE CASCADE,
		person_id   TEXT REFERENCES persons(id) ON DELETE SET NULL,
		title       TEXT NOT NULL,
		achieved_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_achievements_legacy ON achievements(legacy_id, achieved_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside a transaction. The transaction commits if fn
// returns nil and rolls back on any error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&Queries{q: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// newID returns a time-ordered UUIDv7 string.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate ID: %w", err)
	}
	return id.String(), nil
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case database.IsConstraintError(err):
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	default:
		return err
	}
}

func (q *Queries) stamp() string {
	return database.FormatTime(q.now())
}

func formatTime(t time.Time) string {
	return database.FormatTime(t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	t, _ := database.ParseTime(s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
