package legacy

import (
	"context"
	"fmt"

	"github.com/nugget/heirloom/internal/rules"
)

// SeedCatalog inserts the rules book's skills, traits, careers and
// aspirations. Existing names are left untouched, except that level
// caps follow the book.
func (q *Queries) SeedCatalog(ctx context.Context, book *rules.Book) error {
	ts := q.stamp()

	for _, s := range book.Catalog.Skills {
		id, err := newID()
		if err != nil {
			return err
		}
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO skills (id, name, max_level, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (name) DO UPDATE SET max_level = excluded.max_level`,
			id, s.Name, s.MaxLevel, ts); err != nil {
			return fmt.Errorf("seed skill %q: %w", s.Name, classify(err))
		}
	}
	for _, c := range book.Catalog.Careers {
		id, err := newID()
		if err != nil {
			return err
		}
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO careers (id, name, max_level, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (name) DO UPDATE SET max_level = excluded.max_level`,
			id, c.Name, c.MaxLevel, ts); err != nil {
			return fmt.Errorf("seed career %q: %w", c.Name, classify(err))
		}
	}
	for _, name := range book.Catalog.Traits {
		if err := q.seedNamed(ctx, "traits", name, ts); err != nil {
			return err
		}
	}
	for _, name := range book.Catalog.Aspirations {
		if err := q.seedNamed(ctx, "aspirations", name, ts); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) seedNamed(ctx context.Context, table, name, ts string) error {
	id, err := newID()
	if err != nil {
		return err
	}
	// table is one of two constants above, never caller input.
	if _, err := q.q.ExecContext(ctx,
		`INSERT INTO `+table+` (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`,
		id, name, ts); err != nil {
		return fmt.Errorf("seed %s %q: %w", table, name, classify(err))
	}
	return nil
}

// Skill returns a catalog skill by ID.
func (q *Queries) Skill(ctx context.Context, id string) (Skill, error) {
	var s Skill
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, max_level FROM skills WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.MaxLevel)
	if err != nil {
		return Skill{}, classify(err)
	}
	return s, nil
}

// Career returns a catalog career by ID.
func (q *Queries) Career(ctx context.Context, id string) (Career, error) {
	var c Career
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, max_level FROM careers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.MaxLevel)
	if err != nil {
		return Career{}, classify(err)
	}
	return c, nil
}

// Named lists the entities of a kind for name resolution. Persons are
// limited to the legacy and are active while in the household; catalog
// entries are always active and ignore legacyID.
func (q *Queries) Named(ctx context.Context, kind Kind, legacyID string) ([]Named, error) {
	var query string
	var args []any
	switch kind {
	case KindPerson:
		query = `SELECT id, name, in_household, created_at FROM persons WHERE legacy_id = ?`
		args = []any{legacyID}
	case KindSkill:
		query = `SELECT id, name, 1, created_at FROM skills`
	case KindTrait:
		query = `SELECT id, name, 1, created_at FROM traits`
	case KindCareer:
		query = `SELECT id, name, 1, created_at FROM careers`
	case KindAspiration:
		query = `SELECT id, name, 1, created_at FROM aspirations`
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s names: %w", kind, err)
	}
	defer rows.Close()

	var out []Named
	for rows.Next() {
		var n Named
		var created string
		if err := rows.Scan(&n.ID, &n.Name, &n.Active, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(created)
		out = append(out, n)
	}
	return out, rows.Err()
}
