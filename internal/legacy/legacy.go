package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nugget/heirloom/internal/rules"
)

// CreateLegacy starts a new legacy owned by userID.
func (q *Queries) CreateLegacy(ctx context.Context, userID, name string) (Legacy, error) {
	id, err := newID()
	if err != nil {
		return Legacy{}, err
	}
	now := q.now()
	ts := q.stamp()
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO legacies (id, user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, name, ts, ts)
	if err != nil {
		return Legacy{}, fmt.Errorf("create legacy: %w", classify(err))
	}
	return Legacy{ID: id, UserID: userID, Name: name, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}, nil
}

// LegacyForUser returns the legacy if userID owns it. A legacy owned by
// someone else is reported as ErrNotFound.
func (q *Queries) LegacyForUser(ctx context.Context, legacyID, userID string) (Legacy, error) {
	var l Legacy
	var created, updated string
	err := q.q.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM legacies WHERE id = ? AND user_id = ?`,
		legacyID, userID,
	).Scan(&l.ID, &l.UserID, &l.Name, &created, &updated)
	if err != nil {
		return Legacy{}, classify(err)
	}
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(updated)
	return l, nil
}

// StartGeneration makes gen the current generation of the legacy and
// creates its goals, required first. Any previously current generation
// is marked complete.
func (q *Queries) StartGeneration(ctx context.Context, legacyID string, gen rules.GenerationRules) (Generation, error) {
	id, err := newID()
	if err != nil {
		return Generation{}, err
	}
	ts := q.stamp()

	if _, err := q.q.ExecContext(ctx,
		`UPDATE generations SET is_current = 0, completed_at = COALESCE(completed_at, ?)
		 WHERE legacy_id = ? AND is_current = 1`,
		ts, legacyID); err != nil {
		return Generation{}, fmt.Errorf("close previous generation: %w", err)
	}

	if _, err := q.q.ExecContext(ctx,
		`INSERT INTO generations (id, legacy_id, number, name, is_current, started_at) VALUES (?, ?, ?, ?, 1, ?)`,
		id, legacyID, gen.Number, gen.Name, ts); err != nil {
		return Generation{}, fmt.Errorf("insert generation %d: %w", gen.Number, classify(err))
	}

	pos := 0
	add := func(texts []string, required bool) error {
		for _, text := range texts {
			goalID, err := newID()
			if err != nil {
				return err
			}
			if _, err := q.q.ExecContext(ctx,
				`INSERT INTO goals (id, generation_id, text, required, position) VALUES (?, ?, ?, ?, ?)`,
				goalID, id, text, boolInt(required), pos); err != nil {
				return fmt.Errorf("insert goal %q: %w", text, classify(err))
			}
			pos++
		}
		return nil
	}
	if err := add(gen.Goals.Required, true); err != nil {
		return Generation{}, err
	}
	if err := add(gen.Goals.Optional, false); err != nil {
		return Generation{}, err
	}

	return q.CurrentGeneration(ctx, legacyID)
}

// CurrentGeneration returns the legacy's active generation, or
// ErrNotFound if none has been started.
func (q *Queries) CurrentGeneration(ctx context.Context, legacyID string) (Generation, error) {
	var g Generation
	var started string
	var completed sql.NullString
	err := q.q.QueryRowContext(ctx,
		`SELECT id, legacy_id, number, name, is_current, started_at, completed_at
		 FROM generations WHERE legacy_id = ? AND is_current = 1
		 ORDER BY number DESC LIMIT 1`,
		legacyID,
	).Scan(&g.ID, &g.LegacyID, &g.Number, &g.Name, &g.IsCurrent, &started, &completed)
	if err != nil {
		return Generation{}, classify(err)
	}
	g.StartedAt = parseTime(started)
	g.CompletedAt = parseTimePtr(completed)
	return g, nil
}

const goalColumns = `id, generation_id, text, required, completed, completed_at, position`

func scanGoals(rows *sql.Rows) ([]Goal, error) {
	defer rows.Close()
	var goals []Goal
	for rows.Next() {
		var g Goal
		var completed sql.NullString
		if err := rows.Scan(&g.ID, &g.GenerationID, &g.Text, &g.Required, &g.Completed, &completed, &g.Position); err != nil {
			return nil, err
		}
		g.CompletedAt = parseTimePtr(completed)
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// Goals returns a generation's goals in display order.
func (q *Queries) Goals(ctx context.Context, generationID string) ([]Goal, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE generation_id = ? ORDER BY position, id`,
		generationID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return scanGoals(rows)
}

// GoalsMatching returns the generation's goals whose text matches a
// LIKE pattern case-insensitively, in display order. The pattern uses
// backslash as its escape character.
func (q *Queries) GoalsMatching(ctx context.Context, generationID, pattern string) ([]Goal, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals
		 WHERE generation_id = ? AND LOWER(text) LIKE LOWER(?) ESCAPE '\'
		 ORDER BY position, id`,
		generationID, pattern)
	if err != nil {
		return nil, fmt.Errorf("match goals: %w", err)
	}
	return scanGoals(rows)
}

// CompleteGoal marks a goal complete. Completing a completed goal is a
// no-op that reports false.
func (q *Queries) CompleteGoal(ctx context.Context, goalID string) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE goals SET completed = 1, completed_at = ? WHERE id = ? AND completed = 0`,
		q.stamp(), goalID)
	if err != nil {
		return false, fmt.Errorf("complete goal: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddAchievement records an accomplishment for the legacy.
func (q *Queries) AddAchievement(ctx context.Context, a Achievement) (Achievement, error) {
	id, err := newID()
	if err != nil {
		return Achievement{}, err
	}
	a.ID = id
	if a.AchievedAt.IsZero() {
		a.AchievedAt = q.now().UTC()
	}
	var person any
	if a.PersonID != "" {
		person = a.PersonID
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO achievements (id, legacy_id, person_id, title, achieved_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.LegacyID, person, a.Title, formatTime(a.AchievedAt))
	if err != nil {
		return Achievement{}, fmt.Errorf("add achievement: %w", classify(err))
	}
	return a, nil
}

// RecentAchievements returns up to limit of the legacy's most recent
// achievements, newest first, and the total number recorded.
func (q *Queries) RecentAchievements(ctx context.Context, legacyID string, limit int) ([]Achievement, int, error) {
	var total int
	if err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM achievements WHERE legacy_id = ?`, legacyID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count achievements: %w", err)
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT id, legacy_id, COALESCE(person_id, ''), title, achieved_at
		 FROM achievements WHERE legacy_id = ?
		 ORDER BY achieved_at DESC, id DESC LIMIT ?`,
		legacyID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []Achievement
	for rows.Next() {
		var a Achievement
		var at string
		if err := rows.Scan(&a.ID, &a.LegacyID, &a.PersonID, &a.Title, &at); err != nil {
			return nil, 0, err
		}
		a.AchievedAt = parseTime(at)
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// EscapeLike escapes LIKE wildcards in s using backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
