package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const personColumns = `id, legacy_id, COALESCE(generation_id, ''), name, category, life_stage, in_household, is_heir, created_at`

func scanPerson(row interface{ Scan(...any) error }) (Person, error) {
	var p Person
	var created string
	if err := row.Scan(&p.ID, &p.LegacyID, &p.GenerationID, &p.Name, &p.Category, &p.LifeStage, &p.InHousehold, &p.IsHeir, &created); err != nil {
		return Person{}, err
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

// CreatePerson inserts a person. ID and CreatedAt are assigned here.
func (q *Queries) CreatePerson(ctx context.Context, p Person) (Person, error) {
	id, err := newID()
	if err != nil {
		return Person{}, err
	}
	p.ID = id
	p.CreatedAt = q.now().UTC()

	var gen any
	if p.GenerationID != "" {
		gen = p.GenerationID
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO persons (id, legacy_id, generation_id, name, category, life_stage, in_household, is_heir, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LegacyID, gen, p.Name, string(p.Category), string(p.LifeStage),
		boolInt(p.InHousehold), boolInt(p.IsHeir), formatTime(p.CreatedAt))
	if err != nil {
		return Person{}, fmt.Errorf("create person %q: %w", p.Name, classify(err))
	}
	return p, nil
}

// Person returns a person by ID.
func (q *Queries) Person(ctx context.Context, id string) (Person, error) {
	p, err := scanPerson(q.q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = ?`, id))
	if err != nil {
		return Person{}, classify(err)
	}
	return p, nil
}

// HouseholdMemberByName returns the in-household person whose name
// matches exactly (ignoring case and surrounding space).
func (q *Queries) HouseholdMemberByName(ctx context.Context, legacyID, name string) (Person, error) {
	p, err := scanPerson(q.q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons
		 WHERE legacy_id = ? AND in_household = 1 AND LOWER(name) = LOWER(?)
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		legacyID, strings.TrimSpace(name)))
	if err != nil {
		return Person{}, classify(err)
	}
	return p, nil
}

// Household returns the legacy's in-household members, oldest record
// first.
func (q *Queries) Household(ctx context.Context, legacyID string) ([]Person, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+personColumns+` FROM persons
		 WHERE legacy_id = ? AND in_household = 1
		 ORDER BY created_at, id`,
		legacyID)
	if err != nil {
		return nil, fmt.Errorf("list household: %w", err)
	}
	defer rows.Close()

	var out []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetInHousehold moves a person in or out of the active household.
func (q *Queries) SetInHousehold(ctx context.Context, personID string, in bool) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE persons SET in_household = ? WHERE id = ?`, boolInt(in), personID)
	if err != nil {
		return fmt.Errorf("update household flag: %w", classify(err))
	}
	return nil
}

// AddTrait attaches a trait to a person. It reports false when the
// person already had the trait.
func (q *Queries) AddTrait(ctx context.Context, personID, traitID string) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO person_traits (person_id, trait_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		personID, traitID)
	if err != nil {
		return false, fmt.Errorf("add trait: %w", classify(err))
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PersonTraits returns a person's traits by name.
func (q *Queries) PersonTraits(ctx context.Context, personID string) ([]Trait, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT t.id, t.name FROM person_traits pt JOIN traits t ON t.id = pt.trait_id
		 WHERE pt.person_id = ? ORDER BY t.name`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list traits: %w", err)
	}
	defer rows.Close()

	var out []Trait
	for rows.Next() {
		var t Trait
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SkillLevel returns a person's level in a skill, or 0 if the person
// has never trained it.
func (q *Queries) SkillLevel(ctx context.Context, personID, skillID string) (int, error) {
	var level int
	err := q.q.QueryRowContext(ctx,
		`SELECT level FROM person_skills WHERE person_id = ? AND skill_id = ?`,
		personID, skillID).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read skill level: %w", err)
	}
	return level, nil
}

// SetSkillLevel stores a person's level in a skill.
func (q *Queries) SetSkillLevel(ctx context.Context, personID, skillID string, level int) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO person_skills (person_id, skill_id, level, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (person_id, skill_id) DO UPDATE SET level = excluded.level, updated_at = excluded.updated_at`,
		personID, skillID, level, q.stamp())
	if err != nil {
		return fmt.Errorf("set skill level: %w", classify(err))
	}
	return nil
}

// PersonSkills returns a person's skills, highest level first.
func (q *Queries) PersonSkills(ctx context.Context, personID string) ([]PersonSkill, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT s.id, s.name, s.max_level, ps.level
		 FROM person_skills ps JOIN skills s ON s.id = ps.skill_id
		 WHERE ps.person_id = ? ORDER BY ps.level DESC, s.name`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []PersonSkill
	for rows.Next() {
		var ps PersonSkill
		if err := rows.Scan(&ps.Skill.ID, &ps.Skill.Name, &ps.Skill.MaxLevel, &ps.Level); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

const personCareerQuery = `SELECT c.id, c.name, c.max_level, pc.level, pc.is_current, pc.completed, pc.completed_at
	FROM person_careers pc JOIN careers c ON c.id = pc.career_id`

func scanPersonCareer(row interface{ Scan(...any) error }) (PersonCareer, error) {
	var pc PersonCareer
	var completed sql.NullString
	if err := row.Scan(&pc.Career.ID, &pc.Career.Name, &pc.Career.MaxLevel, &pc.Level, &pc.IsCurrent, &pc.Completed, &completed); err != nil {
		return PersonCareer{}, err
	}
	pc.CompletedAt = parseTimePtr(completed)
	return pc, nil
}

// CurrentCareer returns the person's current career, or ErrNotFound.
func (q *Queries) CurrentCareer(ctx context.Context, personID string) (PersonCareer, error) {
	pc, err := scanPersonCareer(q.q.QueryRowContext(ctx,
		personCareerQuery+` WHERE pc.person_id = ? AND pc.is_current = 1 LIMIT 1`, personID))
	if err != nil {
		return PersonCareer{}, classify(err)
	}
	return pc, nil
}

// PersonCareer returns a person's progress in one career, or ErrNotFound
// if they never joined it.
func (q *Queries) PersonCareer(ctx context.Context, personID, careerID string) (PersonCareer, error) {
	pc, err := scanPersonCareer(q.q.QueryRowContext(ctx,
		personCareerQuery+` WHERE pc.person_id = ? AND pc.career_id = ?`, personID, careerID))
	if err != nil {
		return PersonCareer{}, classify(err)
	}
	return pc, nil
}

// PersonCareers returns every career the person has held, current
// first.
func (q *Queries) PersonCareers(ctx context.Context, personID string) ([]PersonCareer, error) {
	rows, err := q.q.QueryContext(ctx,
		personCareerQuery+` WHERE pc.person_id = ? ORDER BY pc.is_current DESC, pc.joined_at DESC`, personID)
	if err != nil {
		return nil, fmt.Errorf("list careers: %w", err)
	}
	defer rows.Close()

	var out []PersonCareer
	for rows.Next() {
		pc, err := scanPersonCareer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// JoinCareer makes careerID the person's only current career. Rejoining
// a past career keeps its level.
func (q *Queries) JoinCareer(ctx context.Context, personID, careerID string) error {
	if _, err := q.q.ExecContext(ctx,
		`UPDATE person_careers SET is_current = 0 WHERE person_id = ? AND career_id <> ?`,
		personID, careerID); err != nil {
		return fmt.Errorf("leave current career: %w", classify(err))
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO person_careers (person_id, career_id, level, is_current, joined_at) VALUES (?, ?, 1, 1, ?)
		 ON CONFLICT (person_id, career_id) DO UPDATE SET is_current = 1`,
		personID, careerID, q.stamp())
	if err != nil {
		return fmt.Errorf("join career: %w", classify(err))
	}
	return nil
}

// SetCareerProgress stores a person's level in a career. Marking it
// complete stamps the completion time once.
func (q *Queries) SetCareerProgress(ctx context.Context, personID, careerID string, level int, completed bool) error {
	var err error
	if completed {
		_, err = q.q.ExecContext(ctx,
			`UPDATE person_careers SET level = ?, completed = 1, completed_at = COALESCE(completed_at, ?)
			 WHERE person_id = ? AND career_id = ?`,
			level, q.stamp(), personID, careerID)
	} else {
		_, err = q.q.ExecContext(ctx,
			`UPDATE person_careers SET level = ? WHERE person_id = ? AND career_id = ?`,
			level, personID, careerID)
	}
	if err != nil {
		return fmt.Errorf("update career progress: %w", classify(err))
	}
	return nil
}

// PersonAspirations returns the aspirations a person has taken up.
func (q *Queries) PersonAspirations(ctx context.Context, personID string) ([]PersonAspiration, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT a.id, a.name, pa.completed, pa.completed_at
		 FROM person_aspirations pa JOIN aspirations a ON a.id = pa.aspiration_id
		 WHERE pa.person_id = ? ORDER BY pa.completed, a.name`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list aspirations: %w", err)
	}
	defer rows.Close()

	var out []PersonAspiration
	for rows.Next() {
		var pa PersonAspiration
		var completed sql.NullString
		if err := rows.Scan(&pa.Aspiration.ID, &pa.Aspiration.Name, &pa.Completed, &completed); err != nil {
			return nil, err
		}
		pa.CompletedAt = parseTimePtr(completed)
		out = append(out, pa)
	}
	return out, rows.Err()
}

// CompleteAspiration marks an aspiration complete for a person, adding
// it first if they had not taken it up. It reports false when the
// aspiration was already complete.
func (q *Queries) CompleteAspiration(ctx context.Context, personID, aspirationID string) (bool, error) {
	ts := q.stamp()
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO person_aspirations (person_id, aspiration_id, completed, completed_at, started_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT (person_id, aspiration_id) DO UPDATE SET completed = 1, completed_at = excluded.completed_at
		 WHERE person_aspirations.completed = 0`,
		personID, aspirationID, ts, ts)
	if err != nil {
		return false, fmt.Errorf("complete aspiration: %w", classify(err))
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddRelationship links two people. Symmetric types are stored in a
// canonical order so either direction finds the same row. It reports
// false when the link already existed.
func (q *Queries) AddRelationship(ctx context.Context, r Relationship) (bool, error) {
	a, b := r.PersonA, r.PersonB
	if r.Type != RelParent && b < a {
		a, b = b, a
	}
	id, err := newID()
	if err != nil {
		return false, err
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO relationships (id, person_a, person_b, type, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (person_a, person_b, type) DO NOTHING`,
		id, a, b, string(r.Type), q.stamp())
	if err != nil {
		return false, fmt.Errorf("add relationship: %w", classify(err))
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Relationships returns every link that involves the person, oriented
// so PersonA is always personID. Parent links where personID is the
// child come back as type "child".
func (q *Queries) Relationships(ctx context.Context, personID string) ([]Relationship, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT person_a, person_b, type FROM relationships
		 WHERE person_a = ? OR person_b = ? ORDER BY created_at, id`,
		personID, personID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.PersonA, &r.PersonB, &r.Type); err != nil {
			return nil, err
		}
		if r.PersonB == personID {
			r.PersonA, r.PersonB = r.PersonB, r.PersonA
			if r.Type == RelParent {
				r.Type = "child"
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddLifeEvent records a life event. ID and OccurredAt are assigned
// when empty.
func (q *Queries) AddLifeEvent(ctx context.Context, e LifeEvent) (LifeEvent, error) {
	id, err := newID()
	if err != nil {
		return LifeEvent{}, err
	}
	e.ID = id
	if e.OccurredAt.IsZero() {
		e.OccurredAt = q.now().UTC()
	}
	_, err = q.q.ExecContext(ctx,
		`INSERT INTO life_events (id, person_id, event_type, description, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.PersonID, string(e.Type), e.Description, formatTime(e.OccurredAt))
	if err != nil {
		return LifeEvent{}, fmt.Errorf("add life event: %w", classify(err))
	}
	return e, nil
}

// LifeEvents returns a person's life events, oldest first.
func (q *Queries) LifeEvents(ctx context.Context, personID string) ([]LifeEvent, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, person_id, event_type, description, occurred_at FROM life_events
		 WHERE person_id = ? ORDER BY occurred_at, id`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list life events: %w", err)
	}
	defer rows.Close()

	var out []LifeEvent
	for rows.Next() {
		var e LifeEvent
		var at string
		if err := rows.Scan(&e.ID, &e.PersonID, &e.Type, &e.Description, &at); err != nil {
			return nil, err
		}
		e.OccurredAt = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
