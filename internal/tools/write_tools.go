package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nugget/heirloom/internal/legacy"
)

func (e *Executor) updateSkill(ctx context.Context, scope Scope, in UpdateSkillInput) (Outcome, error) {
	p, err := e.person(ctx, scope, in.EntityName)
	if err != nil {
		return Outcome{}, err
	}
	n, err := e.resolve(ctx, scope, legacy.KindSkill, in.SkillName)
	if err != nil {
		return Outcome{}, err
	}
	skill, err := e.store.Skill(ctx, n.ID)
	if err != nil {
		return Outcome{}, err
	}

	level := clamp(in.NewLevel, 1, skill.MaxLevel)
	var prev int
	var maxed bool
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		if prev, err = q.SkillLevel(ctx, p.ID, skill.ID); err != nil {
			return err
		}
		if prev == level {
			return nil
		}
		if err := q.SetSkillLevel(ctx, p.ID, skill.ID, level); err != nil {
			return err
		}
		if level == skill.MaxLevel {
			maxed = true
			_, err := q.AddAchievement(ctx, legacy.Achievement{
				LegacyID: scope.LegacyID,
				PersonID: p.ID,
				Title:    fmt.Sprintf("%s maxed the %s skill", p.Name, skill.Name),
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	data := map[string]any{
		"person":         p.Name,
		"skill":          skill.Name,
		"level":          level,
		"previous_level": prev,
		"max_level":      skill.MaxLevel,
		"maxed":          maxed,
		"clamped":        level != in.NewLevel,
	}
	if prev == level {
		return succeed(fmt.Sprintf("%s's %s skill is already at level %d.", p.Name, skill.Name, level), data), nil
	}
	msg := fmt.Sprintf("%s's %s skill is now level %d (was %d).", p.Name, skill.Name, level, prev)
	if level != in.NewLevel {
		msg += fmt.Sprintf(" %s runs from 1 to %d, so level %d was adjusted.", skill.Name, skill.MaxLevel, in.NewLevel)
	}
	if maxed {
		msg += " That maxes the skill."
	}
	return succeed(msg, data), nil
}

func (e *Executor) advanceCareer(ctx context.Context, scope Scope, in AdvanceCareerInput) (Outcome, error) {
	p, err := e.person(ctx, scope, in.EntityName)
	if err != nil {
		return Outcome{}, err
	}
	delta := max(in.DeltaLevels, 1)

	var pc legacy.PersonCareer
	var level int
	var noCareer, finished bool
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		pc, err = q.CurrentCareer(ctx, p.ID)
		if errors.Is(err, legacy.ErrNotFound) {
			noCareer = true
			return nil
		}
		if err != nil {
			return err
		}
		if pc.Completed {
			level = pc.Level
			return nil
		}
		level = min(pc.Level+delta, pc.Career.MaxLevel)
		finished = level >= pc.Career.MaxLevel
		if err := q.SetCareerProgress(ctx, p.ID, pc.Career.ID, level, finished); err != nil {
			return err
		}
		if finished {
			_, err := q.AddAchievement(ctx, legacy.Achievement{
				LegacyID: scope.LegacyID,
				PersonID: p.ID,
				Title:    fmt.Sprintf("%s reached the top of the %s career", p.Name, pc.Career.Name),
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if noCareer {
		return failure("%s does not have a career; join one first", p.Name), nil
	}

	data := map[string]any{
		"person":         p.Name,
		"career":         pc.Career.Name,
		"level":          level,
		"previous_level": pc.Level,
		"max_level":      pc.Career.MaxLevel,
		"completed":      finished || pc.Completed,
	}
	if pc.Completed {
		return succeed(fmt.Sprintf("%s has already completed the %s career at level %d.", p.Name, pc.Career.Name, level), data), nil
	}
	msg := fmt.Sprintf("%s advanced to level %d of %d in the %s career.", p.Name, level, pc.Career.MaxLevel, pc.Career.Name)
	if finished {
		msg += " That completes the career."
	}
	return succeed(msg, data), nil
}

func (e *Executor) joinCareer(ctx context.Context, scope Scope, in JoinCareerInput) (Outcome, error) {
	p, err := e.person(ctx, scope, in.EntityName)
	if err != nil {
		return Outcome{}, err
	}
	n, err := e.resolve(ctx, scope, legacy.KindCareer, in.CareerName)
	if err != nil {
		return Outcome{}, err
	}

	var previous string
	var already bool
	var joined legacy.PersonCareer
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		cur, err := q.CurrentCareer(ctx, p.ID)
		switch {
		case err == nil:
			if cur.Career.ID == n.ID {
				already = true
				joined = cur
				return nil
			}
			previous = cur.Career.Name
		case !errors.Is(err, legacy.ErrNotFound):
			return err
		}
		if err := q.JoinCareer(ctx, p.ID, n.ID); err != nil {
			return err
		}
		joined, err = q.PersonCareer(ctx, p.ID, n.ID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	data := map[string]any{
		"person":    p.Name,
		"career":    joined.Career.Name,
		"level":     joined.Level,
		"max_level": joined.Career.MaxLevel,
	}
	if already {
		return succeed(fmt.Sprintf("%s is already in the %s career (level %d).", p.Name, joined.Career.Name, joined.Level), data), nil
	}
	msg := fmt.Sprintf("%s joined the %s career at level %d.", p.Name, joined.Career.Name, joined.Level)
	if previous != "" {
		data["previous_career"] = previous
		msg += fmt.Sprintf(" They left the %s career.", previous)
	}
	return succeed(msg, data), nil
}

func (e *Executor) createEntity(ctx context.Context, scope Scope, in CreateEntityInput) (Outcome, error) {
	existing, err := e.store.HouseholdMemberByName(ctx, scope.LegacyID, in.Name)
	switch {
	case err == nil:
		return succeed(fmt.Sprintf("%s is already in the household.", existing.Name), map[string]any{
			"person_id": existing.ID,
			"existing":  true,
		}), nil
	case !errors.Is(err, legacy.ErrNotFound):
		return Outcome{}, err
	}

	var parents, traits []legacy.Named
	var skippedParents, skippedTraits []string
	seen := map[string]bool{}
	for _, name := range in.ParentNames {
		n, err := e.resolve(ctx, scope, legacy.KindPerson, name)
		var re *ResolveError
		if errors.As(err, &re) {
			skippedParents = append(skippedParents, name)
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		if !seen[n.ID] {
			seen[n.ID] = true
			parents = append(parents, n)
		}
	}
	for _, name := range in.InitialTraits {
		n, err := e.resolve(ctx, scope, legacy.KindTrait, name)
		var re *ResolveError
		if errors.As(err, &re) {
			skippedTraits = append(skippedTraits, name)
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		if !seen[n.ID] {
			seen[n.ID] = true
			traits = append(traits, n)
		}
	}

	gen, err := e.store.CurrentGeneration(ctx, scope.LegacyID)
	if err != nil && !errors.Is(err, legacy.ErrNotFound) {
		return Outcome{}, err
	}

	var created legacy.Person
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		created, err = q.CreatePerson(ctx, legacy.Person{
			LegacyID:     scope.LegacyID,
			GenerationID: gen.ID,
			Name:         in.Name,
			Category:     in.Category,
			LifeStage:    in.LifeStage,
			InHousehold:  true,
			IsHeir:       in.Category == legacy.CategoryHeir,
		})
		if err != nil {
			return err
		}
		for _, parent := range parents {
			if _, err := q.AddRelationship(ctx, legacy.Relationship{
				PersonA: parent.ID,
				PersonB: created.ID,
				Type:    legacy.RelParent,
			}); err != nil {
				return err
			}
		}
		for _, t := range traits {
			if _, err := q.AddTrait(ctx, created.ID, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	parentNames := namesOf(parents)
	traitNames := namesOf(traits)
	msg := fmt.Sprintf("Added %s (%s, %s) to the household.", created.Name, created.Category, stageLabel(created.LifeStage))
	if len(parentNames) > 0 {
		msg += fmt.Sprintf(" Parents: %s.", strings.Join(parentNames, ", "))
	}
	if len(traitNames) > 0 {
		msg += fmt.Sprintf(" Traits: %s.", strings.Join(traitNames, ", "))
	}
	if len(skippedParents) > 0 {
		msg += fmt.Sprintf(" Could not find parent %s, so no link was made.", quoteList(skippedParents))
	}
	if len(skippedTraits) > 0 {
		msg += fmt.Sprintf(" Skipped unknown trait %s.", quoteList(skippedTraits))
	}

	return succeed(msg, map[string]any{
		"person_id":       created.ID,
		"parents":         parentNames,
		"traits":          traitNames,
		"skipped_parents": skippedParents,
		"skipped_traits":  skippedTraits,
	}), nil
}

func (e *Executor) completeAspiration(ctx context.Context, scope Scope, in CompleteAspirationInput) (Outcome, error) {
	p, err := e.person(ctx, scope, in.EntityName)
	if err != nil {
		return Outcome{}, err
	}
	asp, err := e.resolve(ctx, scope, legacy.KindAspiration, in.AspirationName)
	if err != nil {
		return Outcome{}, err
	}

	var changed bool
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		if changed, err = q.CompleteAspiration(ctx, p.ID, asp.ID); err != nil || !changed {
			return err
		}
		_, err = q.AddAchievement(ctx, legacy.Achievement{
			LegacyID: scope.LegacyID,
			PersonID: p.ID,
			Title:    fmt.Sprintf("%s completed the %s aspiration", p.Name, asp.Name),
		})
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	data := map[string]any{"person": p.Name, "aspiration": asp.Name, "changed": changed}
	if !changed {
		return succeed(fmt.Sprintf("%s had already completed the %s aspiration.", p.Name, asp.Name), data), nil
	}
	return succeed(fmt.Sprintf("%s completed the %s aspiration.", p.Name, asp.Name), data), nil
}

func (e *Executor) recordLifeEvent(ctx context.Context, scope Scope, in RecordLifeEventInput) (Outcome, error) {
	p, err := e.person(ctx, scope, in.EntityName)
	if err != nil {
		return Outcome{}, err
	}

	inHousehold := p.InHousehold
	switch in.EventType {
	case legacy.EventMoveOut, legacy.EventDeath:
		inHousehold = false
	case legacy.EventMoveIn:
		inHousehold = true
	}

	var ev legacy.LifeEvent
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		ev, err = q.AddLifeEvent(ctx, legacy.LifeEvent{
			PersonID:    p.ID,
			Type:        in.EventType,
			Description: in.Description,
		})
		if err != nil {
			return err
		}
		if inHousehold != p.InHousehold {
			return q.SetInHousehold(ctx, p.ID, inHousehold)
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	msg := fmt.Sprintf("Recorded %s for %s.", strings.ReplaceAll(string(in.EventType), "_", " "), p.Name)
	switch {
	case p.InHousehold && !inHousehold:
		msg += fmt.Sprintf(" %s is no longer in the household.", p.Name)
	case !p.InHousehold && inHousehold:
		msg += fmt.Sprintf(" %s is back in the household.", p.Name)
	}
	return succeed(msg, map[string]any{
		"event_id":     ev.ID,
		"person":       p.Name,
		"event_type":   string(in.EventType),
		"in_household": inHousehold,
	}), nil
}

func (e *Executor) addRelationship(ctx context.Context, scope Scope, in AddRelationshipInput) (Outcome, error) {
	a, err := e.person(ctx, scope, in.EntityName1)
	if err != nil {
		return Outcome{}, err
	}
	b, err := e.person(ctx, scope, in.EntityName2)
	if err != nil {
		return Outcome{}, err
	}
	if a.ID == b.ID {
		return failure("%s cannot have a relationship with themselves", a.Name), nil
	}

	var added bool
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		added, err = q.AddRelationship(ctx, legacy.Relationship{PersonA: a.ID, PersonB: b.ID, Type: in.Type})
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	label := strings.ReplaceAll(string(in.Type), "_", " ")
	desc := fmt.Sprintf("%s and %s are now linked as %s", a.Name, b.Name, label)
	if in.Type == legacy.RelParent {
		desc = fmt.Sprintf("%s is now recorded as a parent of %s", a.Name, b.Name)
	}
	data := map[string]any{"person_1": a.Name, "person_2": b.Name, "type": string(in.Type), "changed": added}
	if !added {
		return succeed(fmt.Sprintf("%s and %s already have a %s relationship.", a.Name, b.Name, label), data), nil
	}
	return succeed(desc+".", data), nil
}

func (e *Executor) completeGoal(ctx context.Context, scope Scope, in CompleteGoalInput) (Outcome, error) {
	pattern := goalPattern(in.FreeText)
	if pattern == "" {
		return Outcome{}, &InputError{Field: "free_text", Reason: "must contain at least one word"}
	}
	gen, err := e.currentGeneration(ctx, scope)
	if err != nil {
		return Outcome{}, err
	}
	matches, err := e.store.GoalsMatching(ctx, gen.ID, pattern)
	if err != nil {
		return Outcome{}, err
	}
	if len(matches) == 0 {
		return failure("no goal in generation %d matches %q", gen.Number, in.FreeText), nil
	}

	var target *legacy.Goal
	for i := range matches {
		if !matches[i].Completed {
			target = &matches[i]
			break
		}
	}
	if target == nil {
		return succeed(fmt.Sprintf("The goal %q is already complete.", matches[0].Text), map[string]any{
			"goal":    matches[0].Text,
			"changed": false,
		}), nil
	}

	var changed bool
	err = e.store.WithTx(ctx, func(q *legacy.Queries) error {
		var err error
		if changed, err = q.CompleteGoal(ctx, target.ID); err != nil || !changed {
			return err
		}
		_, err = q.AddAchievement(ctx, legacy.Achievement{
			LegacyID: scope.LegacyID,
			Title:    "Completed goal: " + target.Text,
		})
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	data := map[string]any{"goal": target.Text, "required": target.Required, "changed": changed}
	if !changed {
		return succeed(fmt.Sprintf("The goal %q is already complete.", target.Text), data), nil
	}
	return succeed(fmt.Sprintf("Marked the goal %q complete.", target.Text), data), nil
}

// goalPattern turns free text into a LIKE pattern that matches goals
// containing every word in order, e.g. "max cooking" -> "%max%cooking%".
func goalPattern(text string) string {
	var words []string
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			words = append(words, legacy.EscapeLike(strings.ToLower(w)))
		}
	}
	if len(words) == 0 {
		return ""
	}
	return "%" + strings.Join(words, "%") + "%"
}

func namesOf(items []legacy.Named) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.Name)
	}
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
