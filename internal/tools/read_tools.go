package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/heirloom/internal/legacy"
)

func (e *Executor) getPersonDetails(ctx context.Context, scope Scope, in GetPersonDetailsInput) (Outcome, error) {
	p, err := e.person(ctx, scope, in.EntityName)
	if err != nil {
		return Outcome{}, err
	}

	var (
		traits      []legacy.Trait
		skills      []legacy.PersonSkill
		careers     []legacy.PersonCareer
		aspirations []legacy.PersonAspiration
		links       []legacy.Relationship
		people      []legacy.Named
	)
	err = fanOut(ctx,
		func(ctx context.Context) (err error) {
			traits, err = e.store.PersonTraits(ctx, p.ID)
			return err
		},
		func(ctx context.Context) (err error) {
			skills, err = e.store.PersonSkills(ctx, p.ID)
			return err
		},
		func(ctx context.Context) (err error) {
			careers, err = e.store.PersonCareers(ctx, p.ID)
			return err
		},
		func(ctx context.Context) (err error) {
			aspirations, err = e.store.PersonAspirations(ctx, p.ID)
			return err
		},
		func(ctx context.Context) (err error) {
			links, err = e.store.Relationships(ctx, p.ID)
			return err
		},
		func(ctx context.Context) (err error) {
			people, err = e.store.Named(ctx, legacy.KindPerson, scope.LegacyID)
			return err
		},
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("load details for %s: %w", p.Name, err)
	}

	names := make(map[string]string, len(people))
	for _, n := range people {
		names[n.ID] = n.Name
	}

	var sb strings.Builder
	status := "in the household"
	if !p.InHousehold {
		status = "no longer in the household"
	}
	fmt.Fprintf(&sb, "%s: %s, %s, %s", p.Name, p.Category, stageLabel(p.LifeStage), status)
	if p.IsHeir {
		sb.WriteString(", heir")
	}
	sb.WriteString(".")

	traitNames := make([]string, 0, len(traits))
	for _, t := range traits {
		traitNames = append(traitNames, t.Name)
	}
	if len(traitNames) > 0 {
		fmt.Fprintf(&sb, "\nTraits: %s", strings.Join(traitNames, ", "))
	}

	skillData := make([]map[string]any, 0, len(skills))
	skillText := make([]string, 0, len(skills))
	for _, s := range skills {
		skillData = append(skillData, map[string]any{"name": s.Skill.Name, "level": s.Level, "max_level": s.Skill.MaxLevel})
		skillText = append(skillText, fmt.Sprintf("%s %d/%d", s.Skill.Name, s.Level, s.Skill.MaxLevel))
	}
	if len(skillText) > 0 {
		fmt.Fprintf(&sb, "\nSkills: %s", strings.Join(skillText, ", "))
	}

	careerData := make([]map[string]any, 0, len(careers))
	for _, c := range careers {
		careerData = append(careerData, map[string]any{
			"name": c.Career.Name, "level": c.Level, "max_level": c.Career.MaxLevel,
			"current": c.IsCurrent, "completed": c.Completed,
		})
		state := ""
		switch {
		case c.Completed:
			state = ", completed"
		case !c.IsCurrent:
			state = ", former"
		}
		fmt.Fprintf(&sb, "\nCareer: %s level %d/%d%s", c.Career.Name, c.Level, c.Career.MaxLevel, state)
	}

	aspData := make([]map[string]any, 0, len(aspirations))
	for _, a := range aspirations {
		aspData = append(aspData, map[string]any{"name": a.Aspiration.Name, "completed": a.Completed})
		mark := "in progress"
		if a.Completed {
			mark = "completed"
		}
		fmt.Fprintf(&sb, "\nAspiration: %s (%s)", a.Aspiration.Name, mark)
	}

	relData := make([]map[string]any, 0, len(links))
	for _, r := range links {
		other := names[r.PersonB]
		relData = append(relData, map[string]any{"type": string(r.Type), "with": other})
		fmt.Fprintf(&sb, "\n%s of %s", relationLabel(r.Type), other)
	}

	return succeed(sb.String(), map[string]any{
		"person_id":     p.ID,
		"name":          p.Name,
		"category":      string(p.Category),
		"life_stage":    string(p.LifeStage),
		"in_household":  p.InHousehold,
		"is_heir":       p.IsHeir,
		"traits":        traitNames,
		"skills":        skillData,
		"careers":       careerData,
		"aspirations":   aspData,
		"relationships": relData,
	}), nil
}

func (e *Executor) getGoalProgress(ctx context.Context, scope Scope) (Outcome, error) {
	gen, err := e.currentGeneration(ctx, scope)
	if err != nil {
		return Outcome{}, err
	}
	goals, err := e.store.Goals(ctx, gen.ID)
	if err != nil {
		return Outcome{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generation %d (%s) goals:", gen.Number, gen.Name)
	done := 0
	items := make([]map[string]any, 0, len(goals))
	for _, g := range goals {
		if g.Completed {
			done++
		}
		mark, kind := " ", "optional"
		if g.Completed {
			mark = "x"
		}
		if g.Required {
			kind = "required"
		}
		fmt.Fprintf(&sb, "\n- [%s] %s (%s)", mark, g.Text, kind)
		items = append(items, map[string]any{"text": g.Text, "required": g.Required, "completed": g.Completed})
	}
	fmt.Fprintf(&sb, "\n%d of %d complete.", done, len(goals))

	return succeed(sb.String(), map[string]any{
		"generation": gen.Number,
		"completed":  done,
		"total":      len(goals),
		"goals":      items,
	}), nil
}

func stageLabel(s legacy.LifeStage) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func relationLabel(t legacy.RelationshipType) string {
	switch t {
	case legacy.RelParent:
		return "Parent"
	case "child":
		return "Child"
	case legacy.RelBestFriend:
		return "Best friend"
	default:
		s := string(t)
		return strings.ToUpper(s[:1]) + s[1:]
	}
}
