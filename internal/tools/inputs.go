package tools

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/nugget/heirloom/internal/legacy"
)

// Input is the typed argument struct of one tool.
type Input interface {
	tool() ToolName
}

// GetPersonDetailsInput is the input of get_person_details.
type GetPersonDetailsInput struct{ EntityName string }

// GetGoalProgressInput is the input of get_goal_progress.
type GetGoalProgressInput struct{}

// UpdateSkillInput is the input of update_skill.
type UpdateSkillInput struct {
	EntityName string
	SkillName  string
	NewLevel   int
}

// AdvanceCareerInput is the input of advance_career.
type AdvanceCareerInput struct {
	EntityName  string
	DeltaLevels int
}

// JoinCareerInput is the input of join_career.
type JoinCareerInput struct {
	EntityName string
	CareerName string
}

// CreateEntityInput is the input of create_entity.
type CreateEntityInput struct {
	Name          string
	Category      legacy.Category
	LifeStage     legacy.LifeStage
	ParentNames   []string
	InitialTraits []string
}

// CompleteAspirationInput is the input of complete_aspiration.
type CompleteAspirationInput struct {
	EntityName     string
	AspirationName string
}

// RecordLifeEventInput is the input of record_life_event.
type RecordLifeEventInput struct {
	EntityName  string
	EventType   legacy.EventType
	Description string
}

// AddRelationshipInput is the input of add_relationship.
type AddRelationshipInput struct {
	EntityName1 string
	EntityName2 string
	Type        legacy.RelationshipType
}

// CompleteGoalInput is the input of complete_goal.
type CompleteGoalInput struct{ FreeText string }

func (GetPersonDetailsInput) tool() ToolName   { return ToolGetPersonDetails }
func (GetGoalProgressInput) tool() ToolName    { return ToolGetGoalProgress }
func (UpdateSkillInput) tool() ToolName        { return ToolUpdateSkill }
func (AdvanceCareerInput) tool() ToolName      { return ToolAdvanceCareer }
func (JoinCareerInput) tool() ToolName         { return ToolJoinCareer }
func (CreateEntityInput) tool() ToolName       { return ToolCreateEntity }
func (CompleteAspirationInput) tool() ToolName { return ToolCompleteAspiration }
func (RecordLifeEventInput) tool() ToolName    { return ToolRecordLifeEvent }
func (AddRelationshipInput) tool() ToolName    { return ToolAddRelationship }
func (CompleteGoalInput) tool() ToolName       { return ToolCompleteGoal }

// ParseInput converts raw model arguments into the tool's typed input.
// Required fields must be present and non-blank, enums must name a known
// value, and integers may arrive as JSON numbers or numeric strings.
// Integer ranges are not enforced here; the executor clamps them.
func ParseInput(name string, raw map[string]any) (Input, error) {
	a := args(raw)
	var in Input
	var err error
	switch ToolName(name) {
	case ToolGetPersonDetails:
		var v GetPersonDetailsInput
		v.EntityName, err = a.str("entity_name", true)
		in = v
	case ToolGetGoalProgress:
		in = GetGoalProgressInput{}
	case ToolUpdateSkill:
		var v UpdateSkillInput
		err = firstErr(
			a.strInto(&v.EntityName, "entity_name", true),
			a.strInto(&v.SkillName, "skill_name", true),
			a.intInto(&v.NewLevel, "new_level", true, 0),
		)
		in = v
	case ToolAdvanceCareer:
		var v AdvanceCareerInput
		err = firstErr(
			a.strInto(&v.EntityName, "entity_name", true),
			a.intInto(&v.DeltaLevels, "delta_levels", false, 1),
		)
		in = v
	case ToolJoinCareer:
		var v JoinCareerInput
		err = firstErr(
			a.strInto(&v.EntityName, "entity_name", true),
			a.strInto(&v.CareerName, "career_name", true),
		)
		in = v
	case ToolCreateEntity:
		var v CreateEntityInput
		var category, stage string
		err = firstErr(
			a.strInto(&v.Name, "name", true),
			a.enumInto(&category, "category", enumStrings(legacy.Categories)),
			a.enumInto(&stage, "life_stage", enumStrings(legacy.LifeStages)),
			a.listInto(&v.ParentNames, "parent_names"),
			a.listInto(&v.InitialTraits, "initial_traits"),
		)
		v.Category = legacy.Category(category)
		v.LifeStage = legacy.LifeStage(stage)
		in = v
	case ToolCompleteAspiration:
		var v CompleteAspirationInput
		err = firstErr(
			a.strInto(&v.EntityName, "entity_name", true),
			a.strInto(&v.AspirationName, "aspiration_name", true),
		)
		in = v
	case ToolRecordLifeEvent:
		var v RecordLifeEventInput
		var event string
		err = firstErr(
			a.strInto(&v.EntityName, "entity_name", true),
			a.enumInto(&event, "event_type", enumStrings(legacy.EventTypes)),
			a.strInto(&v.Description, "description", false),
		)
		v.EventType = legacy.EventType(event)
		in = v
	case ToolAddRelationship:
		var v AddRelationshipInput
		var rel string
		err = firstErr(
			a.strInto(&v.EntityName1, "entity_name_1", true),
			a.strInto(&v.EntityName2, "entity_name_2", true),
			a.enumInto(&rel, "relationship_type", enumStrings(legacy.RelationshipTypes)),
		)
		v.Type = legacy.RelationshipType(rel)
		in = v
	case ToolCompleteGoal:
		var v CompleteGoalInput
		v.FreeText, err = a.str("free_text", true)
		in = v
	default:
		return nil, &UnknownToolError{ToolName: name}
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

type args map[string]any

func (a args) str(field string, required bool) (string, error) {
	v, ok := a[field]
	if !ok || v == nil {
		if required {
			return "", &InputError{Field: field, Reason: "is required"}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &InputError{Field: field, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", &InputError{Field: field, Reason: "must not be blank"}
	}
	return s, nil
}

func (a args) strInto(dst *string, field string, required bool) error {
	s, err := a.str(field, required)
	*dst = s
	return err
}

func (a args) enumInto(dst *string, field string, allowed []string) error {
	s, err := a.str(field, true)
	if err != nil {
		return err
	}
	s = strings.ToLower(s)
	if !slices.Contains(allowed, s) {
		return &InputError{Field: field, Reason: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))}
	}
	*dst = s
	return nil
}

func (a args) intInto(dst *int, field string, required bool, def int) error {
	v, ok := a[field]
	if !ok || v == nil {
		if required {
			return &InputError{Field: field, Reason: "is required"}
		}
		*dst = def
		return nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return &InputError{Field: field, Reason: fmt.Sprintf("must be an integer, got %q", n)}
		}
		f = parsed
	default:
		return &InputError{Field: field, Reason: fmt.Sprintf("must be an integer, got %T", v)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return &InputError{Field: field, Reason: "must be a whole number"}
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	} else if f < math.MinInt32 {
		f = math.MinInt32
	}
	*dst = int(f)
	return nil
}

func (a args) listInto(dst *[]string, field string) error {
	v, ok := a[field]
	if !ok || v == nil {
		return nil
	}
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case []string:
		for _, s := range l {
			items = append(items, s)
		}
	case string:
		items = []any{l}
	default:
		return &InputError{Field: field, Reason: fmt.Sprintf("must be a list of strings, got %T", v)}
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return &InputError{Field: field, Reason: fmt.Sprintf("must be a list of strings, got element %T", item)}
		}
		if s = strings.TrimSpace(s); s != "" {
			*dst = append(*dst, s)
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
