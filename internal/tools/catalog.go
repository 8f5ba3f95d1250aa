// Package tools defines the tools available to the model and executes
// them against the legacy store.
package tools

import (
	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/llm"
)

// CatalogVersion identifies the tool set. Bump it whenever a tool is
// added, removed, or changes its input schema.
const CatalogVersion = "1"

// ToolName is the closed set of tool names.
type ToolName string

// Tool names.
const (
	ToolGetPersonDetails   ToolName = "get_person_details"
	ToolGetGoalProgress    ToolName = "get_goal_progress"
	ToolUpdateSkill        ToolName = "update_skill"
	ToolAdvanceCareer      ToolName = "advance_career"
	ToolJoinCareer         ToolName = "join_career"
	ToolCreateEntity       ToolName = "create_entity"
	ToolCompleteAspiration ToolName = "complete_aspiration"
	ToolRecordLifeEvent    ToolName = "record_life_event"
	ToolAddRelationship    ToolName = "add_relationship"
	ToolCompleteGoal       ToolName = "complete_goal"
)

// FieldType is a JSON Schema primitive type.
type FieldType string

// Field types used by the catalog.
const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeArray   FieldType = "array"
)

// Field describes one input property.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Enum        []string
	Min, Max    *int
	Default     any
	Items       FieldType // element type for TypeArray
}

// Schema is a tool's input schema.
type Schema struct {
	Fields []Field
}

// Definition is one catalog entry.
type Definition struct {
	Name        ToolName
	Description string
	Schema      Schema
	// Write is true for tools that mutate the store.
	Write bool
}

// JSONSchema renders the schema as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := []string{}
	for _, f := range s.Fields {
		p := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		if f.Min != nil {
			p["minimum"] = *f.Min
		}
		if f.Max != nil {
			p["maximum"] = *f.Max
		}
		if f.Default != nil {
			p["default"] = f.Default
		}
		if f.Type == TypeArray {
			p["items"] = map[string]any{"type": string(f.Items)}
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func intPtr(n int) *int { return &n }

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

var catalog = []Definition{
	{
		Name:        ToolGetPersonDetails,
		Description: "Look up one person in the legacy: life stage, traits, skills, careers, aspirations and relationships. Use when the player asks about someone and the summary does not already answer it.",
		Schema: Schema{Fields: []Field{
			{Name: "entity_name", Type: TypeString, Description: "The person's name as the player said it", Required: true},
		}},
	},
	{
		Name:        ToolGetGoalProgress,
		Description: "Show every goal of the current generation with its completion state.",
		Schema:      Schema{},
	},
	{
		Name:        ToolUpdateSkill,
		Description: "Set a person's level in a skill. Use when the player reports a skill level or says a skill was maxed.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "entity_name", Type: TypeString, Description: "The person's name", Required: true},
			{Name: "skill_name", Type: TypeString, Description: "The skill, e.g. Cooking", Required: true},
			{Name: "new_level", Type: TypeInteger, Description: "The new level; use the skill's maximum for \"maxed\"", Required: true, Min: intPtr(1), Max: intPtr(10)},
		}},
	},
	{
		Name:        ToolAdvanceCareer,
		Description: "Promote a person in their current career. Reaching the top level completes the career.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "entity_name", Type: TypeString, Description: "The person's name", Required: true},
			{Name: "delta_levels", Type: TypeInteger, Description: "How many levels to advance", Min: intPtr(1), Default: 1},
		}},
	},
	{
		Name:        ToolJoinCareer,
		Description: "Start a person in a career, replacing their current one.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "entity_name", Type: TypeString, Description: "The person's name", Required: true},
			{Name: "career_name", Type: TypeString, Description: "The career, e.g. Culinary", Required: true},
		}},
	},
	{
		Name:        ToolCreateEntity,
		Description: "Add a new person to the household, such as a newborn, a new spouse or a pet. Parents and traits that cannot be found are skipped and reported.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "name", Type: TypeString, Description: "The new person's name", Required: true},
			{Name: "category", Type: TypeString, Description: "Their role in the legacy", Required: true, Enum: enumStrings(legacy.Categories)},
			{Name: "life_stage", Type: TypeString, Description: "Their current life stage", Required: true, Enum: enumStrings(legacy.LifeStages)},
			{Name: "parent_names", Type: TypeArray, Items: TypeString, Description: "Names of existing parents"},
			{Name: "initial_traits", Type: TypeArray, Items: TypeString, Description: "Trait names"},
		}},
	},
	{
		Name:        ToolCompleteAspiration,
		Description: "Mark a person's aspiration as completed.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "entity_name", Type: TypeString, Description: "The person's name", Required: true},
			{Name: "aspiration_name", Type: TypeString, Description: "The aspiration, e.g. Master Chef", Required: true},
		}},
	},
	{
		Name:        ToolRecordLifeEvent,
		Description: "Record a milestone in a person's life. Moving out or dying removes them from the household; moving in adds them back.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "entity_name", Type: TypeString, Description: "The person's name", Required: true},
			{Name: "event_type", Type: TypeString, Description: "What happened", Required: true, Enum: enumStrings(legacy.EventTypes)},
			{Name: "description", Type: TypeString, Description: "Optional detail in the player's words"},
		}},
	},
	{
		Name:        ToolAddRelationship,
		Description: "Link two people. For \"parent\", the first person is the parent of the second.",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "entity_name_1", Type: TypeString, Description: "The first person's name", Required: true},
			{Name: "entity_name_2", Type: TypeString, Description: "The second person's name", Required: true},
			{Name: "relationship_type", Type: TypeString, Description: "How they are related", Required: true, Enum: enumStrings(legacy.RelationshipTypes)},
		}},
	},
	{
		Name:        ToolCompleteGoal,
		Description: "Mark a goal of the current generation complete by describing it in a few words, e.g. \"max cooking\".",
		Write:       true,
		Schema: Schema{Fields: []Field{
			{Name: "free_text", Type: TypeString, Description: "Words from the goal's text", Required: true},
		}},
	},
}

// Catalog returns the tool definitions in presentation order. The
// returned slice is a copy.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the definition for a tool name.
func Lookup(name string) (Definition, bool) {
	for _, d := range catalog {
		if string(d.Name) == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Specs returns the catalog in the form sent to the model.
func Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(catalog))
	for _, d := range catalog {
		specs = append(specs, llm.ToolSpec{
			Name:        string(d.Name),
			Description: d.Description,
			InputSchema: d.Schema.JSONSchema(),
		})
	}
	return specs
}
