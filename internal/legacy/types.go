package legacy

import "time"

// Legacy is one player's multi-generation playthrough. Every person,
// generation and achievement belongs to exactly one legacy.
type Legacy struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Generation is one chapter of a legacy. At most one generation per
// legacy is current.
type Generation struct {
	ID          string
	LegacyID    string
	Number      int
	Name        string
	IsCurrent   bool
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Goal is a generation's required or optional objective. Goals are
// displayed in Position order.
type Goal struct {
	ID           string
	GenerationID string
	Text         string
	Required     bool
	Completed    bool
	CompletedAt  *time.Time
	Position     int
}

// Category classifies a person's role in the legacy.
type Category string

// Person categories.
const (
	CategoryFounder  Category = "founder"
	CategoryHeir     Category = "heir"
	CategorySpouse   Category = "spouse"
	CategoryChild    Category = "child"
	CategoryRelative Category = "relative"
	CategoryRoommate Category = "roommate"
	CategoryPet      Category = "pet"
)

// Categories lists every valid Category in display order.
var Categories = []Category{
	CategoryFounder, CategoryHeir, CategorySpouse, CategoryChild,
	CategoryRelative, CategoryRoommate, CategoryPet,
}

// LifeStage is a person's age group.
type LifeStage string

// Life stages, youngest first.
const (
	StageInfant     LifeStage = "infant"
	StageToddler    LifeStage = "toddler"
	StageChild      LifeStage = "child"
	StageTeen       LifeStage = "teen"
	StageYoungAdult LifeStage = "young_adult"
	StageAdult      LifeStage = "adult"
	StageElder      LifeStage = "elder"
)

// LifeStages lists every valid LifeStage, youngest first.
var LifeStages = []LifeStage{
	StageInfant, StageToddler, StageChild, StageTeen,
	StageYoungAdult, StageAdult, StageElder,
}

// Person is a sim tracked by the legacy. InHousehold is the "current"
// flag: people who moved out or died stay on record but are inactive.
type Person struct {
	ID           string
	LegacyID     string
	GenerationID string
	Name         string
	Category     Category
	LifeStage    LifeStage
	InHousehold  bool
	IsHeir       bool
	CreatedAt    time.Time
}

// Trait is a catalog personality trait.
type Trait struct {
	ID   string
	Name string
}

// Skill is a catalog skill with its level cap.
type Skill struct {
	ID       string
	Name     string
	MaxLevel int
}

// Career is a catalog career with its level cap.
type Career struct {
	ID       string
	Name     string
	MaxLevel int
}

// Aspiration is a catalog lifetime goal.
type Aspiration struct {
	ID   string
	Name string
}

// PersonSkill is a person's level in one skill.
type PersonSkill struct {
	Skill Skill
	Level int
}

// PersonCareer is a person's progress in one career. A person holds at
// most one current career.
type PersonCareer struct {
	Career      Career
	Level       int
	IsCurrent   bool
	Completed   bool
	CompletedAt *time.Time
}

// PersonAspiration is an aspiration a person has taken up.
type PersonAspiration struct {
	Aspiration  Aspiration
	Completed   bool
	CompletedAt *time.Time
}

// RelationshipType names how two people are related.
type RelationshipType string

// Relationship types. RelParent is directional (the first person is the
// parent of the second); every other type is symmetric.
const (
	RelParent     RelationshipType = "parent"
	RelSpouse     RelationshipType = "spouse"
	RelPartner    RelationshipType = "partner"
	RelSibling    RelationshipType = "sibling"
	RelFriend     RelationshipType = "friend"
	RelBestFriend RelationshipType = "best_friend"
	RelEnemy      RelationshipType = "enemy"
)

// RelationshipTypes lists every valid RelationshipType.
var RelationshipTypes = []RelationshipType{
	RelParent, RelSpouse, RelPartner, RelSibling, RelFriend, RelBestFriend, RelEnemy,
}

// Relationship links two people.
type Relationship struct {
	PersonA string
	PersonB string
	Type    RelationshipType
}

// EventType classifies a life event.
type EventType string

// Life event types.
const (
	EventBirth      EventType = "birth"
	EventAgeUp      EventType = "age_up"
	EventMarriage   EventType = "marriage"
	EventDivorce    EventType = "divorce"
	EventGraduation EventType = "graduation"
	EventMoveIn     EventType = "move_in"
	EventMoveOut    EventType = "move_out"
	EventDeath      EventType = "death"
	EventOther      EventType = "other"
)

// EventTypes lists every valid EventType.
var EventTypes = []EventType{
	EventBirth, EventAgeUp, EventMarriage, EventDivorce, EventGraduation,
	EventMoveIn, EventMoveOut, EventDeath, EventOther,
}

// LifeEvent is a dated milestone in a person's life.
type LifeEvent struct {
	ID          string
	PersonID    string
	Type        EventType
	Description string
	OccurredAt  time.Time
}

// Achievement is a legacy-wide accomplishment shown in the grounding
// summary. PersonID is empty for achievements not tied to one person.
type Achievement struct {
	ID         string
	LegacyID   string
	PersonID   string
	Title      string
	AchievedAt time.Time
}

// Kind selects which entity table a name lookup searches.
type Kind string

// Name lookup kinds. Only KindPerson is scoped to a legacy; the others
// are global catalogs.
const (
	KindPerson     Kind = "person"
	KindSkill      Kind = "skill"
	KindTrait      Kind = "trait"
	KindCareer     Kind = "career"
	KindAspiration Kind = "aspiration"
)

// Named is the minimal projection of an entity used for name
// resolution.
type Named struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}
