package tools

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nugget/heirloom/internal/database"
	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/rules"
)

type testEnv struct {
	db    *sql.DB
	exec  *Executor
	store *legacy.Store
	scope Scope
	gen   legacy.Generation
	bella legacy.Person
	mort  legacy.Person
}

func setupExecutor(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(database.DriverModernc, database.Memory)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := legacy.NewStore(db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	book, err := rules.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SeedCatalog(ctx, book); err != nil {
		t.Fatal(err)
	}
	l, err := store.CreateLegacy(ctx, "user-1", "Goth")
	if err != nil {
		t.Fatal(err)
	}
	g1, _ := book.Generation(1)
	gen, err := store.StartGeneration(ctx, l.ID, g1)
	if err != nil {
		t.Fatal(err)
	}
	bella, err := store.CreatePerson(ctx, legacy.Person{LegacyID: l.ID, GenerationID: gen.ID, Name: "Bella", Category: legacy.CategoryFounder, LifeStage: legacy.StageYoungAdult, InHousehold: true})
	if err != nil {
		t.Fatal(err)
	}
	mort, err := store.CreatePerson(ctx, legacy.Person{LegacyID: l.ID, GenerationID: gen.ID, Name: "Mortimer", Category: legacy.CategorySpouse, LifeStage: legacy.StageAdult, InHousehold: true})
	if err != nil {
		t.Fatal(err)
	}

	return testEnv{
		db:    db,
		exec:  NewExecutor(store, nil),
		store: store,
		scope: Scope{LegacyID: l.ID, UserID: "user-1"},
		gen:   gen,
		bella: bella,
		mort:  mort,
	}
}

func (env testEnv) run(t *testing.T, name string, input map[string]any) Outcome {
	t.Helper()
	return env.exec.Execute(context.Background(), env.scope, name, input)
}

func (env testEnv) achievements(t *testing.T) int {
	t.Helper()
	_, total, err := env.store.RecentAchievements(context.Background(), env.scope.LegacyID, 1)
	if err != nil {
		t.Fatal(err)
	}
	return total
}

func mustSucceed(t *testing.T, out Outcome) {
	t.Helper()
	if !out.Success {
		t.Fatalf("outcome failed: %s", out.Error)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	env := setupExecutor(t)
	out := env.run(t, "delete_everything", nil)
	if out.Success {
		t.Fatal("unknown tool should fail")
	}
	if want := `unknown tool "delete_everything"`; out.Error != want {
		t.Errorf("Error = %q, want %q", out.Error, want)
	}
}

func TestExecuteMalformedInput(t *testing.T) {
	env := setupExecutor(t)
	out := env.run(t, string(ToolUpdateSkill), map[string]any{"entity_name": "Bella", "skill_name": "Cooking"})
	if out.Success {
		t.Fatal("missing new_level should fail")
	}
	if !strings.Contains(out.Error, "new_level") {
		t.Errorf("Error = %q, want mention of new_level", out.Error)
	}
}

func TestUpdateSkillIdempotent(t *testing.T) {
	env := setupExecutor(t)
	ctx := context.Background()
	input := map[string]any{"entity_name": "bella", "skill_name": "cooking", "new_level": float64(10)}

	out := env.run(t, string(ToolUpdateSkill), input)
	mustSucceed(t, out)
	if out.Data["maxed"] != true {
		t.Errorf("maxed = %v, want true", out.Data["maxed"])
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements after first update = %d, want 1", n)
	}

	again := env.run(t, string(ToolUpdateSkill), input)
	mustSucceed(t, again)
	if !strings.Contains(again.Message, "already at level 10") {
		t.Errorf("second Message = %q", again.Message)
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements after repeat = %d, want 1", n)
	}

	skills, err := env.store.PersonSkills(ctx, env.bella.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 || skills[0].Skill.Name != "Cooking" || skills[0].Level != 10 {
		t.Errorf("skills = %+v", skills)
	}
}

func TestUpdateSkillClamps(t *testing.T) {
	tests := []struct {
		name      string
		skill     string
		requested any
		want      int
	}{
		{"above skill max", "Photography", float64(9), 5},
		{"above catalog max", "Cooking", float64(42), 10},
		{"below one", "Painting", float64(0), 1},
		{"numeric string", "Logic", "6", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupExecutor(t)
			out := env.run(t, string(ToolUpdateSkill), map[string]any{
				"entity_name": "Bella", "skill_name": tt.skill, "new_level": tt.requested,
			})
			mustSucceed(t, out)
			if out.Data["level"] != tt.want {
				t.Errorf("level = %v, want %d", out.Data["level"], tt.want)
			}
		})
	}
}

func TestUpdateSkillUnknownNames(t *testing.T) {
	env := setupExecutor(t)

	out := env.run(t, string(ToolUpdateSkill), map[string]any{"entity_name": "Zed", "skill_name": "Cooking", "new_level": 3})
	if out.Success || out.Error != `could not find a person named "Zed"` {
		t.Errorf("unknown person outcome = %+v", out)
	}

	out = env.run(t, string(ToolUpdateSkill), map[string]any{"entity_name": "Bella", "skill_name": "Astrophysics", "new_level": 3})
	if out.Success || out.Error != `could not find a skill named "Astrophysics"` {
		t.Errorf("unknown skill outcome = %+v", out)
	}
}

func TestCompleteGoalFuzzy(t *testing.T) {
	env := setupExecutor(t)
	ctx := context.Background()

	out := env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "max cooking"})
	mustSucceed(t, out)
	if out.Data["goal"] != "Max the Cooking skill" {
		t.Errorf("completed %v, want the cooking goal", out.Data["goal"])
	}

	goals, err := env.store.Goals(ctx, env.gen.ID)
	if err != nil {
		t.Fatal(err)
	}
	var done []string
	for _, g := range goals {
		if g.Completed {
			done = append(done, g.Text)
		}
	}
	if diff := cmp.Diff([]string{"Max the Cooking skill"}, done); diff != "" {
		t.Errorf("completed goals mismatch (-want +got):\n%s", diff)
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements = %d, want 1", n)
	}

	again := env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "Max Cooking!"})
	mustSucceed(t, again)
	if again.Data["changed"] != false {
		t.Errorf("repeat changed = %v, want false", again.Data["changed"])
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements after repeat = %d, want 1", n)
	}
}

func TestCompleteGoalFirstIncompleteWins(t *testing.T) {
	env := setupExecutor(t)

	first := env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "max"})
	mustSucceed(t, first)
	second := env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "max"})
	mustSucceed(t, second)

	if first.Data["goal"] != "Max the Cooking skill" || second.Data["goal"] != "Max the Logic skill" {
		t.Errorf("goals = %v, %v", first.Data["goal"], second.Data["goal"])
	}
}

func TestCompleteGoalFailures(t *testing.T) {
	env := setupExecutor(t)

	out := env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "win the lottery"})
	if out.Success || !strings.Contains(out.Error, "no goal in generation 1") {
		t.Errorf("no match outcome = %+v", out)
	}

	out = env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "!!!"})
	if out.Success {
		t.Error("punctuation-only text should fail")
	}

	// A literal % must not act as a wildcard.
	out = env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "%"})
	if out.Success {
		t.Errorf("wildcard text matched: %+v", out)
	}

	l, err := env.store.CreateLegacy(context.Background(), "user-1", "Empty")
	if err != nil {
		t.Fatal(err)
	}
	out = env.exec.Execute(context.Background(), Scope{LegacyID: l.ID, UserID: "user-1"}, string(ToolCompleteGoal), map[string]any{"free_text": "max cooking"})
	if out.Success || out.Error != errNoGeneration.Error() {
		t.Errorf("no generation outcome = %+v", out)
	}
}

func TestCareerLifecycle(t *testing.T) {
	env := setupExecutor(t)
	ctx := context.Background()

	out := env.run(t, string(ToolAdvanceCareer), map[string]any{"entity_name": "Bella"})
	if out.Success || !strings.Contains(out.Error, "does not have a career") {
		t.Fatalf("advance without career = %+v", out)
	}

	out = env.run(t, string(ToolJoinCareer), map[string]any{"entity_name": "Bella", "career_name": "culinary"})
	mustSucceed(t, out)
	if out.Data["level"] != 1 {
		t.Errorf("joined level = %v, want 1", out.Data["level"])
	}

	out = env.run(t, string(ToolJoinCareer), map[string]any{"entity_name": "Bella", "career_name": "Culinary"})
	mustSucceed(t, out)
	if !strings.Contains(out.Message, "already in the Culinary career") {
		t.Errorf("rejoin Message = %q", out.Message)
	}

	out = env.run(t, string(ToolAdvanceCareer), map[string]any{"entity_name": "Bella", "delta_levels": float64(3)})
	mustSucceed(t, out)
	if out.Data["level"] != 4 || out.Data["completed"] != false {
		t.Errorf("after +3 = %+v", out.Data)
	}

	// Zero and negative deltas still advance by one.
	out = env.run(t, string(ToolAdvanceCareer), map[string]any{"entity_name": "Bella", "delta_levels": float64(-2)})
	mustSucceed(t, out)
	if out.Data["level"] != 5 {
		t.Errorf("after clamped delta = %v, want 5", out.Data["level"])
	}

	out = env.run(t, string(ToolAdvanceCareer), map[string]any{"entity_name": "Bella", "delta_levels": float64(100)})
	mustSucceed(t, out)
	if out.Data["level"] != 10 || out.Data["completed"] != true {
		t.Errorf("after +100 = %+v", out.Data)
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements = %d, want 1", n)
	}

	pc, err := env.store.CurrentCareer(ctx, env.bella.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !pc.Completed || pc.CompletedAt == nil {
		t.Errorf("career not stamped complete: %+v", pc)
	}

	out = env.run(t, string(ToolAdvanceCareer), map[string]any{"entity_name": "Bella"})
	mustSucceed(t, out)
	if !strings.Contains(out.Message, "already completed") {
		t.Errorf("advance after completion Message = %q", out.Message)
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements after repeat = %d, want 1", n)
	}

	out = env.run(t, string(ToolJoinCareer), map[string]any{"entity_name": "Bella", "career_name": "Astronaut"})
	mustSucceed(t, out)
	if out.Data["previous_career"] != "Culinary" {
		t.Errorf("previous_career = %v", out.Data["previous_career"])
	}
}

func TestCreateEntityPartial(t *testing.T) {
	env := setupExecutor(t)
	ctx := context.Background()

	out := env.run(t, string(ToolCreateEntity), map[string]any{
		"name":           "Cassandra",
		"category":       "Child",
		"life_stage":     "infant",
		"parent_names":   []any{"Bella", "Bob", "mortimer"},
		"initial_traits": []any{"genius", "Silly"},
	})
	mustSucceed(t, out)

	want := map[string]any{
		"parents":         []string{"Bella", "Mortimer"},
		"traits":          []string{"Genius"},
		"skipped_parents": []string{"Bob"},
		"skipped_traits":  []string{"Silly"},
	}
	for k, v := range want {
		if diff := cmp.Diff(v, out.Data[k]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", k, diff)
		}
	}
	if !strings.Contains(out.Message, `"Bob"`) || !strings.Contains(out.Message, `"Silly"`) {
		t.Errorf("Message does not report skipped names: %q", out.Message)
	}

	id, _ := out.Data["person_id"].(string)
	p, err := env.store.Person(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.GenerationID != env.gen.ID || !p.InHousehold || p.Category != legacy.CategoryChild {
		t.Errorf("created person = %+v", p)
	}

	links, err := env.store.Relationships(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %+v, want two parent links", links)
	}
	for _, l := range links {
		if l.Type != "child" {
			t.Errorf("link type = %q, want child", l.Type)
		}
	}

	again := env.run(t, string(ToolCreateEntity), map[string]any{"name": "cassandra", "category": "child", "life_stage": "infant"})
	mustSucceed(t, again)
	if again.Data["existing"] != true || again.Data["person_id"] != id {
		t.Errorf("repeat create = %+v", again.Data)
	}
}

func TestCreateEntityRollsBackOnLinkFailure(t *testing.T) {
	env := setupExecutor(t)
	ctx := context.Background()

	if _, err := env.db.ExecContext(ctx, `CREATE TRIGGER reject_links BEFORE INSERT ON relationships
		BEGIN SELECT RAISE(ABORT, 'links disabled'); END`); err != nil {
		t.Fatal(err)
	}

	out := env.run(t, string(ToolCreateEntity), map[string]any{
		"name":         "Cassandra",
		"category":     "child",
		"life_stage":   "infant",
		"parent_names": []any{"Bella"},
	})
	if out.Success {
		t.Fatalf("create with failing parent link succeeded: %+v", out)
	}

	if _, err := env.store.HouseholdMemberByName(ctx, env.scope.LegacyID, "Cassandra"); !errors.Is(err, legacy.ErrNotFound) {
		t.Errorf("person row survived the failed create: err = %v", err)
	}
	household, err := env.store.Household(ctx, env.scope.LegacyID)
	if err != nil {
		t.Fatal(err)
	}
	if len(household) != 2 {
		t.Errorf("household size = %d, want 2", len(household))
	}
}

func TestExecuteLogsWrites(t *testing.T) {
	env := setupExecutor(t)
	var buf bytes.Buffer
	env.exec = NewExecutor(env.store, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	mustSucceed(t, env.run(t, string(ToolGetGoalProgress), map[string]any{}))
	if strings.Contains(buf.String(), "legacy updated") {
		t.Errorf("read tool logged as a write:\n%s", buf.String())
	}

	mustSucceed(t, env.run(t, string(ToolUpdateSkill), map[string]any{"entity_name": "Bella", "skill_name": "Cooking", "new_level": 3}))
	if !strings.Contains(buf.String(), "legacy updated") || !strings.Contains(buf.String(), "tool=update_skill") {
		t.Errorf("write tool not logged:\n%s", buf.String())
	}
}

func TestCreateEntityRejectsBadEnum(t *testing.T) {
	env := setupExecutor(t)
	out := env.run(t, string(ToolCreateEntity), map[string]any{"name": "Pip", "category": "goldfish", "life_stage": "adult"})
	if out.Success || !strings.Contains(out.Error, "category") {
		t.Errorf("bad category outcome = %+v", out)
	}
}

func TestCompleteAspiration(t *testing.T) {
	env := setupExecutor(t)
	input := map[string]any{"entity_name": "Bella", "aspiration_name": "master chef"}

	out := env.run(t, string(ToolCompleteAspiration), input)
	mustSucceed(t, out)
	if out.Data["changed"] != true {
		t.Errorf("changed = %v", out.Data["changed"])
	}
	again := env.run(t, string(ToolCompleteAspiration), input)
	mustSucceed(t, again)
	if again.Data["changed"] != false {
		t.Errorf("repeat changed = %v", again.Data["changed"])
	}
	if n := env.achievements(t); n != 1 {
		t.Errorf("achievements = %d, want 1", n)
	}
}

func TestRecordLifeEventHousehold(t *testing.T) {
	env := setupExecutor(t)
	ctx := context.Background()

	out := env.run(t, string(ToolRecordLifeEvent), map[string]any{"entity_name": "Mortimer", "event_type": "move_out", "description": "Moved to Newcrest"})
	mustSucceed(t, out)
	if out.Data["in_household"] != false {
		t.Errorf("in_household = %v", out.Data["in_household"])
	}

	household, err := env.store.Household(ctx, env.scope.LegacyID)
	if err != nil {
		t.Fatal(err)
	}
	if len(household) != 1 || household[0].Name != "Bella" {
		t.Errorf("household = %+v", household)
	}

	out = env.run(t, string(ToolRecordLifeEvent), map[string]any{"entity_name": "Mortimer", "event_type": "move_in"})
	mustSucceed(t, out)
	if !strings.Contains(out.Message, "back in the household") {
		t.Errorf("Message = %q", out.Message)
	}

	events, err := env.store.LifeEvents(ctx, env.mort.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Description != "Moved to Newcrest" {
		t.Errorf("events = %+v", events)
	}
}

func TestAddRelationship(t *testing.T) {
	env := setupExecutor(t)

	out := env.run(t, string(ToolAddRelationship), map[string]any{"entity_name_1": "Bella", "entity_name_2": "Mortimer", "relationship_type": "spouse"})
	mustSucceed(t, out)
	if out.Data["changed"] != true {
		t.Errorf("changed = %v", out.Data["changed"])
	}

	reverse := env.run(t, string(ToolAddRelationship), map[string]any{"entity_name_1": "Mortimer", "entity_name_2": "Bella", "relationship_type": "spouse"})
	mustSucceed(t, reverse)
	if reverse.Data["changed"] != false {
		t.Errorf("reverse changed = %v, want false", reverse.Data["changed"])
	}

	self := env.run(t, string(ToolAddRelationship), map[string]any{"entity_name_1": "Bella", "entity_name_2": "bella", "relationship_type": "friend"})
	if self.Success {
		t.Error("self relationship should fail")
	}
}

func TestGetPersonDetails(t *testing.T) {
	env := setupExecutor(t)
	mustSucceed(t, env.run(t, string(ToolUpdateSkill), map[string]any{"entity_name": "Bella", "skill_name": "Cooking", "new_level": 10}))
	mustSucceed(t, env.run(t, string(ToolJoinCareer), map[string]any{"entity_name": "Bella", "career_name": "Culinary"}))
	mustSucceed(t, env.run(t, string(ToolAddRelationship), map[string]any{"entity_name_1": "Bella", "entity_name_2": "Mortimer", "relationship_type": "spouse"}))

	out := env.run(t, string(ToolGetPersonDetails), map[string]any{"entity_name": "Bella"})
	mustSucceed(t, out)
	for _, want := range []string{
		"Bella: founder, young adult, in the household.",
		"Skills: Cooking 10/10",
		"Career: Culinary level 1/10",
		"Spouse of Mortimer",
	} {
		if !strings.Contains(out.Message, want) {
			t.Errorf("Message missing %q:\n%s", want, out.Message)
		}
	}
}

func TestGetGoalProgress(t *testing.T) {
	env := setupExecutor(t)
	mustSucceed(t, env.run(t, string(ToolCompleteGoal), map[string]any{"free_text": "max logic"}))

	out := env.run(t, string(ToolGetGoalProgress), nil)
	mustSucceed(t, out)
	if !strings.Contains(out.Message, "- [x] Max the Logic skill (required)") {
		t.Errorf("Message = %q", out.Message)
	}
	if out.Data["completed"] != 1 || out.Data["total"] != 7 {
		t.Errorf("counts = %v/%v, want 1/7", out.Data["completed"], out.Data["total"])
	}
}
