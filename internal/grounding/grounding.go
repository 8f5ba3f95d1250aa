// Package grounding assembles the per-turn summary of a legacy's state
// that is injected into the model's system instructions.
package grounding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/prompts"
	"github.com/nugget/heirloom/internal/rules"
)

// Summary limits. Lists longer than these end with "...and N more".
const (
	MaxGoals        = 8
	MaxRoster       = 12
	MaxAchievements = 8
)

// Store is the read-only slice of the domain store the assembler uses.
type Store interface {
	LegacyForUser(ctx context.Context, legacyID, userID string) (legacy.Legacy, error)
	CurrentGeneration(ctx context.Context, legacyID string) (legacy.Generation, error)
	Goals(ctx context.Context, generationID string) ([]legacy.Goal, error)
	Household(ctx context.Context, legacyID string) ([]legacy.Person, error)
	RecentAchievements(ctx context.Context, legacyID string, limit int) ([]legacy.Achievement, int, error)
}

// Grounding is the assembled context for one turn.
type Grounding struct {
	// SystemInstructions is the persona followed by Text.
	SystemInstructions string
	// Text is the legacy summary on its own.
	Text string
}

// Assembler builds Grounding from the domain store and rules book.
type Assembler struct {
	store  Store
	book   *rules.Book
	logger *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(store Store, book *rules.Book, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: store, book: book, logger: logger}
}

// Assemble summarizes the legacy for userID. It returns
// legacy.ErrNotFound when the legacy does not exist or belongs to
// someone else.
func (a *Assembler) Assemble(ctx context.Context, legacyID, userID string) (Grounding, error) {
	l, err := a.store.LegacyForUser(ctx, legacyID, userID)
	if err != nil {
		return Grounding{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Legacy: %s\n", l.Name)

	gen, err := a.store.CurrentGeneration(ctx, legacyID)
	switch {
	case errors.Is(err, legacy.ErrNotFound):
		sb.WriteString("No generation has been started yet.\n")
	case err != nil:
		return Grounding{}, fmt.Errorf("current generation: %w", err)
	default:
		if err := a.writeGeneration(ctx, &sb, gen); err != nil {
			return Grounding{}, err
		}
	}

	household, err := a.store.Household(ctx, legacyID)
	if err != nil {
		return Grounding{}, fmt.Errorf("household: %w", err)
	}
	writeRoster(&sb, household)

	recent, total, err := a.store.RecentAchievements(ctx, legacyID, MaxAchievements)
	if err != nil {
		return Grounding{}, fmt.Errorf("achievements: %w", err)
	}
	writeAchievements(&sb, recent, total)

	text := strings.TrimSpace(sb.String())
	a.logger.Debug("grounding assembled",
		"legacy", legacyID,
		"household", len(household),
		"achievements", total,
		"chars", len(text),
	)
	return Grounding{
		SystemInstructions: prompts.SystemPrompt(text),
		Text:               text,
	}, nil
}

func (a *Assembler) writeGeneration(ctx context.Context, sb *strings.Builder, gen legacy.Generation) error {
	fmt.Fprintf(sb, "Current generation: %d (%s), started %s\n",
		gen.Number, gen.Name, gen.StartedAt.Format("2006-01-02"))

	if a.book != nil {
		if r, ok := a.book.Generation(gen.Number); ok {
			if r.Summary != "" {
				fmt.Fprintf(sb, "Theme: %s\n", r.Summary)
			}
			fmt.Fprintf(sb, "Required traits: %s\n", listOrNone(r.RequiredTraits))
			fmt.Fprintf(sb, "Required careers: %s\n", listOrNone(r.RequiredCareers))
		}
	}

	goals, err := a.store.Goals(ctx, gen.ID)
	if err != nil {
		return fmt.Errorf("goals: %w", err)
	}
	var required, optional []legacy.Goal
	for _, g := range goals {
		if g.Required {
			required = append(required, g)
		} else {
			optional = append(optional, g)
		}
	}
	writeGoals(sb, "Required goals", required)
	writeGoals(sb, "Optional goals", optional)
	return nil
}

func writeGoals(sb *strings.Builder, title string, goals []legacy.Goal) {
	if len(goals) == 0 {
		return
	}
	done := 0
	for _, g := range goals {
		if g.Completed {
			done++
		}
	}
	fmt.Fprintf(sb, "\n%s (%d/%d done):\n", title, done, len(goals))
	for i, g := range goals {
		if i == MaxGoals {
			fmt.Fprintf(sb, "...and %d more\n", len(goals)-MaxGoals)
			break
		}
		mark := " "
		if g.Completed {
			mark = "x"
		}
		fmt.Fprintf(sb, "- [%s] %s\n", mark, g.Text)
	}
}

func writeRoster(sb *strings.Builder, people []legacy.Person) {
	if len(people) == 0 {
		sb.WriteString("\nHousehold: nobody yet.\n")
		return
	}
	fmt.Fprintf(sb, "\nHousehold (%d):\n", len(people))
	for i, p := range people {
		if i == MaxRoster {
			fmt.Fprintf(sb, "...and %d more\n", len(people)-MaxRoster)
			break
		}
		desc := []string{string(p.Category), strings.ReplaceAll(string(p.LifeStage), "_", " ")}
		if p.IsHeir && p.Category != legacy.CategoryHeir {
			desc = append(desc, "heir")
		}
		fmt.Fprintf(sb, "- %s (%s)\n", p.Name, strings.Join(desc, ", "))
	}
}

func writeAchievements(sb *strings.Builder, recent []legacy.Achievement, total int) {
	if total == 0 {
		sb.WriteString("\nAchievements: none yet.\n")
		return
	}
	fmt.Fprintf(sb, "\nRecent achievements (%d total):\n", total)
	for _, a := range recent {
		fmt.Fprintf(sb, "- %s (%s)\n", a.Title, a.AchievedAt.Format("2006-01-02"))
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
