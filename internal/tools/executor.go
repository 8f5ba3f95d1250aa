package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/resolver"
)

// Scope identifies whose legacy a tool call operates on.
type Scope struct {
	LegacyID string
	UserID   string
}

// Outcome is the structured result of one tool call. It is serialized
// verbatim into the tool-result block the model sees.
type Outcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func succeed(msg string, data map[string]any) Outcome {
	return Outcome{Success: true, Message: msg, Data: data}
}

func failure(format string, args ...any) Outcome {
	return Outcome{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Executor runs catalog tools against the legacy store.
type Executor struct {
	store    *legacy.Store
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// NewExecutor creates an executor. Names are resolved against the same
// store the tools write to.
func NewExecutor(store *legacy.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		resolver: resolver.New(store),
		logger:   logger,
	}
}

// Execute runs one tool call. It never returns an error: unknown tools,
// malformed input, unresolved names and storage failures all come back
// as an unsuccessful Outcome and are logged.
func (e *Executor) Execute(ctx context.Context, scope Scope, name string, input map[string]any) Outcome {
	start := time.Now()
	log := e.logger.With("tool", name, "legacy", scope.LegacyID)
	if id := ConversationIDFromContext(ctx); id != "" {
		log = log.With("conversation", id)
	}

	in, err := ParseInput(name, input)
	if err != nil {
		log.Warn("tool input rejected", "error", err)
		return Outcome{Success: false, Error: userMessage(err)}
	}

	out, err := e.dispatch(ctx, scope, in)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		log.Error("tool execution failed", "error", err, "elapsed", elapsed)
		return Outcome{Success: false, Error: userMessage(err)}
	}
	if !out.Success {
		log.Warn("tool reported failure", "reason", out.Error, "elapsed", elapsed)
		return out
	}
	if def, ok := Lookup(name); ok && def.Write {
		log.Info("legacy updated", "elapsed", elapsed)
	} else {
		log.Debug("tool executed", "elapsed", elapsed)
	}
	return out
}

func (e *Executor) dispatch(ctx context.Context, scope Scope, in Input) (Outcome, error) {
	switch v := in.(type) {
	case GetPersonDetailsInput:
		return e.getPersonDetails(ctx, scope, v)
	case GetGoalProgressInput:
		return e.getGoalProgress(ctx, scope)
	case UpdateSkillInput:
		return e.updateSkill(ctx, scope, v)
	case AdvanceCareerInput:
		return e.advanceCareer(ctx, scope, v)
	case JoinCareerInput:
		return e.joinCareer(ctx, scope, v)
	case CreateEntityInput:
		return e.createEntity(ctx, scope, v)
	case CompleteAspirationInput:
		return e.completeAspiration(ctx, scope, v)
	case RecordLifeEventInput:
		return e.recordLifeEvent(ctx, scope, v)
	case AddRelationshipInput:
		return e.addRelationship(ctx, scope, v)
	case CompleteGoalInput:
		return e.completeGoal(ctx, scope, v)
	default:
		return Outcome{}, &UnknownToolError{ToolName: string(in.tool())}
	}
}

// resolve maps a name onto one entity of kind, converting a miss into a
// *ResolveError.
func (e *Executor) resolve(ctx context.Context, scope Scope, kind legacy.Kind, name string) (legacy.Named, error) {
	n, err := e.resolver.ResolveByName(ctx, kind, name, scope.LegacyID)
	if errors.Is(err, resolver.ErrNotFound) {
		return legacy.Named{}, &ResolveError{Kind: kind, Name: name}
	}
	return n, err
}

func (e *Executor) person(ctx context.Context, scope Scope, name string) (legacy.Person, error) {
	n, err := e.resolve(ctx, scope, legacy.KindPerson, name)
	if err != nil {
		return legacy.Person{}, err
	}
	return e.store.Person(ctx, n.ID)
}

func (e *Executor) currentGeneration(ctx context.Context, scope Scope) (legacy.Generation, error) {
	gen, err := e.store.CurrentGeneration(ctx, scope.LegacyID)
	if errors.Is(err, legacy.ErrNotFound) {
		return legacy.Generation{}, errNoGeneration
	}
	return gen, err
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
