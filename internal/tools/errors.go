package tools

import (
	"errors"
	"fmt"

	"github.com/nugget/heirloom/internal/legacy"
	"github.com/nugget/heirloom/internal/resolver"
)

// UnknownToolError is returned when the model calls a tool that is not
// in the catalog.
type UnknownToolError struct {
	ToolName string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.ToolName)
}

// InputError reports a missing or malformed tool argument.
type InputError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ResolveError reports a name that matched no entity.
type ResolveError struct {
	Kind legacy.Kind
	Name string
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("could not find a %s named %q", e.Kind, e.Name)
}

// Unwrap lets callers match resolver.ErrNotFound.
func (e *ResolveError) Unwrap() error { return resolver.ErrNotFound }

var errNoGeneration = errors.New("no generation has been started for this legacy")

// userMessage turns an execution error into text the model can relay.
// Storage failures are summarized so driver detail stays in the logs.
func userMessage(err error) string {
	var unknown *UnknownToolError
	var input *InputError
	var resolve *ResolveError
	switch {
	case errors.As(err, &unknown), errors.As(err, &input), errors.As(err, &resolve):
		return err.Error()
	case errors.Is(err, errNoGeneration):
		return err.Error()
	case errors.Is(err, legacy.ErrConstraint):
		return "that change conflicts with existing records"
	case errors.Is(err, legacy.ErrNotFound):
		return "a record needed for this change no longer exists"
	default:
		return "the legacy could not be updated right now"
	}
}
