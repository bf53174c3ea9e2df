// Package namespace implements the action capability contract and the
// explicit, insertion-ordered registry of namespaces that groups actions.
//
// An Action is a shared, immutable value: the registry hands the same
// instance to every dispatch, so implementations must keep all mutable data in
// the *state.State passed to Run.
package namespace

import (
	"context"
	"time"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/state"
)

// Action is a named capability the model can invoke.
//
// Implementations usually embed BaseAction and override only the hooks they
// need.
type Action interface {
	// Name is the identifier the model uses to invoke the action. It must be
	// unique across all registered namespaces.
	Name() string

	// Description is shown to the model in prompts and tool schemas.
	Description() string

	// Run executes the action. A nil output with a nil error means the action
	// succeeded without producing anything.
	Run(ctx context.Context, st *state.State, attributes map[string]string, payload *string) (core.ActionOutput, error)

	// Timeout is the execution deadline. Zero means none.
	Timeout() time.Duration

	// ExampleAttributes lists the attribute keys (with sample values) the
	// action expects.
	ExampleAttributes() map[string]string

	// ExamplePayload returns a sample payload, or nil if the action takes none.
	ExamplePayload() *string

	// RequiredVariables names state variables that must be set before Run.
	RequiredVariables() []string

	// RequiresUserConfirmation gates Run on an external yes/no decision.
	RequiresUserConfirmation() bool

	// CompleteTask reports whether a successful run ends the current task.
	CompleteTask() bool
}

// BaseAction supplies the default for every optional Action hook.
type BaseAction struct{}

// Timeout returns zero (no deadline).
func (BaseAction) Timeout() time.Duration { return 0 }

// ExampleAttributes returns nil.
func (BaseAction) ExampleAttributes() map[string]string { return nil }

// ExamplePayload returns nil.
func (BaseAction) ExamplePayload() *string { return nil }

// RequiredVariables returns nil.
func (BaseAction) RequiredVariables() []string { return nil }

// RequiresUserConfirmation returns false.
func (BaseAction) RequiresUserConfirmation() bool { return false }

// CompleteTask returns false.
func (BaseAction) CompleteTask() bool { return false }
