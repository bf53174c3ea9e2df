package namespace

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/logging"
	"github.com/hupe1980/actionmesh/state"
)

// ActionFunc is the body of a FunctionAction.
type ActionFunc func(ctx context.Context, st *state.State, attributes map[string]string, payload *string) (core.ActionOutput, error)

// FunctionActionOptions configures the optional hooks of a FunctionAction.
type FunctionActionOptions struct {
	Timeout                  time.Duration
	ExampleAttributes        map[string]string
	ExamplePayload           *string
	RequiredVariables        []string
	RequiresUserConfirmation bool
	CompleteTask             bool
	Logger                   logging.Logger
}

// FunctionAction is a generic adapter that exposes a plain Go function as an
// Action.
//
// Error Semantics:
//
//	*ActionError (returned directly) -> forwarded unchanged
//	other error                      -> *ActionError{Code: "EXECUTION_ERROR"}
//
// A FunctionAction has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionAction struct {
	name        string
	description string
	fn          ActionFunc
	opts        FunctionActionOptions
}

// NewFunctionAction constructs a FunctionAction.
//
// Example:
//
//	echo := NewFunctionAction("echo", "Repeat the payload.",
//	  func(ctx context.Context, st *state.State, _ map[string]string, p *string) (core.ActionOutput, error) {
//	    return core.NewTextOutput(*p), nil
//	  },
//	  func(o *FunctionActionOptions) { o.ExamplePayload = core.String("hello") },
//	)
func NewFunctionAction(name, description string, fn ActionFunc, optFns ...func(o *FunctionActionOptions)) *FunctionAction {
	opts := FunctionActionOptions{}
	for _, f := range optFns {
		f(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &FunctionAction{name: name, description: description, fn: fn, opts: opts}
}

// Name implements Action.
func (a *FunctionAction) Name() string { return a.name }

// Description implements Action.
func (a *FunctionAction) Description() string { return a.description }

// Timeout implements Action.
func (a *FunctionAction) Timeout() time.Duration { return a.opts.Timeout }

// ExampleAttributes implements Action.
func (a *FunctionAction) ExampleAttributes() map[string]string { return a.opts.ExampleAttributes }

// ExamplePayload implements Action.
func (a *FunctionAction) ExamplePayload() *string { return a.opts.ExamplePayload }

// RequiredVariables implements Action.
func (a *FunctionAction) RequiredVariables() []string { return a.opts.RequiredVariables }

// RequiresUserConfirmation implements Action.
func (a *FunctionAction) RequiresUserConfirmation() bool { return a.opts.RequiresUserConfirmation }

// CompleteTask implements Action.
func (a *FunctionAction) CompleteTask() bool { return a.opts.CompleteTask }

// Run invokes the wrapped function, wrapping failures as *ActionError.
func (a *FunctionAction) Run(ctx context.Context, st *state.State, attributes map[string]string, payload *string) (core.ActionOutput, error) {
	logger := a.opts.Logger
	start := time.Now()

	logger.Debug("action.call.start", "action", a.name)

	out, err := a.fn(ctx, st, attributes, payload)
	if err != nil {
		if actErr, ok := err.(*ActionError); ok {
			logger.Error("action.call.error", "action", a.name, "error", actErr.Message)

			return nil, actErr
		}

		logger.Error("action.call.error", "action", a.name, "error", err.Error())

		return nil, &ActionError{
			Action:  a.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Cause:   err,
		}
	}

	logger.Info("action.call.success", "action", a.name, "duration_ms", time.Since(start).Milliseconds())

	return out, nil
}

// Error codes carried by ActionError.
const (
	CodeExecution = "EXECUTION_ERROR"
	CodePanic     = "PANIC"
)

// ActionError represents errors that occur during action execution.
type ActionError struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Cause   error  `json:"-"`
}

func (e *ActionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("action error [%s] in %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("action error in %s: %s", e.Action, e.Message)
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error { return e.Cause }

// Is reports core.ErrActionFailed so callers can classify action failures.
func (e *ActionError) Is(target error) bool { return target == core.ErrActionFailed }

// NewActionError creates a new ActionError with the specified details.
func NewActionError(action, message, code string) *ActionError {
	return &ActionError{
		Action:  action,
		Message: message,
		Code:    code,
	}
}
