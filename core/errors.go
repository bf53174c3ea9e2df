package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthMissing is returned by generator constructors when the provider's
	// API key environment variable is unset.
	ErrAuthMissing = errors.New("api key not set")

	// ErrRateLimited marks a provider rejection that carries a retry-after hint.
	ErrRateLimited = errors.New("rate limited")

	// ErrRateLimitExhausted is returned once the bounded retry budget is spent.
	// It wraps ErrRateLimited.
	ErrRateLimitExhausted = fmt.Errorf("rate limit retries exhausted: %w", ErrRateLimited)

	// ErrUnparseable marks malformed tool-call arguments.
	ErrUnparseable = errors.New("unparseable tool call arguments")

	// ErrUnsupported marks a capability the provider adapter does not offer.
	ErrUnsupported = errors.New("unsupported")

	// ErrNotImplemented marks an operation a provider has no endpoint for.
	ErrNotImplemented = errors.New("not implemented")

	// ErrActionNotFound is returned when an invocation names no enabled action.
	ErrActionNotFound = errors.New("unknown action")

	// ErrMissingVariable is returned when a required variable is unset.
	ErrMissingVariable = errors.New("missing variable")

	// ErrActionTimeout is returned when an action misses its deadline.
	ErrActionTimeout = errors.New("action timed out")

	// ErrActionFailed wraps errors returned by an action body.
	ErrActionFailed = errors.New("action failed")

	// ErrDuplicateAction is returned when two namespaces register the same action name.
	ErrDuplicateAction = errors.New("duplicate action")

	// ErrUnknownNamespace is returned when enabling a namespace that is not registered.
	ErrUnknownNamespace = errors.New("unknown namespace")

	// ErrChannelClosed is returned when publishing to a closed EventChannel.
	ErrChannelClosed = errors.New("event channel closed")

	// ErrStepLimitExceeded is returned once a task used up its step budget.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// ProviderError is a structured failure reported by a generator backend.
type ProviderError struct {
	// Provider is the adapter name (e.g. "openai", "groq").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Message is the provider's error text.
	Message string

	// Cause is the underlying error.
	Cause error
}

// NewProviderError wraps cause as a ProviderError.
func NewProviderError(provider, model string, status int, cause error) *ProviderError {
	e := &ProviderError{Provider: provider, Model: model, Status: status, Cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{e.Provider}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Cause }
