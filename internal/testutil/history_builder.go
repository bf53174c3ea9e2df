package testutil

import (
	"github.com/hupe1980/actionmesh/core"
)

// HistoryBuilder provides a fluent helper for constructing chat histories in tests.
// Example:
//
//	h := NewHistoryBuilder().Agent("hi").Call("read", nil, "a.txt").Feedback("content").Build()
//
// Feedback following a Call is tagged with that call's invocation.
type HistoryBuilder struct {
	msgs []core.Message
	last *core.Invocation
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// Agent appends a plain agent turn (chainable).
func (b *HistoryBuilder) Agent(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.AgentMessage{Content: text})
	b.last = nil
	return b
}

// Call appends an agent turn carrying an invocation (chainable). An empty
// payload is treated as absent.
func (b *HistoryBuilder) Call(action string, attrs map[string]string, payload string) *HistoryBuilder {
	var p *string
	if payload != "" {
		p = core.String(payload)
	}
	inv := core.NewInvocation(action, attrs, p)
	b.msgs = append(b.msgs, core.AgentMessage{Invocation: &inv})
	b.last = &inv
	return b
}

// Feedback appends a text feedback turn (chainable).
func (b *HistoryBuilder) Feedback(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.FeedbackMessage{Output: core.NewTextOutput(text), Invocation: b.last})
	return b
}

// Image appends an image feedback turn (chainable).
func (b *HistoryBuilder) Image(data, mime string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.FeedbackMessage{Output: core.NewImageOutput(data, mime), Invocation: b.last})
	return b
}

// Build returns the collected history.
func (b *HistoryBuilder) Build() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}
