package core

// Message is one turn of the conversation history. Concrete message types
// implement the unexported isMessage marker enabling a closed set.
type Message interface{ isMessage() }

// AgentMessage is the model's own turn, optionally carrying the invocation it
// issued.
type AgentMessage struct {
	Content    string      `json:"content"`
	Invocation *Invocation `json:"invocation,omitempty"`
}

func (AgentMessage) isMessage() {}

// FeedbackMessage feeds an action result back to the model. Output is nil when
// the action produced nothing (or was skipped). Invocation tags the feedback to
// a prior call for providers that pair calls with responses.
type FeedbackMessage struct {
	Output     ActionOutput `json:"output,omitempty"`
	Invocation *Invocation  `json:"invocation,omitempty"`
}

func (FeedbackMessage) isMessage() {}

// Text returns the textual form of the feedback ("" when there is no output).
func (m FeedbackMessage) Text() string {
	if m.Output == nil {
		return ""
	}
	return m.Output.String()
}

// ChatOptions is the input of one generator call. History is chronological.
type ChatOptions struct {
	SystemPrompt *string   `json:"system_prompt,omitempty"`
	Prompt       string    `json:"prompt"`
	History      []Message `json:"history"`
}

// NewChatOptions creates ChatOptions with an optional system prompt.
func NewChatOptions(systemPrompt *string, prompt string, history []Message) ChatOptions {
	return ChatOptions{SystemPrompt: systemPrompt, Prompt: prompt, History: history}
}

// Usage holds token counters reported by a provider for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatResponse is the output of one generator call.
type ChatResponse struct {
	Content     string       `json:"content"`
	Invocations []Invocation `json:"invocations,omitempty"`
	Usage       *Usage       `json:"usage,omitempty"`
}

// SupportedFeatures is the result of a generator capability probe.
type SupportedFeatures struct {
	SystemPrompt bool `json:"system_prompt"`
	Tools        bool `json:"tools"`
}

// Embeddings is a single embedding vector.
type Embeddings []float64
