// Package openai implements generator.Client on top of the OpenAI Chat
// Completions API. The same adapter serves every OpenAI-compatible backend
// through a Profile; the groq and deepseek packages are thin profiles over it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// ProbeMode selects how CheckSupportedFeatures decides tool support.
type ProbeMode int

const (
	// ProbeToolCall reports tools only when the trial returns a tool call.
	ProbeToolCall ProbeMode = iota
	// ProbeSuccess reports tools whenever the trial call succeeds.
	ProbeSuccess
)

// Profile describes one OpenAI-compatible backend.
type Profile struct {
	// Provider names the backend in errors and logs.
	Provider string
	// APIKeyEnv is the environment variable holding the API key.
	APIKeyEnv string
	// BaseURL is used when no endpoint is configured.
	BaseURL string
	Probe   ProbeMode
	// ToolResults replays invocations as assistant tool calls answered by
	// tool messages. Otherwise feedback is sent as plain user turns.
	ToolResults bool
	// Embeddings reports whether the backend serves the embeddings endpoint.
	Embeddings bool
}

// OpenAI is the profile of api.openai.com.
var OpenAI = Profile{
	Provider:   "openai",
	APIKeyEnv:  "OPENAI_API_KEY",
	BaseURL:    "https://api.openai.com/v1/",
	Probe:      ProbeToolCall,
	Embeddings: true,
}

// Client is a generator.Client for an OpenAI-compatible backend.
type Client struct {
	client  openai.Client
	profile Profile
	opts    generator.Options
}

// New creates a client for the OpenAI API. It fails with core.ErrAuthMissing
// when OPENAI_API_KEY is unset and no key is configured.
func New(optFns ...func(o *generator.Options)) (*Client, error) {
	return NewCompatible(OpenAI, optFns...)
}

// NewCompatible creates a client for the backend described by profile.
func NewCompatible(profile Profile, optFns ...func(o *generator.Options)) (*Client, error) {
	opts := generator.NewOptions(optFns...)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	key, err := opts.ResolveAPIKey(profile.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	client := openai.NewClient(
		option.WithBaseURL(opts.BaseURL(profile.BaseURL)),
		option.WithAPIKey(key),
		option.WithHTTPClient(opts.HTTPClient),
		// rate limits are handled by generator.Retry
		option.WithMaxRetries(0),
	)
	return &Client{client: client, profile: profile, opts: opts}, nil
}

// Profile returns the backend profile of the client.
func (c *Client) Profile() Profile { return c.profile }

// CheckSupportedFeatures issues one trial completion offering the test function.
func (c *Client) CheckSupportedFeatures(ctx context.Context) (core.SupportedFeatures, error) {
	trial := generator.TrialFunctionDefinition()
	params := openai.ChatCompletionNewParams{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(generator.TrialSystemPrompt),
			openai.UserMessage(generator.TrialPrompt),
		},
		Tools: []openai.ChatCompletionToolParam{toolParam(trial)},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "unsupported_value") && strings.Contains(msg, "does not support 'system' with this model") {
			return core.SupportedFeatures{SystemPrompt: false, Tools: false}, nil
		}
		if ctx.Err() != nil {
			return core.SupportedFeatures{}, ctx.Err()
		}
		c.opts.Logger.Error("generator.probe.error", "provider", c.profile.Provider, "model", c.opts.Model, "error", msg)
		return core.SupportedFeatures{SystemPrompt: true, Tools: false}, nil
	}

	tools := c.profile.Probe == ProbeSuccess
	if len(resp.Choices) > 0 && len(resp.Choices[0].Message.ToolCalls) > 0 {
		c.opts.Logger.Debug("generator.probe.tool_calls", "provider", c.profile.Provider, "count", len(resp.Choices[0].Message.ToolCalls))
		tools = true
	}
	return core.SupportedFeatures{SystemPrompt: true, Tools: tools}, nil
}

// Chat runs one completion. Native tools are offered when st has the
// native-tools flag set.
func (c *Client) Chat(ctx context.Context, st *state.State, opts core.ChatOptions) (core.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.opts.Model,
		Messages: c.buildMessages(opts),
	}
	for _, def := range generator.Functions(st, c.opts.Registry) {
		params.Tools = append(params.Tools, toolParam(def))
	}

	retrier := generator.NewRetrier(c.opts).WithState(st)
	resp, err := generator.Retry(ctx, retrier, func(ctx context.Context) (*openai.ChatCompletion, error) {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, c.wrapError(err)
		}
		return resp, nil
	})
	if err != nil {
		return core.ChatResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return core.ChatResponse{Usage: c.usage(resp, opts, "")}, nil
	}

	msg := resp.Choices[0].Message
	out := core.ChatResponse{Content: msg.Content}
	for _, call := range msg.ToolCalls {
		c.opts.Logger.Debug("generator.tool_call", "provider", c.profile.Provider, "name", call.Function.Name, "arguments", call.Function.Arguments)
		inv, err := generator.DecodeArguments(call.Function.Name, call.Function.Arguments)
		if err != nil {
			return core.ChatResponse{}, err
		}
		out.Invocations = append(out.Invocations, inv)
	}
	out.Usage = c.usage(resp, opts, msg.Content)
	return out, nil
}

// Embed returns the embedding of text, or core.ErrNotImplemented for backends
// without an embeddings endpoint.
func (c *Client) Embed(ctx context.Context, text string) (core.Embeddings, error) {
	if !c.profile.Embeddings {
		return nil, fmt.Errorf("%w: %s embeddings", core.ErrNotImplemented, c.profile.Provider)
	}

	params := openai.EmbeddingNewParams{
		Model: c.opts.Model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	}
	retrier := generator.NewRetrier(c.opts)
	resp, err := generator.Retry(ctx, retrier, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		resp, err := c.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, c.wrapError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return core.Embeddings{}, nil
	}
	return core.Embeddings(resp.Data[0].Embedding), nil
}

func (c *Client) wrapError(err error) error {
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return core.NewProviderError(c.profile.Provider, c.opts.Model, status, err)
}

// usage prefers the reported token counts and estimates them otherwise.
func (c *Client) usage(resp *openai.ChatCompletion, opts core.ChatOptions, completion string) *core.Usage {
	if resp.Usage.JSON.PromptTokens.Valid() {
		return &core.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		}
	}
	return generator.EstimateUsage(c.opts.Model, opts, completion)
}

// buildMessages seeds the conversation with the system prompt and prompt,
// then replays the history.
func (c *Client) buildMessages(opts core.ChatOptions) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if opts.SystemPrompt != nil {
		messages = append(messages, openai.SystemMessage(strings.TrimSpace(*opts.SystemPrompt)))
	}
	messages = append(messages, openai.UserMessage(strings.TrimSpace(opts.Prompt)))

	h := historyBuilder{toolResults: c.profile.ToolResults}
	for _, m := range opts.History {
		switch msg := m.(type) {
		case core.AgentMessage:
			messages = append(messages, h.agent(msg)...)
		case core.FeedbackMessage:
			messages = append(messages, h.feedback(msg)...)
		}
	}
	return messages
}

// historyBuilder translates history messages. With toolResults set every
// agent invocation gets the call id "<action>-<n>", reused by the feedback
// that follows it.
type historyBuilder struct {
	toolResults bool
	calls       int
	pending     string
}

func (h *historyBuilder) agent(m core.AgentMessage) []openai.ChatCompletionMessageParamUnion {
	content := strings.TrimSpace(m.Content)
	if !h.toolResults || m.Invocation == nil {
		if content == "" && m.Invocation != nil {
			content = m.Invocation.String()
		}
		return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(content)}
	}

	h.pending = fmt.Sprintf("%s-%d", m.Invocation.Action, h.calls)
	h.calls++
	assistant := &openai.ChatCompletionAssistantMessageParam{
		ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
			ID: h.pending,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      m.Invocation.Action,
				Arguments: encodeArguments(*m.Invocation),
			},
		}},
	}
	if content != "" {
		assistant.Content.OfString = openai.String(content)
	}
	return []openai.ChatCompletionMessageParamUnion{{OfAssistant: assistant}}
}

func (h *historyBuilder) feedback(m core.FeedbackMessage) []openai.ChatCompletionMessageParamUnion {
	img, isImage := m.Output.(core.ImageOutput)

	if !h.toolResults || m.Invocation == nil || h.pending == "" {
		if isImage {
			return []openai.ChatCompletionMessageParamUnion{imageMessage(img)}
		}
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(generator.FeedbackText(m))}
	}

	id := h.pending
	h.pending = ""
	if isImage {
		// tool messages are text-only, the image follows as a user turn
		return []openai.ChatCompletionMessageParamUnion{
			openai.ToolMessage(imagePlaceholder(img), id),
			imageMessage(img),
		}
	}
	return []openai.ChatCompletionMessageParamUnion{openai.ToolMessage(generator.FeedbackText(m), id)}
}

// imagePlaceholder stands in for an image inside a text-only tool result.
func imagePlaceholder(img core.ImageOutput) string {
	return fmt.Sprintf("<image: %s>", img.MimeType)
}

func imageMessage(img core.ImageOutput) openai.ChatCompletionMessageParamUnion {
	return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.URL()}),
	})
}

// encodeArguments renders an invocation as the JSON argument object a model
// would have produced for it.
func encodeArguments(inv core.Invocation) string {
	args := make(map[string]string, len(inv.Attributes)+1)
	for k, v := range inv.Attributes {
		args[k] = v
	}
	if inv.Payload != nil {
		args[namespace.PayloadParameter] = *inv.Payload
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toolParam(def namespace.FunctionDefinition) openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  openai.FunctionParameters(def.Parameters),
		},
	}
}
