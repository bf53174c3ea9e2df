// Package anthropic implements generator.Client on top of the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

const (
	// Provider names the backend in errors and logs.
	Provider = "anthropic"
	// APIKeyEnv holds the API key.
	APIKeyEnv = "ANTHROPIC_API_KEY"
	// DefaultBaseURL is used when no endpoint is configured.
	DefaultBaseURL = "https://api.anthropic.com/"
	// DefaultMaxTokens is the output budget when no context size is set.
	DefaultMaxTokens = 4096
)

// Client wraps the Anthropic Messages API behind generator.Client.
type Client struct {
	client anthropic.Client
	opts   generator.Options
}

// New creates an Anthropic client. It fails with core.ErrAuthMissing when
// ANTHROPIC_API_KEY is unset and no key is configured.
func New(optFns ...func(o *generator.Options)) (*Client, error) {
	opts := generator.NewOptions(optFns...)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	key, err := opts.ResolveAPIKey(APIKeyEnv)
	if err != nil {
		return nil, err
	}
	client := anthropic.NewClient(
		option.WithBaseURL(opts.BaseURL(DefaultBaseURL)),
		option.WithAPIKey(key),
		option.WithHTTPClient(opts.HTTPClient),
		option.WithMaxRetries(0),
	)
	return &Client{client: client, opts: opts}, nil
}

func (c *Client) maxTokens() int64 {
	if c.opts.ContextSize > 0 {
		return int64(c.opts.ContextSize)
	}
	return DefaultMaxTokens
}

// CheckSupportedFeatures issues one trial request offering the test function.
// System prompts are always supported by the Messages API.
func (c *Client) CheckSupportedFeatures(ctx context.Context) (core.SupportedFeatures, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: c.maxTokens(),
		System:    []anthropic.TextBlockParam{{Text: generator.TrialSystemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(generator.TrialPrompt))},
		Tools:     []anthropic.ToolUnionParam{toolParam(generator.TrialFunctionDefinition())},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return core.SupportedFeatures{}, ctx.Err()
		}
		c.opts.Logger.Error("generator.probe.error", "provider", Provider, "model", c.opts.Model, "error", err)
		return core.SupportedFeatures{SystemPrompt: true, Tools: false}, nil
	}

	tools := false
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			tools = true
			break
		}
	}
	return core.SupportedFeatures{SystemPrompt: true, Tools: tools}, nil
}

// Chat runs one Messages request.
func (c *Client) Chat(ctx context.Context, st *state.State, opts core.ChatOptions) (core.ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: c.maxTokens(),
		Messages:  buildMessages(opts),
	}
	if opts.SystemPrompt != nil {
		if sp := strings.TrimSpace(*opts.SystemPrompt); sp != "" {
			params.System = []anthropic.TextBlockParam{{Text: sp}}
		}
	}
	for _, def := range generator.Functions(st, c.opts.Registry) {
		params.Tools = append(params.Tools, toolParam(def))
	}

	retrier := generator.NewRetrier(c.opts).WithState(st)
	resp, err := generator.Retry(ctx, retrier, func(ctx context.Context) (*anthropic.Message, error) {
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, wrapError(c.opts.Model, err)
		}
		return resp, nil
	})
	if err != nil {
		return core.ChatResponse{}, err
	}

	var (
		text strings.Builder
		out  core.ChatResponse
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			c.opts.Logger.Debug("generator.tool_call", "provider", Provider, "name", block.Name, "arguments", string(block.Input))
			inv, err := generator.DecodeArguments(block.Name, string(block.Input))
			if err != nil {
				return core.ChatResponse{}, err
			}
			out.Invocations = append(out.Invocations, inv)
		}
	}
	out.Content = text.String()

	if resp.Usage.JSON.InputTokens.Valid() {
		out.Usage = &core.Usage{InputTokens: int(resp.Usage.InputTokens), OutputTokens: int(resp.Usage.OutputTokens)}
	} else {
		out.Usage = generator.EstimateUsage(c.opts.Model, opts, out.Content)
	}
	return out, nil
}

// Embed is not offered by the Anthropic API.
func (c *Client) Embed(context.Context, string) (core.Embeddings, error) {
	return nil, fmt.Errorf("%w: %s embeddings", core.ErrNotImplemented, Provider)
}

func wrapError(model string, err error) error {
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return core.NewProviderError(Provider, model, status, err)
}

// buildMessages seeds the conversation with the prompt and replays the
// history. Feedback is always a user turn; tool_use ids are issued by the
// server and cannot be synthesized for replayed invocations.
func buildMessages(opts core.ChatOptions) []anthropic.MessageParam {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(nonEmpty(opts.Prompt))),
	}
	for _, m := range opts.History {
		switch msg := m.(type) {
		case core.AgentMessage:
			content := strings.TrimSpace(msg.Content)
			if content == "" && msg.Invocation != nil {
				content = msg.Invocation.String()
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(nonEmpty(content))))
		case core.FeedbackMessage:
			if img, ok := msg.Output.(core.ImageOutput); ok {
				messages = append(messages, anthropic.NewUserMessage(imageBlock(img)))
				continue
			}
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(generator.FeedbackText(msg))))
		}
	}
	return messages
}

func imageBlock(img core.ImageOutput) anthropic.ContentBlockParamUnion {
	if img.IsURL() {
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: img.Data})
	}
	return anthropic.NewImageBlockBase64(img.MimeType, img.Data)
}

// nonEmpty guards against empty text blocks, which the API rejects.
func nonEmpty(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return generator.NoOutput
	}
	return s
}

func toolParam(def namespace.FunctionDefinition) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Properties: def.Parameters["properties"]}
	if required, ok := def.Parameters["required"].([]string); ok && len(required) > 0 {
		schema.Required = required
	}
	tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
	tool.OfTool.Description = anthropic.String(def.Description)
	return tool
}
