// Package gemini implements generator.Client on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

const (
	// Provider names the backend in errors and logs.
	Provider = "gemini"
	// APIKeyEnv holds the API key.
	APIKeyEnv = "GEMINI_API_KEY"
)

// Client wraps the Gemini models API behind generator.Client.
type Client struct {
	client *genai.Client
	opts   generator.Options
}

// New creates a Gemini client. It fails with core.ErrAuthMissing when
// GEMINI_API_KEY is unset and no key is configured.
func New(optFns ...func(o *generator.Options)) (*Client, error) {
	opts := generator.NewOptions(optFns...)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	key, err := opts.ResolveAPIKey(APIKeyEnv)
	if err != nil {
		return nil, err
	}

	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.Endpoint != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL("")
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{client: client, opts: opts}, nil
}

// CheckSupportedFeatures issues one trial request offering the test function.
func (c *Client) CheckSupportedFeatures(ctx context.Context) (core.SupportedFeatures, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(generator.TrialSystemPrompt, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{declaration(generator.TrialFunctionDefinition())}}},
	}
	contents := []*genai.Content{genai.NewContentFromText(generator.TrialPrompt, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return core.SupportedFeatures{}, ctx.Err()
		}
		c.opts.Logger.Error("generator.probe.error", "provider", Provider, "model", c.opts.Model, "error", err)
		return core.SupportedFeatures{SystemPrompt: true, Tools: false}, nil
	}
	return core.SupportedFeatures{SystemPrompt: true, Tools: len(resp.FunctionCalls()) > 0}, nil
}

// Chat runs one GenerateContent request.
func (c *Client) Chat(ctx context.Context, st *state.State, opts core.ChatOptions) (core.ChatResponse, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.SystemPrompt != nil {
		if sp := strings.TrimSpace(*opts.SystemPrompt); sp != "" {
			cfg.SystemInstruction = genai.NewContentFromText(sp, genai.RoleUser)
		}
	}
	if defs := generator.Functions(st, c.opts.Registry); len(defs) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(defs))
		for _, def := range defs {
			decls = append(decls, declaration(def))
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	contents := buildContents(opts)

	retrier := generator.NewRetrier(c.opts).WithState(st)
	resp, err := generator.Retry(ctx, retrier, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, contents, cfg)
		if err != nil {
			return nil, wrapError(c.opts.Model, err)
		}
		return resp, nil
	})
	if err != nil {
		return core.ChatResponse{}, err
	}

	var (
		out  core.ChatResponse
		text strings.Builder
	)
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				c.opts.Logger.Debug("generator.tool_call", "provider", Provider, "name", part.FunctionCall.Name)
				inv, err := generator.DecodeArgumentMap(part.FunctionCall.Name, part.FunctionCall.Args)
				if err != nil {
					return core.ChatResponse{}, err
				}
				out.Invocations = append(out.Invocations, inv)
			}
		}
	}
	out.Content = text.String()

	if u := resp.UsageMetadata; u != nil && u.PromptTokenCount > 0 {
		out.Usage = &core.Usage{InputTokens: int(u.PromptTokenCount), OutputTokens: int(u.CandidatesTokenCount)}
	} else {
		out.Usage = generator.EstimateUsage(c.opts.Model, opts, out.Content)
	}
	return out, nil
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) (core.Embeddings, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := generator.Retry(ctx, generator.NewRetrier(c.opts), func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		resp, err := c.client.Models.EmbedContent(ctx, c.opts.Model, contents, nil)
		if err != nil {
			return nil, wrapError(c.opts.Model, err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return core.Embeddings{}, nil
	}
	values := resp.Embeddings[0].Values
	out := make(core.Embeddings, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

func wrapError(model string, err error) error {
	status := 0
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Code
	}
	return core.NewProviderError(Provider, model, status, err)
}

// buildContents seeds the conversation with the prompt and replays the
// history. Gemini has no separate tool-result role for replayed calls, so
// feedback is a user turn.
func buildContents(opts core.ChatOptions) []*genai.Content {
	contents := []*genai.Content{genai.NewContentFromText(strings.TrimSpace(opts.Prompt), genai.RoleUser)}
	for _, m := range opts.History {
		switch msg := m.(type) {
		case core.AgentMessage:
			content := strings.TrimSpace(msg.Content)
			if content == "" && msg.Invocation != nil {
				content = msg.Invocation.String()
			}
			if content == "" {
				content = generator.NoOutput
			}
			contents = append(contents, genai.NewContentFromText(content, genai.RoleModel))
		case core.FeedbackMessage:
			if img, ok := msg.Output.(core.ImageOutput); ok {
				contents = append(contents, genai.NewContentFromParts([]*genai.Part{imagePart(img)}, genai.RoleUser))
				continue
			}
			contents = append(contents, genai.NewContentFromText(generator.FeedbackText(msg), genai.RoleUser))
		}
	}
	return contents
}

// imagePart sends URLs as file data and inline base64 as decoded bytes.
// Undecodable data falls back to its data URI.
func imagePart(img core.ImageOutput) *genai.Part {
	if img.IsURL() {
		return genai.NewPartFromURI(img.Data, img.MimeType)
	}
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return genai.NewPartFromURI(img.URL(), img.MimeType)
	}
	return genai.NewPartFromBytes(data, img.MimeType)
}

func declaration(def namespace.FunctionDefinition) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:                 def.Name,
		Description:          def.Description,
		ParametersJsonSchema: def.Parameters,
	}
}
