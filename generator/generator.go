package generator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/internal/backoff"
	"github.com/hupe1980/actionmesh/logging"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// Client is the capability contract implemented once per provider.
type Client interface {
	// CheckSupportedFeatures issues one live trial completion. Callers should
	// cache the result; it is not meant to be re-issued per turn.
	CheckSupportedFeatures(ctx context.Context) (core.SupportedFeatures, error)

	// Chat runs one completion for the given conversation.
	Chat(ctx context.Context, st *state.State, opts core.ChatOptions) (core.ChatResponse, error)

	// Embed returns the embedding of text, or core.ErrNotImplemented.
	Embed(ctx context.Context, text string) (core.Embeddings, error)
}

// Options is the construction input shared by every provider adapter.
type Options struct {
	// Endpoint overrides the provider's default base URL. A bare host gets an
	// http:// scheme.
	Endpoint string
	// Port is applied to Endpoint when it carries none.
	Port uint16
	// Model is the provider model name.
	Model string
	// ContextSize is the model context window in tokens, used as an output
	// token budget hint by protocols that require one.
	ContextSize uint32
	// APIKey overrides the provider's <PROVIDER>_API_KEY variable.
	APIKey string
	// Registry lists the actions exposed as native tools.
	Registry *namespace.Registry
	// HTTPClient is passed to the vendor SDK.
	HTTPClient *http.Client
	// MaxRetries bounds rate-limit retries. Negative disables retrying.
	MaxRetries int
	// Backoff is the wait policy between rate-limit retries.
	Backoff backoff.Policy
	// Stream requests streamed responses. No provider supports it; clients
	// reject it with core.ErrUnsupported.
	Stream bool
	Logger logging.Logger
}

// DefaultMaxRetries is the rate-limit retry budget used when none is set.
const DefaultMaxRetries = 5

// NewOptions applies optFns over the defaults.
func NewOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		MaxRetries: DefaultMaxRetries,
		Backoff:    backoff.DefaultPolicy(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return opts
}

// Validate rejects options no provider adapter implements.
func (o Options) Validate() error {
	if o.Stream {
		return fmt.Errorf("%w: streaming responses", core.ErrUnsupported)
	}
	return nil
}

// RetryPolicy returns the rate-limit policy configured by the options.
func (o Options) RetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: o.MaxRetries, Backoff: o.Backoff}
}

// BaseURL resolves Endpoint and Port against the provider default.
func (o Options) BaseURL(defaultURL string) string {
	if o.Endpoint == "" {
		return defaultURL
	}
	raw := o.Endpoint
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if o.Port != 0 && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(int(o.Port)))
	}
	return u.String()
}

// ResolveAPIKey returns the configured key or the value of envVar. It fails
// with core.ErrAuthMissing when neither is set.
func (o Options) ResolveAPIKey(envVar string) (string, error) {
	if o.APIKey != "" {
		return o.APIKey, nil
	}
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("%w: %s", core.ErrAuthMissing, envVar)
	}
	return key, nil
}

// NoOutput replaces empty feedback text. Several OpenAI-compatible backends
// reject empty message content.
const NoOutput = "<no output>"

// FeedbackText returns the text of a feedback message, or NoOutput.
func FeedbackText(m core.FeedbackMessage) string {
	if t := m.Text(); t != "" {
		return t
	}
	return NoOutput
}

// TrialSystemPrompt and TrialPrompt are sent by CheckSupportedFeatures.
const (
	TrialSystemPrompt = "You are an helpful assistant."
	TrialPrompt       = "Execute the test function."
	TrialFunction     = "test"
)

// TrialFunctionDefinition is the trivial tool offered by capability probes.
func TrialFunctionDefinition() namespace.FunctionDefinition {
	return namespace.FunctionDefinition{
		Name:        TrialFunction,
		Description: "This is a test function.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	}
}
