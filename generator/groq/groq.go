// Package groq connects to the Groq OpenAI-compatible endpoint. Invocations
// are replayed as native tool calls paired with tool messages by id.
package groq

import (
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/generator/openai"
)

// Profile is the Groq backend profile. Groq has no embeddings endpoint and
// reports tool support whenever the probe call succeeds.
var Profile = openai.Profile{
	Provider:    "groq",
	APIKeyEnv:   "GROQ_API_KEY",
	BaseURL:     "https://api.groq.com/openai/v1/",
	Probe:       openai.ProbeSuccess,
	ToolResults: true,
	Embeddings:  false,
}

// New creates a Groq client. It fails with core.ErrAuthMissing when
// GROQ_API_KEY is unset and no key is configured.
func New(optFns ...func(o *generator.Options)) (*openai.Client, error) {
	return openai.NewCompatible(Profile, optFns...)
}
